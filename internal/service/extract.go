package service

import (
	"context"
	"fmt"
	"time"

	"crm_sync/internal/domain"
	"crm_sync/internal/hubspot"
)

// extractResult carries one entity extraction's outcome back to the
// orchestrator. completedAt is the window upper bound captured at
// extraction start and becomes the new watermark on success.
type extractResult struct {
	entity      domain.EntityType
	actions     []domain.Action
	completedAt time.Time
	err         error
}

func (s *SyncService) extractCompanies(ctx context.Context, account *domain.Account) ([]domain.Action, time.Time, error) {
	watermark := account.LastPulledDates.Companies
	now := s.now().UTC()

	var actions []domain.Action
	pages := newPager(s.client, s.tokens, account, companySpec, watermark, now, s.pageSize)
	for {
		records, err := pages.Next(ctx)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("companies: %w", err)
		}
		if records == nil {
			break
		}

		for _, record := range records {
			if action := companyAction(record, watermark); action != nil {
				actions = append(actions, *action)
			}
		}
	}

	return actions, now, nil
}

func (s *SyncService) extractContacts(ctx context.Context, account *domain.Account) ([]domain.Action, time.Time, error) {
	watermark := account.LastPulledDates.Contacts
	now := s.now().UTC()

	var actions []domain.Action
	pages := newPager(s.client, s.tokens, account, contactSpec, watermark, now, s.pageSize)
	for {
		records, err := pages.Next(ctx)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("contacts: %w", err)
		}
		if records == nil {
			break
		}

		// One association call per page, not per contact.
		companies, err := s.resolver.Resolve(ctx, "contacts", "companies", recordIDs(records))
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("contacts: %w", err)
		}

		for _, record := range records {
			var companyID string
			if ids := companies[record.ID]; len(ids) > 0 {
				companyID = ids[0]
			}
			if action := contactAction(record, watermark, companyID); action != nil {
				actions = append(actions, *action)
			}
		}
	}

	return actions, now, nil
}

func (s *SyncService) extractMeetings(ctx context.Context, account *domain.Account) ([]domain.Action, time.Time, error) {
	watermark := account.LastPulledDates.Meetings
	now := s.now().UTC()

	// Attendee lookups are memoized for this pass only.
	cache := newContactCache(s.client)

	var actions []domain.Action
	pages := newPager(s.client, s.tokens, account, meetingSpec, watermark, now, s.pageSize)
	for {
		records, err := pages.Next(ctx)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("meetings: %w", err)
		}
		if records == nil {
			break
		}

		attendees, err := s.resolver.Resolve(ctx, "meetings", "contacts", recordIDs(records))
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("meetings: %w", err)
		}

		for _, record := range records {
			resolved := make([]domain.Attendee, 0)
			if contactIDs := attendees[record.ID]; len(contactIDs) > 0 {
				contacts, err := cache.Get(ctx, contactIDs)
				if err != nil {
					return nil, time.Time{}, fmt.Errorf("meetings: %w", err)
				}
				resolved = attendeesOf(contacts)
			}

			if action := meetingAction(record, watermark, resolved); action != nil {
				actions = append(actions, *action)
			}
		}
	}

	return actions, now, nil
}

func recordIDs(records []hubspot.Record) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}
