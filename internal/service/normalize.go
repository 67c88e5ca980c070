package service

import (
	"strconv"
	"strings"
	"time"

	"crm_sync/internal/domain"
	"crm_sync/internal/hubspot"
)

// companyActionSkew is subtracted from every company action date. It is a
// deliberate tie-break inherited from the upstream contract, applied to
// companies only.
const companyActionSkew = 2 * time.Second

// companyAction normalizes one company record. Records without a property
// bag produce no action.
func companyAction(record hubspot.Record, watermark time.Time) *domain.Action {
	if len(record.Properties) == 0 {
		return nil
	}

	created := watermark.IsZero() || record.CreatedAt.After(watermark)

	name, date := domain.ActionCompanyUpdated, record.UpdatedAt
	if created {
		name, date = domain.ActionCompanyCreated, record.CreatedAt
	}

	properties := map[string]any{"company_id": record.ID}
	setIfPresent(properties, "company_domain", record.Properties["domain"])
	setIfPresent(properties, "company_industry", record.Properties["industry"])

	return &domain.Action{
		ActionName:        name,
		ActionDate:        date.Add(-companyActionSkew),
		CompanyProperties: properties,
	}
}

// contactAction normalizes one contact record. Contacts without an email
// produce no action; a contact with no resolved company simply omits the
// company_id key. companyID may be empty.
func contactAction(record hubspot.Record, watermark time.Time, companyID string) *domain.Action {
	if len(record.Properties) == 0 || record.Properties["email"] == "" {
		return nil
	}

	created := record.CreatedAt.After(watermark)

	name, date := domain.ActionContactUpdated, record.UpdatedAt
	if created {
		name, date = domain.ActionContactCreated, record.CreatedAt
	}

	score, _ := strconv.Atoi(record.Properties["hubspotscore"])

	properties := map[string]any{"contact_score": score}
	setIfPresent(properties, "company_id", companyID)
	setIfPresent(properties, "contact_name", contactName(record))
	setIfPresent(properties, "contact_title", record.Properties["jobtitle"])
	setIfPresent(properties, "contact_source", record.Properties["hs_analytics_source"])
	setIfPresent(properties, "contact_status", record.Properties["hs_lead_status"])

	return &domain.Action{
		ActionName:     name,
		ActionDate:     date,
		Identity:       record.Properties["email"],
		UserProperties: properties,
	}
}

// meetingAction normalizes one meeting record. Re-windowed pagination can
// revisit records, so anything at or below the watermark is skipped (strict
// greater-than), keeping re-visits idempotent.
func meetingAction(record hubspot.Record, watermark time.Time, attendees []domain.Attendee) *domain.Action {
	if !record.UpdatedAt.After(watermark) {
		return nil
	}
	if len(record.Properties) == 0 {
		return nil
	}

	created := record.CreatedAt.After(watermark)

	name, date := domain.ActionMeetingUpdated, record.UpdatedAt
	if created {
		name, date = domain.ActionMeetingCreated, record.CreatedAt
	}

	properties := map[string]any{
		"meeting_id":        record.ID,
		"meeting_attendees": attendees,
	}
	setIfPresent(properties, "meeting_title", record.Properties["hs_meeting_title"])
	setIfPresent(properties, "meeting_body", record.Properties["hs_meeting_body"])
	setIfPresent(properties, "meeting_start_time", record.Properties["hs_meeting_start_time"])
	setIfPresent(properties, "meeting_end_time", record.Properties["hs_meeting_end_time"])
	setIfPresent(properties, "meeting_location", record.Properties["hs_meeting_location"])
	setIfPresent(properties, "meeting_outcome", record.Properties["hs_meeting_outcome"])
	setIfPresent(properties, "meeting_external_url", record.Properties["hs_meeting_external_url"])
	setIfPresent(properties, "meeting_internal_notes", record.Properties["hs_internal_meeting_notes"])
	setIfPresent(properties, "meeting_timestamp", record.Properties["hs_timestamp"])

	return &domain.Action{
		ActionName:        name,
		ActionDate:        date,
		MeetingProperties: properties,
	}
}

// attendeesOf maps resolved contact records to the attendee shape embedded
// in meeting payloads.
func attendeesOf(contacts []*hubspot.Record) []domain.Attendee {
	attendees := make([]domain.Attendee, 0, len(contacts))
	for _, c := range contacts {
		attendees = append(attendees, domain.Attendee{
			ID:    c.ID,
			Email: c.Properties["email"],
			Name:  contactName(*c),
		})
	}
	return attendees
}

func contactName(record hubspot.Record) string {
	return strings.TrimSpace(record.Properties["firstname"] + " " + record.Properties["lastname"])
}

// setIfPresent copies a property into a payload, dropping keys the record
// has no value for rather than emitting empty fields.
func setIfPresent(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}
