package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"crm_sync/internal/domain"
	"crm_sync/internal/hubspot"
)

// maxSearchOffset is the provider's hard ceiling on the search cursor.
// Reaching it forces a switch from cursor paging to time-window paging.
const maxSearchOffset = 9900

// entitySpec describes how one entity type is searched.
type entitySpec struct {
	entity         domain.EntityType
	objectType     string
	filterProperty string
	properties     []string
}

var companySpec = entitySpec{
	entity:         domain.EntityCompanies,
	objectType:     "companies",
	filterProperty: "hs_lastmodifieddate",
	properties: []string{
		"name",
		"domain",
		"country",
		"industry",
		"description",
		"annualrevenue",
		"numberofemployees",
		"hs_lead_status",
	},
}

var contactSpec = entitySpec{
	entity:         domain.EntityContacts,
	objectType:     "contacts",
	filterProperty: "lastmodifieddate",
	properties: []string{
		"firstname",
		"lastname",
		"jobtitle",
		"email",
		"hubspotscore",
		"hs_lead_status",
		"hs_analytics_source",
		"hs_latest_source",
	},
}

var meetingSpec = entitySpec{
	entity:         domain.EntityMeetings,
	objectType:     "meetings",
	filterProperty: "hs_lastmodifieddate",
	properties: []string{
		"hs_timestamp",
		"hubspot_owner_id",
		"hs_meeting_title",
		"hs_meeting_body",
		"hs_internal_meeting_notes",
		"hs_meeting_external_url",
		"hs_meeting_location",
		"hs_meeting_start_time",
		"hs_meeting_end_time",
		"hs_meeting_outcome",
	},
}

// pager is a lazy, finite iterator over pages of records modified between
// the watermark and now. It validates the token before every fetch and
// re-windows past the provider's cursor ceiling: when the next cursor would
// reach maxSearchOffset, the cursor is dropped and the lower bound advances
// to the last record's modified time.
type pager struct {
	client   CRMClient
	tokens   *TokenManager
	account  *domain.Account
	spec     entitySpec
	pageSize int

	since time.Time
	until time.Time
	after string
	done  bool
}

func newPager(client CRMClient, tokens *TokenManager, account *domain.Account, spec entitySpec, watermark, now time.Time, pageSize int) *pager {
	return &pager{
		client:   client,
		tokens:   tokens,
		account:  account,
		spec:     spec,
		pageSize: pageSize,
		since:    watermark,
		until:    now,
	}
}

// Next returns the next page of records, or (nil, nil) once the sequence is
// exhausted. Any error ends the extraction; nothing is retried here.
func (p *pager) Next(ctx context.Context) ([]hubspot.Record, error) {
	if p.done {
		return nil, nil
	}

	if err := p.tokens.EnsureValid(ctx, p.account); err != nil {
		return nil, err
	}

	page, err := p.client.Search(ctx, hubspot.SearchRequest{
		ObjectType:     p.spec.objectType,
		FilterProperty: p.spec.filterProperty,
		Since:          p.since,
		Until:          p.until,
		Properties:     p.spec.properties,
		Limit:          p.pageSize,
		After:          p.after,
	})
	if err != nil {
		return nil, err
	}
	if page == nil || page.Results == nil {
		// Distinguished from a well-formed page with zero results.
		return nil, fmt.Errorf("fetch %s: %w", p.spec.entity, hubspot.ErrEmptyResponse)
	}

	records := page.Results
	if len(records) == 0 {
		p.done = true
		return nil, nil
	}

	next := page.NextAfter()
	if next == "" {
		p.done = true
		return records, nil
	}

	if offset, err := strconv.Atoi(next); err == nil && offset >= maxSearchOffset {
		p.after = ""
		p.since = records[len(records)-1].UpdatedAt
	} else {
		p.after = next
	}

	return records, nil
}
