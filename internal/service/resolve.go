package service

import (
	"context"
	"fmt"

	"crm_sync/internal/hubspot"
)

// associationResolver batch-resolves object associations, one API call per
// page of records rather than one per record.
type associationResolver struct {
	client CRMClient
}

// Resolve maps each source id to its target ids. Ids with no association
// are absent from the map; that is not an error.
func (r *associationResolver) Resolve(ctx context.Context, fromType, toType string, ids []string) (map[string][]string, error) {
	if len(ids) == 0 {
		return map[string][]string{}, nil
	}

	associations, err := r.client.BatchReadAssociations(ctx, fromType, toType, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve %s->%s associations: %w", fromType, toType, err)
	}

	resolved := make(map[string][]string, len(associations))
	for _, a := range associations {
		resolved[a.FromID] = a.ToIDs
	}
	return resolved, nil
}

// contactCache memoizes contact lookups by id. Meetings in one pass tend to
// share attendees, so repeat lookups are served from memory. A cache is
// built fresh for each meeting extraction and discarded with it; there is
// no eviction within a pass.
type contactCache struct {
	client CRMClient
	byID   map[string]*hubspot.Record
}

func newContactCache(client CRMClient) *contactCache {
	return &contactCache{
		client: client,
		byID:   make(map[string]*hubspot.Record),
	}
}

// Get returns the contact records for the given ids, fetching each uncached
// id individually and remembering it for the rest of the pass.
func (c *contactCache) Get(ctx context.Context, ids []string) ([]*hubspot.Record, error) {
	contacts := make([]*hubspot.Record, 0, len(ids))
	for _, id := range ids {
		if contact, ok := c.byID[id]; ok {
			contacts = append(contacts, contact)
			continue
		}

		contact, err := c.client.GetByID(ctx, "contacts", id)
		if err != nil {
			return nil, fmt.Errorf("get contact %s: %w", id, err)
		}
		c.byID[id] = contact
		contacts = append(contacts, contact)
	}
	return contacts, nil
}
