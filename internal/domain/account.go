package domain

import "time"

// EntityType identifies one of the synced CRM record kinds.
type EntityType string

const (
	EntityCompanies EntityType = "companies"
	EntityContacts  EntityType = "contacts"
	EntityMeetings  EntityType = "meetings"
)

// LastPulledDates holds the per-entity watermarks for an account. A zero
// time means the entity has never been pulled and the next extraction is
// unbounded on the lower end.
type LastPulledDates struct {
	Companies time.Time
	Contacts  time.Time
	Meetings  time.Time
}

// Get returns the watermark for the given entity type.
func (d LastPulledDates) Get(entity EntityType) time.Time {
	switch entity {
	case EntityCompanies:
		return d.Companies
	case EntityContacts:
		return d.Contacts
	case EntityMeetings:
		return d.Meetings
	}
	return time.Time{}
}

// Set updates the watermark for the given entity type.
func (d *LastPulledDates) Set(entity EntityType, t time.Time) {
	switch entity {
	case EntityCompanies:
		d.Companies = t
	case EntityContacts:
		d.Contacts = t
	case EntityMeetings:
		d.Meetings = t
	}
}

// Account is one CRM portal to sync. RefreshToken is rotated by the token
// manager; LastPulledDates are advanced only after the corresponding
// extraction completes.
type Account struct {
	ID              string
	RefreshToken    string
	LastPulledDates LastPulledDates
}
