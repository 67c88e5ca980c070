package domain

import "time"

// SyncRun is the audit record for one account's sync pass.
type SyncRun struct {
	AccountID      string
	StartedAt      time.Time
	Duration       time.Duration
	CompanyActions int
	ContactActions int
	MeetingActions int
	Errors         int
	Skipped        bool
}

// Actions returns the total number of actions produced by the run.
func (r SyncRun) Actions() int {
	return r.CompanyActions + r.ContactActions + r.MeetingActions
}

// SyncStats aggregates a whole run across accounts.
type SyncStats struct {
	Accounts        int
	SkippedAccounts int
	TotalActions    int
	Errors          int
	Duration        time.Duration
}
