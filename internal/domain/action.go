package domain

import "time"

// Action names, one Created/Updated pair per entity type.
const (
	ActionCompanyCreated = "Company Created"
	ActionCompanyUpdated = "Company Updated"
	ActionContactCreated = "Contact Created"
	ActionContactUpdated = "Contact Updated"
	ActionMeetingCreated = "Meeting Created"
	ActionMeetingUpdated = "Meeting Updated"
)

// Attendee is a resolved meeting participant embedded in meeting payloads.
type Attendee struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Action is a normalized CRM event ready for downstream delivery. Exactly
// one of the entity-specific payload fields is set, depending on the entity
// the action was produced from. Actions are immutable once built.
type Action struct {
	ActionName         string         `json:"actionName"`
	ActionDate         time.Time      `json:"actionDate"`
	IncludeInAnalytics int            `json:"includeInAnalytics"`
	Identity           string         `json:"identity,omitempty"`
	UserProperties     map[string]any `json:"userProperties,omitempty"`
	CompanyProperties  map[string]any `json:"companyProperties,omitempty"`
	MeetingProperties  map[string]any `json:"meetingProperties,omitempty"`
}
