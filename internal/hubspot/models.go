package hubspot

import "time"

// Record is one raw CRM object as returned by the search and object APIs.
// Properties the record has no value for are either absent from the map or
// mapped to an empty string; callers treat both the same way.
type Record struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// SearchPage is the response envelope of one search call.
type SearchPage struct {
	Total   int      `json:"total"`
	Results []Record `json:"results"`
	Paging  *Paging  `json:"paging"`
}

// NextAfter returns the opaque cursor for the next page, or "" when the
// provider reports no further pages.
func (p *SearchPage) NextAfter() string {
	if p.Paging == nil || p.Paging.Next == nil {
		return ""
	}
	return p.Paging.Next.After
}

type Paging struct {
	Next *NextPage `json:"next"`
}

type NextPage struct {
	After string `json:"after"`
}

// SearchRequest describes one page fetch. A zero Since leaves the lower
// bound open (first-ever pull); Until is always set by the caller.
type SearchRequest struct {
	ObjectType     string
	FilterProperty string
	Since          time.Time
	Until          time.Time
	Properties     []string
	Limit          int
	After          string
}

// Association links one source object to its target object ids.
type Association struct {
	FromID string
	ToIDs  []string
}

// Token is the result of a refresh-token exchange.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}
