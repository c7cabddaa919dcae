package internal

import "time"

// SponsorRecord is one row of the sponsor register, keyed by its canonical name.
type SponsorRecord struct {
	Key    string `json:"key"`
	Name   string `json:"name"`
	Town   string `json:"town,omitempty"`
	County string `json:"county,omitempty"`
	Route  string `json:"route,omitempty"`
}

type StoreStatus struct {
	LastUpdated *time.Time `json:"lastUpdated"`
	TotalCount  int        `json:"totalCount"`
	Enabled     bool       `json:"isEnabled"`
}

type RefreshResult struct {
	TraceID    string
	Success    bool
	Count      int
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

type RefreshRun struct {
	ID         int
	TraceID    string
	Success    bool
	Count      int
	Error      string
	StartedAt  string
	FinishedAt string
}

// MatchRow is a single scanned element as written to reports.
type MatchRow struct {
	Host    string
	Site    string
	Text    string
	Key     string
	Sponsor bool
}
