package models

// SearchRequest is the payload for POST /api/v1/search.
type SearchRequest struct {
	SearchFilter

	// Dedupe drops items whose catalog id was already returned by an earlier
	// page. Default: the server's configured default (off unless changed).
	Dedupe *bool `json:"dedupe,omitempty"`

	// MaxPages stops the crawl from extending past this many pages.
	// 0 means no limit beyond the server cap.
	MaxPages int `json:"max_pages,omitempty" binding:"omitempty,min=1"`

	// FetchTimeout is the per-page fetch deadline in seconds.
	// Default: server configured. Max: 120.
	FetchTimeout int `json:"fetch_timeout,omitempty" binding:"omitempty,min=1,max=120"`

	// MaxAge enables the result cache: a cached crawl younger than MaxAge
	// milliseconds is returned without fetching. 0 disables caching.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`
}

// Defaults applies server defaults to unset fields.
func (r *SearchRequest) Defaults(dedupe bool, fetchTimeoutSec int) {
	if r.Dedupe == nil {
		d := dedupe
		r.Dedupe = &d
	}
	if r.FetchTimeout == 0 {
		r.FetchTimeout = fetchTimeoutSec
	}
}

// SearchPageRequest is the payload for POST /api/v1/search/page.
type SearchPageRequest struct {
	SearchFilter

	// Page is the 1-based results page to fetch. Required.
	Page int `json:"page" binding:"required,min=1"`

	FetchTimeout int `json:"fetch_timeout,omitempty" binding:"omitempty,min=1,max=120"`
}

// SearchJobRequest is the payload for POST /api/v1/search/jobs.
type SearchJobRequest struct {
	SearchRequest

	WebhookURL    string `json:"webhook_url,omitempty" binding:"omitempty,url"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}
