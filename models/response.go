package models

// SearchResponse is the response for POST /api/v1/search.
type SearchResponse struct {
	// Success indicates whether the crawl completed without errors.
	Success bool `json:"success"`

	// Items holds every result in page order, then in-page order.
	Items []ResultItem `json:"items"`

	// Total is len(Items).
	Total int `json:"total"`

	// Pages is the number of pages fetched.
	Pages int `json:"pages"`

	Timing TimingInfo `json:"timing"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// SearchPageResponse is the response for POST /api/v1/search/page.
type SearchPageResponse struct {
	Success bool              `json:"success"`
	Result  *SearchPageResult `json:"page,omitempty"`
	Timing  TimingInfo        `json:"timing"`
	Error   *ErrorDetail      `json:"error,omitempty"`
}

// ErrorResponse is the body of every non-2xx response that has no more
// specific shape.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
	Timing  *TimingInfo  `json:"timing,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// FetchMs is the time spent inside the transport across all pages.
	FetchMs int64 `json:"fetch_ms"`

	// ParseMs is the time spent extracting items across all pages.
	ParseMs int64 `json:"parse_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string         `json:"status"` // "healthy" or "degraded"
	Uptime    string         `json:"uptime"`
	Transport TransportStats `json:"transport"`
	Version   string         `json:"version"`
}

// TransportStats reports how transports are being handed out.
type TransportStats struct {
	Mode           string `json:"mode"`
	SharedSession  bool   `json:"shared_session"`
	ActiveSessions int    `json:"active_sessions"`
	MaxSessions    int    `json:"max_sessions"`
}
