package models

import "sync"

// Search job states.
const (
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// SearchJobResponse is the immediate response for POST /api/v1/search/jobs.
type SearchJobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// SearchJobStatusResponse is the response for GET /api/v1/search/jobs/:id.
type SearchJobStatusResponse struct {
	ID             string       `json:"id"`
	Status         string       `json:"status"`
	PagesCompleted int          `json:"pages_completed"`
	KnownMaxPage   int          `json:"known_max_page"`
	Total          int          `json:"total"`
	Items          []ResultItem `json:"items,omitempty"`
	Error          *ErrorDetail `json:"error,omitempty"`
}

// SearchJob tracks an asynchronous crawl. Items are only exposed once the
// job completes, because a failed crawl has no partial result.
type SearchJob struct {
	mu sync.Mutex

	ID            string
	Status        string
	CreatedAt     int64 // unix timestamp
	WebhookURL    string
	WebhookSecret string

	pages  int
	bound  int
	items  []ResultItem
	detail *ErrorDetail
}

// NewSearchJob creates a job in the processing state.
func NewSearchJob(id string, createdAt int64) *SearchJob {
	return &SearchJob{ID: id, Status: JobProcessing, CreatedAt: createdAt}
}

// Progress records that another page was fetched and the current bound.
func (j *SearchJob) Progress(pages, bound int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pages = pages
	j.bound = bound
}

// Complete marks the job completed with the final items.
func (j *SearchJob) Complete(items []ResultItem) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = JobCompleted
	j.items = items
}

// Fail marks the job failed. Any accumulated items are discarded.
func (j *SearchJob) Fail(detail *ErrorDetail) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = JobFailed
	j.items = nil
	j.detail = detail
}

// Snapshot returns the API view of the job.
func (j *SearchJob) Snapshot() SearchJobStatusResponse {
	j.mu.Lock()
	defer j.mu.Unlock()
	return SearchJobStatusResponse{
		ID:             j.ID,
		Status:         j.Status,
		PagesCompleted: j.pages,
		KnownMaxPage:   j.bound,
		Total:          len(j.items),
		Items:          j.items,
		Error:          j.detail,
	}
}
