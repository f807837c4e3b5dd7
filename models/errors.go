package models

import (
	"errors"
	"fmt"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeTransport         = "TRANSPORT_ERROR"
	ErrCodeTimeout           = "FETCH_TIMEOUT"
	ErrCodeBlocked           = "BLOCKED_BY_CAPTCHA"
	ErrCodeSentinelExhausted = "SENTINEL_RETRY_EXHAUSTED"
	ErrCodeParse             = "PARSE_ERROR"
	ErrCodeCanceled          = "CRAWL_CANCELED"
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Page    int    `json:"page,omitempty"`
}

// CrawlError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type CrawlError struct {
	Code    string
	Message string
	// Page is the results page that failed; 0 when not tied to a page.
	Page int
	Err  error
}

func (e *CrawlError) Error() string {
	prefix := e.Code
	if e.Page > 0 {
		prefix = fmt.Sprintf("%s (page %d)", e.Code, e.Page)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *CrawlError) Unwrap() error {
	return e.Err
}

// NewCrawlError creates a new CrawlError.
func NewCrawlError(code, message string, err error) *CrawlError {
	return &CrawlError{Code: code, Message: message, Err: err}
}

// WithPage returns a copy of e attributed to the given page. A page that is
// already set is kept.
func (e *CrawlError) WithPage(page int) *CrawlError {
	cp := *e
	if cp.Page == 0 {
		cp.Page = page
	}
	return &cp
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *CrawlError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message, Page: e.Page}
}

// ErrorCode reports the code of the first CrawlError in err's chain, or
// ErrCodeInternal when there is none.
func ErrorCode(err error) string {
	var ce *CrawlError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}
