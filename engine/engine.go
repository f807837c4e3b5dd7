package engine

import (
	"context"
	"errors"

	"github.com/use-agent/smarteraz/models"
)

// Engine is the interface that all page transports must implement.
// An Engine instance is one transport session: it may hold cookies or a
// browser process until Close is called.
type Engine interface {
	// Name returns the engine identifier (e.g. "http", "browser", "auto").
	Name() string

	// Fetch retrieves the page content for the given request.
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)

	// Close releases everything the session holds.
	Close() error
}

// FetchRequest contains everything an engine needs to fetch a page.
type FetchRequest struct {
	URL string
}

// FetchResult is the output of a successful engine fetch.
type FetchResult struct {
	HTML       string
	StatusCode int
	FinalURL   string
	EngineName string

	// Reloads counts how many times the page was reloaded to get past the
	// rendering-failure sentinel.
	Reloads int
}

// CategorizeError wraps raw transport errors into typed CrawlErrors so the
// API layer can map them to appropriate HTTP status codes. Errors that are
// already CrawlErrors pass through untouched.
func CategorizeError(err error, msg string) error {
	var ce *models.CrawlError
	switch {
	case errors.As(err, &ce):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewCrawlError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewCrawlError(models.ErrCodeCanceled, "request canceled", err)
	default:
		return models.NewCrawlError(models.ErrCodeTransport, msg, err)
	}
}
