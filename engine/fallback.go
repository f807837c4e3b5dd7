package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/use-agent/smarteraz/models"
)

// Fallback tries its engines one after another, lightest first, and
// returns the first success. Only one engine runs at a time. The engine that
// last succeeded for a host is tried first on the next fetch to that host.
type Fallback struct {
	engines []Engine
	memory  *DomainMemory
}

// NewFallback creates a Fallback over engines in escalation order. memory
// may be shared between many Fallbacks.
func NewFallback(memory *DomainMemory, engines ...Engine) *Fallback {
	return &Fallback{engines: engines, memory: memory}
}

func (f *Fallback) Name() string { return "auto" }

// Fetch runs the escalation chain for the request. A page that still
// carries the rendering-failure sentinel counts as a failure. If all engines
// fail, it returns the last error.
func (f *Fallback) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	domain := extractDomain(req.URL)

	var lastErr error
	for _, eng := range f.order(domain) {
		if err := ctx.Err(); err != nil {
			return nil, CategorizeError(err, "fetch abandoned")
		}

		slog.Debug("engine starting", "engine", eng.Name(), "url", req.URL)
		result, err := eng.Fetch(ctx, req)
		if err != nil {
			slog.Debug("engine failed", "engine", eng.Name(), "url", req.URL, "error", err)
			if f.memory != nil && f.memory.Get(domain) == eng.Name() {
				f.memory.Delete(domain)
			}
			lastErr = err
			continue
		}
		if HasSentinel(result.HTML) {
			slog.Debug("engine returned a failed render", "engine", eng.Name(), "url", req.URL)
			lastErr = models.NewCrawlError(models.ErrCodeSentinelExhausted, eng.Name()+" returned a failed render", nil)
			continue
		}

		if f.memory != nil {
			f.memory.Set(domain, eng.Name())
		}
		return result, nil
	}

	if lastErr == nil {
		lastErr = CategorizeError(fmt.Errorf("no engines configured"), "fallback")
	}
	return nil, lastErr
}

// order puts the remembered engine for domain first.
func (f *Fallback) order(domain string) []Engine {
	if f.memory == nil {
		return f.engines
	}
	remembered := f.memory.Get(domain)
	if remembered == "" {
		return f.engines
	}

	ordered := make([]Engine, 0, len(f.engines))
	for _, eng := range f.engines {
		if eng.Name() == remembered {
			ordered = append(ordered, eng)
		}
	}
	for _, eng := range f.engines {
		if eng.Name() != remembered {
			ordered = append(ordered, eng)
		}
	}
	slog.Debug("domain memory hit", "domain", domain, "engine", remembered)
	return ordered
}

// Close closes every engine in the chain.
func (f *Fallback) Close() error {
	var errs []error
	for _, eng := range f.engines {
		if err := eng.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", eng.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// extractDomain parses the hostname from a URL string.
func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
