package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/use-agent/smarteraz/models"
)

// RenderErrorSentinel is embedded in a results page that failed to render.
// Reloading the same page usually clears it.
const RenderErrorSentinel = "https://images-na.ssl-images-amazon.com/images/G/01/error/"

// RetryPolicy bounds the sentinel reload loop.
type RetryPolicy struct {
	// MaxRetries is the number of reloads allowed after the first read.
	MaxRetries int
	// Backoff is the delay before the first reload; it doubles each time.
	Backoff time.Duration
	// MaxBackoff caps the delay. Zero means uncapped.
	MaxBackoff time.Duration
}

// DefaultRetryPolicy reloads up to five times, starting at one second.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 5,
	Backoff:    time.Second,
	MaxBackoff: 10 * time.Second,
}

// Delay returns the wait before reload number attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	base := p.Backoff
	if base <= 0 {
		return 0
	}
	// Stop shifting once the cap is certainly exceeded.
	if attempt > 30 {
		attempt = 30
	}
	delay := base * time.Duration(1<<(attempt-1))
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		delay = p.MaxBackoff
	}
	return delay
}

// HasSentinel reports whether content is a failed render.
func HasSentinel(content string) bool {
	return strings.Contains(content, RenderErrorSentinel)
}

// ReloadFunc reloads the current page and returns its fresh content.
type ReloadFunc func(ctx context.Context) (string, error)

// WaitOutSentinel reloads until content no longer carries the sentinel.
// It returns the clean content and the number of reloads performed. When
// the budget runs out it fails with SENTINEL_RETRY_EXHAUSTED; a reload
// error is returned as is.
func WaitOutSentinel(ctx context.Context, policy RetryPolicy, content string, reload ReloadFunc, onReload func(attempt int)) (string, int, error) {
	attempt := 0
	for HasSentinel(content) {
		if attempt >= policy.MaxRetries {
			return "", attempt, models.NewCrawlError(
				models.ErrCodeSentinelExhausted,
				fmt.Sprintf("page still failed to render after %d reloads", attempt),
				nil,
			)
		}
		attempt++

		if err := sleepCtx(ctx, policy.Delay(attempt)); err != nil {
			return "", attempt - 1, CategorizeError(err, "waiting to reload")
		}
		if onReload != nil {
			onReload(attempt)
		}

		next, err := reload(ctx)
		if err != nil {
			return "", attempt, err
		}
		content = next
	}
	return content, attempt, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
