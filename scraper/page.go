package scraper

import (
	"context"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/smarteraz/engine"
	"github.com/use-agent/smarteraz/models"
	"github.com/ysmood/gson"
)

// Fetch renders req.URL in a fresh tab and returns the DOM once it is ready
// and free of the rendering-failure sentinel.
//
// Lifecycle:
//
//  1. Launch or reuse the browser
//  2. Open a tab                 – closed by defer on every path
//  3. Stealth + user agent       – before navigation
//  4. Extra headers + hijack     – before navigation
//  5. Bind ctx to the tab        – ctx deadline aborts every CDP call below
//  6. Navigate, wait for DOMContentLoaded
//  7. Read HTML; reload with backoff while the sentinel is present
//  8. Reject the captcha form
func (b *Browser) Fetch(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	// ── 1. Browser session ───────────────────────────────────────────
	browser, err := b.session()
	if err != nil {
		return nil, err
	}

	// ── 2. Tab ───────────────────────────────────────────────────────
	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewCrawlError(models.ErrCodeTransport, "failed to open page", err)
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			slog.Debug("closing page failed", "error", closeErr)
		}
	}()

	// ── 3. Stealth + user agent ──────────────────────────────────────
	if b.opts.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
		}
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: b.opts.UserAgent}); err != nil {
		return nil, models.NewCrawlError(models.ErrCodeTransport, "failed to set user agent", err)
	}

	// ── 4. Extra headers + request hijacking ─────────────────────────
	if len(b.opts.Headers) > 0 {
		if err := (proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(b.opts.Headers)}).Call(page); err != nil {
			slog.Warn("setting extra headers failed", "error", err)
		}
	}
	if router := setupHijack(page, b.opts.BlockedResourceTypes, b.opts.BlockAds); router != nil {
		defer func() { _ = router.Stop() }()
	}

	// ── 5. Bind request context ──────────────────────────────────────
	p := page.Context(ctx)

	// ── 6. Navigate ──────────────────────────────────────────────────
	waitReady := p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := p.Navigate(req.URL); err != nil {
		return nil, engine.CategorizeError(err, "navigation to search page failed")
	}
	waitReady()

	// ── 7. Read, then wait out the sentinel ──────────────────────────
	content, err := p.HTML()
	if err != nil {
		return nil, engine.CategorizeError(err, "failed to read page HTML")
	}

	content, reloads, err := engine.WaitOutSentinel(ctx, b.opts.Retry, content, reloadFunc(p),
		func(attempt int) {
			slog.Info("render failure sentinel found, reloading",
				"url", req.URL,
				"attempt", attempt,
			)
			if b.opts.OnReload != nil {
				b.opts.OnReload()
			}
		})
	if err != nil {
		return nil, err
	}
	if err := engine.CheckCaptcha(content); err != nil {
		return nil, err
	}

	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = req.URL
	}

	return &engine.FetchResult{
		HTML:       content,
		StatusCode: navigationStatus(p),
		FinalURL:   finalURL,
		EngineName: b.Name(),
		Reloads:    reloads,
	}, nil
}

// reloadFunc reloads p and reads it again once the DOM is ready.
func reloadFunc(p *rod.Page) engine.ReloadFunc {
	return func(ctx context.Context) (string, error) {
		waitReady := p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
		if err := p.Reload(); err != nil {
			return "", engine.CategorizeError(err, "reload failed")
		}
		waitReady()
		if err := ctx.Err(); err != nil {
			return "", engine.CategorizeError(err, "reload interrupted")
		}
		content, err := p.HTML()
		if err != nil {
			return "", engine.CategorizeError(err, "failed to read page HTML")
		}
		return content, nil
	}
}

// navigationStatus reads the HTTP status of the last navigation from the
// Performance API, or 0 when unavailable.
func navigationStatus(p *rod.Page) int {
	res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`)
	if err != nil {
		return 0
	}
	return res.Value.Int()
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors.
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
