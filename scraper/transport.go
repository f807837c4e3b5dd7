package scraper

import (
	"fmt"

	"github.com/use-agent/smarteraz/config"
	"github.com/use-agent/smarteraz/engine"
)

// NewFactory returns an engine.Factory that builds a fresh transport of the
// configured mode. Every call yields an independent session: its own cookie
// jar for http, its own browser process for browser, and both for auto.
func NewFactory(cfg *config.Config, memory *engine.DomainMemory, onReload func()) (engine.Factory, error) {
	httpOpts := engine.HTTPOptions{
		UserAgent:      cfg.Transport.UserAgent,
		Headers:        cfg.Transport.Headers,
		Proxy:          cfg.Transport.Proxy,
		TLSFingerprint: cfg.Transport.TLSFingerprint,
	}
	browserOpts := BrowserOptions(cfg, onReload)

	switch cfg.Transport.Mode {
	case config.ModeHTTP:
		return func() (engine.Engine, error) {
			return engine.NewHTTPEngine(httpOpts)
		}, nil
	case config.ModeBrowser:
		return func() (engine.Engine, error) {
			return NewBrowser(browserOpts), nil
		}, nil
	case config.ModeAuto:
		return func() (engine.Engine, error) {
			h, err := engine.NewHTTPEngine(httpOpts)
			if err != nil {
				return nil, err
			}
			return engine.NewFallback(memory, h, NewBrowser(browserOpts)), nil
		}, nil
	default:
		return nil, fmt.Errorf("scraper: unknown transport mode %q", cfg.Transport.Mode)
	}
}

// BrowserOptions maps the browser and sentinel config onto Options.
func BrowserOptions(cfg *config.Config, onReload func()) Options {
	return Options{
		Headless:             cfg.Browser.Headless,
		NoSandbox:            cfg.Browser.NoSandbox,
		BrowserBin:           cfg.Browser.BrowserBin,
		Proxy:                cfg.Transport.Proxy,
		UserAgent:            cfg.Transport.UserAgent,
		Headers:              cfg.Transport.Headers,
		Stealth:              cfg.Browser.Stealth,
		BlockedResourceTypes: cfg.Browser.BlockedResourceTypes,
		BlockAds:             cfg.Browser.BlockAds,
		Retry: engine.RetryPolicy{
			MaxRetries: cfg.Sentinel.MaxRetries,
			Backoff:    cfg.Sentinel.Backoff,
			MaxBackoff: cfg.Sentinel.MaxBackoff,
		},
		OnReload: onReload,
	}
}
