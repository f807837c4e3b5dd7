// Package scraper implements the browser-rendered transport on top of a
// headless Chromium driven by go-rod.
package scraper

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/use-agent/smarteraz/engine"
	"github.com/use-agent/smarteraz/models"
)

// Options configures a Browser.
type Options struct {
	Headless   bool
	NoSandbox  bool
	BrowserBin string
	Proxy      string

	// UserAgent is applied to every page.
	UserAgent string

	// Headers are sent with every page request.
	Headers map[string]string

	// Stealth masks navigator.webdriver and similar automation tells.
	Stealth bool

	// BlockedResourceTypes lists resource types to abort, e.g. "Image".
	BlockedResourceTypes []string
	BlockAds             bool

	Retry engine.RetryPolicy

	// OnReload is called before every sentinel reload.
	OnReload func()
}

// errClosed is returned by Fetch after Close.
var errClosed = errors.New("browser session closed")

// Browser is the browser-rendered transport. The Chromium process is
// launched on the first Fetch and reused by later ones; every Fetch gets its
// own tab. It is safe for concurrent use.
type Browser struct {
	opts Options

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	closed   bool
}

// NewBrowser returns a Browser that has not launched anything yet.
func NewBrowser(opts Options) *Browser {
	if opts.UserAgent == "" {
		opts.UserAgent = engine.DefaultUserAgent
	}
	return &Browser{opts: opts}
}

func (b *Browser) Name() string { return "browser" }

// session returns the running browser, launching it if needed.
func (b *Browser) session() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, models.NewCrawlError(models.ErrCodeTransport, "browser unavailable", errClosed)
	}
	if b.browser != nil {
		return b.browser, nil
	}

	l := launcher.New().
		Headless(b.opts.Headless).
		NoSandbox(b.opts.NoSandbox)

	if b.opts.BrowserBin != "" {
		l = l.Bin(b.opts.BrowserBin)
	}
	if b.opts.Proxy != "" {
		l = l.Proxy(b.opts.Proxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewCrawlError(models.ErrCodeTransport, "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL, "headless", b.opts.Headless)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, models.NewCrawlError(models.ErrCodeTransport, "failed to connect to browser", err)
	}

	b.launcher = l
	b.browser = browser
	return browser, nil
}

// Started reports whether the Chromium process has been launched.
func (b *Browser) Started() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.browser != nil
}

// Close kills the browser process, if one was launched. Later Fetch calls
// fail.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	if b.browser == nil {
		return nil
	}

	slog.Info("browser session shutting down")
	err := b.browser.Close()
	b.launcher.Cleanup()
	b.browser = nil
	b.launcher = nil
	return err
}
