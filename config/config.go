package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/smarteraz/engine"
	"gopkg.in/yaml.v3"
)

// Transport modes.
const (
	ModeHTTP    = "http"
	ModeBrowser = "browser"
	ModeAuto    = "auto"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Amazon    AmazonConfig    `yaml:"amazon"`
	Transport TransportConfig `yaml:"transport"`
	Browser   BrowserConfig   `yaml:"browser"`
	Sentinel  SentinelConfig  `yaml:"sentinel"`
	Crawl     CrawlConfig     `yaml:"crawl"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `yaml:"host"` // default: "0.0.0.0"
	Port int    `yaml:"port"` // default: 8080
	Mode string `yaml:"mode"` // "debug", "release", "test"; default: "release"
}

// AmazonConfig selects the storefront.
type AmazonConfig struct {
	// Domain is the country-specific storefront host.
	Domain string `yaml:"domain"` // default: "www.amazon.com"
}

// TransportConfig controls how pages are fetched.
type TransportConfig struct {
	// Mode is "http", "browser" or "auto" (http first, browser on failure).
	Mode string `yaml:"mode"` // default: "browser"

	UserAgent string            `yaml:"user_agent"`
	Headers   map[string]string `yaml:"headers"`

	// Proxy is used by both transports.
	Proxy string `yaml:"proxy"`

	// FetchTimeout bounds a single page fetch, sentinel reloads included.
	FetchTimeout time.Duration `yaml:"fetch_timeout"` // default: 45s

	// SharedSession makes all crawls share one transport session instead
	// of each crawl getting its own.
	SharedSession bool `yaml:"shared_session"` // default: false

	// MaxSessions caps concurrently checked-out sessions.
	MaxSessions int `yaml:"max_sessions"` // default: 4

	// TLSFingerprint gives the direct transport a Chrome TLS ClientHello.
	TLSFingerprint bool `yaml:"tls_fingerprint"` // default: true
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool `yaml:"headless"` // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool `yaml:"no_sandbox"` // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string `yaml:"browser_bin"`

	Stealth bool `yaml:"stealth"` // default: true

	// BlockedResourceTypes lists resource types to abort.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string `yaml:"blocked_resource_types"`

	BlockAds bool `yaml:"block_ads"` // default: true
}

// SentinelConfig bounds reloads of pages that failed to render.
type SentinelConfig struct {
	MaxRetries int           `yaml:"max_retries"` // default: 5
	Backoff    time.Duration `yaml:"backoff"`     // default: 1s
	MaxBackoff time.Duration `yaml:"max_backoff"` // default: 10s
}

// CrawlConfig controls pagination.
type CrawlConfig struct {
	// MaxPages caps how far any crawl may extend. 0 means no cap.
	MaxPages int `yaml:"max_pages"` // default: 0

	// Dedupe is the default for requests that do not say.
	Dedupe bool `yaml:"dedupe"` // default: false

	// JobTimeout bounds an asynchronous search job end to end.
	JobTimeout time.Duration `yaml:"job_timeout"` // default: 30m
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool `yaml:"enabled"` // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string `yaml:"api_keys"`
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 `yaml:"requests_per_second"` // default: 1

	// Burst is the maximum burst size per API key.
	Burst int `yaml:"burst"` // default: 5
}

// CacheConfig controls the search result cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached crawls.
	MaxEntries int `yaml:"max_entries"` // default: 500

	// TTL is the hard expiry of a cached crawl regardless of max_age.
	TTL time.Duration `yaml:"ttl"` // default: 1h
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // default: "info"
	Format string `yaml:"format"` // "json" or "text"; default: "json"
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // default: true
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080, Mode: "release"},
		Amazon: AmazonConfig{Domain: "www.amazon.com"},
		Transport: TransportConfig{
			Mode:           ModeBrowser,
			FetchTimeout:   45 * time.Second,
			MaxSessions:    4,
			TLSFingerprint: true,
		},
		Browser: BrowserConfig{
			Headless:             true,
			Stealth:              true,
			BlockedResourceTypes: []string{"Image", "Font", "Media"},
			BlockAds:             true,
		},
		Sentinel: SentinelConfig{
			MaxRetries: engine.DefaultRetryPolicy.MaxRetries,
			Backoff:    engine.DefaultRetryPolicy.Backoff,
			MaxBackoff: engine.DefaultRetryPolicy.MaxBackoff,
		},
		Crawl:    CrawlConfig{JobTimeout: 30 * time.Minute},
		Auth:     AuthConfig{Enabled: true},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 1,
			Burst:             5,
		},
		Cache:   CacheConfig{MaxEntries: 500, TTL: time.Hour},
		Log:     LogConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// SMARTERAZ_CONFIG_FILE (if set), then SMARTERAZ_* environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("SMARTERAZ_CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = envOr("SMARTERAZ_HOST", cfg.Server.Host)
	cfg.Server.Port = envIntOr("SMARTERAZ_PORT", cfg.Server.Port)
	cfg.Server.Mode = envOr("SMARTERAZ_MODE", cfg.Server.Mode)

	cfg.Amazon.Domain = envOr("SMARTERAZ_AMAZON_DOMAIN", cfg.Amazon.Domain)

	cfg.Transport.Mode = envOr("SMARTERAZ_TRANSPORT", cfg.Transport.Mode)
	cfg.Transport.UserAgent = envOr("SMARTERAZ_USER_AGENT", cfg.Transport.UserAgent)
	cfg.Transport.Headers = envMapOr("SMARTERAZ_HEADERS", cfg.Transport.Headers)
	cfg.Transport.Proxy = envOr("SMARTERAZ_PROXY", cfg.Transport.Proxy)
	cfg.Transport.FetchTimeout = envDurationOr("SMARTERAZ_FETCH_TIMEOUT", cfg.Transport.FetchTimeout)
	cfg.Transport.SharedSession = envBoolOr("SMARTERAZ_SHARED_SESSION", cfg.Transport.SharedSession)
	cfg.Transport.MaxSessions = envIntOr("SMARTERAZ_MAX_SESSIONS", cfg.Transport.MaxSessions)
	cfg.Transport.TLSFingerprint = envBoolOr("SMARTERAZ_TLS_FINGERPRINT", cfg.Transport.TLSFingerprint)

	cfg.Browser.Headless = envBoolOr("SMARTERAZ_HEADLESS", cfg.Browser.Headless)
	cfg.Browser.NoSandbox = envBoolOr("SMARTERAZ_NO_SANDBOX", cfg.Browser.NoSandbox)
	cfg.Browser.BrowserBin = envOr("SMARTERAZ_BROWSER_BIN", cfg.Browser.BrowserBin)
	cfg.Browser.Stealth = envBoolOr("SMARTERAZ_STEALTH", cfg.Browser.Stealth)
	cfg.Browser.BlockedResourceTypes = envSliceOr("SMARTERAZ_BLOCKED_RESOURCES", cfg.Browser.BlockedResourceTypes)
	cfg.Browser.BlockAds = envBoolOr("SMARTERAZ_BLOCK_ADS", cfg.Browser.BlockAds)

	cfg.Sentinel.MaxRetries = envIntOr("SMARTERAZ_SENTINEL_RETRIES", cfg.Sentinel.MaxRetries)
	cfg.Sentinel.Backoff = envDurationOr("SMARTERAZ_SENTINEL_BACKOFF", cfg.Sentinel.Backoff)
	cfg.Sentinel.MaxBackoff = envDurationOr("SMARTERAZ_SENTINEL_MAX_BACKOFF", cfg.Sentinel.MaxBackoff)

	cfg.Crawl.MaxPages = envIntOr("SMARTERAZ_MAX_PAGES", cfg.Crawl.MaxPages)
	cfg.Crawl.Dedupe = envBoolOr("SMARTERAZ_DEDUPE", cfg.Crawl.Dedupe)
	cfg.Crawl.JobTimeout = envDurationOr("SMARTERAZ_JOB_TIMEOUT", cfg.Crawl.JobTimeout)

	cfg.Auth.Enabled = envBoolOr("SMARTERAZ_AUTH_ENABLED", cfg.Auth.Enabled)
	cfg.Auth.APIKeys = envSliceOr("SMARTERAZ_API_KEYS", cfg.Auth.APIKeys)

	cfg.RateLimit.RequestsPerSecond = envFloatOr("SMARTERAZ_RATE_RPS", cfg.RateLimit.RequestsPerSecond)
	cfg.RateLimit.Burst = envIntOr("SMARTERAZ_RATE_BURST", cfg.RateLimit.Burst)

	cfg.Cache.MaxEntries = envIntOr("SMARTERAZ_CACHE_MAX_ENTRIES", cfg.Cache.MaxEntries)
	cfg.Cache.TTL = envDurationOr("SMARTERAZ_CACHE_TTL", cfg.Cache.TTL)

	cfg.Log.Level = envOr("SMARTERAZ_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envOr("SMARTERAZ_LOG_FORMAT", cfg.Log.Format)

	cfg.Metrics.Enabled = envBoolOr("SMARTERAZ_METRICS_ENABLED", cfg.Metrics.Enabled)
}

// Validation errors.
var (
	ErrInvalidTransport = errors.New("transport mode must be http, browser or auto")
	ErrInvalidPort      = errors.New("server port must be between 1 and 65535")
	ErrInvalidTimeout   = errors.New("fetch timeout must be positive")
	ErrInvalidRetries   = errors.New("sentinel max retries must not be negative")
	ErrInvalidBackoff   = errors.New("sentinel backoff must not be negative")
	ErrInvalidPages     = errors.New("crawl max pages must not be negative")
	ErrInvalidCache     = errors.New("cache max entries must be positive")
	ErrInvalidRate      = errors.New("rate limit must be positive")
	ErrInvalidJob       = errors.New("crawl job timeout must be positive")
)

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Transport.Mode {
	case ModeHTTP, ModeBrowser, ModeAuto:
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidTransport, c.Transport.Mode))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, ErrInvalidPort)
	}
	if c.Transport.FetchTimeout <= 0 {
		errs = append(errs, ErrInvalidTimeout)
	}
	if c.Sentinel.MaxRetries < 0 {
		errs = append(errs, ErrInvalidRetries)
	}
	if c.Sentinel.Backoff < 0 || c.Sentinel.MaxBackoff < 0 {
		errs = append(errs, ErrInvalidBackoff)
	}
	if c.Crawl.MaxPages < 0 {
		errs = append(errs, ErrInvalidPages)
	}
	if c.Crawl.JobTimeout <= 0 {
		errs = append(errs, ErrInvalidJob)
	}
	if c.Cache.MaxEntries <= 0 {
		errs = append(errs, ErrInvalidCache)
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, ErrInvalidRate)
	}
	return errors.Join(errs...)
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}

// envMapOr parses "Key=Value,Other=Value" pairs.
func envMapOr(key string, fallback map[string]string) map[string]string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	result := make(map[string]string)
	for _, pair := range strings.Split(v, ",") {
		k, val, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		if k = strings.TrimSpace(k); k != "" {
			result[k] = strings.TrimSpace(val)
		}
	}
	return result
}
