package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transport.Mode != ModeBrowser {
		t.Errorf("Transport.Mode = %q, want %q", cfg.Transport.Mode, ModeBrowser)
	}
	if cfg.Sentinel.MaxRetries != 5 {
		t.Errorf("Sentinel.MaxRetries = %d, want 5", cfg.Sentinel.MaxRetries)
	}
	if cfg.Amazon.Domain != "www.amazon.com" {
		t.Errorf("Amazon.Domain = %q", cfg.Amazon.Domain)
	}
	if cfg.Crawl.Dedupe {
		t.Error("Crawl.Dedupe should default to false")
	}
	if !cfg.Browser.Headless {
		t.Error("Browser.Headless should default to true")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SMARTERAZ_TRANSPORT", "auto")
	t.Setenv("SMARTERAZ_FETCH_TIMEOUT", "20s")
	t.Setenv("SMARTERAZ_HEADLESS", "false")
	t.Setenv("SMARTERAZ_API_KEYS", "a, b,,c")
	t.Setenv("SMARTERAZ_HEADERS", "Accept-Language=de-DE, X-Test = 1,broken")
	t.Setenv("SMARTERAZ_PORT", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transport.Mode != ModeAuto {
		t.Errorf("Transport.Mode = %q", cfg.Transport.Mode)
	}
	if cfg.Transport.FetchTimeout != 20*time.Second {
		t.Errorf("FetchTimeout = %v", cfg.Transport.FetchTimeout)
	}
	if cfg.Browser.Headless {
		t.Error("Headless should be false")
	}
	if len(cfg.Auth.APIKeys) != 3 || cfg.Auth.APIKeys[2] != "c" {
		t.Errorf("APIKeys = %v", cfg.Auth.APIKeys)
	}
	if cfg.Transport.Headers["Accept-Language"] != "de-DE" || cfg.Transport.Headers["X-Test"] != "1" {
		t.Errorf("Headers = %v", cfg.Transport.Headers)
	}
	if len(cfg.Transport.Headers) != 2 {
		t.Errorf("Headers has %d entries, want 2", len(cfg.Transport.Headers))
	}
	// Unparseable values keep the previous value.
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smarteraz.yaml")
	body := `
amazon:
  domain: www.amazon.de
transport:
  mode: http
  fetch_timeout: 30s
sentinel:
  max_retries: 2
  backoff: 500ms
crawl:
  max_pages: 7
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SMARTERAZ_CONFIG_FILE", path)
	t.Setenv("SMARTERAZ_SENTINEL_RETRIES", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Amazon.Domain != "www.amazon.de" {
		t.Errorf("Domain = %q", cfg.Amazon.Domain)
	}
	if cfg.Transport.Mode != ModeHTTP {
		t.Errorf("Mode = %q", cfg.Transport.Mode)
	}
	if cfg.Transport.FetchTimeout != 30*time.Second {
		t.Errorf("FetchTimeout = %v", cfg.Transport.FetchTimeout)
	}
	if cfg.Sentinel.Backoff != 500*time.Millisecond {
		t.Errorf("Backoff = %v", cfg.Sentinel.Backoff)
	}
	// env wins over the file
	if cfg.Sentinel.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.Sentinel.MaxRetries)
	}
	if cfg.Crawl.MaxPages != 7 {
		t.Errorf("MaxPages = %d", cfg.Crawl.MaxPages)
	}
	// untouched sections keep defaults
	if cfg.Cache.MaxEntries != 500 {
		t.Errorf("Cache.MaxEntries = %d", cfg.Cache.MaxEntries)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("SMARTERAZ_CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   []error
	}{
		{"defaults", func(*Config) {}, nil},
		{"bad mode", func(c *Config) { c.Transport.Mode = "carrier-pigeon" }, []error{ErrInvalidTransport}},
		{"zero timeout", func(c *Config) { c.Transport.FetchTimeout = 0 }, []error{ErrInvalidTimeout}},
		{"negative retries", func(c *Config) { c.Sentinel.MaxRetries = -1 }, []error{ErrInvalidRetries}},
		{"zero retries ok", func(c *Config) { c.Sentinel.MaxRetries = 0 }, nil},
		{"several", func(c *Config) {
			c.Server.Port = 0
			c.Crawl.MaxPages = -2
			c.Cache.MaxEntries = 0
		}, []error{ErrInvalidPort, ErrInvalidPages, ErrInvalidCache}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if len(tt.want) == 0 {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			for _, w := range tt.want {
				if !errors.Is(err, w) {
					t.Errorf("Validate() = %v, missing %v", err, w)
				}
			}
		})
	}
}
