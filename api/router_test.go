package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/smarteraz/api/handler"
	"github.com/use-agent/smarteraz/config"
	"github.com/use-agent/smarteraz/crawler"
	"github.com/use-agent/smarteraz/engine"
)

type nopEngine struct{}

func (nopEngine) Name() string { return "nop" }
func (nopEngine) Fetch(context.Context, *engine.FetchRequest) (*engine.FetchResult, error) {
	return &engine.FetchResult{HTML: "<html></html>"}, nil
}
func (nopEngine) Close() error { return nil }

func newTestDeps(cfg *config.Config) *handler.Deps {
	factory := func() (engine.Engine, error) { return nopEngine{}, nil }
	return &handler.Deps{
		Sessions: engine.NewSessions(cfg.Transport.Mode, factory, false, 1),
		Config:   cfg,
		Metrics:  crawler.NewMetrics(),
	}
}

func TestRouter(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Mode = "test"
	cfg.Auth.APIKeys = []string{"secret"}
	cfg.RateLimit.Burst = 100
	r := NewRouter(newTestDeps(cfg), time.Now())

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		key    string
		want   int
	}{
		{"health is open", http.MethodGet, "/api/v1/health", "", "", http.StatusOK},
		{"metrics is open", http.MethodGet, "/api/v1/metrics", "", "", http.StatusOK},
		{"search needs key", http.MethodPost, "/api/v1/search", `{"term":"lamp"}`, "", http.StatusUnauthorized},
		{"search with key", http.MethodPost, "/api/v1/search", `{"term":"lamp"}`, "secret", http.StatusOK},
		{"unknown job", http.MethodGet, "/api/v1/search/jobs/x", "", "secret", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d; body = %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRouter_MetricsExposeCrawls(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Mode = "test"
	cfg.Auth.Enabled = false
	cfg.RateLimit.Burst = 100
	r := NewRouter(newTestDeps(cfg), time.Now())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{"term":"lamp"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil))
	if !strings.Contains(w.Body.String(), `smarteraz_crawls_total{status="completed"} 1`) {
		t.Errorf("metrics missing completed crawl:\n%s", w.Body.String())
	}
}

func TestRouter_MetricsDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Mode = "test"
	cfg.Metrics.Enabled = false
	r := NewRouter(newTestDeps(cfg), time.Now())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
