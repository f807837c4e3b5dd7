package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/use-agent/smarteraz/engine"
	"github.com/use-agent/smarteraz/models"
)

const base = "https://www.amazon.com/"

// scriptedEngine serves canned pages keyed by the "page" query parameter.
type scriptedEngine struct {
	mu     sync.Mutex
	pages  map[int]string
	errs   map[int]error
	before func(page int)
	urls   []string
}

func (s *scriptedEngine) Name() string { return "scripted" }

func (s *scriptedEngine) Fetch(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, err
	}
	page, _ := strconv.Atoi(u.Query().Get("page"))

	s.mu.Lock()
	s.urls = append(s.urls, req.URL)
	s.mu.Unlock()

	if s.before != nil {
		s.before(page)
	}
	if err := s.errs[page]; err != nil {
		return nil, err
	}
	html, ok := s.pages[page]
	if !ok {
		return nil, fmt.Errorf("no page %d scripted", page)
	}
	return &engine.FetchResult{HTML: html, StatusCode: 200, FinalURL: req.URL, EngineName: "scripted"}, nil
}

func (s *scriptedEngine) Close() error { return nil }

func (s *scriptedEngine) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.urls...)
}

// resultsPage renders a minimal results page. max == 0 renders no
// pagination control.
func resultsPage(current, max int, asins ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="s-main-slot">`)
	for _, a := range asins {
		fmt.Fprintf(&b, `<div data-component-type="s-search-result" class="s-result-item" data-asin="%s">`+
			`<img class="s-image" src="https://img.example/%s.jpg">`+
			`<span class="a-size-medium a-color-base a-text-normal">Item %s</span>`+
			`<span class="a-price"><span class="a-offscreen">$1.00</span></span></div>`, a, a, a)
	}
	b.WriteString(`</div>`)
	if max > 0 {
		b.WriteString(`<span class="s-pagination-strip">`)
		fmt.Fprintf(&b, `<span class="s-pagination-item s-pagination-selected">%d</span>`, current)
		fmt.Fprintf(&b, `<span class="s-pagination-item">%d</span>`, max)
		b.WriteString(`<a class="s-pagination-item s-pagination-next">Next</a></span>`)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

func asins(items []models.ResultItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ASIN
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCrawl_SinglePage(t *testing.T) {
	e := &scriptedEngine{pages: map[int]string{1: resultsPage(1, 0, "A1", "A2")}}
	res, err := New(e, nil, Options{BaseURL: base}).Crawl(context.Background(), models.SearchFilter{Term: "lamp"})
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if got := asins(res.Items); !equal(got, []string{"A1", "A2"}) {
		t.Errorf("items = %v", got)
	}
	if n := len(e.calls()); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}
	if res.Pages != 1 {
		t.Errorf("Pages = %d, want 1", res.Pages)
	}
	if res.Items[0].Link != base+"dp/A1" {
		t.Errorf("Link = %q", res.Items[0].Link)
	}
}

func TestCrawl_UniformPages(t *testing.T) {
	e := &scriptedEngine{pages: map[int]string{
		1: resultsPage(1, 3, "A1"),
		2: resultsPage(2, 3, "B1", "B2"),
		3: resultsPage(3, 3, "C1"),
	}}
	res, err := New(e, nil, Options{BaseURL: base}).Crawl(context.Background(), models.SearchFilter{Term: "lamp"})
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if got := asins(res.Items); !equal(got, []string{"A1", "B1", "B2", "C1"}) {
		t.Errorf("items = %v", got)
	}
	calls := e.calls()
	if len(calls) != 3 {
		t.Fatalf("fetches = %d, want 3", len(calls))
	}
	for i, u := range calls {
		if want := fmt.Sprintf("page=%d", i+1); !strings.HasSuffix(u, want) {
			t.Errorf("fetch %d = %q, want suffix %q", i, u, want)
		}
	}
}

func TestCrawl_BoundExtension(t *testing.T) {
	e := &scriptedEngine{pages: map[int]string{
		1: resultsPage(1, 2, "A1"),
		2: resultsPage(2, 3, "B1"),
		3: resultsPage(3, 3, "C1"),
	}}
	var events []PageEvent
	c := New(e, NewMetrics(), Options{BaseURL: base, OnPage: func(ev PageEvent) { events = append(events, ev) }})
	res, err := c.Crawl(context.Background(), models.SearchFilter{Term: "lamp"})
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if n := len(e.calls()); n != 3 {
		t.Errorf("fetches = %d, want 3", n)
	}
	if got := asins(res.Items); !equal(got, []string{"A1", "B1", "C1"}) {
		t.Errorf("items = %v", got)
	}
	wantBounds := []int{2, 3, 3}
	if len(events) != len(wantBounds) {
		t.Fatalf("events = %d, want %d", len(events), len(wantBounds))
	}
	for i, ev := range events {
		if ev.Page != i+1 || ev.Bound != wantBounds[i] {
			t.Errorf("event %d = page %d bound %d, want page %d bound %d", i, ev.Page, ev.Bound, i+1, wantBounds[i])
		}
	}
}

func TestCrawl_AbortsWithoutPartialResult(t *testing.T) {
	tests := []struct {
		name     string
		engine   *scriptedEngine
		wantCode string
		wantPage int
	}{
		{
			name: "transport error on page 2",
			engine: &scriptedEngine{
				pages: map[int]string{1: resultsPage(1, 3, "A1"), 3: resultsPage(3, 3, "C1")},
				errs:  map[int]error{2: models.NewCrawlError(models.ErrCodeTransport, "connection reset", nil)},
			},
			wantCode: models.ErrCodeTransport,
			wantPage: 2,
		},
		{
			name: "sentinel exhausted on page 1",
			engine: &scriptedEngine{
				errs: map[int]error{1: models.NewCrawlError(models.ErrCodeSentinelExhausted, "still broken", nil)},
			},
			wantCode: models.ErrCodeSentinelExhausted,
			wantPage: 1,
		},
		{
			name: "parse error on page 2",
			engine: &scriptedEngine{pages: map[int]string{
				1: resultsPage(1, 2, "A1"),
				2: `<div data-component-type="s-search-result" class="s-result-item" data-asin="B1"><span>no image</span></div>`,
			}},
			wantCode: models.ErrCodeParse,
			wantPage: 2,
		},
		{
			name: "raw error is categorized",
			engine: &scriptedEngine{
				pages: map[int]string{1: resultsPage(1, 2, "A1")},
				errs:  map[int]error{2: errors.New("boom")},
			},
			wantCode: models.ErrCodeTransport,
			wantPage: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := New(tt.engine, nil, Options{BaseURL: base}).Crawl(context.Background(), models.SearchFilter{Term: "lamp"})
			if res != nil {
				t.Errorf("res = %+v, want nil", res)
			}
			var ce *models.CrawlError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want *CrawlError", err)
			}
			if ce.Code != tt.wantCode || ce.Page != tt.wantPage {
				t.Errorf("err = %s page %d, want %s page %d", ce.Code, ce.Page, tt.wantCode, tt.wantPage)
			}
		})
	}
}

func TestCrawl_StopsAfterFailingPage(t *testing.T) {
	e := &scriptedEngine{
		pages: map[int]string{1: resultsPage(1, 4, "A1"), 3: resultsPage(3, 4, "C1"), 4: resultsPage(4, 4, "D1")},
		errs:  map[int]error{2: models.NewCrawlError(models.ErrCodeTransport, "reset", nil)},
	}
	if _, err := New(e, nil, Options{BaseURL: base}).Crawl(context.Background(), models.SearchFilter{Term: "lamp"}); err == nil {
		t.Fatal("expected error")
	}
	if n := len(e.calls()); n != 2 {
		t.Errorf("fetches = %d, want 2", n)
	}
}

func TestCrawl_CanceledBetweenPages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := &scriptedEngine{pages: map[int]string{
		1: resultsPage(1, 3, "A1"),
		2: resultsPage(2, 3, "B1"),
		3: resultsPage(3, 3, "C1"),
	}}
	c := New(e, nil, Options{BaseURL: base, OnPage: func(ev PageEvent) {
		if ev.Page == 2 {
			cancel()
		}
	}})
	_, err := c.Crawl(ctx, models.SearchFilter{Term: "lamp"})
	if !models.IsCode(err, models.ErrCodeCanceled) {
		t.Fatalf("err = %v, want %s", err, models.ErrCodeCanceled)
	}
	if n := len(e.calls()); n != 2 {
		t.Errorf("fetches = %d, want 2", n)
	}
}

func TestCrawl_FetchTimeout(t *testing.T) {
	e := &blockingEngine{}
	c := New(e, nil, Options{BaseURL: base, FetchTimeout: 20 * time.Millisecond})
	_, err := c.Crawl(context.Background(), models.SearchFilter{Term: "lamp"})
	var ce *models.CrawlError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *CrawlError", err)
	}
	if ce.Code != models.ErrCodeTimeout || ce.Page != 1 {
		t.Errorf("err = %s page %d, want %s page 1", ce.Code, ce.Page, models.ErrCodeTimeout)
	}
}

// blockingEngine waits for its context to end.
type blockingEngine struct{}

func (blockingEngine) Name() string { return "blocking" }

func (blockingEngine) Fetch(ctx context.Context, _ *engine.FetchRequest) (*engine.FetchResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingEngine) Close() error { return nil }

func TestCrawl_Duplicates(t *testing.T) {
	pages := map[int]string{
		1: resultsPage(1, 2, "A1", "A2"),
		2: resultsPage(2, 2, "A2", "B1"),
	}
	tests := []struct {
		name   string
		dedupe bool
		want   []string
	}{
		{"kept by default", false, []string{"A1", "A2", "A2", "B1"}},
		{"dropped with dedupe", true, []string{"A1", "A2", "B1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &scriptedEngine{pages: pages}
			res, err := New(e, nil, Options{BaseURL: base, Dedupe: tt.dedupe}).Crawl(context.Background(), models.SearchFilter{Term: "lamp"})
			if err != nil {
				t.Fatalf("Crawl: %v", err)
			}
			if got := asins(res.Items); !equal(got, tt.want) {
				t.Errorf("items = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCrawl_MaxPages(t *testing.T) {
	e := &scriptedEngine{pages: map[int]string{
		1: resultsPage(1, 5, "A1"),
		2: resultsPage(2, 5, "B1"),
	}}
	res, err := New(e, nil, Options{BaseURL: base, MaxPages: 2}).Crawl(context.Background(), models.SearchFilter{Term: "lamp"})
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if res.Pages != 2 || len(e.calls()) != 2 {
		t.Errorf("pages = %d, fetches = %d, want 2 and 2", res.Pages, len(e.calls()))
	}
}

func TestCrawl_QueryCarriesFilter(t *testing.T) {
	high := 50.0
	e := &scriptedEngine{pages: map[int]string{1: resultsPage(1, 0, "A1")}}
	filter := models.SearchFilter{Term: "desk lamp", HighPrice: &high, Seller: "S1", Shipper: "X"}
	if _, err := New(e, nil, Options{BaseURL: base}).Crawl(context.Background(), filter); err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	want := "https://www.amazon.com/s?k=desk+lamp&high-price=50&rh=p_6%3AS1&page=1"
	if got := e.calls()[0]; got != want {
		t.Errorf("url = %q, want %q", got, want)
	}
}

func TestCrawl_EmptyTerm(t *testing.T) {
	e := &scriptedEngine{}
	_, err := New(e, nil, Options{BaseURL: base}).Crawl(context.Background(), models.SearchFilter{Term: "  "})
	if !models.IsCode(err, models.ErrCodeInvalidInput) {
		t.Fatalf("err = %v, want %s", err, models.ErrCodeInvalidInput)
	}
	if len(e.calls()) != 0 {
		t.Error("no fetch expected")
	}
}

func TestCrawlPage(t *testing.T) {
	e := &scriptedEngine{pages: map[int]string{4: resultsPage(4, 9, "D1", "D2")}}
	c := New(e, nil, Options{BaseURL: base})

	page, res, err := c.CrawlPage(context.Background(), models.SearchFilter{Term: "lamp"}, 4)
	if err != nil {
		t.Fatalf("CrawlPage: %v", err)
	}
	if page.CurrentPage != 4 || page.LastPage() != 9 || len(page.Items) != 2 {
		t.Errorf("page = %+v", page)
	}
	if res.Pages != 1 {
		t.Errorf("Pages = %d", res.Pages)
	}
	if n := len(e.calls()); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}

	if _, _, err := c.CrawlPage(context.Background(), models.SearchFilter{Term: "lamp"}, 0); !models.IsCode(err, models.ErrCodeInvalidInput) {
		t.Errorf("page 0: err = %v, want %s", err, models.ErrCodeInvalidInput)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.IncPage(3)
	m.IncReload()
	m.ObserveFetch(time.Second)
	m.IncError(models.ErrCodeParse)
	m.IncBoundExtension()
	m.IncCrawl("completed")
}
