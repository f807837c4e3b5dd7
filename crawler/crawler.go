// Package crawler walks every results page of a storefront search, one page
// at a time, and gathers the items in page order.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/use-agent/smarteraz/engine"
	"github.com/use-agent/smarteraz/models"
	"github.com/use-agent/smarteraz/parser"
	"github.com/use-agent/smarteraz/search"
)

// ParseFunc turns page content into a SearchPageResult.
type ParseFunc func(content, baseURL string) (*models.SearchPageResult, error)

// PageEvent describes one page that was fetched and parsed.
type PageEvent struct {
	Page int
	// Bound is the highest page known after this page.
	Bound   int
	Items   []models.ResultItem
	Reloads int
	Engine  string
}

// Options configures a Crawler.
type Options struct {
	// BaseURL is the storefront root, e.g. "https://www.amazon.com/".
	BaseURL string

	// FetchTimeout bounds each page fetch. Zero means no per-fetch limit.
	FetchTimeout time.Duration

	// Dedupe drops items whose catalog id was already seen in this crawl.
	Dedupe bool

	// MaxPages stops the crawl from going past this page. Zero means no limit.
	MaxPages int

	// OnPage is called after every successful page, in page order.
	OnPage func(PageEvent)

	// Parse defaults to parser.Parse.
	Parse ParseFunc
}

// Result is a completed crawl.
type Result struct {
	Items []models.ResultItem
	// Pages is the number of pages fetched.
	Pages     int
	FetchTime time.Duration
	ParseTime time.Duration
}

// Crawler drives one transport across the pages of a search. It runs
// exactly one fetch at a time and is not safe for concurrent Crawl calls.
type Crawler struct {
	engine  engine.Engine
	metrics *Metrics
	opts    Options
}

// New returns a Crawler that fetches through e. metrics may be nil.
func New(e engine.Engine, metrics *Metrics, opts Options) *Crawler {
	if opts.BaseURL == "" {
		opts.BaseURL = search.BaseURL(search.DefaultDomain)
	}
	if opts.Parse == nil {
		opts.Parse = parser.Parse
	}
	return &Crawler{engine: e, metrics: metrics, opts: opts}
}

// Crawl fetches page 1, takes its last page as the bound, then fetches each
// following page while the index does not pass the bound. A page that
// reports a higher last page raises the bound. The first failing page aborts
// the crawl and no items are returned.
func (c *Crawler) Crawl(ctx context.Context, filter models.SearchFilter) (*Result, error) {
	if err := validate(filter); err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := c.crawl(ctx, filter)
	if err != nil {
		code := models.ErrorCode(err)
		c.metrics.IncError(code)
		if code == models.ErrCodeCanceled {
			c.metrics.IncCrawl("canceled")
		} else {
			c.metrics.IncCrawl("failed")
		}
		slog.Warn("crawl failed",
			"term", filter.Term,
			"error", err,
			"elapsed", time.Since(start),
		)
		return nil, err
	}

	c.metrics.IncCrawl("completed")
	slog.Info("crawl completed",
		"term", filter.Term,
		"pages", res.Pages,
		"items", len(res.Items),
		"elapsed", time.Since(start),
	)
	return res, nil
}

func (c *Crawler) crawl(ctx context.Context, filter models.SearchFilter) (*Result, error) {
	res := &Result{Items: []models.ResultItem{}}
	var seen map[string]struct{}
	if c.opts.Dedupe {
		seen = make(map[string]struct{})
	}

	first, err := c.page(ctx, filter, 1, res)
	if err != nil {
		return nil, err
	}
	bound := first.page.LastPage()
	c.collect(res, first, 1, bound, seen)

	for idx := 2; idx <= bound; idx++ {
		if c.opts.MaxPages > 0 && idx > c.opts.MaxPages {
			slog.Info("crawl stopped at page limit", "limit", c.opts.MaxPages, "bound", bound)
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, canceled(err, idx)
		}

		p, err := c.page(ctx, filter, idx, res)
		if err != nil {
			return nil, err
		}
		if last := p.page.LastPage(); last > bound {
			slog.Debug("bound extended", "page", idx, "from", bound, "to", last)
			c.metrics.IncBoundExtension()
			bound = last
		}
		c.collect(res, p, idx, bound, seen)
	}
	return res, nil
}

func (c *Crawler) collect(res *Result, p *fetchedPage, idx, bound int, seen map[string]struct{}) {
	items := p.page.Items
	if seen != nil {
		kept := items[:0:0]
		for _, it := range items {
			if _, dup := seen[it.ASIN]; dup {
				continue
			}
			seen[it.ASIN] = struct{}{}
			kept = append(kept, it)
		}
		items = kept
	}
	res.Items = append(res.Items, items...)
	res.Pages++
	c.metrics.IncPage(len(items))

	if c.opts.OnPage != nil {
		c.opts.OnPage(PageEvent{
			Page:    idx,
			Bound:   bound,
			Items:   items,
			Reloads: p.reloads,
			Engine:  p.engine,
		})
	}
}

// CrawlPage fetches and parses exactly one results page.
func (c *Crawler) CrawlPage(ctx context.Context, filter models.SearchFilter, page int) (*models.SearchPageResult, *Result, error) {
	if err := validate(filter); err != nil {
		return nil, nil, err
	}
	if page < 1 {
		return nil, nil, models.NewCrawlError(models.ErrCodeInvalidInput, fmt.Sprintf("page must be at least 1, got %d", page), nil)
	}

	res := &Result{}
	p, err := c.page(ctx, filter, page, res)
	if err != nil {
		c.metrics.IncError(models.ErrorCode(err))
		return nil, nil, err
	}
	res.Pages = 1
	res.Items = p.page.Items
	c.metrics.IncPage(len(p.page.Items))
	return p.page, res, nil
}

type fetchedPage struct {
	page    *models.SearchPageResult
	reloads int
	engine  string
}

// page fetches and parses one page, adding the time spent to res. Every
// error it returns is a CrawlError naming idx.
func (c *Crawler) page(ctx context.Context, filter models.SearchFilter, idx int, res *Result) (*fetchedPage, error) {
	u := search.URL(c.opts.BaseURL, idx, filter)

	fetchCtx := ctx
	if c.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, c.opts.FetchTimeout)
		defer cancel()
	}

	fetchStart := time.Now()
	fr, err := c.engine.Fetch(fetchCtx, &engine.FetchRequest{URL: u})
	fetchTime := time.Since(fetchStart)
	res.FetchTime += fetchTime
	c.metrics.ObserveFetch(fetchTime)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, canceled(ctxErr, idx)
		}
		return nil, atPage(engine.CategorizeError(err, "fetch failed"), idx)
	}

	parseStart := time.Now()
	pr, err := c.opts.Parse(fr.HTML, c.opts.BaseURL)
	res.ParseTime += time.Since(parseStart)
	if err != nil {
		return nil, atPage(err, idx)
	}

	slog.Debug("page crawled",
		"page", idx,
		"items", len(pr.Items),
		"max_page", pr.LastPage(),
		"engine", fr.EngineName,
		"reloads", fr.Reloads,
		"fetch", fetchTime,
	)
	return &fetchedPage{page: pr, reloads: fr.Reloads, engine: fr.EngineName}, nil
}

func validate(filter models.SearchFilter) error {
	if strings.TrimSpace(filter.Term) == "" {
		return models.NewCrawlError(models.ErrCodeInvalidInput, "search term is required", nil)
	}
	return nil
}

// atPage attributes err to page, keeping its code and message.
func atPage(err error, page int) error {
	var ce *models.CrawlError
	if errors.As(err, &ce) {
		return ce.WithPage(page)
	}
	return models.NewCrawlError(models.ErrCodeTransport, "fetch failed", err).WithPage(page)
}

func canceled(err error, page int) error {
	msg := "crawl canceled"
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "crawl deadline exceeded"
	}
	return models.NewCrawlError(models.ErrCodeCanceled, msg, err).WithPage(page)
}
