package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/smarteraz/cache"
	"github.com/use-agent/smarteraz/config"
	"github.com/use-agent/smarteraz/crawler"
	"github.com/use-agent/smarteraz/engine"
	"github.com/use-agent/smarteraz/models"
	"github.com/use-agent/smarteraz/search"
)

// Deps is what the search handlers share.
type Deps struct {
	Sessions *engine.Sessions
	Config   *config.Config
	Cache    *cache.Cache
	Metrics  *crawler.Metrics
}

func (d *Deps) baseURL() string {
	return search.BaseURL(d.Config.Amazon.Domain)
}

// maxPages combines the request limit with the server cap; 0 means none.
func (d *Deps) maxPages(requested int) int {
	limit := d.Config.Crawl.MaxPages
	if requested > 0 && (limit == 0 || requested < limit) {
		return requested
	}
	return limit
}

func (d *Deps) crawlerOptions(req *models.SearchRequest) crawler.Options {
	return crawler.Options{
		BaseURL:      d.baseURL(),
		FetchTimeout: time.Duration(req.FetchTimeout) * time.Second,
		Dedupe:       *req.Dedupe,
		MaxPages:     d.maxPages(req.MaxPages),
	}
}

// crawl runs one full crawl on a session that is released before returning.
func (d *Deps) crawl(ctx context.Context, opts crawler.Options, filter models.SearchFilter) (*crawler.Result, error) {
	eng, release, err := d.Sessions.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return crawler.New(eng, d.Metrics, opts).Crawl(ctx, filter)
}

// Search returns a handler for POST /api/v1/search.
//
// Orchestration flow:
//  1. Parse & validate request, apply defaults.
//  2. Cache lookup when max_age is set.
//  3. Acquire a transport session and crawl every page.
//  4. Fill Timing, store in cache, return 200.
func Search(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		// ── 1. Parse request ────────────────────────────────────────
		var req models.SearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondInvalid(c, err)
			return
		}
		req.Defaults(d.Config.Crawl.Dedupe, int(d.Config.Transport.FetchTimeout/time.Second))
		opts := d.crawlerOptions(&req)

		// ── 2. Cache lookup ─────────────────────────────────────────
		var cacheKey string
		if d.Cache != nil && req.MaxAge > 0 {
			cacheKey = cache.Key(search.URL(opts.BaseURL, 1, req.SearchFilter), opts.Dedupe, opts.MaxPages)
			if hit, ok := d.Cache.Get(cacheKey, req.MaxAge); ok {
				c.JSON(http.StatusOK, models.SearchResponse{
					Success:     true,
					Items:       hit.Items,
					Total:       len(hit.Items),
					Pages:       hit.Pages,
					Timing:      models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()},
					CacheStatus: "hit",
				})
				return
			}
		}

		// ── 3. Crawl ────────────────────────────────────────────────
		res, err := d.crawl(c.Request.Context(), opts, req.SearchFilter)
		if err != nil {
			respondError(c, err, &models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()})
			return
		}

		// ── 4. Respond ──────────────────────────────────────────────
		resp := models.SearchResponse{
			Success: true,
			Items:   res.Items,
			Total:   len(res.Items),
			Pages:   res.Pages,
			Timing: models.TimingInfo{
				TotalMs: time.Since(totalStart).Milliseconds(),
				FetchMs: res.FetchTime.Milliseconds(),
				ParseMs: res.ParseTime.Milliseconds(),
			},
		}
		if cacheKey != "" {
			d.Cache.Set(cacheKey, res.Items, res.Pages)
			resp.CacheStatus = "miss"
		}
		c.JSON(http.StatusOK, resp)
	}
}

// SearchPage returns a handler for POST /api/v1/search/page.
func SearchPage(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		var req models.SearchPageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondInvalid(c, err)
			return
		}
		timeout := d.Config.Transport.FetchTimeout
		if req.FetchTimeout > 0 {
			timeout = time.Duration(req.FetchTimeout) * time.Second
		}

		eng, release, err := d.Sessions.Acquire(c.Request.Context())
		if err != nil {
			respondError(c, err, &models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()})
			return
		}
		defer release()

		cr := crawler.New(eng, d.Metrics, crawler.Options{BaseURL: d.baseURL(), FetchTimeout: timeout})
		page, res, err := cr.CrawlPage(c.Request.Context(), req.SearchFilter, req.Page)
		if err != nil {
			respondError(c, err, &models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()})
			return
		}

		c.JSON(http.StatusOK, models.SearchPageResponse{
			Success: true,
			Result:  page,
			Timing: models.TimingInfo{
				TotalMs: time.Since(totalStart).Milliseconds(),
				FetchMs: res.FetchTime.Milliseconds(),
				ParseMs: res.ParseTime.Milliseconds(),
			},
		})
	}
}

func respondInvalid(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Success: false,
		Error: &models.ErrorDetail{
			Code:    models.ErrCodeInvalidInput,
			Message: err.Error(),
		},
	})
}

// respondError maps a CrawlError to the correct HTTP status code and writes
// a structured JSON error response.
func respondError(c *gin.Context, err error, timing *models.TimingInfo) {
	c.JSON(mapErrorToStatus(models.ErrorCode(err)), models.ErrorResponse{
		Success: false,
		Error:   toDetail(err),
		Timing:  timing,
	})
}

func toDetail(err error) *models.ErrorDetail {
	var ce *models.CrawlError
	if !errors.As(err, &ce) {
		ce = models.NewCrawlError(models.ErrCodeInternal, err.Error(), err)
	}
	return ce.ToDetail()
}

// statusClientClosedRequest is nginx's non-standard 499.
const statusClientClosedRequest = 499

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(code string) int {
	switch code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeTransport, models.ErrCodeBlocked, models.ErrCodeSentinelExhausted:
		return http.StatusBadGateway // 502
	case models.ErrCodeParse:
		return http.StatusUnprocessableEntity // 422
	case models.ErrCodeCanceled:
		return statusClientClosedRequest
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	default:
		return http.StatusInternalServerError // 500
	}
}
