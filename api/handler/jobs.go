package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/smarteraz/crawler"
	"github.com/use-agent/smarteraz/models"
	"github.com/use-agent/smarteraz/webhook"
)

// jobStore holds all in-flight and completed search jobs.
var jobStore sync.Map

func init() {
	// Background goroutine to expire jobs older than 1 hour.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			cutoff := time.Now().Add(-1 * time.Hour).Unix()
			jobStore.Range(func(key, value any) bool {
				job := value.(*models.SearchJob)
				if job.CreatedAt < cutoff {
					jobStore.Delete(key)
				}
				return true
			})
		}
	}()
}

// PostSearchJob returns a handler for POST /api/v1/search/jobs.
//
// The crawl runs in the background, detached from the request, and is
// bounded by the configured job timeout.
func PostSearchJob(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SearchJobRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondInvalid(c, err)
			return
		}
		req.Defaults(d.Config.Crawl.Dedupe, int(d.Config.Transport.FetchTimeout/time.Second))

		job := models.NewSearchJob("search-"+randomID(), time.Now().Unix())
		job.WebhookURL = req.WebhookURL
		job.WebhookSecret = req.WebhookSecret
		jobStore.Store(job.ID, job)

		go runSearchJob(d, job, req.SearchRequest)

		c.JSON(http.StatusAccepted, models.SearchJobResponse{
			ID:     job.ID,
			Status: models.JobProcessing,
		})
	}
}

// GetSearchJob returns a handler for GET /api/v1/search/jobs/:id.
func GetSearchJob() gin.HandlerFunc {
	return func(c *gin.Context) {
		val, ok := jobStore.Load(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeNotFound,
					Message: "search job not found",
				},
			})
			return
		}
		c.JSON(http.StatusOK, val.(*models.SearchJob).Snapshot())
	}
}

// runSearchJob performs the crawl for job and publishes its progress.
func runSearchJob(d *Deps, job *models.SearchJob, req models.SearchRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), d.Config.Crawl.JobTimeout)
	defer cancel()

	var hooks *webhook.Queue
	if job.WebhookURL != "" {
		hooks = webhook.NewQueue(job.WebhookURL, job.WebhookSecret)
		defer hooks.Close()
	}
	notify := func(typ string, data any) {
		if hooks != nil {
			hooks.Send(webhook.NewEvent(typ, job.ID, data))
		}
	}

	opts := d.crawlerOptions(&req)
	pages := 0
	opts.OnPage = func(ev crawler.PageEvent) {
		pages++
		job.Progress(pages, ev.Bound)
		notify(webhook.EventSearchPage, gin.H{
			"page":           ev.Page,
			"known_max_page": ev.Bound,
			"items":          len(ev.Items),
		})
	}

	res, err := d.crawl(ctx, opts, req.SearchFilter)
	if err != nil {
		detail := toDetail(err)
		job.Fail(detail)
		slog.Warn("search job failed", "job_id", job.ID, "error", err)
		notify(webhook.EventSearchFailed, gin.H{"error": detail})
		return
	}

	job.Complete(res.Items)
	notify(webhook.EventSearchCompleted, gin.H{
		"pages": res.Pages,
		"total": len(res.Items),
		"items": res.Items,
	})
}

// randomID generates a short random hex string for job IDs.
func randomID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
