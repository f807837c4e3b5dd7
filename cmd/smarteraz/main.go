package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/smarteraz/api"
	"github.com/use-agent/smarteraz/api/handler"
	"github.com/use-agent/smarteraz/cache"
	"github.com/use-agent/smarteraz/config"
	"github.com/use-agent/smarteraz/crawler"
	"github.com/use-agent/smarteraz/engine"
	"github.com/use-agent/smarteraz/scraper"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("smarteraz starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"transport", cfg.Transport.Mode,
		"domain", cfg.Amazon.Domain,
	)

	// ── 3. Metrics ──────────────────────────────────────────────────
	var metrics *crawler.Metrics
	if cfg.Metrics.Enabled {
		metrics = crawler.NewMetrics()
	}

	// ── 4. Transport sessions ───────────────────────────────────────
	// Browsers launch lazily, so nothing heavy starts here.
	memory := engine.NewDomainMemory(24 * time.Hour)
	defer memory.Stop()

	factory, err := scraper.NewFactory(cfg, memory, metrics.IncReload)
	if err != nil {
		slog.Error("failed to initialise transport", "error", err)
		os.Exit(1)
	}
	sessions := engine.NewSessions(cfg.Transport.Mode, factory, cfg.Transport.SharedSession, cfg.Transport.MaxSessions)
	defer func() {
		if err := sessions.Close(); err != nil {
			slog.Warn("closing shared session failed", "error", err)
		}
	}()

	// ── 5. Cache ────────────────────────────────────────────────────
	cc := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)

	// ── 6. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(&handler.Deps{
		Sessions: sessions,
		Config:   cfg,
		Cache:    cc,
		Metrics:  metrics,
	}, time.Now())

	// ── 7. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 8. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// In-flight requests get one fetch timeout to finish.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Transport.FetchTimeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// Shared session and domain memory close via defer.
	slog.Info("smarteraz stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(h))
}
