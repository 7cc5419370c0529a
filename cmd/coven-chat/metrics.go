// ABOUTME: Optional Prometheus endpoint for long-running chat sessions
// ABOUTME: Serves the default registry on metrics.addr until the context ends

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/coven-chat/internal/config"
)

// serveMetrics starts the metrics server in the background when enabled.
// It shuts down when ctx is cancelled.
func serveMetrics(ctx context.Context, cfg config.MetricsConfig, logger *slog.Logger) {
	if !cfg.Enabled {
		return
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", "addr", cfg.Addr, "path", cfg.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
