package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	defaultListenAddress = "127.0.0.1:9187"
	shutdownGrace        = 5 * time.Second
)

type HTTPServerOptions struct {
	Addr          string
	EnableMetrics bool
	EnableHealthz bool
	Health        *HealthTracker
	Registry      prometheus.Gatherer

	// API, when set, is mounted under /v1/.
	API http.Handler
}

// StartHTTPServer serves the observability endpoints until the context
// is done, then drains in-flight requests within the shutdown grace.
// With no endpoint enabled it returns immediately. Blocks.
func StartHTTPServer(ctx context.Context, opts HTTPServerOptions, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := buildMux(opts)
	if mux == nil {
		return nil
	}

	addr := opts.Addr
	if addr == "" {
		addr = defaultListenAddress
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("observability listen on %s: %w", addr, err)
	}
	logger.Info("observability server listening",
		zap.String("addr", listener.Addr().String()),
		zap.Bool("metrics", opts.EnableMetrics),
		zap.Bool("healthz", opts.EnableHealthz),
		zap.Bool("api", opts.API != nil),
	)

	server := &http.Server{Handler: mux}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("observability server: %w", err)
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		logger.Warn("observability server shutdown", zap.Error(err))
		return err
	}
	if err := <-serveErr; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("observability server stopped")
	return nil
}

// buildMux assembles the route table, or nil when every endpoint is
// disabled.
func buildMux(opts HTTPServerOptions) *http.ServeMux {
	if !opts.EnableMetrics && !opts.EnableHealthz && opts.API == nil {
		return nil
	}
	mux := http.NewServeMux()
	if opts.EnableMetrics {
		registry := opts.Registry
		if registry == nil {
			registry = prometheus.DefaultGatherer
		}
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	if opts.EnableHealthz {
		mux.Handle("/healthz", healthHandler(opts.Health))
	}
	if opts.API != nil {
		mux.Handle("/v1/", opts.API)
	}
	return mux
}

func healthHandler(tracker *HealthTracker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := HealthReport{Status: "ok"}
		if tracker != nil {
			report = tracker.Report()
		}

		status := http.StatusOK
		if report.Status != "ok" {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
	})
}
