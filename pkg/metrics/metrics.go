// Package metrics exposes the Prometheus metrics of the curriculum client.
// All metrics are defined in their respective packages (client, pagination,
// ratelimit, sink) to maintain modularity and avoid circular dependencies.
//
// This package serves them over HTTP and documents every metric name.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Sternrassler/ucsb-curriculum-client/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the registry read by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Serve listens on addr and serves /metrics until ctx is done.
func Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", addr, err)
	}
	return ServeListener(ctx, ln)
}

// ServeListener serves /metrics on ln until ctx is done, then shuts the
// server down gracefully.
func ServeListener(ctx context.Context, ln net.Listener) error {
	logger := logging.NewLogger("metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", ln.Addr().String()).Msg("Metrics server listening")
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics shutdown: %w", err)
	}
	logger.Debug().Msg("Metrics server stopped")
	return nil
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - ucsb_requests_total{status} (Counter): Page requests by HTTP status
//   - ucsb_request_duration_seconds (Histogram): Page request duration
//   - ucsb_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, decode)
//
// Retry Metrics (pkg/client):
//   - ucsb_retries_total{error_class} (Counter): Retry attempts by error class
//   - ucsb_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - ucsb_retry_exhausted_total{error_class} (Counter): Pages that exhausted max retries
//
// In-Flight Metrics (pkg/ratelimit):
//   - ucsb_inflight_requests (Gauge): HTTP calls currently holding a gate slot
//   - ucsb_gate_waits_total (Counter): Acquisitions that had to wait for a slot
//
// Aggregation Metrics (pkg/pagination):
//   - ucsb_pages_fetched_total{mode} (Counter): Pages fetched successfully
//   - ucsb_pages_failed_total{mode} (Counter): Page fetches that failed
//   - ucsb_batch_duration_seconds (Histogram): Parallel batch wall time
//   - ucsb_courses_aggregated{mode} (Gauge): Courses returned by the last run
//
// Sink Metrics (pkg/sink):
//   - ucsb_sink_writes_total{sink} (Counter): Successful catalog writes
//   - ucsb_sink_errors_total{sink} (Counter): Failed catalog writes
//   - ucsb_sink_bytes{sink} (Gauge): Encoded size of the last write
//
// Example Prometheus Queries:
//
//   # Parallel page failure ratio
//   rate(ucsb_pages_failed_total{mode="parallel"}[5m]) /
//   rate(ucsb_pages_fetched_total{mode="parallel"}[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(ucsb_request_duration_seconds_bucket[5m]))
//
//   # Rate limited requests
//   rate(ucsb_errors_total{class="rate_limit"}[5m])
