// Package ratelimit bounds the number of in-flight requests against the
// curriculum API. Every page fetch holds one slot of a Gate for the duration
// of its HTTP exchange, so a client shared by N workers never has more than
// the gate capacity of requests outstanding.
package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for request gating.
var (
	inflightRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ucsb_inflight_requests",
		Help: "Number of curriculum API requests currently in flight",
	})

	gateWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ucsb_gate_waits_total",
		Help: "Total number of requests that had to wait for a free in-flight slot",
	})
)

// Gate is a counting semaphore that also records its high-water mark.
type Gate struct {
	slots  chan struct{}
	logger zerolog.Logger

	mu       sync.Mutex
	inFlight int
	peak     int
}

// NewGate creates a gate admitting at most capacity concurrent holders.
func NewGate(capacity int, logger zerolog.Logger) (*Gate, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("gate capacity must be > 0 (got %d)", capacity)
	}
	return &Gate{
		slots:  make(chan struct{}, capacity),
		logger: logger,
	}, nil
}

// Acquire blocks until a slot is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
	default:
		gateWaitsTotal.Inc()
		g.logger.Debug().
			Int("capacity", cap(g.slots)).
			Msg("In-flight limit reached - waiting for a slot")

		select {
		case g.slots <- struct{}{}:
		case <-ctx.Done():
			return fmt.Errorf("acquire request slot: %w", ctx.Err())
		}
	}

	g.mu.Lock()
	g.inFlight++
	if g.inFlight > g.peak {
		g.peak = g.inFlight
	}
	g.mu.Unlock()

	inflightRequests.Inc()
	return nil
}

// Release frees a slot taken by Acquire.
func (g *Gate) Release() {
	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()

	inflightRequests.Dec()
	<-g.slots
}

// Capacity returns the maximum number of concurrent holders.
func (g *Gate) Capacity() int {
	return cap(g.slots)
}

// InFlight returns the current number of holders.
func (g *Gate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// Peak returns the highest number of concurrent holders observed.
func (g *Gate) Peak() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peak
}
