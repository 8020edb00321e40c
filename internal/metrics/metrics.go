// Package metrics provides Prometheus metrics for privy.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "privy"

// Metrics holds the small set of Prometheus instruments privy collects.
// Collection always runs; whether they are ever scraped is a separate
// decision made by Serve.
type Metrics struct {
	SessionsActive       prometheus.Gauge
	SessionsTotal        prometheus.Counter
	HandshakeFailures    *prometheus.CounterVec
	HandshakeLatency     prometheus.Histogram
	BusMessagesDelivered prometheus.Counter
	BusMessagesDropped   prometheus.Counter
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the process-wide metrics instance, registered against
// the default Prometheus registry on first use.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics registers a fresh set of metrics against the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry registers a fresh set of metrics against reg,
// so tests can use a private registry instead of the global one.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active chat sessions",
		}),
		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of chat sessions established",
		}),
		HandshakeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_failures_total",
			Help:      "Total handshake failures by error kind",
		}, []string{"error_kind"}),
		HandshakeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handshake_latency_seconds",
			Help:      "Histogram of handshake completion latency",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		BusMessagesDelivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_messages_delivered_total",
			Help:      "Total messages delivered to a bus subscriber",
		}),
		BusMessagesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_messages_dropped_total",
			Help:      "Total messages dropped because a subscriber's inbox was full",
		}),
	}
}

// RecordSessionStart records a new chat session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsActive.Inc()
	m.SessionsTotal.Inc()
}

// RecordSessionEnd records a chat session ending.
func (m *Metrics) RecordSessionEnd() {
	m.SessionsActive.Dec()
}

// RecordHandshakeSuccess records a completed handshake's latency.
func (m *Metrics) RecordHandshakeSuccess(latencySeconds float64) {
	m.HandshakeLatency.Observe(latencySeconds)
}

// RecordHandshakeFailure records a failed handshake by error kind.
func (m *Metrics) RecordHandshakeFailure(errorKind string) {
	m.HandshakeFailures.WithLabelValues(errorKind).Inc()
}

// RecordBusDelivered records a message delivered to a bus subscriber.
func (m *Metrics) RecordBusDelivered() {
	m.BusMessagesDelivered.Inc()
}

// RecordBusDropped records a message dropped from a full subscriber inbox.
func (m *Metrics) RecordBusDropped() {
	m.BusMessagesDropped.Inc()
}

// Serve starts the Prometheus HTTP exporter and blocks until ctx is
// canceled, mirroring the teacher's --metrics listener: collection
// always happens, this just exposes it for scraping.
func Serve(ctx context.Context, address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: address, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return server.Close()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics: serve %s: %w", address, err)
	}
}
