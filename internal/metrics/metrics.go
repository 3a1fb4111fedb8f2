// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vr_console"

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Console API requests by route and status.",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Console API request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "route"})

	// BackendRequests counts calls to the fleet backend by outcome (ok, error, rejected).
	BackendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backend_requests_total",
		Help:      "Requests issued to the fleet backend.",
	}, []string{"method", "endpoint", "outcome"})

	// BackendCircuitState is 0 closed, 1 half-open, 2 open.
	BackendCircuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "backend_circuit_state",
		Help:      "Circuit breaker state for backend reads.",
	}, []string{"name"})

	RealtimeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "realtime_events_total",
		Help:      "Events received on the backend realtime channel.",
	}, []string{"event"})

	RealtimeConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "realtime_connected",
		Help:      "1 while the realtime channel is connected.",
	})

	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "Session commands dispatched by the console.",
	}, []string{"command", "outcome"})

	AutoReplays = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auto_replays_total",
		Help:      "Replay sessions auto-started after reaching READY.",
	}, []string{"outcome"})

	CompletedSessions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "completed_sessions_total",
		Help:      "Sessions observed transitioning into COMPLETED.",
	})

	ConsoleClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "console_clients",
		Help:      "Connected console websocket clients.",
	})
)

// ObserveHTTPRequest records one console API request.
func ObserveHTTPRequest(r *http.Request, status int, elapsed time.Duration) {
	route := "unmatched"
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			route = pattern
		}
	}
	httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
