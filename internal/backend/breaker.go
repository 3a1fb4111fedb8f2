package backend

import (
	"errors"
	"log"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/strefethen/vr-console-go/internal/metrics"
)

const breakerName = "backend-reads"

// newReadBreaker trips after repeated backend read failures. 4xx responses
// count as successes since they do not indicate an unhealthy backend.
func newReadBreaker(logger *log.Logger) *gobreaker.CircuitBreaker[[]byte] {
	metrics.BackendCircuitState.WithLabelValues(breakerName).Set(0)

	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var backendErr *Error
			return errors.As(err, &backendErr) && backendErr.StatusCode < http.StatusInternalServerError
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Printf("BACKEND: circuit %s %s -> %s", name, from, to)
			metrics.BackendCircuitState.WithLabelValues(name).Set(stateValue(to))
		},
	})
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// IsUnavailable reports whether err came from an open breaker.
func IsUnavailable(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
