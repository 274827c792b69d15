package ingestion

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/osservatorio-istat/osservatorio/internal/logging"
	"github.com/osservatorio-istat/osservatorio/internal/metrics"
)

// guardedClient wraps Client with a circuit breaker and a rate limiter,
// grounded on the teacher's sync.CircuitBreakerClient: opens after a
// 60% failure rate over a minimum 10 requests in a rolling 1-minute
// window, with a 2-minute recovery timeout. The spec leaves resilience
// parameters unspecified, so the teacher's own tunables are reused.
type guardedClient struct {
	client  Client
	cb      *gobreaker.CircuitBreaker[FetchResult]
	limiter *rate.Limiter
	name    string
}

// newGuardedClient wraps client with a circuit breaker and a token
// bucket limiter allowing requestsPerHour sustained requests.
func newGuardedClient(client Client, requestsPerHour int) *guardedClient {
	name := "sdmx-fetch"

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[FetchResult](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("from", from.String()).Str("to", to.String()).Msg("[CIRCUIT BREAKER] state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	limit := rate.Limit(float64(requestsPerHour) / 3600.0)
	if requestsPerHour <= 0 {
		limit = rate.Inf
	}

	return &guardedClient{
		client:  client,
		cb:      cb,
		limiter: rate.NewLimiter(limit, 1),
		name:    name,
	}
}

// Fetch waits for rate limiter permission, then executes the wrapped
// client call through the circuit breaker.
func (g *guardedClient) Fetch(ctx context.Context, datasetID string) (FetchResult, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return FetchResult{}, err
	}

	result, err := g.cb.Execute(func() (FetchResult, error) {
		return g.client.Fetch(ctx, datasetID)
	})

	if err != nil {
		metrics.CircuitBreakerRequests.WithLabelValues(g.name, "failure").Inc()
		return FetchResult{}, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(g.name, "success").Inc()
	return result, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
