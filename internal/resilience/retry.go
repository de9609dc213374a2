// Package resilience provides the generic retry helper and adaptive circuit
// breaker shared by the state-store and ClickHouse clients.
package resilience

import (
	"context"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Retry calls fn up to attempts times, backing off exponentially with full
// jitter between attempts (capped at 60s), and returns the first success.
func Retry[T any](ctx context.Context, attempts int, baseDelay time.Duration, fn func() (T, error)) (T, error) {
	meter := otel.GetMeterProvider().Meter("aaiclick")
	attemptsCounter, _ := meter.Int64Counter("aaiclick_resilience_retry_attempts_total")
	successCounter, _ := meter.Int64Counter("aaiclick_resilience_retry_success_total")
	failCounter, _ := meter.Int64Counter("aaiclick_resilience_retry_failure_total")

	var zero T
	var lastErr error
	delay := baseDelay

	for attempt := 1; attempt <= attempts; attempt++ {
		attemptsCounter.Add(ctx, 1, metric.WithAttributes(attribute.Int("attempt", attempt)))

		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := fn()
		if err == nil {
			successCounter.Add(ctx, 1)
			return v, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		capped := delay
		if capped > 60*time.Second {
			capped = 60 * time.Second
		}
		jittered := time.Duration(rand.Int63n(int64(capped) + 1))
		select {
		case <-time.After(jittered):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
		delay *= 2
	}

	failCounter.Add(ctx, 1)
	return zero, lastErr
}
