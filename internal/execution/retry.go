package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Retrier wraps an Executor with bounded retries and exponential backoff.
// Attempts stop early when the context is cancelled.
type Retrier struct {
	inner    Executor
	attempts int
	backoff  time.Duration
	log      zerolog.Logger
}

// NewRetrier builds a Retrier. attempts < 1 defaults to 3; backoff <= 0
// defaults to 500ms and grows ~1.8x per attempt.
func NewRetrier(inner Executor, attempts int, backoff time.Duration, log zerolog.Logger) *Retrier {
	if attempts < 1 {
		attempts = 3
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &Retrier{inner: inner, attempts: attempts, backoff: backoff, log: log}
}

// Execute submits the order, retrying transient failures.
func (r *Retrier) Execute(ctx context.Context, order Order) (*Fill, error) {
	delay := r.backoff
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		fill, err := r.inner.Execute(ctx, order)
		if err == nil {
			return fill, nil
		}
		lastErr = err
		r.log.Warn().Err(err).
			Str("token", order.Token).
			Str("side", string(order.Side)).
			Int("attempt", attempt).
			Msg("order attempt failed")
		if attempt == r.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * 1.8)
	}
	return nil, fmt.Errorf("execute %s %s after %d attempts: %w", order.Side, order.Token, r.attempts, lastErr)
}
