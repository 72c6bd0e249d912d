package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Options configures the resilience decorator.
type Options struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int
	// RequestsPerMinute bounds the call rate across all callers. Zero disables limiting.
	RequestsPerMinute int
	// Backoff is the base delay; attempt n waits n*Backoff.
	Backoff time.Duration
	Logger  *slog.Logger
}

// Resilient wraps a Gateway with a shared rate limiter and bounded retries.
type Resilient struct {
	next    Gateway
	limiter *rate.Limiter
	retries int
	backoff time.Duration
	logger  *slog.Logger
}

func WithResilience(next Gateway, opts Options) *Resilient {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}
	retries := opts.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &Resilient{next: next, limiter: limiter, retries: retries, backoff: backoff, logger: logger}
}

func (r *Resilient) Generate(ctx context.Context, prompt string) (Reply, error) {
	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Reply{}, ctx.Err()
			case <-time.After(time.Duration(attempt) * r.backoff):
			}
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return Reply{}, fmt.Errorf("rate limit wait: %w", err)
		}

		reply, err := r.next.Generate(ctx, prompt)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return Reply{}, err
		}
		if attempt < r.retries {
			r.logger.Warn("gateway call failed, retrying", "attempt", attempt+1, "error", err)
		}
	}
	return Reply{}, fmt.Errorf("gateway failed after %d attempts: %w", r.retries+1, lastErr)
}
