// Package ratelimit provides a per-provider token bucket gating outbound
// API requests.
package ratelimit

import (
	"context"
	"math"

	"golang.org/x/time/rate"

	"github.com/jonesrussell/north-cloud/ads-correlator/internal/logger"
)

// Limiter bounds the request rate towards one provider. A limiter built
// with rps <= 0 is disabled and admits every request immediately.
type Limiter struct {
	provider string
	limiter  *rate.Limiter
	log      logger.Logger
}

// New creates a limiter for the given provider.
// rps: requests per second; zero or negative disables limiting.
// burst defaults to ceil(rps) with a minimum of 1.
func New(provider string, rps float64, log logger.Logger) *Limiter {
	if log == nil {
		log = logger.NewNop()
	}
	if rps <= 0 {
		return &Limiter{provider: provider, log: log}
	}

	burst := int(math.Ceil(rps))
	if burst < 1 {
		burst = 1
	}

	return &Limiter{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		log:      log,
	}
}

// Enabled reports whether the limiter actually limits.
func (l *Limiter) Enabled() bool {
	return l.limiter != nil
}

// Provider returns the provider this limiter guards.
func (l *Limiter) Provider() string {
	return l.provider
}

// Acquire blocks until a token is available or the context deadline elapses,
// whichever comes first. Requests are never dropped silently: a deadline or
// cancellation surfaces as the context's error.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.limiter == nil {
		return nil
	}
	if err := l.limiter.Wait(ctx); err != nil {
		l.log.Warn("rate limiter wait failed",
			logger.String("provider", l.provider),
			logger.Error(err))
		return err
	}
	return nil
}

// Allow reports whether a request may proceed without waiting.
func (l *Limiter) Allow() bool {
	if l.limiter == nil {
		return true
	}
	return l.limiter.Allow()
}
