package resilience

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"github.com/LoomworksAI/apiloom/pkg/fn"
)

var ErrRateLimited = errors.New("rate limited")

// Limiter adapts x/time/rate's token bucket to the fn.Stage shape used by
// the pipeline.
type Limiter struct {
	bucket *rate.Limiter
}

// NewLimiter creates a token bucket adding ratePerSec tokens per second
// with the given burst capacity.
func NewLimiter(ratePerSec float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{bucket: rate.NewLimiter(rate.Limit(ratePerSec), burst)}
}

// Allow reports whether a call may proceed right now.
func (l *Limiter) Allow() bool {
	return l.bucket.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.bucket.Wait(ctx)
}

// Call runs f if a token is available, else fails fast with ErrRateLimited.
func (l *Limiter) Call(ctx context.Context, f func(context.Context) error) error {
	if !l.Allow() {
		return ErrRateLimited
	}
	return f(ctx)
}

// CallWait blocks for a token, then runs f.
func (l *Limiter) CallWait(ctx context.Context, f func(context.Context) error) error {
	if err := l.Wait(ctx); err != nil {
		return err
	}
	return f(ctx)
}

// LimiterStage guards a stage non-blocking: over-rate calls fail with
// ErrRateLimited.
func LimiterStage[In, Out any](l *Limiter, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	return func(ctx context.Context, in In) fn.Result[Out] {
		if !l.Allow() {
			return fn.Err[Out](ErrRateLimited)
		}
		return stage(ctx, in)
	}
}

// LimiterStageWait guards a stage blocking: calls wait for a token.
func LimiterStageWait[In, Out any](l *Limiter, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	return func(ctx context.Context, in In) fn.Result[Out] {
		if err := l.Wait(ctx); err != nil {
			return fn.Err[Out](err)
		}
		return stage(ctx, in)
	}
}
