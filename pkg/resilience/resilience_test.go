package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LoomworksAI/apiloom/pkg/fn"
)

func failing(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Timeout: time.Minute})
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		if err := b.Call(context.Background(), failing(boom)); !errors.Is(err, boom) {
			t.Fatalf("call %d: expected boom, got %v", i, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}
	if err := b.Call(context.Background(), failing(nil)); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 2, Timeout: time.Minute})
	boom := errors.New("boom")

	b.Call(context.Background(), failing(boom))
	b.Call(context.Background(), failing(nil))
	b.Call(context.Background(), failing(boom))

	if b.State() != StateClosed {
		t.Fatalf("expected closed after interleaved success, got %s", b.State())
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: time.Minute})
	now := time.Now()
	b.now = func() time.Time { return now }

	b.Call(context.Background(), failing(errors.New("boom")))
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	now = now.Add(2 * time.Minute)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %s", b.State())
	}

	if err := b.Call(context.Background(), failing(nil)); err != nil {
		t.Fatal(err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after probe success, got %s", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 5, Timeout: time.Minute})
	now := time.Now()
	b.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		b.Call(context.Background(), failing(errors.New("boom")))
	}
	now = now.Add(2 * time.Minute)

	b.Call(context.Background(), failing(errors.New("still down")))
	if b.State() != StateOpen {
		t.Fatalf("expected reopened, got %s", b.State())
	}
}

func TestCallResult(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: time.Minute})

	r := CallResult(b, context.Background(), func(context.Context) fn.Result[int] {
		return fn.Ok(42)
	})
	if v, _ := r.Unwrap(); v != 42 {
		t.Fatalf("expected 42, got %v", v)
	}

	CallResult(b, context.Background(), func(context.Context) fn.Result[int] {
		return fn.Err[int](errors.New("boom"))
	})
	r = CallResult(b, context.Background(), func(context.Context) fn.Result[int] {
		return fn.Ok(1)
	})
	if _, err := r.Unwrap(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestLimiterAllow(t *testing.T) {
	l := NewLimiter(1, 2)
	if !l.Allow() || !l.Allow() {
		t.Fatal("burst tokens should be available")
	}
	if l.Allow() {
		t.Fatal("bucket should be drained")
	}
}

func TestLimiterCall(t *testing.T) {
	l := NewLimiter(0.001, 1)
	called := 0
	work := func(context.Context) error { called++; return nil }

	if err := l.Call(context.Background(), work); err != nil {
		t.Fatal(err)
	}
	if err := l.Call(context.Background(), work); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if called != 1 {
		t.Fatalf("expected 1 call, got %d", called)
	}
}

func TestLimiterWaitCancelled(t *testing.T) {
	l := NewLimiter(0.001, 1)
	l.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatal("expected context error")
	}
}

func TestLimiterStage(t *testing.T) {
	l := NewLimiter(0.001, 1)
	stage := LimiterStage(l, func(_ context.Context, in int) fn.Result[int] {
		return fn.Ok(in * 2)
	})

	if v, _ := stage(context.Background(), 21).Unwrap(); v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
	if _, err := stage(context.Background(), 1).Unwrap(); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestLimiterStageWait(t *testing.T) {
	l := NewLimiter(1000, 1)
	stage := LimiterStageWait(l, func(_ context.Context, in int) fn.Result[int] {
		return fn.Ok(in + 1)
	})

	for i := 0; i < 3; i++ {
		if v, err := stage(context.Background(), i).Unwrap(); err != nil || v != i+1 {
			t.Fatalf("call %d: got %d, %v", i, v, err)
		}
	}
}

func TestLimiterStageWaitCancelled(t *testing.T) {
	l := NewLimiter(0.001, 1)
	l.Allow()
	stage := LimiterStageWait(l, func(_ context.Context, in int) fn.Result[int] {
		return fn.Ok(in)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := stage(ctx, 1).Unwrap(); err == nil {
		t.Fatal("expected context error")
	}
}

func TestBreakerStageTripsAndRejects(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 2, Timeout: time.Minute})
	boom := errors.New("boom")
	fail := true
	stage := BreakerStage(b, func(_ context.Context, in int) fn.Result[int] {
		if fail {
			return fn.Err[int](boom)
		}
		return fn.Ok(in * 2)
	})

	for i := 0; i < 2; i++ {
		if _, err := stage(context.Background(), 1).Unwrap(); !errors.Is(err, boom) {
			t.Fatalf("call %d: expected boom, got %v", i, err)
		}
	}
	fail = false
	if _, err := stage(context.Background(), 1).Unwrap(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}
}
