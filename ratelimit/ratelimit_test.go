package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_FirstCallImmediate(t *testing.T) {
	l := New(time.Second)
	start := time.Now()
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("first call should not block, waited %v", elapsed)
	}
}

func TestLimiter_SpacesCalls(t *testing.T) {
	l := New(50 * time.Millisecond)
	ctx := context.Background()

	if err := l.Wait(ctx); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	start := time.Now()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 45*time.Millisecond {
		t.Fatalf("expected ~50ms spacing, waited only %v", elapsed)
	}
}

func TestLimiter_ContextCanceled(t *testing.T) {
	l := New(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.Wait(ctx); err == nil {
		t.Fatalf("expected error from canceled context")
	}
}

func TestLimiter_ZeroInterval(t *testing.T) {
	l := New(0)
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("wait failed: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("zero interval should never block, waited %v", elapsed)
	}
}
