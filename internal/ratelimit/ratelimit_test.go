package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestNewLocal_AllowsBurstThenBlocks(t *testing.T) {
	l := NewLocal(2) // burst=2

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	// burst tokens should be immediately available
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("expected first wait to succeed: %v", err)
	}
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("expected second wait (within burst) to succeed: %v", err)
	}

	// third call exceeds burst and the rate, with a context that expires
	// before the next token replenishes
	if err := l.Wait(ctx); err == nil {
		t.Fatalf("expected third wait to be blocked past the short deadline")
	}
}

func TestNewLocal_DefaultsToPositiveRate(t *testing.T) {
	l := NewLocal(0)
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("expected default rate to allow at least one immediate call: %v", err)
	}
}
