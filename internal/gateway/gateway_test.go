package gateway

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeSender struct {
	err error
}

func (f *fakeSender) Send(ctx context.Context, creds Creds, in SendInput) (SendResult, error) {
	if f.err != nil {
		return SendResult{}, f.err
	}
	return SendResult{MessageID: "msg-1"}, nil
}

func TestProtectedGateway_OpensAfterThreshold(t *testing.T) {
	inner := &fakeSender{err: errors.New("boom")}
	g := NewProtectedGateway(inner, CircuitConfig{FailureThreshold: 2, Cooldown: time.Hour})

	for i := 0; i < 2; i++ {
		if _, err := g.Send(context.Background(), Creds{}, SendInput{}); err == nil {
			t.Fatalf("expected underlying error on attempt %d", i)
		}
	}

	_, err := g.Send(context.Background(), Creds{}, SendInput{})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected circuit open after threshold failures, got %v", err)
	}
}

func TestProtectedGateway_ClosesOnSuccessAfterCooldown(t *testing.T) {
	inner := &fakeSender{err: errors.New("boom")}
	g := NewProtectedGateway(inner, CircuitConfig{FailureThreshold: 1, Cooldown: 10 * time.Millisecond})

	if _, err := g.Send(context.Background(), Creds{}, SendInput{}); err == nil {
		t.Fatalf("expected failure to open the circuit")
	}
	if _, err := g.Send(context.Background(), Creds{}, SendInput{}); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected circuit open, got %v", err)
	}

	time.Sleep(15 * time.Millisecond)
	inner.err = nil

	res, err := g.Send(context.Background(), Creds{}, SendInput{})
	if err != nil {
		t.Fatalf("expected half-open probe to succeed, got %v", err)
	}
	if res.MessageID != "msg-1" {
		t.Fatalf("expected message id from successful probe, got %q", res.MessageID)
	}

	// circuit should be closed again now
	inner.err = nil
	if _, err := g.Send(context.Background(), Creds{}, SendInput{}); err != nil {
		t.Fatalf("expected circuit closed after successful probe, got %v", err)
	}
}

func TestProtectedGateway_HalfOpenFailureReopens(t *testing.T) {
	inner := &fakeSender{err: errors.New("boom")}
	g := NewProtectedGateway(inner, CircuitConfig{FailureThreshold: 1, Cooldown: 10 * time.Millisecond})

	if _, err := g.Send(context.Background(), Creds{}, SendInput{}); err == nil {
		t.Fatalf("expected initial failure to open circuit")
	}
	time.Sleep(15 * time.Millisecond)

	// probe still fails -> should reopen
	if _, err := g.Send(context.Background(), Creds{}, SendInput{}); err == nil {
		t.Fatalf("expected probe failure")
	}

	if _, err := g.Send(context.Background(), Creds{}, SendInput{}); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected circuit to reopen after failed half-open probe, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	cases := map[int]ErrorClass{
		429: ClassRateLimited,
		500: ClassTransient,
		503: ClassTransient,
		400: ClassPermanent,
		404: ClassPermanent,
		200: ClassUnknown,
	}
	for status, want := range cases {
		if got := classify(status); got != want {
			t.Fatalf("status %d: expected class %d, got %d", status, want, got)
		}
	}
}
