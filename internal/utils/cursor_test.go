package utils

import (
	"testing"
	"time"
)

func TestEncodeDecodeJobCursor_RoundTrips(t *testing.T) {
	at := time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC)

	encoded, err := EncodeJobCursor(at, "job-123")
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}

	decoded, err := DecodeJobCursor(encoded)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if decoded.ID != "job-123" || !decoded.UpdatedAt.Equal(at) {
		t.Fatalf("expected round-tripped cursor to match, got %+v", decoded)
	}
}

func TestDecodeJobCursor_RejectsEmpty(t *testing.T) {
	if _, err := DecodeJobCursor(""); err == nil {
		t.Fatalf("expected error for empty cursor")
	}
}

func TestDecodeJobCursor_RejectsGarbage(t *testing.T) {
	if _, err := DecodeJobCursor("not-valid-base64!!"); err == nil {
		t.Fatalf("expected error for invalid base64")
	}
}

func TestDecodeJobCursor_RejectsMissingFields(t *testing.T) {
	encoded, err := EncodeJobCursor(time.Time{}, "")
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	if _, err := DecodeJobCursor(encoded); err == nil {
		t.Fatalf("expected error for zero-value cursor payload")
	}
}
