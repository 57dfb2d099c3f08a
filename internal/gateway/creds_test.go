package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/geocoder89/leadflow/internal/cache"
)

type fakeCredsSource struct {
	calls int
	creds Creds
}

func (f *fakeCredsSource) GatewayCreds(ctx context.Context) (Creds, error) {
	f.calls++
	return f.creds, nil
}

func TestCachedCredsSource_CachesUnderlyingCall(t *testing.T) {
	src := &fakeCredsSource{creds: Creds{BaseURL: "https://gw.example.com", APIKey: "key"}}
	cached := NewCachedCredsSource(src, cache.New(time.Minute))

	for i := 0; i < 3; i++ {
		got, err := cached.GatewayCreds(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.BaseURL != src.creds.BaseURL {
			t.Fatalf("expected cached creds to match source, got %+v", got)
		}
	}

	if src.calls != 1 {
		t.Fatalf("expected exactly one underlying call, got %d", src.calls)
	}
}

func TestCachedCredsSource_RefetchesAfterExpiry(t *testing.T) {
	src := &fakeCredsSource{creds: Creds{BaseURL: "https://gw.example.com"}}
	cached := NewCachedCredsSource(src, cache.New(10*time.Millisecond))

	if _, err := cached.GatewayCreds(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := cached.GatewayCreds(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if src.calls != 2 {
		t.Fatalf("expected refetch after expiry, got %d calls", src.calls)
	}
}
