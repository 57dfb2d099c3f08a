package lead

import "testing"

func TestAggregateStatus_FormatWithStep(t *testing.T) {
	s := AggregateStatus{Step: "First Followup", State: "delivered"}
	if got, want := s.Format(), "First Followup:delivered"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestAggregateStatus_FormatWithoutStep(t *testing.T) {
	s := AggregateStatus{State: "new"}
	if got, want := s.Format(), "new"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestParseAggregateStatus_RoundTripsFormat(t *testing.T) {
	original := AggregateStatus{Step: "Initial Email", State: "sent"}
	parsed := ParseAggregateStatus(original.Format())
	if parsed != original {
		t.Fatalf("expected round-trip to match, got %+v", parsed)
	}
}

func TestParseAggregateStatus_NoColonIsStateOnly(t *testing.T) {
	parsed := ParseAggregateStatus("new")
	if parsed.Step != "" || parsed.State != "new" {
		t.Fatalf("expected state-only parse, got %+v", parsed)
	}
}
