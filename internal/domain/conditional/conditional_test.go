package conditional

import "testing"

func step(s string) *string { return &s }

func TestMatches_DisabledNeverMatches(t *testing.T) {
	e := Email{Enabled: false, TriggerEvent: "clicked"}
	if e.Matches("clicked", "initial") {
		t.Fatalf("expected disabled rule not to match")
	}
}

func TestMatches_WrongTriggerEvent(t *testing.T) {
	e := Email{Enabled: true, TriggerEvent: "clicked"}
	if e.Matches("opened", "initial") {
		t.Fatalf("expected mismatched trigger event not to match")
	}
}

func TestMatches_NilTriggerStepMatchesAnySource(t *testing.T) {
	e := Email{Enabled: true, TriggerEvent: "clicked", TriggerStep: nil}
	if !e.Matches("clicked", "initial") || !e.Matches("clicked", "followup-2") {
		t.Fatalf("expected nil trigger step to match any source email type")
	}
}

func TestMatches_SpecificTriggerStepMustEqual(t *testing.T) {
	e := Email{Enabled: true, TriggerEvent: "clicked", TriggerStep: step("initial")}
	if !e.Matches("clicked", "initial") {
		t.Fatalf("expected matching trigger step to match")
	}
	if e.Matches("clicked", "followup-1") {
		t.Fatalf("expected non-matching trigger step not to match")
	}
}
