package task

import (
	"testing"

	"github.com/poiesis-tes/poiesis/internal/tes"
)

func TestValidateTransitionAllowsDeclaredEdges(t *testing.T) {
	cases := []struct{ from, to tes.State }{
		{tes.StateInitializing, tes.StateQueued},
		{tes.StateQueued, tes.StateRunning},
		{tes.StateRunning, tes.StateComplete},
		{tes.StateRunning, tes.StateExecutorErr},
		{tes.StateRunning, tes.StateCanceling},
		{tes.StateCanceling, tes.StateCanceled},
	}
	for _, c := range cases {
		if err := ValidateTransition(c.from, c.to); err != nil {
			t.Errorf("ValidateTransition(%s, %s) = %v, want nil", c.from, c.to, err)
		}
	}
}

func TestValidateTransitionNoOpAlwaysLegal(t *testing.T) {
	for _, s := range []tes.State{tes.StateInitializing, tes.StateRunning, tes.StateComplete, tes.StateCanceled} {
		if err := ValidateTransition(s, s); err != nil {
			t.Errorf("ValidateTransition(%s, %s) = %v, want nil (no-op)", s, s, err)
		}
	}
}

func TestValidateTransitionRejectsIllegalEdge(t *testing.T) {
	if err := ValidateTransition(tes.StateInitializing, tes.StateComplete); err == nil {
		t.Error("expected an error skipping straight from INITIALIZING to COMPLETE")
	}
}

func TestValidateTransitionRejectsOutOfTerminal(t *testing.T) {
	terminal := []tes.State{tes.StateComplete, tes.StateExecutorErr, tes.StateSystemErr, tes.StateCanceled}
	for _, s := range terminal {
		if err := ValidateTransition(s, tes.StateRunning); err == nil {
			t.Errorf("expected an error transitioning out of terminal state %s", s)
		}
	}
}

func TestExecutorNameRoundTrip(t *testing.T) {
	taskID := "123e4567-e89b-12d3-a456-426614174000"
	name := EncodeExecutorName(taskID, 2)
	gotID, gotIdx, err := DecodeExecutorName(name)
	if err != nil {
		t.Fatalf("DecodeExecutorName(%q) returned error: %v", name, err)
	}
	if gotID != taskID || gotIdx != 2 {
		t.Errorf("DecodeExecutorName(%q) = (%q, %d), want (%q, %d)", name, gotID, gotIdx, taskID, 2)
	}
}

func TestDecodeExecutorNameRejectsMalformed(t *testing.T) {
	cases := []string{
		"te-not-a-uuid-0",
		"te-123e4567-e89b-12d3-a456-426614174000",
		"123e4567-e89b-12d3-a456-426614174000-0",
		"te-123e4567-e89b-12d3-a456-426614174000-x",
	}
	for _, name := range cases {
		if _, _, err := DecodeExecutorName(name); err == nil {
			t.Errorf("DecodeExecutorName(%q) should have been rejected", name)
		}
	}
}

func TestStripTagValue(t *testing.T) {
	if !StripTagValue("") || !StripTagValue("   ") {
		t.Error("expected empty/blank tag values to mean \"key exists\"")
	}
	if StripTagValue("v1") {
		t.Error("did not expect a non-blank tag value to be stripped")
	}
}
