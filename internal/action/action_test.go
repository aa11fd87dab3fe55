package action

import (
	"errors"
	"testing"

	"github.com/fschwaiger/cubetracker/internal/side"
)

func TestNormalizeFillsMissingSides(t *testing.T) {
	in := Set{side.BottomFront: {Template: "{{time}} BF"}}

	out, err := Normalize(in)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if err := out.Validate(); err != nil {
		t.Errorf("normalized set should validate, got %v", err)
	}
	if out[side.BottomFront].Template != "{{time}} BF" {
		t.Errorf("BF template = %q, want kept", out[side.BottomFront].Template)
	}
	if !out[side.None].IsZero() {
		t.Errorf("back-filled none action = %+v, want zero", out[side.None])
	}
	if len(in) != 1 {
		t.Error("Normalize() must not modify its input")
	}
}

func TestNormalizeRejectsUnknownSide(t *testing.T) {
	_, err := Normalize(Set{"XX": {Command: "x"}})
	if !errors.Is(err, ErrIncompleteSet) {
		t.Errorf("Normalize() error = %v, want ErrIncompleteSet", err)
	}
}

func TestValidateReportsMissingSide(t *testing.T) {
	s, _ := Normalize(Set{})
	delete(s, side.TopRight)
	if err := s.Validate(); !errors.Is(err, ErrIncompleteSet) {
		t.Errorf("Validate() error = %v, want ErrIncompleteSet", err)
	}
}
