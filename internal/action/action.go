// Package action holds the per-side action tables of the tracker and resolves
// a side change into the effects the host should perform.
package action

import (
	"errors"
	"fmt"

	"github.com/fschwaiger/cubetracker/internal/side"
)

var (
	// ErrSetNotFound is returned when a named action set does not exist.
	ErrSetNotFound = errors.New("action set not found")
	// ErrIncompleteSet is returned for a set that cannot be made total.
	ErrIncompleteSet = errors.New("action set incomplete")
	// ErrSetActive is returned when removing the active set.
	ErrSetActive = errors.New("action set is active")
)

// Action is the effect bundle bound to one side. Any subset of fields may be
// set; an empty Action does nothing.
type Action struct {
	Template  string `yaml:"template,omitempty" json:"template,omitempty"`
	Command   string `yaml:"command,omitempty" json:"command,omitempty"`
	ActionSet string `yaml:"action_set,omitempty" json:"action_set,omitempty"`
}

// IsZero reports whether the action has no effect.
func (a Action) IsZero() bool {
	return a.Template == "" && a.Command == "" && a.ActionSet == ""
}

// Set maps every side, None included, to an Action.
type Set map[side.Side]Action

// Validate checks that every key is a known side and every side is present.
func (s Set) Validate() error {
	for k := range s {
		if !k.Valid() {
			return fmt.Errorf("action: %w: unknown side %q", ErrIncompleteSet, k)
		}
	}
	for _, k := range side.All() {
		if _, ok := s[k]; !ok {
			return fmt.Errorf("action: %w: missing side %q", ErrIncompleteSet, k)
		}
	}
	return nil
}

// Normalize returns a copy of s with missing sides filled by no-op actions.
// Unknown side keys cannot be repaired and are reported as an error.
func Normalize(s Set) (Set, error) {
	out := make(Set, len(side.All()))
	for k, a := range s {
		if !k.Valid() {
			return nil, fmt.Errorf("action: %w: unknown side %q", ErrIncompleteSet, k)
		}
		out[k] = a
	}
	for _, k := range side.All() {
		if _, ok := out[k]; !ok {
			out[k] = Action{}
		}
	}
	return out, nil
}

// Clone returns a shallow copy of s.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, a := range s {
		out[k] = a
	}
	return out
}
