package action

import (
	"errors"
	"testing"

	"github.com/fschwaiger/cubetracker/internal/side"
)

// mockPersister records every save.
type mockPersister struct {
	saves  int
	active string
	sets   map[string]Set
	err    error
}

func (p *mockPersister) SaveActionSets(active string, sets map[string]Set) error {
	p.saves++
	p.active = active
	p.sets = sets
	return p.err
}

func newTestRegistry(t *testing.T, store Persister) *Registry {
	t.Helper()
	r, err := NewRegistry(map[string]Set{
		"default": {side.BottomFront: {Template: "{{time}} BF"}},
		"work":    {side.BottomFront: {Command: "work:start"}},
	}, "default", store)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return r
}

func TestNewRegistryNormalizesSets(t *testing.T) {
	r := newTestRegistry(t, nil)
	for _, name := range r.Names() {
		s, ok := r.Get(name)
		if !ok {
			t.Fatalf("Get(%q) not found", name)
		}
		if err := s.Validate(); err != nil {
			t.Errorf("set %q not total: %v", name, err)
		}
	}
}

func TestNewRegistryRejectsMissingActive(t *testing.T) {
	_, err := NewRegistry(map[string]Set{"default": {}}, "nope", nil)
	if !errors.Is(err, ErrSetNotFound) {
		t.Errorf("NewRegistry() error = %v, want ErrSetNotFound", err)
	}
}

func TestSetActive(t *testing.T) {
	store := &mockPersister{}
	r := newTestRegistry(t, store)

	if err := r.SetActive("work"); err != nil {
		t.Fatalf("SetActive(work) error = %v", err)
	}
	name, set := r.Active()
	if name != "work" {
		t.Errorf("Active() name = %q, want work", name)
	}
	if set[side.BottomFront].Command != "work:start" {
		t.Errorf("Active() set BF = %+v, want work's action", set[side.BottomFront])
	}
	if store.saves != 1 || store.active != "work" {
		t.Errorf("persister saves=%d active=%q, want 1 and work", store.saves, store.active)
	}
}

func TestSetActiveUnknownLeavesActiveUnchanged(t *testing.T) {
	store := &mockPersister{}
	r := newTestRegistry(t, store)

	err := r.SetActive("missing")
	if !errors.Is(err, ErrSetNotFound) {
		t.Fatalf("SetActive(missing) error = %v, want ErrSetNotFound", err)
	}
	if name, _ := r.Active(); name != "default" {
		t.Errorf("Active() = %q after failed switch, want default", name)
	}
	if store.saves != 0 {
		t.Errorf("failed switch should not persist, got %d saves", store.saves)
	}
}

func TestUpsertNormalizesPartialSet(t *testing.T) {
	r := newTestRegistry(t, nil)

	if err := r.Upsert("home", Set{side.TopBack: {ActionSet: "default"}}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	s, ok := r.Get("home")
	if !ok {
		t.Fatal("Get(home) not found after Upsert")
	}
	if err := s.Validate(); err != nil {
		t.Errorf("upserted set not total: %v", err)
	}
}

func TestUpsertRejectsUnknownSide(t *testing.T) {
	r := newTestRegistry(t, nil)

	err := r.Upsert("bad", Set{"XX": {Command: "x"}})
	if !errors.Is(err, ErrIncompleteSet) {
		t.Errorf("Upsert() error = %v, want ErrIncompleteSet", err)
	}
	if _, ok := r.Get("bad"); ok {
		t.Error("rejected set should not be installed")
	}
}

func TestUpsertRejectsEmptyName(t *testing.T) {
	r := newTestRegistry(t, nil)
	if err := r.Upsert("", Set{}); err == nil {
		t.Error("Upsert(\"\") should fail")
	}
}

func TestDelete(t *testing.T) {
	store := &mockPersister{}
	r := newTestRegistry(t, store)

	if err := r.Delete("default"); !errors.Is(err, ErrSetActive) {
		t.Errorf("Delete() of the active set error = %v, want ErrSetActive", err)
	}
	if err := r.Delete("work"); err != nil {
		t.Fatalf("Delete(work) error = %v", err)
	}
	if _, ok := store.sets["work"]; ok {
		t.Error("persisted sets still contain work")
	}
	if err := r.Delete("work"); !errors.Is(err, ErrSetNotFound) {
		t.Errorf("second Delete(work) error = %v, want ErrSetNotFound", err)
	}
}

func TestPersistErrorKeepsMutation(t *testing.T) {
	store := &mockPersister{err: errors.New("disk full")}
	r := newTestRegistry(t, store)

	if err := r.SetActive("work"); err == nil {
		t.Fatal("SetActive() should report the persistence error")
	}
	if name, _ := r.Active(); name != "work" {
		t.Errorf("Active() = %q, want work despite persistence error", name)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	r := newTestRegistry(t, nil)
	s, _ := r.Get("default")
	s[side.BottomFront] = Action{Command: "changed"}

	again, _ := r.Get("default")
	if again[side.BottomFront].Command == "changed" {
		t.Error("mutating a returned set should not change the registry")
	}
}
