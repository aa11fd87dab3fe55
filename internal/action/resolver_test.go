package action

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/fschwaiger/cubetracker/internal/side"
)

// recordingEmitter collects emitted effects in order.
type recordingEmitter struct {
	effects []Effect
}

func (e *recordingEmitter) Emit(eff Effect) {
	e.effects = append(e.effects, eff)
}

func defaultSets() map[string]Set {
	return map[string]Set{
		"default": {
			side.BottomFront: {Template: "{{time}} BF"},
			side.TopBack:     {ActionSet: "work"},
			side.TopLeft:     {ActionSet: "missing"},
			side.BottomLeft:  {Template: "{{time}} BL", ActionSet: "default"},
			side.TopRight: {
				Template:  "{{time}} TR",
				Command:   "editor:save",
				ActionSet: "work",
			},
		},
		"work": {
			side.BottomFront: {Command: "work:start"},
			side.TopBack:     {ActionSet: "default"},
		},
	}
}

// captureLogs routes the default slog logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func newTestResolver(t *testing.T) (*Resolver, *Registry, *recordingEmitter) {
	t.Helper()
	reg, err := NewRegistry(defaultSets(), "default", nil)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	em := &recordingEmitter{}
	return NewResolver(reg, em, "notes/{{date}}.md"), reg, em
}

func TestResolverTemplateOnly(t *testing.T) {
	res, reg, em := newTestResolver(t)

	effects := res.OnOrientation(side.BottomFront)

	if len(effects) != 1 {
		t.Fatalf("got %d effects, want 1: %+v", len(effects), effects)
	}
	e := effects[0]
	if e.Kind != EffectRenderTemplate {
		t.Errorf("Kind = %v, want render-template", e.Kind)
	}
	if e.Template != "{{time}} BF" {
		t.Errorf("Template = %q, want %q", e.Template, "{{time}} BF")
	}
	if e.TargetFile != "notes/{{date}}.md" {
		t.Errorf("TargetFile = %q, want notes/{{date}}.md", e.TargetFile)
	}
	if name, _ := reg.Active(); name != "default" {
		t.Errorf("active = %q, want default", name)
	}
	if len(em.effects) != 1 {
		t.Errorf("emitter saw %d effects, want 1", len(em.effects))
	}
}

func TestResolverAllThreeInOrder(t *testing.T) {
	res, reg, em := newTestResolver(t)

	effects := res.OnOrientation(side.TopRight)

	want := []EffectKind{EffectRenderTemplate, EffectRunCommand, EffectSwitchSet}
	if len(effects) != len(want) {
		t.Fatalf("got %d effects, want %d: %+v", len(effects), len(want), effects)
	}
	for i, k := range want {
		if effects[i].Kind != k {
			t.Errorf("effects[%d].Kind = %v, want %v", i, effects[i].Kind, k)
		}
		if em.effects[i].Kind != k {
			t.Errorf("emitted[%d].Kind = %v, want %v", i, em.effects[i].Kind, k)
		}
	}
	if effects[1].Command != "editor:save" {
		t.Errorf("Command = %q, want editor:save", effects[1].Command)
	}
	if effects[2].From != "default" || effects[2].To != "work" {
		t.Errorf("switch = %s -> %s, want default -> work", effects[2].From, effects[2].To)
	}
	if name, _ := reg.Active(); name != "work" {
		t.Errorf("active = %q, want work", name)
	}

	// The next side resolves against work.
	next := res.OnOrientation(side.BottomFront)
	if len(next) != 1 || next[0].Kind != EffectRunCommand || next[0].Command != "work:start" {
		t.Errorf("next effects = %+v, want work's run-command", next)
	}
	if next[0].Set != "work" {
		t.Errorf("next effect Set = %q, want work", next[0].Set)
	}
}

func TestResolverSwitchChangesNextResolution(t *testing.T) {
	res, _, _ := newTestResolver(t)

	res.OnOrientation(side.TopBack)
	effects := res.OnOrientation(side.BottomFront)

	if len(effects) != 1 || effects[0].Kind != EffectRunCommand {
		t.Fatalf("effects after switch = %+v, want work's command", effects)
	}
}

func TestResolverMissingSwitchTarget(t *testing.T) {
	logs := captureLogs(t)
	res, reg, _ := newTestResolver(t)

	effects := res.OnOrientation(side.TopLeft)

	if len(effects) != 0 {
		t.Errorf("got %d effects, want none: %+v", len(effects), effects)
	}
	out := logs.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "switch target missing") {
		t.Errorf("expected a WARN record for the missing target, got logs:\n%s", out)
	}
	if !strings.Contains(out, "target=missing") {
		t.Errorf("warning should name the missing target, got logs:\n%s", out)
	}
	if name, _ := reg.Active(); name != "default" {
		t.Errorf("active = %q, want default", name)
	}

	// Still resolves against default afterwards.
	next := res.OnOrientation(side.BottomFront)
	if len(next) != 1 || next[0].Kind != EffectRenderTemplate {
		t.Errorf("next effects = %+v, want default's template", next)
	}
}

func TestResolverSwitchToActiveSetEmitsNothing(t *testing.T) {
	res, reg, em := newTestResolver(t)

	effects := res.OnOrientation(side.BottomLeft)

	if len(effects) != 1 || effects[0].Kind != EffectRenderTemplate {
		t.Fatalf("effects = %+v, want only the template", effects)
	}
	for _, e := range em.effects {
		if e.Kind == EffectSwitchSet {
			t.Errorf("emitted %+v for a switch to the active set", e)
		}
	}
	if name, _ := reg.Active(); name != "default" {
		t.Errorf("active = %q, want default", name)
	}
}

func TestResolverNoneSideIsNoOpByDefault(t *testing.T) {
	res, _, em := newTestResolver(t)

	if effects := res.OnOrientation(side.None); len(effects) != 0 {
		t.Errorf("none produced effects: %+v", effects)
	}
	if len(em.effects) != 0 {
		t.Errorf("emitter saw %d effects, want 0", len(em.effects))
	}
}

func TestResolverSetTargetFile(t *testing.T) {
	res, _, _ := newTestResolver(t)
	res.SetTargetFile("log.md")

	effects := res.OnOrientation(side.BottomFront)
	if effects[0].TargetFile != "log.md" {
		t.Errorf("TargetFile = %q, want log.md", effects[0].TargetFile)
	}
}

func TestEmitterFunc(t *testing.T) {
	var got []EffectKind
	reg, _ := NewRegistry(defaultSets(), "default", nil)
	res := NewResolver(reg, EmitterFunc(func(e Effect) { got = append(got, e.Kind) }), "")

	res.OnOrientation(side.TopRight)
	if len(got) != 3 {
		t.Errorf("EmitterFunc saw %d effects, want 3", len(got))
	}
}
