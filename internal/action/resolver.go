package action

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/fschwaiger/cubetracker/internal/side"
)

// EffectKind identifies what the host is asked to do.
type EffectKind int

const (
	// EffectRenderTemplate asks the host to render Template into TargetFile.
	EffectRenderTemplate EffectKind = iota
	// EffectRunCommand asks the host to run Command.
	EffectRunCommand
	// EffectSwitchSet reports that the active set changed From -> To.
	EffectSwitchSet
)

func (k EffectKind) String() string {
	switch k {
	case EffectRenderTemplate:
		return "render-template"
	case EffectRunCommand:
		return "run-command"
	case EffectSwitchSet:
		return "switch-set"
	default:
		return "unknown"
	}
}

// Effect is one outward emission of the resolver. Placeholders in Template
// and TargetFile are left for the host to substitute.
type Effect struct {
	Kind EffectKind
	Side side.Side
	Set  string // set the side was resolved against

	Template   string
	TargetFile string
	Command    string

	From, To string
}

// Emitter receives effects as they are produced.
type Emitter interface {
	Emit(Effect)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Effect)

func (f EmitterFunc) Emit(e Effect) { f(e) }

// Resolver turns a side change into effects using the registry's active set.
type Resolver struct {
	registry *Registry
	emitter  Emitter

	mu         sync.Mutex
	targetFile string
}

// NewResolver creates a Resolver. emitter may be nil when the caller only
// uses the returned effects.
func NewResolver(registry *Registry, emitter Emitter, targetFile string) *Resolver {
	if registry == nil {
		panic("action: NewResolver called with nil registry")
	}
	return &Resolver{registry: registry, emitter: emitter, targetFile: targetFile}
}

// SetTargetFile changes the target file pattern for later template effects.
func (r *Resolver) SetTargetFile(pattern string) {
	r.mu.Lock()
	r.targetFile = pattern
	r.mu.Unlock()
}

func (r *Resolver) currentTargetFile() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.targetFile
}

// OnOrientation resolves s against the active set and emits, in order, the
// template effect, the command effect and the set switch. The switch is
// applied before OnOrientation returns. A switch to an unknown set is logged
// and skipped; a switch to the set already active emits nothing.
func (r *Resolver) OnOrientation(s side.Side) []Effect {
	name, set := r.registry.Active()
	a := set[s]

	var effects []Effect
	emit := func(e Effect) {
		e.Side = s
		e.Set = name
		effects = append(effects, e)
		if r.emitter != nil {
			r.emitter.Emit(e)
		}
	}

	if a.Template != "" {
		emit(Effect{
			Kind:       EffectRenderTemplate,
			Template:   a.Template,
			TargetFile: r.currentTargetFile(),
		})
	}
	if a.Command != "" {
		emit(Effect{Kind: EffectRunCommand, Command: a.Command})
	}
	if a.ActionSet != "" && a.ActionSet != name {
		err := r.registry.SetActive(a.ActionSet)
		switch {
		case errors.Is(err, ErrSetNotFound):
			slog.Warn("[ACTION] switch target missing, keeping active set",
				"side", s, "active", name, "target", a.ActionSet)
		default:
			// A persistence error does not undo the switch.
			emit(Effect{Kind: EffectSwitchSet, From: name, To: a.ActionSet})
		}
	}

	return effects
}
