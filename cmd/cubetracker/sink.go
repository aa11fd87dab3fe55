package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/fschwaiger/cubetracker/internal/action"
	"github.com/fschwaiger/cubetracker/internal/ble"
	"github.com/fschwaiger/cubetracker/internal/side"
)

// orientationResolver is the part of action.Resolver the sink drives.
type orientationResolver interface {
	OnOrientation(s side.Side) []action.Effect
}

// recorder is the part of journal.Store the sink writes to.
type recorder interface {
	Record(ctx context.Context, at time.Time, s side.Side, actionSet string) error
}

// player plays the audible cue.
type player interface {
	Play()
}

// trackerSink fans session events out to the resolver, the journal, the
// audible cue and any extra sinks such as the status hub. All methods run
// on the session's dispatch goroutine.
type trackerSink struct {
	registry *action.Registry
	resolver orientationResolver
	journal  recorder // may be nil
	cue      player   // may be nil
	extra    []ble.Sink
	now      func() time.Time

	last side.Side
}

var _ ble.Sink = (*trackerSink)(nil)

func (t *trackerSink) StateChanged(st ble.State, err error) {
	if err != nil {
		slog.Info("[TRACKER] state changed", "state", st, "error", err)
	} else {
		slog.Info("[TRACKER] state changed", "state", st)
	}

	// A lost link ends the current face period in the journal.
	if st != ble.StateConnected && st != ble.StateConnecting && t.last != side.None {
		t.record(side.None)
	}
	if st != ble.StateConnected {
		t.last = side.None
	}

	for _, s := range t.extra {
		s.StateChanged(st, err)
	}
}

func (t *trackerSink) SideChanged(s side.Side) {
	slog.Info("[TRACKER] orientation", "side", s)

	t.record(s)
	t.last = s

	effects := t.resolver.OnOrientation(s)
	slog.Debug("[TRACKER] resolved", "side", s, "effects", len(effects))

	if t.cue != nil && s != side.None {
		t.cue.Play()
	}
	for _, x := range t.extra {
		x.SideChanged(s)
	}
}

// record journals s under the action set active before it is resolved.
func (t *trackerSink) record(s side.Side) {
	if t.journal == nil {
		return
	}
	name, _ := t.registry.Active()
	if err := t.journal.Record(context.Background(), t.now(), s, name); err != nil {
		slog.Error("[JOURNAL] record failed", "side", s, "error", err)
	}
}
