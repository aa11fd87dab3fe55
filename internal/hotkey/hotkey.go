// Package hotkey provides a global hotkey listener using gohook.
// Each press of the configured combo emits one trigger event; the
// tracker uses it to toggle the device connection.
package hotkey

import (
	"strings"
	"sync"

	hook "github.com/robotn/gohook"
)

// EventType identifies a hotkey event.
type EventType int

const (
	// EventTrigger signals one press of the hotkey combo.
	EventTrigger EventType = iota
)

// Event is emitted on the channel returned by Events.
type Event struct {
	Type EventType
}

// Listener manages a global hotkey and emits trigger events.
type Listener struct {
	keys []string
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// NewListener creates a Listener for the given key combo.
// keys should be key names such as ["ctrl", "shift", "c"]; they are
// lowercased.
func NewListener(keys []string) *Listener {
	norm := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			norm = append(norm, k)
		}
	}
	return &Listener{
		keys: norm,
		ch:   make(chan Event, 16),
		done: make(chan struct{}),
	}
}

// Keys returns the normalized key combo.
func (l *Listener) Keys() []string {
	return append([]string(nil), l.keys...)
}

// Events returns the channel that receives hotkey events.
// The channel is closed when the listener stops.
func (l *Listener) Events() <-chan Event {
	return l.ch
}

// Start begins listening for the global hotkey.
// This function blocks until Stop is called. Run it in a goroutine.
func (l *Listener) Start() {
	hook.Register(hook.KeyDown, l.keys, func(e hook.Event) {
		l.trigger()
	})

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	close(l.ch)
}

// trigger emits one event without blocking if the consumer is behind.
func (l *Listener) trigger() {
	select {
	case l.ch <- Event{Type: EventTrigger}:
	default:
	}
}

// Stop terminates the hotkey listener.
// It is safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}
