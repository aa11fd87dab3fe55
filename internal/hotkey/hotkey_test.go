package hotkey

import (
	"reflect"
	"testing"
)

func TestNewListenerNormalizesKeys(t *testing.T) {
	l := NewListener([]string{"Ctrl", " shift ", "", "C"})
	want := []string{"ctrl", "shift", "c"}
	if got := l.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
}

func TestTriggerDoesNotBlock(t *testing.T) {
	l := NewListener([]string{"ctrl", "c"})
	for i := 0; i < cap(l.ch)+5; i++ {
		l.trigger()
	}
	if len(l.ch) != cap(l.ch) {
		t.Errorf("queued %d events, want %d", len(l.ch), cap(l.ch))
	}
	ev := <-l.Events()
	if ev.Type != EventTrigger {
		t.Errorf("event type = %v, want EventTrigger", ev.Type)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	l := NewListener([]string{"ctrl", "c"})
	l.Stop()
	l.Stop()
	select {
	case <-l.done:
	default:
		t.Error("done should be closed after Stop")
	}
}
