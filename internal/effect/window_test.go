package effect

import (
	"errors"
	"fmt"
	"slices"
	"testing"
)

// fakeKeys records robotgo calls as readable strings.
type fakeKeys struct {
	calls     []string
	clipboard string
	readErr   error
	tapErr    error
}

func (f *fakeKeys) Type(text string) { f.calls = append(f.calls, "type "+text) }

func (f *fakeKeys) Tap(key string, modifiers ...interface{}) error {
	call := "tap " + key
	for _, m := range modifiers {
		call += fmt.Sprintf("+%v", m)
	}
	f.calls = append(f.calls, call)
	return f.tapErr
}

func (f *fakeKeys) ReadClipboard() (string, error) {
	f.calls = append(f.calls, "read")
	return f.clipboard, f.readErr
}

func (f *fakeKeys) WriteClipboard(text string) error {
	f.calls = append(f.calls, "write "+text)
	f.clipboard = text
	return nil
}

func newTestWindow(method string) (*Window, *fakeKeys) {
	keys := &fakeKeys{clipboard: "previous"}
	return &Window{method: method, keys: keys, modifier: "ctrl"}, keys
}

func TestWindowWriteLine(t *testing.T) {
	tests := []struct {
		name   string
		method string
		want   []string
	}{
		{
			name:   "type",
			method: "type",
			want:   []string{"type 09:26 TF", "tap enter"},
		},
		{
			name:   "paste",
			method: "paste",
			want:   []string{"read", "write 09:26 TF", "tap v+ctrl", "tap enter", "write previous"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, keys := newTestWindow(tt.method)
			if err := w.WriteLine("09:26 TF"); err != nil {
				t.Fatalf("WriteLine() error = %v", err)
			}
			if !slices.Equal(keys.calls, tt.want) {
				t.Errorf("calls = %v, want %v", keys.calls, tt.want)
			}
		})
	}
}

func TestWindowWriteLineEmpty(t *testing.T) {
	w, keys := newTestWindow("type")
	if err := w.WriteLine(""); err != nil {
		t.Fatalf("WriteLine() error = %v", err)
	}
	if len(keys.calls) != 0 {
		t.Errorf("calls = %v, want none", keys.calls)
	}
}

func TestWindowPasteRestoresClipboardOnFailure(t *testing.T) {
	w, keys := newTestWindow("paste")
	keys.tapErr = errors.New("no display")

	if err := w.WriteLine("09:26 TF"); err == nil {
		t.Fatal("WriteLine() should report the failed key tap")
	}
	if keys.clipboard != "previous" {
		t.Errorf("clipboard = %q, want previous restored", keys.clipboard)
	}
}

func TestWindowPasteUnreadableClipboardIsNotRestored(t *testing.T) {
	w, keys := newTestWindow("paste")
	keys.readErr = errors.New("clipboard busy")

	if err := w.WriteLine("09:26 TF"); err != nil {
		t.Fatalf("WriteLine() error = %v", err)
	}
	want := []string{"read", "write 09:26 TF", "tap v+ctrl", "tap enter"}
	if !slices.Equal(keys.calls, want) {
		t.Errorf("calls = %v, want %v", keys.calls, want)
	}
}
