package effect

import (
	"fmt"
	"runtime"
	"time"

	"github.com/go-vgo/robotgo"
)

// LineWriter puts one rendered line somewhere the user sees it.
type LineWriter interface {
	WriteLine(text string) error
}

// keySender is the slice of robotgo the window writer drives.
type keySender interface {
	Type(text string)
	Tap(key string, modifiers ...interface{}) error
	ReadClipboard() (string, error)
	WriteClipboard(text string) error
}

type robotgoKeys struct{}

func (robotgoKeys) Type(text string) { robotgo.Type(text) }

func (robotgoKeys) Tap(key string, modifiers ...interface{}) error {
	return robotgo.KeyTap(key, modifiers...)
}

func (robotgoKeys) ReadClipboard() (string, error) { return robotgo.ReadAll() }

func (robotgoKeys) WriteClipboard(text string) error { return robotgo.WriteAll(text) }

// clipboardSettle is how long the focused app gets to read a pasted line
// before the previous clipboard comes back.
const clipboardSettle = 150 * time.Millisecond

// Window writes template lines into the focused window, one line per side
// change, the way the file method appends them to the note.
type Window struct {
	method   string // "type" or "paste"
	keys     keySender
	modifier string
	settle   time.Duration
}

var _ LineWriter = (*Window)(nil)

// NewWindow creates a Window for method "type" (keystrokes) or "paste"
// (clipboard, then the paste shortcut).
func NewWindow(method string) *Window {
	modifier := "ctrl"
	if runtime.GOOS == "darwin" {
		modifier = "cmd"
	}
	return &Window{
		method:   method,
		keys:     robotgoKeys{},
		modifier: modifier,
		settle:   clipboardSettle,
	}
}

// WriteLine enters text followed by Enter.
func (w *Window) WriteLine(text string) error {
	if text == "" {
		return nil
	}
	if w.method == "paste" {
		return w.paste(text)
	}
	w.keys.Type(text)
	return w.enter()
}

func (w *Window) enter() error {
	if err := w.keys.Tap("enter"); err != nil {
		return fmt.Errorf("effect: key tap enter: %w", err)
	}
	return nil
}

// paste replaces the clipboard for the duration of one paste. The previous
// content is restored even when the paste fails, but only if it could be
// read in the first place.
func (w *Window) paste(text string) error {
	prev, readErr := w.keys.ReadClipboard()

	if err := w.keys.WriteClipboard(text); err != nil {
		return fmt.Errorf("effect: write to clipboard: %w", err)
	}
	defer func() {
		if readErr != nil {
			return
		}
		time.Sleep(w.settle)
		_ = w.keys.WriteClipboard(prev)
	}()

	if err := w.keys.Tap("v", w.modifier); err != nil {
		return fmt.Errorf("effect: key tap %s+v: %w", w.modifier, err)
	}
	return w.enter()
}
