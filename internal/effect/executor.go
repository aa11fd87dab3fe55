// Package effect performs the effects the action resolver emits: it renders
// templates into a note file or the focused window and runs commands.
package effect

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/fschwaiger/cubetracker/internal/action"
)

// Options configures the Executor.
type Options struct {
	Method         string // "file", "type" or "paste"
	Shell          string
	CommandTimeout time.Duration
	QueueSize      int
}

// CommandRunner runs an opaque command string.
type CommandRunner interface {
	Run(ctx context.Context, command string) error
}

// ShellRunner runs commands with `shell -c`.
type ShellRunner struct {
	Shell string
}

func (r *ShellRunner) Run(ctx context.Context, command string) error {
	cmd := exec.CommandContext(ctx, r.Shell, "-c", command)
	out, err := cmd.CombinedOutput()
	if len(out) > 0 {
		slog.Debug("[EFFECT] command output", "command", command, "output", strings.TrimSpace(string(out)))
	}
	if err != nil {
		return fmt.Errorf("effect: run %q: %w", command, err)
	}
	return nil
}

// Executor performs effects one at a time, in the order they were emitted,
// on its own goroutine so the session's dispatch is not held up by slow
// commands.
type Executor struct {
	opts     Options
	window   LineWriter
	runner   CommandRunner
	now      func() time.Time

	queue chan action.Effect
	done  chan struct{}
}

// Compile-time check that Executor can receive resolver effects.
var _ action.Emitter = (*Executor)(nil)

// NewExecutor creates an Executor and starts its worker. Call Close when done.
func NewExecutor(opts Options) *Executor {
	if opts.Shell == "" {
		opts.Shell = "/bin/sh"
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 30 * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	x := &Executor{
		opts:   opts,
		runner: &ShellRunner{Shell: opts.Shell},
		now:    time.Now,
		queue:  make(chan action.Effect, opts.QueueSize),
		done:   make(chan struct{}),
	}
	if opts.Method == "type" || opts.Method == "paste" {
		x.window = NewWindow(opts.Method)
	}
	go x.run()
	return x
}

// Emit queues e. It blocks only when the queue is full.
func (x *Executor) Emit(e action.Effect) {
	x.queue <- e
}

// Close stops accepting effects and waits for queued ones to finish.
func (x *Executor) Close() {
	close(x.queue)
	<-x.done
}

func (x *Executor) run() {
	defer close(x.done)
	for e := range x.queue {
		if err := x.Perform(e); err != nil {
			slog.Error("[EFFECT] failed", "kind", e.Kind, "side", e.Side, "error", err)
		}
	}
}

// Perform carries out one effect synchronously.
func (x *Executor) Perform(e action.Effect) error {
	now := x.now()
	vars := Vars{Side: string(e.Side), Set: e.Set}

	switch e.Kind {
	case action.EffectRenderTemplate:
		text := Render(e.Template, now, vars)
		if x.window != nil {
			if err := x.window.WriteLine(text); err != nil {
				return err
			}
			slog.Info("[EFFECT] line entered", "method", x.opts.Method, "text", text)
			return nil
		}
		path := Render(e.TargetFile, now, vars)
		if err := AppendLine(path, text); err != nil {
			return err
		}
		slog.Info("[EFFECT] note written", "file", path, "text", text)
		return nil

	case action.EffectRunCommand:
		ctx, cancel := context.WithTimeout(context.Background(), x.opts.CommandTimeout)
		defer cancel()
		if err := x.runner.Run(ctx, e.Command); err != nil {
			return err
		}
		slog.Info("[EFFECT] command finished", "command", e.Command)
		return nil

	case action.EffectSwitchSet:
		slog.Info("[EFFECT] action set switched", "from", e.From, "to", e.To)
		return nil

	default:
		return fmt.Errorf("effect: unknown effect kind %d", e.Kind)
	}
}

// AppendLine appends text and a newline to the file at path, creating the
// file and its directories as needed.
func AppendLine(path, text string) error {
	if path == "" {
		return fmt.Errorf("effect: no target file")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("effect: create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("effect: open %s: %w", path, err)
	}
	if _, err := f.WriteString(text + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("effect: write %s: %w", path, err)
	}
	return f.Close()
}
