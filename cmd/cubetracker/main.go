package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/fschwaiger/cubetracker/internal/action"
	"github.com/fschwaiger/cubetracker/internal/audio"
	"github.com/fschwaiger/cubetracker/internal/ble"
	"github.com/fschwaiger/cubetracker/internal/config"
	"github.com/fschwaiger/cubetracker/internal/effect"
	"github.com/fschwaiger/cubetracker/internal/hotkey"
	"github.com/fschwaiger/cubetracker/internal/journal"
	"github.com/fschwaiger/cubetracker/internal/side"
	"github.com/fschwaiger/cubetracker/internal/status"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/cubetracker/config.yaml)")
	initConfig := flag.Bool("init", false, "write a default config file and exit")
	report := flag.Duration("report", 0, "print time per side over this period from the journal and exit (e.g. 24h)")
	flag.Parse()

	if *initConfig {
		path, err := config.WriteDefault()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if path == "" {
			log.Printf("Config already exists at %s", config.DefaultConfigPath())
		} else {
			log.Printf("Wrote default config to %s", path)
		}
		return
	}

	// Load configuration. The store keeps what the file says; the program
	// runs with environment overrides and expanded paths on top.
	fileCfg, path, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg, err := fileCfg.Resolve()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	level := new(slog.LevelVar)
	level.Set(config.ParseLogLevel(cfg.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	if *report > 0 {
		if err := printReport(cfg.Journal.Path, *report); err != nil {
			log.Fatalf("report: %v", err)
		}
		return
	}

	printBanner(cfg, path)

	// Settings store and action sets
	store := config.NewStore(path, fileCfg)
	registry, err := action.NewRegistry(cfg.ActionSets, cfg.ActiveActionSet, store)
	if err != nil {
		log.Fatalf("action sets: %v", err)
	}

	// Effect host
	executor := effect.NewExecutor(effect.Options{
		Method:         cfg.Effect.Method,
		Shell:          cfg.Effect.Shell,
		CommandTimeout: cfg.Effect.CommandTimeout,
	})
	resolver := action.NewResolver(registry, executor, cfg.TemplateTargetFile)
	log.Printf("Effect host ready (method: %s)", cfg.Effect.Method)

	sink := &trackerSink{
		registry: registry,
		resolver: resolver,
		now:      time.Now,
		last:     side.None,
	}

	// Journal
	var journalStore *journal.Store
	if cfg.Journal.Path != "" {
		journalStore, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			log.Fatalf("Failed to open journal: %v", err)
		}
		sink.journal = journalStore
		log.Printf("Journal ready (%s)", cfg.Journal.Path)
	}

	// Audible cue
	var cue *audio.Cue
	if cfg.Cue.Sound != "" {
		cue, err = audio.NewCue(cfg.Cue.Sound)
		if err != nil {
			log.Printf("WARNING: audible cue disabled: %v", err)
		} else {
			sink.cue = cue
			log.Println("Audible cue ready")
		}
	}

	// Status feed
	var server *http.Server
	if cfg.Status.Listen != "" {
		hub := status.NewHub(func() string {
			name, _ := registry.Active()
			return name
		})
		sink.extra = append(sink.extra, hub)

		var reader status.JournalReader
		if journalStore != nil {
			reader = journalStore
		}
		api := status.NewAPI(registry, &liveSettings{store: store, resolver: resolver, level: level}, reader)
		server = &http.Server{Addr: cfg.Status.Listen, Handler: hub.Handler(api.Register)}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("[STATUS] server stopped", "error", err)
			}
		}()
		log.Printf("Status feed on ws://%s/ws", cfg.Status.Listen)
	}

	// Transport and session
	session := ble.NewSession(newAdapter(cfg.Transport), cfg.DeviceName, sink)

	// Hotkey
	var listener *hotkey.Listener
	if len(cfg.Hotkey.Keys) > 0 {
		listener = hotkey.NewListener(cfg.Hotkey.Keys)
		go listener.Start()
		go func() {
			for ev := range listener.Events() {
				if ev.Type != hotkey.EventTrigger {
					continue
				}
				slog.Debug("[TRACKER] hotkey", "control", session.Control())
				if err := session.Toggle(); err != nil {
					slog.Warn("[TRACKER] toggle failed", "error", err)
				}
			}
		}()
		log.Printf("Hotkey ready (%s toggles the connection)", strings.Join(cfg.Hotkey.Keys, "+"))
	}

	// Signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := session.Connect(); err != nil {
		slog.Warn("[TRACKER] initial connect failed", "error", err)
	}
	log.Printf("Ready! Looking for %q. Ctrl+C to quit.", cfg.DeviceName)

	sig := <-sigCh
	log.Printf("Received %s, shutting down (last side %s)...", sig, session.LastSide())

	session.Close()
	executor.Close()
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		server.Shutdown(ctx)
		cancel()
	}
	if cue != nil {
		cue.Close()
	}
	if journalStore != nil {
		journalStore.Close()
	}
	log.Println("Goodbye!")
	if listener != nil {
		// Exit directly to avoid gohook's C cleanup crash.
		// The OS reclaims the event hook on process exit.
		os.Exit(0)
	}
}

// newAdapter returns the transport selected in the config.
func newAdapter(transport string) ble.Adapter {
	if transport == "hci" {
		return ble.NewHCIAdapter()
	}
	return ble.NewTinyGoAdapter()
}

// loadConfig loads the file-level config from the specified path, or falls
// back to the default config path, or uses built-in defaults. It returns the
// path settings are saved to.
func loadConfig(path string) (*config.Settings, string, error) {
	if path != "" {
		cfg, err := config.LoadFile(path)
		return cfg, path, err
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.LoadFile(defaultPath)
		if err != nil {
			return nil, "", fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, defaultPath, nil
	}

	// No config file, use defaults and environment
	log.Println("No config file found, using defaults")
	return config.Default(), defaultPath, nil
}

// printReport prints the time spent per side over the last period.
func printReport(journalPath string, period time.Duration) error {
	if journalPath == "" {
		return fmt.Errorf("journal is disabled")
	}
	store, err := journal.Open(journalPath)
	if err != nil {
		return err
	}
	defer store.Close()

	until := time.Now()
	totals, err := store.Durations(context.Background(), until.Add(-period), until)
	if err != nil {
		return err
	}

	sides := make([]side.Side, 0, len(totals))
	for s := range totals {
		sides = append(sides, s)
	}
	sort.Slice(sides, func(i, j int) bool { return totals[sides[i]] > totals[sides[j]] })

	fmt.Printf("=== last %s ===\n", period)
	if len(sides) == 0 {
		fmt.Println("  no tracked time")
	}
	for _, s := range sides {
		fmt.Printf("  %-4s %s\n", s, totals[s].Round(time.Second))
	}
	return nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Settings, path string) {
	fmt.Println("=== cubetracker ===")
	fmt.Printf("  Config:    %s\n", path)
	fmt.Printf("  Device:    %s (%s)\n", cfg.DeviceName, cfg.Transport)
	fmt.Printf("  Set:       %s\n", cfg.ActiveActionSet)
	fmt.Printf("  Target:    %s\n", cfg.TemplateTargetFile)
	fmt.Printf("  Effects:   %s\n", cfg.Effect.Method)
	if cfg.Journal.Path != "" {
		fmt.Printf("  Journal:   %s\n", cfg.Journal.Path)
	}
	if len(cfg.Hotkey.Keys) > 0 {
		fmt.Printf("  Hotkey:    %s\n", strings.Join(cfg.Hotkey.Keys, "+"))
	}
	fmt.Printf("  Log:       %s\n", cfg.LogLevel)
	fmt.Println("===================")
}
