package main

import (
	"log/slog"

	"github.com/fschwaiger/cubetracker/internal/config"
	"github.com/fschwaiger/cubetracker/internal/status"
)

// settingsUpdater is the part of config.Store that saves edits.
type settingsUpdater interface {
	Update(fn func(*config.Settings)) (*config.Settings, error)
}

// targetSetter is the part of action.Resolver that follows the target file.
type targetSetter interface {
	SetTargetFile(pattern string)
}

// liveSettings applies status API settings edits: the file is updated
// through the store and the running parts pick up the resolved values.
type liveSettings struct {
	store    settingsUpdater
	resolver targetSetter
	level    *slog.LevelVar
}

var _ status.SettingsUpdater = (*liveSettings)(nil)

func (l *liveSettings) PatchSettings(p status.SettingsPatch) error {
	cfg, err := l.store.Update(func(s *config.Settings) {
		if p.TemplateTargetFile != nil {
			s.TemplateTargetFile = *p.TemplateTargetFile
		}
		if p.LogLevel != nil {
			s.LogLevel = *p.LogLevel
		}
	})
	if err != nil {
		return err
	}

	l.resolver.SetTargetFile(cfg.TemplateTargetFile)
	if l.level != nil {
		l.level.Set(config.ParseLogLevel(cfg.LogLevel))
	}
	slog.Info("[TRACKER] settings updated", "target", cfg.TemplateTargetFile, "log_level", cfg.LogLevel)
	return nil
}
