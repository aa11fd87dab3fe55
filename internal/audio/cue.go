package audio

import (
	"log/slog"
)

// Cue plays one fixed clip on demand. Failures are logged, never returned,
// so a missing sound card does not affect tracking.
type Cue struct {
	player *Player
	clip   *Clip
}

// BeepSound selects the built-in tone instead of a WAV file.
const BeepSound = "beep"

// NewCue opens the default output device and loads the sound at path.
func NewCue(path string) (*Cue, error) {
	var clip *Clip
	if path == BeepSound {
		clip = Beep(44100, 880, 120)
	} else {
		var err error
		if clip, err = LoadWAV(path); err != nil {
			return nil, err
		}
	}

	player, err := NewPlayer()
	if err != nil {
		return nil, err
	}
	return &Cue{player: player, clip: clip}, nil
}

// Play starts the cue.
func (c *Cue) Play() {
	if err := c.player.Play(c.clip); err != nil {
		slog.Warn("[AUDIO] cue playback failed", "error", err)
	}
}

// Close releases the output device.
func (c *Cue) Close() error {
	return c.player.Close()
}
