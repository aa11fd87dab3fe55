// Package audio plays the short cue sound the tracker uses to confirm an
// orientation change.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/go-audio/wav"
)

// Clip is decoded, interleaved float32 audio in the range [-1.0, 1.0].
type Clip struct {
	Samples    []float32
	SampleRate uint32
	Channels   uint32
}

// Frames returns the number of frames in the clip.
func (c *Clip) Frames() int {
	if c.Channels == 0 {
		return 0
	}
	return len(c.Samples) / int(c.Channels)
}

// DecodeWAV reads a PCM WAV stream into a Clip.
func DecodeWAV(r io.ReadSeeker) (*Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("audio: not a valid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audio: decode WAV: %w", err)
	}
	if dec.BitDepth == 0 || dec.NumChans == 0 {
		return nil, fmt.Errorf("audio: WAV has no format information")
	}

	scale := float32(int64(1) << (dec.BitDepth - 1))
	samples := make([]float32, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = float32(s) / scale
	}
	return &Clip{
		Samples:    samples,
		SampleRate: dec.SampleRate,
		Channels:   uint32(dec.NumChans),
	}, nil
}

// LoadWAV decodes the WAV file at path.
func LoadWAV(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: open %s: %w", path, err)
	}
	defer f.Close()
	return DecodeWAV(f)
}

// Beep synthesizes a mono sine tone with a short linear fade at both ends.
func Beep(sampleRate uint32, freq float64, durationMs int) *Clip {
	n := int(sampleRate) * durationMs / 1000
	fade := n / 10
	samples := make([]float32, n)
	for i := range samples {
		amp := 0.4
		if fade > 0 {
			if i < fade {
				amp *= float64(i) / float64(fade)
			} else if i >= n-fade {
				amp *= float64(n-1-i) / float64(fade)
			}
		}
		samples[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return &Clip{Samples: samples, SampleRate: sampleRate, Channels: 1}
}

// Player plays clips on the default output device. Starting a new clip
// stops the one currently playing.
type Player struct {
	ctx *malgo.AllocatedContext

	mu     sync.Mutex
	device *malgo.Device
}

// NewPlayer creates a new audio player. Call Close() when done.
func NewPlayer() (*Player, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}
	return &Player{ctx: ctx}, nil
}

// Play starts playing clip and returns immediately.
func (p *Player) Play(clip *Clip) error {
	if clip == nil || len(clip.Samples) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceCfg.Playback.Format = malgo.FormatF32
	deviceCfg.Playback.Channels = clip.Channels
	deviceCfg.SampleRate = clip.SampleRate

	var (
		cursor   playback
		finished = make(chan struct{})
		once     sync.Once
	)
	cursor.samples = clip.Samples
	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			if cursor.fill(pOutput, int(frameCount*clip.Channels)) {
				once.Do(func() { close(finished) })
			}
		},
	}

	device, err := malgo.InitDevice(p.ctx.Context, deviceCfg, callbacks)
	if err != nil {
		return fmt.Errorf("initializing playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("starting playback device: %w", err)
	}
	p.device = device

	go func() {
		<-finished
		p.mu.Lock()
		if p.device == device {
			p.stopLocked()
		}
		p.mu.Unlock()
	}()
	return nil
}

func (p *Player) stopLocked() {
	if p.device != nil {
		p.device.Uninit()
		p.device = nil
	}
}

// Close releases all audio resources.
func (p *Player) Close() error {
	p.mu.Lock()
	p.stopLocked()
	p.mu.Unlock()

	if p.ctx != nil {
		if err := p.ctx.Uninit(); err != nil {
			return fmt.Errorf("uninitializing audio context: %w", err)
		}
		p.ctx.Free()
	}
	return nil
}

// playback is the read position within a clip.
type playback struct {
	samples []float32
	pos     int
}

// fill writes up to n samples into out as little-endian float32 and pads
// the rest with silence. It reports whether the clip is exhausted.
func (pb *playback) fill(out []byte, n int) bool {
	for i := 0; i < n; i++ {
		offset := i * 4
		if offset+4 > len(out) {
			break
		}
		var v float32
		if pb.pos < len(pb.samples) {
			v = pb.samples[pb.pos]
			pb.pos++
		}
		binary.LittleEndian.PutUint32(out[offset:offset+4], math.Float32bits(v))
	}
	return pb.pos >= len(pb.samples)
}
