// Package oto is the default audio device, playing through
// github.com/ebitengine/oto/v3 as float32 stereo.
package oto

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/vsariola/polyhost"
)

// Device plays the output of a Renderer on the default output of the system.
// Only one Device can be initialized per process.
type Device struct {
	SampleRate   int
	BufferFrames int
	Logger       *slog.Logger

	mu      sync.Mutex
	ctx     *oto.Context
	player  *oto.Player
	reader  *reader
	playing bool
}

const (
	DefaultSampleRate   = 44100
	DefaultBufferFrames = 512
)

var (
	contextOnce sync.Once
	context     *oto.Context
	contextErr  error
)

// Init creates the audio context and a player pulling from r. The player is
// silent until Start.
func (d *Device) Init(name string, r polyhost.Renderer) error {
	if d.SampleRate <= 0 {
		d.SampleRate = DefaultSampleRate
	}
	if d.BufferFrames <= 0 {
		d.BufferFrames = DefaultBufferFrames
	}
	ctx, err := newContext(d.SampleRate, d.BufferFrames)
	if err != nil {
		return fmt.Errorf("cannot create oto context: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ctx = ctx
	d.reader = newReader(r, d.BufferFrames)
	d.player = ctx.NewPlayer(d.reader)
	if d.Logger != nil {
		d.Logger.Info("audio device ready", "device", "oto", "name", name, "rate", d.SampleRate, "buffer", d.BufferFrames)
	}
	return nil
}

// oto only supports one context per process.
func newContext(sampleRate, bufferFrames int) (*oto.Context, error) {
	contextOnce.Do(func() {
		var ready chan struct{}
		context, ready, contextErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 2,
			Format:       oto.FormatFloat32LE,
			BufferSize:   time.Duration(bufferFrames) * time.Second / time.Duration(sampleRate),
		})
		if contextErr == nil {
			<-ready
		}
	})
	return context, contextErr
}

func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return errors.New("oto: Start called before Init")
	}
	if !d.playing {
		d.player.Play()
		d.playing = true
	}
	return nil
}

func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player != nil && d.playing {
		d.player.Pause()
		d.playing = false
	}
	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return nil
	}
	err := d.player.Close()
	d.player = nil
	d.playing = false
	if err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	return nil
}
