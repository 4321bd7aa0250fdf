//go:build portaudio

// Package portaudio is an alternative audio device on top of PortAudio, built
// only with the portaudio build tag as it needs cgo and the PortAudio library.
package portaudio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	pa "github.com/gordonklaus/portaudio"
	"github.com/vsariola/polyhost"
)

// Device renders into the interleaved buffer of a PortAudio callback stream.
type Device struct {
	SampleRate   int
	BufferFrames int
	Logger       *slog.Logger

	mu      sync.Mutex
	stream  *pa.Stream
	started bool
}

const (
	DefaultSampleRate   = 44100
	DefaultBufferFrames = 512
)

func (d *Device) Init(name string, r polyhost.Renderer) error {
	if d.SampleRate <= 0 {
		d.SampleRate = DefaultSampleRate
	}
	if d.BufferFrames <= 0 {
		d.BufferFrames = DefaultBufferFrames
	}
	if err := pa.Initialize(); err != nil {
		return fmt.Errorf("unable to initialize portaudio: %w", err)
	}
	stream, err := pa.OpenDefaultStream(0, 2, float64(d.SampleRate), d.BufferFrames, func(out []float32) {
		r.Render(polyhost.FromFloats(out))
	})
	if err != nil {
		pa.Terminate()
		return fmt.Errorf("unable to open default output via portaudio: %w", err)
	}
	d.mu.Lock()
	d.stream = stream
	d.mu.Unlock()
	if d.Logger != nil {
		dev, _ := pa.DefaultOutputDevice()
		devName := ""
		if dev != nil {
			devName = dev.Name
		}
		d.Logger.Info("audio device ready", "device", "portaudio", "output", devName, "name", name,
			"rate", stream.Info().SampleRate, "buffer", d.BufferFrames)
	}
	return nil
}

func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return errors.New("portaudio: Start called before Init")
	}
	if d.started {
		return nil
	}
	if err := d.stream.Start(); err != nil {
		return fmt.Errorf("unable to start portaudio stream: %w", err)
	}
	d.started = true
	return nil
}

func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil || !d.started {
		return nil
	}
	d.started = false
	return d.stream.Stop()
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return nil
	}
	err := d.stream.Close()
	d.stream = nil
	return errors.Join(err, pa.Terminate())
}
