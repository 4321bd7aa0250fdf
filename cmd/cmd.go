// Package cmd wires the command line configuration to concrete devices,
// surfaces and logging.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vsariola/polyhost/host"
	"github.com/vsariola/polyhost/oto"
	"github.com/vsariola/polyhost/surface"
	"github.com/vsariola/polyhost/surface/gomidi"
	"github.com/vsariola/polyhost/surface/httpd"
	"github.com/vsariola/polyhost/surface/osc"
	"golang.org/x/term"
)

// NewLogger logs as text when w is a terminal, as JSON otherwise.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// NewDevice returns the audio device named in the configuration.
func NewDevice(c host.Config, logger *slog.Logger) (host.Device, error) {
	switch c.Audio {
	case "oto", "":
		return &oto.Device{SampleRate: c.SampleRate, BufferFrames: c.BufferFrames, Logger: logger}, nil
	case "portaudio":
		return newPortaudioDevice(c, logger)
	case "dummy":
		return &host.DummyDevice{SampleRate: c.SampleRate, BufferFrames: c.BufferFrames}, nil
	}
	return nil, fmt.Errorf("unknown audio device %q", c.Audio)
}

// NetworkSurfaces returns the factories of the MIDI, OSC and HTTP surfaces
// enabled in the configuration.
func NetworkSurfaces(c host.Config, logger *slog.Logger) []host.SurfaceFactory {
	var ret []host.SurfaceFactory
	if c.MIDI {
		ret = append(ret, func(name string) (surface.Surface, error) {
			driver, err := NewMIDIDriver()
			if err != nil {
				return nil, err
			}
			return gomidi.New(driver, c.MIDIInput, logger.With("surface", "midi")), nil
		})
	}
	if c.OSC {
		ret = append(ret, func(name string) (surface.Surface, error) {
			return osc.New(osc.Config{Port: c.OSCPort, OutPort: c.OSCOutPort, Xmit: c.Xmit, Name: name, Logger: logger}), nil
		})
	}
	if c.HTTP {
		ret = append(ret, func(name string) (surface.Surface, error) {
			return httpd.New(httpd.Config{Port: c.HTTPPort, Name: name, Logger: logger}), nil
		})
	}
	return ret
}
