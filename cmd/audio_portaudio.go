//go:build portaudio

package cmd

import (
	"log/slog"

	"github.com/vsariola/polyhost/host"
	"github.com/vsariola/polyhost/portaudio"
)

func newPortaudioDevice(c host.Config, logger *slog.Logger) (host.Device, error) {
	return &portaudio.Device{SampleRate: c.SampleRate, BufferFrames: c.BufferFrames, Logger: logger}, nil
}
