//go:build !portaudio

package cmd

import (
	"errors"
	"log/slog"

	"github.com/vsariola/polyhost/host"
)

func newPortaudioDevice(c host.Config, logger *slog.Logger) (host.Device, error) {
	return nil, errors.New("portaudio support requires building with -tags portaudio")
}
