package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gioui.org/app"
	"github.com/vsariola/polyhost/cmd"
	"github.com/vsariola/polyhost/host"
	"github.com/vsariola/polyhost/surface"
	"github.com/vsariola/polyhost/surface/gioui"
	"github.com/vsariola/polyhost/version"
)

func main() {
	program := filepath.Base(os.Args[0])
	config, err := host.ParseArgs(program, os.Args[1:], os.Stderr)
	if errors.Is(err, host.ErrUsage) {
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v: %v\n", program, err)
		os.Exit(1)
	}
	if config.Version {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}
	logger := cmd.NewLogger(os.Stderr, config.Verbose)
	logger.Info("starting", "program", program, "version", version.VersionOrHash, "dsp", config.DSPPath)
	device, err := cmd.NewDevice(config, logger)
	if err != nil {
		logger.Error("could not create audio device", "err", err)
		os.Exit(1)
	}
	h := host.New(config, device, logger)
	h.Surfaces = cmd.NetworkSurfaces(config, logger)
	if config.NoGUI {
		h.Surfaces = append(h.Surfaces, func(string) (surface.Surface, error) {
			return &surface.Signal{Logger: logger}, nil
		})
	} else {
		h.Surfaces = append(h.Surfaces, func(string) (surface.Surface, error) {
			return gioui.New(config.DSPPath, logger), nil
		})
	}
	run := func() int {
		if err := h.Run(context.Background()); err != nil {
			logger.Error("polyhost failed", "err", err)
			return 1
		}
		return 0
	}
	if config.NoGUI {
		os.Exit(run())
	}
	go func() {
		os.Exit(run())
	}()
	app.Main()
}
