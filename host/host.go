// Package host is the orchestrator: it compiles the patch, builds the
// polyphonic instance, connects the audio device and the control surfaces,
// and tears everything down in reverse order.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/vsariola/polyhost"
	"github.com/vsariola/polyhost/poly"
	"github.com/vsariola/polyhost/state"
	"github.com/vsariola/polyhost/surface"
	"github.com/vsariola/polyhost/vm"
	"golang.org/x/sync/errgroup"
)

type (
	// State is the lifecycle state of a Host. States only move forward.
	State int32

	// SurfaceFactory constructs a surface for the instance with the given
	// name. It is called after the instance has been built.
	SurfaceFactory func(name string) (surface.Surface, error)

	// Host owns every component of a running polyhost and the order in which
	// they are acquired and released.
	Host struct {
		Config Config
		Logger *slog.Logger
		// Backend compiles the patch; if nil, the backend named in the
		// Config is used.
		Backend polyhost.Backend
		Device  Device
		// Surfaces are constructed in order. The first surface of kind GUI
		// or Signal is the primary one: its return stops the host.
		Surfaces []SurfaceFactory
		// OnState, if set, is called on every state transition.
		OnState func(State)

		state    atomic.Int32
		cleanups []cleanup
		instance *poly.Instance
	}

	cleanup struct {
		name  string
		close func() error
	}
)

const (
	Created State = iota
	FactoryBuilt
	InstanceBuilt
	SurfacesAttached
	Running
	Stopping
	Terminated
)

func (s State) String() string {
	switch s {
	case Created:
		return "Created"
	case FactoryBuilt:
		return "FactoryBuilt"
	case InstanceBuilt:
		return "InstanceBuilt"
	case SurfacesAttached:
		return "SurfacesAttached"
	case Running:
		return "Running"
	case Stopping:
		return "Stopping"
	case Terminated:
		return "Terminated"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

var ErrNoDevice = errors.New("no audio device")

// New creates a host in the Created state.
func New(c Config, device Device, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Host{Config: c, Device: device, Logger: logger}
}

func (h *Host) State() State { return State(h.state.Load()) }

func (h *Host) setState(s State) {
	h.state.Store(int32(s))
	h.Logger.Debug("host state", "state", s.String())
	if h.OnState != nil {
		h.OnState(s)
	}
}

// Instance returns the polyphonic instance, once built.
func (h *Host) Instance() *poly.Instance { return h.instance }

func (h *Host) push(name string, close func() error) {
	h.cleanups = append(h.cleanups, cleanup{name: name, close: close})
}

// unwind releases everything acquired, most recent first. Errors are logged.
func (h *Host) unwind() {
	for i := len(h.cleanups) - 1; i >= 0; i-- {
		c := h.cleanups[i]
		if err := c.close(); err != nil {
			h.Logger.Warn("error releasing "+c.name, "err", err)
		} else {
			h.Logger.Debug("released " + c.name)
		}
	}
	h.cleanups = nil
}

// Run builds everything, runs the surfaces until the primary surface returns
// or ctx is cancelled, then stops the audio, saves the parameter state and
// releases everything in reverse order. Run can be called only once.
func (h *Host) Run(ctx context.Context) (err error) {
	if h.State() != Created {
		return fmt.Errorf("host: Run called in state %v", h.State())
	}
	defer func() {
		h.unwind()
		h.setState(Terminated)
	}()
	if h.Device == nil {
		return ErrNoDevice
	}
	backend := h.Backend
	if backend == nil {
		if backend, err = vm.Backend(h.Config.Backend, h.Logger); err != nil {
			return err
		}
	}

	patch, err := polyhost.LoadPatch(h.Config.DSPPath)
	if err != nil {
		return fmt.Errorf("loading %v: %w", h.Config.DSPPath, err)
	}
	factory, err := backend.Factory(patch, h.Config.CompilerArgs)
	if err != nil {
		return fmt.Errorf("compiling %v: %w", h.Config.DSPPath, err)
	}
	h.push("factory", factory.Close)
	h.setState(FactoryBuilt)

	instance, err := poly.New(factory, poly.Options{
		Voices:  h.Config.Voices,
		Dynamic: h.Config.Dynamic,
		Group:   h.Config.Group,
		Logger:  h.Logger,
	})
	if err != nil {
		return fmt.Errorf("creating instance: %w", err)
	}
	h.instance = instance
	h.push("instance", instance.Close)
	h.setState(InstanceBuilt)
	h.Logger.Info("instance ready", "name", instance.Name(), "backend", backend.Name(),
		"voices", h.Config.Voices, "params", instance.Tree().Len())

	if err := h.Device.Init(instance.Name(), instance); err != nil {
		return fmt.Errorf("initializing audio device: %w", err)
	}
	h.push("audio device", h.Device.Close)

	rcPath := h.rcPath()
	if rcPath != "" {
		st, err := state.Load(rcPath, h.Logger)
		if err != nil {
			h.Logger.Warn("could not load all of the parameter state", "file", rcPath, "err", err)
		}
		if len(st) > 0 {
			n := state.Apply(st, instance.Tree(), h.Logger)
			h.Logger.Info("parameter state loaded", "file", rcPath, "applied", n)
		}
	}

	surfaces := make([]surface.Surface, 0, len(h.Surfaces))
	for _, f := range h.Surfaces {
		s, err := f(instance.Name())
		if err != nil {
			return fmt.Errorf("creating surface: %w", err)
		}
		h.push("surface "+s.Kind().String(), s.Close)
		if err := s.BuildFrom(instance.Tree()); err != nil {
			return fmt.Errorf("building %v surface: %w", s.Kind(), err)
		}
		if src, ok := s.(surface.NoteSource); ok {
			src.AttachNoteSink(instance.Tree())
		}
		surfaces = append(surfaces, s)
	}
	h.setState(SurfacesAttached)

	if err := h.Device.Start(); err != nil {
		return fmt.Errorf("starting audio device: %w", err)
	}
	h.setState(Running)
	runErr := h.runSurfaces(ctx, surfaces)

	h.setState(Stopping)
	if err := h.Device.Stop(); err != nil {
		h.Logger.Warn("error stopping audio device", "err", err)
	}
	if rcPath != "" {
		if err := state.Save(state.Capture(instance.Tree()), rcPath); err != nil {
			h.Logger.Error("could not save parameter state", "file", rcPath, "err", err)
		} else {
			h.Logger.Debug("parameter state saved", "file", rcPath)
		}
	}
	if n := instance.FaultCount(); n > 0 {
		h.Logger.Warn("voices faulted during the session", "count", n)
	}
	return runErr
}

func (h *Host) rcPath() string {
	if h.Config.RCFile != "" {
		return h.Config.RCFile
	}
	p, err := state.RCPath(h.Config.Program, h.Config.DSPPath)
	if err != nil {
		h.Logger.Warn("no location for the parameter state", "err", err)
		return ""
	}
	return p
}

// runSurfaces runs every surface on its own goroutine. The return of the
// primary surface, or the first error, cancels the rest.
func (h *Host) runSurfaces(ctx context.Context, surfaces []surface.Surface) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	primary := -1
	for i, s := range surfaces {
		if k := s.Kind(); k == surface.KindGUI || k == surface.KindSignal {
			primary = i
			break
		}
	}
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range surfaces {
		g.Go(func() error {
			err := s.Run(gctx)
			if err != nil {
				return fmt.Errorf("%v surface: %w", s.Kind(), err)
			}
			h.Logger.Debug("surface returned", "surface", s.Kind().String())
			if i == primary {
				cancel()
			}
			return nil
		})
	}
	if primary < 0 {
		// nothing to wait for but the context
		g.Go(func() error {
			<-gctx.Done()
			return nil
		})
	}
	return g.Wait()
}
