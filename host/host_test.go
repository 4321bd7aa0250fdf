package host_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/vsariola/polyhost"
	"github.com/vsariola/polyhost/host"
	"github.com/vsariola/polyhost/params"
	"github.com/vsariola/polyhost/state"
	"github.com/vsariola/polyhost/surface"
)

type (
	recorder struct{ events []string }

	fakeDevice struct {
		log     *recorder
		initErr error
		r       polyhost.Renderer
	}

	fakeSurface struct {
		log      *recorder
		name     string
		kind     surface.Kind
		buildErr error
		sink     surface.NoteSink
		tree     *params.Tree
	}
)

func (r *recorder) add(e string) { r.events = append(r.events, e) }

func (d *fakeDevice) Init(name string, r polyhost.Renderer) error {
	d.log.add("device init " + name)
	d.r = r
	return d.initErr
}

func (d *fakeDevice) Start() error {
	d.log.add("device start")
	d.r.Render(make(polyhost.AudioBuffer, 64))
	return nil
}

func (d *fakeDevice) Stop() error  { d.log.add("device stop"); return nil }
func (d *fakeDevice) Close() error { d.log.add("device close"); return nil }

func (s *fakeSurface) Kind() surface.Kind { return s.kind }

func (s *fakeSurface) BuildFrom(tree *params.Tree) error {
	s.log.add(s.name + " build")
	s.tree = tree
	return s.buildErr
}

func (s *fakeSurface) AttachNoteSink(sink surface.NoteSink) { s.sink = sink }

func (s *fakeSurface) Run(ctx context.Context) error {
	if s.kind == surface.KindSignal {
		if _, err := s.tree.Write("/organ/Volume", 0.75); err != nil {
			return err
		}
		return nil
	}
	<-ctx.Done()
	return nil
}

func (s *fakeSurface) Close() error { s.log.add(s.name + " close"); return nil }

func newHost(t *testing.T, log *recorder, device host.Device, surfaces ...*fakeSurface) (*host.Host, *[]host.State) {
	t.Helper()
	c := host.Config{
		Program: "polyhost",
		Backend: "interp",
		Voices:  4,
		Group:   true,
		Dynamic: true,
		RCFile:  filepath.Join(t.TempDir(), ".polyhost-organrc"),
		DSPPath: filepath.Join("..", "patches", "organ.yml"),
	}
	h := host.New(c, device, nil)
	for _, s := range surfaces {
		h.Surfaces = append(h.Surfaces, func(name string) (surface.Surface, error) {
			log.add(s.name + " new " + name)
			return s, nil
		})
	}
	var states []host.State
	h.OnState = func(s host.State) { states = append(states, s) }
	return h, &states
}

func TestLifecycle(t *testing.T) {
	log := &recorder{}
	signal := &fakeSurface{log: log, name: "signal", kind: surface.KindSignal}
	osc := &fakeSurface{log: log, name: "osc", kind: surface.KindOSC}
	h, states := newHost(t, log, &fakeDevice{log: log}, osc, signal)
	if err := h.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	wantStates := []host.State{host.FactoryBuilt, host.InstanceBuilt, host.SurfacesAttached, host.Running, host.Stopping, host.Terminated}
	if !slices.Equal(*states, wantStates) {
		t.Fatalf("expected states %v, got %v", wantStates, *states)
	}
	wantEvents := []string{
		"device init organ",
		"osc new organ", "osc build",
		"signal new organ", "signal build",
		"device start",
		"device stop",
		"signal close", "osc close", "device close",
	}
	if !slices.Equal(log.events, wantEvents) {
		t.Fatalf("expected events\n%v\ngot\n%v", wantEvents, log.events)
	}
	if osc.sink == nil || signal.sink == nil {
		t.Fatalf("note sources should get the tree as their note sink")
	}
	b, err := os.ReadFile(h.Config.RCFile)
	if err != nil {
		t.Fatalf("parameter state was not saved: %v", err)
	}
	if !strings.Contains(string(b), "/organ/Volume=0.75\n") {
		t.Fatalf("saved state should contain the written volume, got\n%s", b)
	}
	if h.State() != host.Terminated {
		t.Fatalf("expected Terminated, got %v", h.State())
	}
}

func TestStateIsRestored(t *testing.T) {
	log := &recorder{}
	h, _ := newHost(t, log, &fakeDevice{log: log})
	if err := os.WriteFile(h.Config.RCFile, []byte("/organ/Volume=0.25\n/organ/Nothing=1\n"), 0o644); err != nil {
		t.Fatalf("could not write rc file: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := h.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if v, _ := h.Instance().Tree().Read("/organ/Volume"); v != 0.25 {
		t.Fatalf("expected the volume from the rc file, got %v", v)
	}
}

func TestStateAfterOverlongLineIsRestored(t *testing.T) {
	log := &recorder{}
	h, _ := newHost(t, log, &fakeDevice{log: log})
	rc := "/organ/Panic=0\n" + strings.Repeat("x", state.MaxLineLength+1) + "=1\n/organ/Volume=0.25\n"
	if err := os.WriteFile(h.Config.RCFile, []byte(rc), 0o644); err != nil {
		t.Fatalf("could not write rc file: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := h.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if v, _ := h.Instance().Tree().Read("/organ/Volume"); v != 0.25 {
		t.Fatalf("expected the volume after the overlong line, got %v", v)
	}
}

func TestConstructionFailureUnwinds(t *testing.T) {
	errBoom := errors.New("boom")
	for _, tc := range []struct {
		name       string
		dspPath    string
		deviceErr  error
		buildErr   error
		wantStates []host.State
		wantEvents []string
	}{
		{
			name:       "missing patch",
			dspPath:    "nonexistent.yml",
			wantStates: []host.State{host.Terminated},
		},
		{
			name:       "device init",
			deviceErr:  errBoom,
			wantStates: []host.State{host.FactoryBuilt, host.InstanceBuilt, host.Terminated},
			wantEvents: []string{"device init organ"},
		},
		{
			name:       "surface build",
			buildErr:   errBoom,
			wantStates: []host.State{host.FactoryBuilt, host.InstanceBuilt, host.Terminated},
			wantEvents: []string{"device init organ", "http new organ", "http build", "http close", "device close"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			log := &recorder{}
			http := &fakeSurface{log: log, name: "http", kind: surface.KindHTTP, buildErr: tc.buildErr}
			h, states := newHost(t, log, &fakeDevice{log: log, initErr: tc.deviceErr}, http)
			if tc.dspPath != "" {
				h.Config.DSPPath = tc.dspPath
			}
			if err := h.Run(context.Background()); err == nil {
				t.Fatalf("expected an error")
			}
			if !slices.Equal(*states, tc.wantStates) {
				t.Fatalf("expected states %v, got %v", tc.wantStates, *states)
			}
			if !slices.Equal(log.events, tc.wantEvents) {
				t.Fatalf("expected events %v, got %v", tc.wantEvents, log.events)
			}
			if _, err := os.Stat(h.Config.RCFile); !errors.Is(err, os.ErrNotExist) {
				t.Fatalf("state should not be saved when construction fails")
			}
		})
	}
}

func TestCompilationErrorIsTyped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yml")
	if err := os.WriteFile(path, []byte("units:\n  - type: nosuchunit\n"), 0o644); err != nil {
		t.Fatalf("could not write patch: %v", err)
	}
	log := &recorder{}
	h, _ := newHost(t, log, &fakeDevice{log: log})
	h.Config.DSPPath = path
	err := h.Run(context.Background())
	var cerr *polyhost.CompilationError
	if !errors.As(err, &cerr) || cerr.Kind != polyhost.KindSyntax {
		t.Fatalf("expected a syntax CompilationError, got %v", err)
	}
}

func TestDummyDevice(t *testing.T) {
	rendered := make(chan struct{}, 1)
	d := &host.DummyDevice{SampleRate: 44100, BufferFrames: 64}
	if err := d.Init("test", polyhost.RendererFunc(func(b polyhost.AudioBuffer) {
		if len(b) != 64 {
			t.Errorf("expected blocks of 64 frames, got %v", len(b))
		}
		select {
		case rendered <- struct{}{}:
		default:
		}
	})); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	select {
	case <-rendered:
	case <-time.After(5 * time.Second):
		t.Fatalf("no block was rendered")
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	n := d.Blocks()
	time.Sleep(10 * time.Millisecond)
	if d.Blocks() != n {
		t.Fatalf("blocks were rendered after Stop")
	}
}
