package params_test

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/vsariola/polyhost/params"
)

func newTree(t *testing.T) *params.Tree {
	t.Helper()
	b := params.NewBuilder()
	b.Continuous("/synth/Volume", 0, 1, 0.5)
	b.Discrete("/synth/Voices/osc/type", 0, 2, 1, 0)
	b.Discrete("/synth/Voices/osc/transpose", 0, 128, 4, 64)
	b.Trigger("/synth/Panic")
	tree, err := b.Build()
	if err != nil {
		t.Fatalf("could not build tree: %v", err)
	}
	return tree
}

func TestWriteClampsAndSnaps(t *testing.T) {
	tree := newTree(t)
	testCases := []struct {
		path  string
		value float64
		want  float64
	}{
		{"/synth/Volume", 0.25, 0.25},
		{"/synth/Volume", 5, 1},
		{"/synth/Volume", -3, 0},
		{"/synth/Volume", math.Inf(1), 1},
		{"/synth/Voices/osc/type", 1.4, 1},
		{"/synth/Voices/osc/type", 1.6, 2},
		{"/synth/Voices/osc/type", 7, 2},
		{"/synth/Voices/osc/transpose", 63, 64},
		{"/synth/Voices/osc/transpose", 129, 128},
		{"/synth/Voices/osc/transpose", 127, 128},
		{"/synth/Panic", 0.3, 1},
	}
	for _, tc := range testCases {
		got, err := tree.Write(tc.path, tc.value)
		if err != nil {
			t.Fatalf("write %v = %v failed: %v", tc.path, tc.value, err)
		}
		if got != tc.want {
			t.Errorf("write %v = %v: stored %v, want %v", tc.path, tc.value, got, tc.want)
		}
		if read, _ := tree.Read(tc.path); read != tc.want {
			t.Errorf("read %v after writing %v: got %v, want %v", tc.path, tc.value, read, tc.want)
		}
	}
}

func TestUnknownPath(t *testing.T) {
	tree := newTree(t)
	if _, err := tree.Read("/synth/nope"); !errors.Is(err, params.ErrUnknownPath) {
		t.Fatalf("expected ErrUnknownPath, got %v", err)
	}
	if _, err := tree.Write("/synth/nope", 1); !errors.Is(err, params.ErrUnknownPath) {
		t.Fatalf("expected ErrUnknownPath, got %v", err)
	}
	if _, err := tree.Write("/synth/Volume", math.NaN()); !errors.Is(err, params.ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
}

func TestBuilderErrors(t *testing.T) {
	b := params.NewBuilder()
	b.Continuous("/a", 0, 1, 0)
	b.Continuous("/a", 0, 1, 0)
	if _, err := b.Build(); err == nil {
		t.Fatalf("duplicate paths should fail")
	}
	b = params.NewBuilder()
	b.Continuous("/a", 1, 0, 0)
	if _, err := b.Build(); err == nil {
		t.Fatalf("inverted range should fail")
	}
	b = params.NewBuilder()
	b.Discrete("/a", 0, 1, 0, 0)
	if _, err := b.Build(); err == nil {
		t.Fatalf("zero step should fail")
	}
}

func TestDescriptorsKeepDeclarationOrder(t *testing.T) {
	tree := newTree(t)
	want := []string{"/synth/Volume", "/synth/Voices/osc/type", "/synth/Voices/osc/transpose", "/synth/Panic"}
	if tree.Len() != len(want) {
		t.Fatalf("expected %v descriptors, got %v", len(want), tree.Len())
	}
	for i, d := range tree.Descriptors() {
		if d.Path != want[i] {
			t.Errorf("descriptor %v: got %v, want %v", i, d.Path, want[i])
		}
		if j, ok := tree.Index(d.Path); !ok || j != i {
			t.Errorf("index of %v: got %v, %v", d.Path, j, ok)
		}
	}
	if l := tree.Descriptor(2).Label; l != "transpose" {
		t.Errorf("expected label transpose, got %v", l)
	}
	if v := tree.ValueAt(0); v != 0.5 {
		t.Errorf("expected default 0.5, got %v", v)
	}
}

func TestTakeTrigger(t *testing.T) {
	tree := newTree(t)
	i, _ := tree.Index("/synth/Panic")
	if tree.TakeTrigger(i) {
		t.Fatalf("trigger should not be set initially")
	}
	tree.Write("/synth/Panic", 1)
	if !tree.TakeTrigger(i) {
		t.Fatalf("trigger should be set after write")
	}
	if tree.TakeTrigger(i) {
		t.Fatalf("trigger should be cleared after take")
	}
}

func TestSubscribe(t *testing.T) {
	tree := newTree(t)
	var got []params.Change
	cancel := tree.Subscribe(func(c params.Change) { got = append(got, c) })
	tree.Write("/synth/Volume", 2)
	tree.Write("/synth/Voices/osc/type", 1)
	cancel()
	cancel()
	tree.Write("/synth/Volume", 0)
	if len(got) != 2 {
		t.Fatalf("expected 2 changes, got %v", got)
	}
	if got[0] != (params.Change{Index: 0, Path: "/synth/Volume", Value: 1}) {
		t.Errorf("unexpected first change %+v", got[0])
	}
	if got[1].Index != 1 || got[1].Value != 1 {
		t.Errorf("unexpected second change %+v", got[1])
	}
}

func TestConcurrentWritesDoNotTear(t *testing.T) {
	b := params.NewBuilder()
	b.Continuous("/a", -1e300, 1e300, 0)
	b.Continuous("/b", -1e300, 1e300, 0)
	tree, err := b.Build()
	if err != nil {
		t.Fatalf("could not build tree: %v", err)
	}
	var notified atomic.Int64
	tree.Subscribe(func(params.Change) { notified.Add(1) })
	values := []float64{1.2345678901234567e200, -9.87654321e-100}
	var wg sync.WaitGroup
	const writes = 2000
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			path := []string{"/a", "/b"}[w%2]
			for i := 0; i < writes; i++ {
				tree.Write(path, values[(i+w)%2])
			}
		}(w)
	}
	stop := make(chan struct{})
	readerDone := make(chan error)
	go func() {
		for {
			select {
			case <-stop:
				readerDone <- nil
				return
			default:
			}
			for _, p := range []string{"/a", "/b"} {
				v, _ := tree.Read(p)
				if v != 0 && v != values[0] && v != values[1] {
					readerDone <- errors.New("torn read")
					return
				}
			}
		}
	}()
	wg.Wait()
	close(stop)
	if err := <-readerDone; err != nil {
		t.Fatal(err)
	}
	if n := notified.Load(); n != 4*writes {
		t.Fatalf("expected %v notifications, got %v", 4*writes, n)
	}
}

func TestNoteQueue(t *testing.T) {
	tree := newTree(t)
	tree.NoteOn(60, 100)
	tree.NoteOff(60)
	tree.AllNotesOff()
	var events []params.NoteEvent
	tree.DrainNotes(func(e params.NoteEvent) { events = append(events, e) })
	want := []params.NoteEvent{
		{Type: params.NoteOnEvent, Note: 60, Velocity: 100},
		{Type: params.NoteOffEvent, Note: 60},
		{Type: params.AllNotesOffEvent},
	}
	if len(events) != len(want) {
		t.Fatalf("expected %v events, got %v", len(want), events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %v: got %+v, want %+v", i, events[i], want[i])
		}
	}
	for i := 0; i < params.NoteQueueLength; i++ {
		if !tree.NoteOn(byte(i%128), 1) {
			t.Fatalf("note %v should fit in the queue", i)
		}
	}
	if tree.NoteOn(1, 1) {
		t.Fatalf("full queue should drop the note")
	}
}
