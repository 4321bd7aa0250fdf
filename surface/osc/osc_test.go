package osc_test

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/vsariola/polyhost/params"
	polyosc "github.com/vsariola/polyhost/surface/osc"
)

func newTree(t *testing.T) *params.Tree {
	t.Helper()
	b := params.NewBuilder()
	b.Trigger("/organ/Panic")
	b.Continuous("/organ/Volume", 0, 1, 0.5)
	b.Discrete("/organ/Voices/oscillator/type", 0, 2, 1, 0)
	tree, err := b.Build()
	if err != nil {
		t.Fatalf("could not build tree: %v", err)
	}
	return tree
}

func newSurface(t *testing.T, tree *params.Tree, c polyosc.Config) *polyosc.Surface {
	t.Helper()
	c.Name = "organ"
	s := polyosc.New(c)
	s.AttachNoteSink(tree)
	if err := s.BuildFrom(tree); err != nil {
		t.Fatalf("BuildFrom failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestArgumentsWriteTree(t *testing.T) {
	tree := newTree(t)
	s := newSurface(t, tree, polyosc.Config{})
	for _, tc := range []struct {
		address string
		arg     any
		want    float64
	}{
		{"/organ/Volume", float32(0.25), 0.25},
		{"/organ/Volume", float64(2), 1},
		{"/organ/Volume", int32(0), 0},
		{"/organ/Volume", true, 1},
		{"/organ/Voices/oscillator/type", int64(2), 2},
		{"/organ/Voices/oscillator/type", float32(0.9), 1},
	} {
		s.Dispatch(osc.NewMessage(tc.address, tc.arg))
		if v, _ := tree.Read(tc.address); v != tc.want {
			t.Errorf("%v %v: got %v, want %v", tc.address, tc.arg, v, tc.want)
		}
	}
}

func TestMalformedMessagesAreDropped(t *testing.T) {
	tree := newTree(t)
	s := newSurface(t, tree, polyosc.Config{})
	s.Dispatch(osc.NewMessage("/organ/Volume", "loud"))
	s.Dispatch(osc.NewMessage("/organ/Nothing", float32(1)))
	s.Dispatch(osc.NewMessage("/organ/keyon", int32(60)))
	if v, _ := tree.Read("/organ/Volume"); v != 0.5 {
		t.Fatalf("volume should be unchanged, got %v", v)
	}
	tree.DrainNotes(func(e params.NoteEvent) {
		t.Fatalf("expected no notes, got %v", e)
	})
}

func TestKeys(t *testing.T) {
	tree := newTree(t)
	s := newSurface(t, tree, polyosc.Config{})
	s.Dispatch(osc.NewMessage("/organ/keyon", int32(60), int32(100)))
	s.Dispatch(osc.NewMessage("/organ/keyoff", float32(60)))
	var events []params.NoteEvent
	tree.DrainNotes(func(e params.NoteEvent) { events = append(events, e) })
	want := []params.NoteEvent{
		{Type: params.NoteOnEvent, Note: 60, Velocity: 100},
		{Type: params.NoteOffEvent, Note: 60},
	}
	if len(events) != len(want) {
		t.Fatalf("expected %v, got %v", want, events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("event %d: expected %v, got %v", i, want[i], events[i])
		}
	}
}

func TestWildcardAddress(t *testing.T) {
	tree := newTree(t)
	s := newSurface(t, tree, polyosc.Config{})
	s.Dispatch(osc.NewMessage("/organ/Vol*", float32(0.75)))
	if v, _ := tree.Read("/organ/Volume"); v != 0.75 {
		t.Fatalf("wildcard should reach volume, got %v", v)
	}
}

func TestServeAndReply(t *testing.T) {
	listener, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("could not listen: %v", err)
	}
	defer listener.Close()
	tree := newTree(t)
	s := newSurface(t, tree, polyosc.Config{OutPort: listener.LocalAddr().(*net.UDPAddr).Port})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	client := osc.NewClient("127.0.0.1", s.Addr().(*net.UDPAddr).Port)
	if err := client.Send(osc.NewMessage("/organ/Volume", float32(0.125))); err != nil {
		t.Fatalf("could not send: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		if v, _ := tree.Read("/organ/Volume"); v == 0.125 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("volume was never written")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := client.Send(osc.NewMessage("/organ/Volume")); err != nil {
		t.Fatalf("could not send: %v", err)
	}
	listener.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 1024)
	n, _, err := listener.ReadFrom(buf)
	if err != nil {
		t.Fatalf("expected a reply: %v", err)
	}
	if !strings.HasPrefix(string(buf[:n]), "/organ/Volume") {
		t.Fatalf("reply should carry the parameter address, got %q", buf[:n])
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
