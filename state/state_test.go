package state_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vsariola/polyhost/params"
	"github.com/vsariola/polyhost/state"
)

func gainTree(t *testing.T) *params.Tree {
	t.Helper()
	b := params.NewBuilder()
	b.Continuous("gain", 0, 1, 0.1)
	b.Discrete("/organ/Voices/oscillator/type", 0, 2, 1, 0)
	b.Continuous("/organ/Voices/filter/frequency", 0, 128, 64)
	b.Trigger("/organ/Panic")
	tree, err := b.Build()
	if err != nil {
		t.Fatalf("could not build tree: %v", err)
	}
	return tree
}

func load(t *testing.T, text string) state.State {
	t.Helper()
	s, err := state.Read(strings.NewReader(text), nil)
	if err != nil {
		t.Fatalf("could not read state: %v", err)
	}
	return s
}

func TestLoadApplyClamps(t *testing.T) {
	tree := gainTree(t)
	state.Apply(load(t, "gain=0.5\n"), tree, nil)
	if v, _ := tree.Read("gain"); v != 0.5 {
		t.Fatalf("expected 0.5, got %v", v)
	}
	state.Apply(load(t, "gain=5.0\n"), tree, nil)
	if v, _ := tree.Read("gain"); v != 1 {
		t.Fatalf("expected clamped 1.0, got %v", v)
	}
}

func TestMalformedLinesAreSkipped(t *testing.T) {
	tree := gainTree(t)
	text := strings.Join([]string{
		"# saved state",
		"",
		"foo=bar=baz",
		"gain",
		"gain=abc",
		"=0.3",
		"/nowhere/at/all=0.2",
		"/organ/Voices/filter/frequency = 32",
		"gain=0.25",
		"/organ/Voices/oscillator/type=1",
		"/organ/Voices/oscillator/type=2",
		"/organ/Panic=1",
	}, "\n")
	s := load(t, text)
	if len(s) != 5 {
		t.Fatalf("expected 5 entries, got %+v", s)
	}
	if n := state.Apply(s, tree, nil); n != 3 {
		t.Fatalf("expected 3 applied values, got %v", n)
	}
	want := map[string]float64{"gain": 0.25, "/organ/Voices/oscillator/type": 2, "/organ/Voices/filter/frequency": 32}
	for path, v := range want {
		if got, _ := tree.Read(path); got != v {
			t.Errorf("%v: got %v, want %v", path, got, v)
		}
	}
	if i, _ := tree.Index("/organ/Panic"); tree.TakeTrigger(i) {
		t.Errorf("triggers should not be restored")
	}
}

func TestRoundTrip(t *testing.T) {
	tree := gainTree(t)
	tree.Write("gain", 1.0/3)
	tree.Write("/organ/Voices/oscillator/type", 2)
	tree.Write("/organ/Voices/filter/frequency", 100.123456789012345)
	path := filepath.Join(t.TempDir(), ".polyhost-organrc")
	captured := state.Capture(tree)
	if len(captured) != 3 {
		t.Fatalf("capture should leave out triggers, got %+v", captured)
	}
	if err := state.Save(captured, path); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := state.Load(path, nil)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	fresh := gainTree(t)
	state.Apply(loaded, fresh, nil)
	for i, d := range tree.Descriptors() {
		if fresh.ValueAt(i) != tree.ValueAt(i) {
			t.Errorf("%v: got %v, want %v", d.Path, fresh.ValueAt(i), tree.ValueAt(i))
		}
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}

func TestLoadMissingFile(t *testing.T) {
	s, err := state.Load(filepath.Join(t.TempDir(), "nothing"), nil)
	if err != nil || len(s) != 0 {
		t.Fatalf("missing file should give empty state, got %v, %v", s, err)
	}
}

func TestRCPath(t *testing.T) {
	t.Setenv("HOME", "/home/someone")
	p, err := state.RCPath("/usr/local/bin/polyhost", "patches/organ.yml")
	if err != nil {
		t.Fatalf("RCPath failed: %v", err)
	}
	if want := filepath.Join("/home/someone", ".polyhost-organrc"); p != want {
		t.Fatalf("got %v, want %v", p, want)
	}
}

func TestOverlongLineIsSkipped(t *testing.T) {
	text := "gain=0.5\n" + strings.Repeat("x", state.MaxLineLength+10) + "=1\nvolume=0.25\n"
	s := load(t, text)
	want := state.State{{Path: "gain", Value: 0.5}, {Path: "volume", Value: 0.25}}
	if len(s) != len(want) || s[0] != want[0] || s[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, s)
	}
}

func TestLastLineWithoutNewline(t *testing.T) {
	s := load(t, "gain=0.5\nvolume=0.25")
	if len(s) != 2 || s[1].Value != 0.25 {
		t.Fatalf("expected the last line to be read, got %v", s)
	}
}
