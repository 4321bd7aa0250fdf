package gioui

import (
	"bytes"
	"image"
	"log/slog"
	"math"
	"strings"
	"testing"

	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/unit"
	"github.com/vsariola/polyhost/params"
)

func TestTitleFromPath(t *testing.T) {
	for _, tc := range []struct{ path, want string }{
		{"", "polyhost"},
		{"patches/organ.yml", "organ - polyhost"},
		{"hihat", "hihat - polyhost"},
	} {
		if got := titleFromPath(tc.path); got != tc.want {
			t.Errorf("titleFromPath(%q): got %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestPanelRows(t *testing.T) {
	b := params.NewBuilder()
	b.Trigger("/organ/Panic")
	b.Continuous("/organ/Volume", 0, 1, 0.5)
	i := b.Discrete("/organ/Voices/oscillator/type", 0, 2, 1, 0)
	b.Label(i, "wave_form")
	tree, err := b.Build()
	if err != nil {
		t.Fatalf("could not build tree: %v", err)
	}
	p := New("organ.yml", nil)
	if err := p.BuildFrom(tree); err != nil {
		t.Fatalf("BuildFrom failed: %v", err)
	}
	if len(p.rows) != 3 {
		t.Fatalf("expected a row per parameter, got %v", len(p.rows))
	}
	if p.rows[2].label != "Wave Form" {
		t.Fatalf("expected title cased label, got %q", p.rows[2].label)
	}
	gtx := layout.Context{
		Ops:         new(op.Ops),
		Metric:      unit.Metric{PxPerDp: 1, PxPerSp: 1},
		Constraints: layout.Exact(image.Pt(520, 640)),
	}
	p.Layout(gtx)
	if v, _ := tree.Read("/organ/Volume"); v != 0.5 {
		t.Fatalf("laying out should not change values, got %v", v)
	}
	if p.rows[1].slider.Value != 0.5 {
		t.Fatalf("slider should follow the tree, got %v", p.rows[1].slider.Value)
	}
}

func TestFailedWriteIsLogged(t *testing.T) {
	b := params.NewBuilder()
	b.Continuous("/organ/Volume", 0, 1, 0.5)
	tree, err := b.Build()
	if err != nil {
		t.Fatalf("could not build tree: %v", err)
	}
	var buf bytes.Buffer
	p := New("organ.yml", slog.New(slog.NewTextHandler(&buf, nil)))
	if err := p.BuildFrom(tree); err != nil {
		t.Fatalf("BuildFrom failed: %v", err)
	}
	p.write(&p.rows[0], 0.25)
	if v, _ := tree.Read("/organ/Volume"); v != 0.25 {
		t.Fatalf("expected 0.25, got %v", v)
	}
	if buf.Len() != 0 {
		t.Fatalf("a valid write should not log, got %q", buf.String())
	}
	p.write(&p.rows[0], math.NaN())
	if !strings.Contains(buf.String(), "could not write parameter") {
		t.Fatalf("expected the failed write to be logged, got %q", buf.String())
	}
	if v, _ := tree.Read("/organ/Volume"); v != 0.25 {
		t.Fatalf("a failed write should keep the value, got %v", v)
	}
}
