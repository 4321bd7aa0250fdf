package polyhost_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vsariola/polyhost"
)

func TestReadPatch(t *testing.T) {
	for _, tc := range []struct {
		name  string
		input string
	}{
		{"yaml", "name: lead\nunits:\n  - type: oscillator\n    parameters: {transpose: 64, gain: 128}\n  - type: out\n    parameters: {gain: 64}\n"},
		{"json", `{"name": "lead", "units": [{"type": "oscillator", "parameters": {"transpose": 64, "gain": 128}}, {"type": "out", "parameters": {"gain": 64}}]}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			patch, err := polyhost.ReadPatch(strings.NewReader(tc.input))
			if err != nil {
				t.Fatalf("ReadPatch failed: %v", err)
			}
			if patch.Name != "lead" || len(patch.Units) != 2 {
				t.Fatalf("unexpected patch %+v", patch)
			}
			if patch.Units[0].Type != "oscillator" || patch.Units[0].Parameters["gain"] != 128 {
				t.Fatalf("unexpected first unit %+v", patch.Units[0])
			}
		})
	}
}

func TestReadPatchSyntaxError(t *testing.T) {
	_, err := polyhost.ReadPatch(strings.NewReader("units: 5\n"))
	var cerr *polyhost.CompilationError
	if !errors.As(err, &cerr) || cerr.Kind != polyhost.KindSyntax {
		t.Fatalf("expected a syntax CompilationError, got %v", err)
	}
}

func TestLoadPatchDefaultsName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lead.yml")
	if err := os.WriteFile(path, []byte("units:\n  - type: out\n    parameters: {gain: 64}\n"), 0o644); err != nil {
		t.Fatalf("could not write patch: %v", err)
	}
	patch, err := polyhost.LoadPatch(path)
	if err != nil {
		t.Fatalf("LoadPatch failed: %v", err)
	}
	if patch.Name != "lead" {
		t.Fatalf("expected the name from the file, got %q", patch.Name)
	}
	organ, err := polyhost.LoadPatch(filepath.Join("patches", "organ.yml"))
	if err != nil {
		t.Fatalf("LoadPatch failed: %v", err)
	}
	if organ.Name != "organ" {
		t.Fatalf("expected organ, got %q", organ.Name)
	}
}

func TestWritePatch(t *testing.T) {
	patch, err := polyhost.LoadPatch(filepath.Join("patches", "organ.yml"))
	if err != nil {
		t.Fatalf("LoadPatch failed: %v", err)
	}
	var buf bytes.Buffer
	if err := polyhost.WritePatch(&buf, patch); err != nil {
		t.Fatalf("WritePatch failed: %v", err)
	}
	again, err := polyhost.ReadPatch(&buf)
	if err != nil {
		t.Fatalf("ReadPatch failed: %v", err)
	}
	if again.Name != patch.Name || len(again.Units) != len(patch.Units) {
		t.Fatalf("patch changed when written and read back")
	}
}
