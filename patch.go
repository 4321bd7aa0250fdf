package polyhost

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type (
	// Patch is the DSP description of a single voice: a list of units that
	// are executed in order for every sample, communicating through a signal
	// stack. The voice engine factory compiles a Patch into a program that
	// can be instantiated once per polyphonic voice.
	Patch struct {
		Name    string `yaml:",omitempty"`
		Comment string `yaml:",omitempty"`
		Units   []Unit
	}

	// Unit is e.g. a filter, oscillator, envelope and its parameters
	Unit struct {
		// Type is the type of the unit, e.g. "oscillator" or "envelope".
		// Always in lowercase. "" type should be ignored, no invalid types
		// should be used.
		Type string `yaml:",omitempty"`

		// ID is an optional identifier for the unit. It is not interpreted
		// by the engines, but kept so that patch files round trip.
		ID int `yaml:",omitempty"`

		// Parameters is a map[string]int of parameters of a unit. For
		// example, for an envelope, unit.Type == "envelope" and
		// unit.Parameters["attack"] could be 64. Most parameters are either
		// limited to 0 and 1 or between 0 and 128, inclusive. The values
		// given here are the compiled defaults of the parameters.
		Parameters map[string]int `yaml:",flow"`

		// Disabled units are considered to be not present in the patch.
		Disabled bool `yaml:",omitempty"`

		// Comment is a free-form label. When set, it replaces the unit type
		// in the parameter paths, so it should be short and unique.
		Comment string `yaml:",omitempty"`

		// MIDI binds parameters of this unit to MIDI continuous controller
		// numbers, e.g. {gain: 7}.
		MIDI map[string]int `yaml:"midi,flow,omitempty" json:"midi,omitempty"`
	}
)

// Copy makes a deep copy of a unit.
func (u *Unit) Copy() Unit {
	parameters := make(map[string]int, len(u.Parameters))
	for k, v := range u.Parameters {
		parameters[k] = v
	}
	var midi map[string]int
	if u.MIDI != nil {
		midi = make(map[string]int, len(u.MIDI))
		for k, v := range u.MIDI {
			midi[k] = v
		}
	}
	return Unit{Type: u.Type, ID: u.ID, Parameters: parameters, Disabled: u.Disabled, Comment: u.Comment, MIDI: midi}
}

// Copy makes a deep copy of a patch.
func (p *Patch) Copy() Patch {
	units := make([]Unit, len(p.Units))
	for i, u := range p.Units {
		units[i] = u.Copy()
	}
	return Patch{Name: p.Name, Comment: p.Comment, Units: units}
}

// ReadPatch parses a patch from r. The contents are tried as JSON first and
// then as YAML. A parse failure is reported as a CompilationError of kind
// KindSyntax, as the patch file is the source of the voice program.
func ReadPatch(r io.Reader) (Patch, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return Patch{}, fmt.Errorf("reading patch: %w", err)
	}
	var patch Patch
	if errJSON := json.Unmarshal(b, &patch); errJSON != nil {
		if errYaml := yaml.Unmarshal(b, &patch); errYaml != nil {
			return Patch{}, &CompilationError{
				Kind:       KindSyntax,
				Diagnostic: fmt.Sprintf("the patch could not be parsed as .json (%v) or .yml (%v)", errJSON, errYaml),
			}
		}
	}
	return patch, nil
}

// LoadPatch reads a patch from a file. If the patch has no name, the base
// name of the file without extension is used.
func LoadPatch(path string) (Patch, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Patch{}, fmt.Errorf("could not read patch %v: %w", path, err)
	}
	patch, err := ReadPatch(bytes.NewReader(b))
	if err != nil {
		return Patch{}, err
	}
	if patch.Name == "" {
		base := filepath.Base(path)
		patch.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return patch, nil
}

// WritePatch marshals the patch as YAML.
func WritePatch(w io.Writer, patch Patch) error {
	b, err := yaml.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshaling patch: %w", err)
	}
	_, err = w.Write(b)
	return err
}
