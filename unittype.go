package polyhost

import (
	"sort"
	"strings"
)

// UnitParameter documents one parameter that an unit takes
type UnitParameter struct {
	Name     string // should be found with this name in the Unit.Parameters map
	MinValue int    // minimum value of the parameter, inclusive
	MaxValue int    // maximum value of the parameter, inclusive
	Default  int    // value used when the patch does not set the parameter
	Discrete bool   // if the parameter selects between modes instead of a level
}

// MaxUnits is the maximum number of enabled units in a voice patch.
const MaxUnits = 63

// MaxStack is the depth of the signal stack of a voice.
const MaxStack = 8

// UnitTypes documents all the available unit types and what parameters they
// take.
var UnitTypes = map[string]([]UnitParameter){
	"addp":     []UnitParameter{},
	"mulp":     []UnitParameter{},
	"pop":      []UnitParameter{},
	"push":     []UnitParameter{},
	"loadnote": []UnitParameter{},
	"envelope": []UnitParameter{
		{Name: "attack", MinValue: 0, MaxValue: 128, Default: 32},
		{Name: "decay", MinValue: 0, MaxValue: 128, Default: 32},
		{Name: "sustain", MinValue: 0, MaxValue: 128, Default: 64},
		{Name: "release", MinValue: 0, MaxValue: 128, Default: 64},
		{Name: "gain", MinValue: 0, MaxValue: 128, Default: 128}},
	"oscillator": []UnitParameter{
		{Name: "transpose", MinValue: 0, MaxValue: 128, Default: 64},
		{Name: "detune", MinValue: 0, MaxValue: 128, Default: 64},
		{Name: "phase", MinValue: 0, MaxValue: 128, Default: 0},
		{Name: "color", MinValue: 0, MaxValue: 128, Default: 64},
		{Name: "shape", MinValue: 0, MaxValue: 128, Default: 64},
		{Name: "gain", MinValue: 0, MaxValue: 128, Default: 128},
		{Name: "type", MinValue: Sine, MaxValue: Pulse, Default: Sine, Discrete: true},
		{Name: "lfo", MinValue: 0, MaxValue: 1, Default: 0, Discrete: true}},
	"noise": []UnitParameter{
		{Name: "shape", MinValue: 0, MaxValue: 128, Default: 64},
		{Name: "gain", MinValue: 0, MaxValue: 128, Default: 128}},
	"loadval": []UnitParameter{
		{Name: "value", MinValue: 0, MaxValue: 128, Default: 64}},
	"filter": []UnitParameter{
		{Name: "frequency", MinValue: 0, MaxValue: 128, Default: 64},
		{Name: "resonance", MinValue: 0, MaxValue: 128, Default: 64},
		{Name: "lowpass", MinValue: 0, MaxValue: 1, Default: 1, Discrete: true},
		{Name: "bandpass", MinValue: 0, MaxValue: 1, Default: 0, Discrete: true},
		{Name: "highpass", MinValue: 0, MaxValue: 1, Default: 0, Discrete: true}},
	"gain": []UnitParameter{
		{Name: "gain", MinValue: 0, MaxValue: 128, Default: 64}},
	"distort": []UnitParameter{
		{Name: "drive", MinValue: 0, MaxValue: 128, Default: 64}},
	"pan": []UnitParameter{
		{Name: "panning", MinValue: 0, MaxValue: 128, Default: 64}},
	"out": []UnitParameter{
		{Name: "gain", MinValue: 0, MaxValue: 128, Default: 64}},
}

// Oscillator waveforms, values of the "type" parameter of an oscillator.
const (
	Sine   = iota
	Trisaw = iota
	Pulse  = iota
)

// UnitNames is the sorted list of all unit types.
var UnitNames []string

func init() {
	for name := range UnitTypes {
		UnitNames = append(UnitNames, name)
	}
	sort.Strings(UnitNames)
}

// Param returns the value of the named parameter of the unit, falling back to
// the default of the unit type when the patch does not set it.
func (u *Unit) Param(name string) int {
	if v, ok := u.Parameters[name]; ok {
		return v
	}
	for _, p := range UnitTypes[u.Type] {
		if p.Name == name {
			return p.Default
		}
	}
	return 0
}

// StackChange returns how this unit will affect the signal stack. "addp" and
// "mulp" consume the topmost signal and return -1, "out" consumes the stereo
// pair and returns -2. "oscillator" and "envelope" produce a signal and return
// 1; "pan" turns a mono signal into a stereo pair, also returning 1. Effects
// that just change the topmost signal return 0.
func (u *Unit) StackChange() int {
	if u.Disabled {
		return 0
	}
	switch u.Type {
	case "addp", "mulp", "pop":
		return -1
	case "out":
		return -2
	case "envelope", "oscillator", "push", "noise", "loadnote", "loadval", "pan":
		return 1
	}
	return 0
}

// StackNeed returns the number of signals that should be on the stack before
// this unit is executed. Used to prevent stack underflow. Units producing
// signals do not care what is on the stack before and will return 0.
func (u *Unit) StackNeed() int {
	if u.Disabled {
		return 0
	}
	switch u.Type {
	case "", "envelope", "oscillator", "noise", "loadnote", "loadval":
		return 0
	case "mulp", "addp", "out":
		return 2
	}
	return 1
}

// Label returns the name of the unit in parameter paths: its comment when one
// is given, otherwise its type. Characters that cannot appear in a path
// segment are replaced with underscores.
func (u *Unit) Label() string {
	label := strings.TrimSpace(u.Comment)
	if label == "" {
		return u.Type
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '=' || r == '#' || r == '?':
			return '_'
		case r == ' ' || r == '\t':
			return '_'
		}
		return r
	}, label)
}
