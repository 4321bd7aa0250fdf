package surface

import (
	"math"

	"github.com/vsariola/polyhost/params"
)

type (
	// MIDIBindings is a two-way map between MIDI controls and parameters of the
	// tree. A parameter is bound to at most one control; a control can drive
	// several parameters, e.g. the same unit parameter of every voice.
	MIDIBindings struct {
		ControlBindings map[MIDIControl][]int
		ParamBindings   map[int]MIDIControl
	}

	// MIDIControl is a continuous controller on a channel. Channel AnyChannel
	// matches every channel.
	MIDIControl struct{ Channel, Control int }
)

const AnyChannel = -1

// BindingsFrom binds every descriptor of the tree that has a MIDI controller
// number, on any channel.
func BindingsFrom(tree *params.Tree) MIDIBindings {
	var b MIDIBindings
	for i, d := range tree.Descriptors() {
		if d.MIDI >= 0 && d.MIDI < 128 {
			b.Link(MIDIControl{Channel: AnyChannel, Control: d.MIDI}, i)
		}
	}
	return b
}

// GetParams returns the parameters bound to the control, on its channel or on
// any channel.
func (t *MIDIBindings) GetParams(m MIDIControl) []int {
	if t.ControlBindings == nil {
		return nil
	}
	if p, ok := t.ControlBindings[m]; ok {
		return p
	}
	return t.ControlBindings[MIDIControl{Channel: AnyChannel, Control: m.Control}]
}

func (t *MIDIBindings) GetControl(p int) (MIDIControl, bool) {
	if t.ParamBindings == nil {
		return MIDIControl{}, false
	}
	c, ok := t.ParamBindings[p]
	return c, ok
}

// Link binds the parameter to the control, removing any earlier control of the
// parameter.
func (t *MIDIBindings) Link(m MIDIControl, p int) {
	if t.ControlBindings == nil {
		t.ControlBindings = make(map[MIDIControl][]int)
	}
	if t.ParamBindings == nil {
		t.ParamBindings = make(map[int]MIDIControl)
	}
	if old, ok := t.ParamBindings[p]; ok {
		t.unlinkControl(old, p)
	}
	t.ControlBindings[m] = append(t.ControlBindings[m], p)
	t.ParamBindings[p] = m
}

func (t *MIDIBindings) UnlinkParam(p int) {
	if t.ParamBindings == nil {
		return
	}
	if c, ok := t.ParamBindings[p]; ok {
		delete(t.ParamBindings, p)
		t.unlinkControl(c, p)
	}
}

func (t *MIDIBindings) unlinkControl(m MIDIControl, p int) {
	bound := t.ControlBindings[m]
	for i, q := range bound {
		if q == p {
			bound = append(bound[:i], bound[i+1:]...)
			break
		}
	}
	if len(bound) == 0 {
		delete(t.ControlBindings, m)
		return
	}
	t.ControlBindings[m] = bound
}

// FromMIDI scales a 0..127 controller value into the range of the descriptor.
// For integer ranges, the +62 makes the center position of a typical
// controller, 64, map to 64 of a 0..128 range; from there on, 65 maps to 66
// and 127 maps to 128.
func FromMIDI(d params.Descriptor, value int) float64 {
	value = min(max(value, 0), 127)
	if d.Min == math.Trunc(d.Min) && d.Max == math.Trunc(d.Max) && d.Max-d.Min >= 1 {
		return math.Floor((float64(value)*(d.Max-d.Min)+62)/127) + d.Min
	}
	return d.Min + float64(value)*(d.Max-d.Min)/127
}

// ToMIDI scales a value of the descriptor into a 0..127 controller value.
func ToMIDI(d params.Descriptor, v float64) int {
	if d.Max <= d.Min {
		return 0
	}
	return min(max(int(math.Round((v-d.Min)*127/(d.Max-d.Min))), 0), 127)
}
