package vm

import "fmt"

// voice is the state shared by the engines of both backends: parameter
// values, unit states, the note and the gate.
type voice struct {
	prog     *program
	values   []float32
	units    []unitState
	note     byte
	velocity float32
	gate     bool
}

func newVoice(prog *program) voice {
	v := voice{
		prog:   prog,
		values: make([]float32, len(prog.params)),
		units:  make([]unitState, len(prog.units)),
	}
	for i, spec := range prog.params {
		v.values[i] = prog.normalize(i, float64(spec.Default))
	}
	v.Reset()
	return v
}

func (v *voice) SetParam(i int, value float64) {
	if i < 0 || i >= len(v.values) {
		return
	}
	v.values[i] = v.prog.normalize(i, value)
}

func (v *voice) Trigger(note, velocity byte) {
	v.clearUnits(envStateAttack)
	v.note = note
	v.velocity = float32(velocity) / 127
	v.gate = true
}

func (v *voice) Release() {
	v.gate = false
}

func (v *voice) Reset() {
	v.clearUnits(envStateDone)
	v.gate = false
}

func (v *voice) clearUnits(envState float32) {
	for i, pu := range v.prog.units {
		v.units[i] = unitState{rand: pu.seed}
		if pu.opcode == opEnvelope {
			v.units[i].state[0] = envState
		}
	}
}

// active reports if the voice still makes sound: the gate is open or some
// envelope has not finished its release.
func (v *voice) active() bool {
	if v.gate {
		return true
	}
	if !v.prog.hasEnvelope {
		return false
	}
	for i, pu := range v.prog.units {
		if pu.opcode == opEnvelope && v.units[i].state[0] != envStateDone {
			return true
		}
	}
	return false
}

func recoverRender(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("render panicked: %v", r)
	}
}
