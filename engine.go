package polyhost

type (
	// ParamSpec describes one per-voice parameter of a voice engine. Specs are
	// listed in the order of the units in the patch, and within a unit in the
	// order of UnitTypes. The index of a spec in Factory.Params is the index
	// used in Engine.SetParam.
	ParamSpec struct {
		Unit     string // label of the unit, e.g. "oscillator" or "oscillator2"
		Name     string // name of the parameter, e.g. "gain"
		Min      int
		Max      int
		Default  int
		Discrete bool
		// MIDI is the continuous controller number bound to this parameter
		// in the patch, or -1 if the parameter is not bound.
		MIDI int
	}

	// Engine is a single monophonic voice, created by a Factory. An engine is
	// used from the audio thread only.
	Engine interface {
		// SetParam sets the value of parameter i, in the units of
		// ParamSpec i (e.g. 0..128). Values are applied on the next Render.
		SetParam(i int, value float64)
		// Trigger starts a note: the gate is opened and the envelopes restart
		// from attack.
		Trigger(note, velocity byte)
		// Release closes the gate; envelopes go to release.
		Release()
		// Reset returns the engine to silence: gate closed, all unit state
		// cleared. Parameter values are kept.
		Reset()
		// Render adds the output of the voice into buffer. active is false
		// once the voice has fallen silent after a release. Engines may
		// return an error or panic on internal faults; the caller recovers.
		Render(buffer AudioBuffer) (active bool, err error)
	}

	// Factory is a compiled voice program, from which any number of engines
	// can be created. Engines share the program but never state.
	Factory interface {
		// Name is the name of the patch, used as the root of the parameter
		// tree.
		Name() string
		Params() []ParamSpec
		NewEngine() (Engine, error)
		Close() error
	}

	// Backend compiles patches into factories. args are the compiler options
	// given on the command line.
	Backend interface {
		Name() string
		Factory(patch Patch, args []string) (Factory, error)
	}
)

// Path returns the path of the parameter relative to the voice node, e.g.
// "oscillator/gain".
func (p ParamSpec) Path() string {
	return p.Unit + "/" + p.Name
}
