package vm

import (
	"fmt"
	"math"

	"github.com/vsariola/polyhost"
)

// opcodes of the units, shared by the bytecode and the compiled closures
const (
	opEnd = iota
	opEnvelope
	opOscillator
	opNoise
	opLoadnote
	opLoadval
	opFilter
	opGain
	opDistort
	opPan
	opMulp
	opAddp
	opPop
	opPush
	opOut
)

var opcodes = map[string]byte{
	"envelope":   opEnvelope,
	"oscillator": opOscillator,
	"noise":      opNoise,
	"loadnote":   opLoadnote,
	"loadval":    opLoadval,
	"filter":     opFilter,
	"gain":       opGain,
	"distort":    opDistort,
	"pan":        opPan,
	"mulp":       opMulp,
	"addp":       opAddp,
	"pop":        opPop,
	"push":       opPush,
	"out":        opOut,
}

type (
	// program is the validated form of a patch shared by both backends: the
	// enabled units in execution order, the flattened parameter list and the
	// stack depth before every unit.
	program struct {
		name        string
		units       []programUnit
		params      []polyhost.ParamSpec
		options     Options
		hasEnvelope bool
	}

	programUnit struct {
		opcode     byte
		firstParam int
		numParams  int
		depth      int // stack depth before the unit runs
		seed       uint32
	}
)

func compileProgram(patch polyhost.Patch, options Options) (*program, error) {
	p := &program{name: patch.Name, options: options}
	if options.Name != "" {
		p.name = options.Name
	}
	if p.name == "" {
		p.name = "polyhost"
	}
	labels := map[string]int{}
	depth := 0
	for i, unit := range patch.Units {
		if unit.Type == "" || unit.Disabled { // empty units are just ignored & skipped
			continue
		}
		if len(p.units) >= polyhost.MaxUnits {
			return nil, polyhost.Errorf(polyhost.KindResource, "patch has more than %v units", polyhost.MaxUnits)
		}
		opcode, ok := opcodes[unit.Type]
		if !ok {
			return nil, polyhost.Errorf(polyhost.KindSyntax, "unit %v: unknown unit type %q", i, unit.Type)
		}
		if depth < unit.StackNeed() {
			return nil, polyhost.Errorf(polyhost.KindSyntax, "unit %v (%v): stack underflow, needs %v signals but has %v", i, unit.Type, unit.StackNeed(), depth)
		}
		pu := programUnit{opcode: opcode, firstParam: len(p.params), depth: depth}
		depth += unit.StackChange()
		if depth > polyhost.MaxStack {
			return nil, polyhost.Errorf(polyhost.KindResource, "unit %v (%v): stack overflow, more than %v signals", i, unit.Type, polyhost.MaxStack)
		}
		label := unit.Label()
		labels[label]++
		if n := labels[label]; n > 1 {
			label = fmt.Sprintf("%v%v", label, n)
		}
		for name := range unit.MIDI {
			if !hasParam(unit.Type, name) {
				return nil, polyhost.Errorf(polyhost.KindSyntax, "unit %v (%v): midi binding for unknown parameter %q", i, unit.Type, name)
			}
		}
		for _, up := range polyhost.UnitTypes[unit.Type] {
			v := unit.Param(up.Name)
			v = min(max(v, up.MinValue), up.MaxValue)
			cc, bound := unit.MIDI[up.Name]
			if !bound {
				cc = -1
			}
			p.params = append(p.params, polyhost.ParamSpec{
				Unit:     label,
				Name:     up.Name,
				Min:      up.MinValue,
				Max:      up.MaxValue,
				Default:  v,
				Discrete: up.Discrete,
				MIDI:     cc,
			})
		}
		pu.numParams = len(p.params) - pu.firstParam
		if opcode == opNoise {
			pu.seed = options.Seed + uint32(len(p.units))
			if pu.seed == 0 {
				pu.seed = 1
			}
		}
		if opcode == opEnvelope {
			p.hasEnvelope = true
		}
		p.units = append(p.units, pu)
	}
	if depth != 0 {
		return nil, polyhost.Errorf(polyhost.KindSyntax, "signal stack is not empty at the end of the patch (%v signals left); end the patch with out", depth)
	}
	return p, nil
}

func hasParam(unitType, name string) bool {
	for _, up := range polyhost.UnitTypes[unitType] {
		if up.Name == name {
			return true
		}
	}
	return false
}

// normalize converts a parameter value to the form used by the kernels:
// continuous values are scaled from 0..128 to 0..1, discrete values are
// rounded.
func (p *program) normalize(i int, value float64) float32 {
	if p.params[i].Discrete {
		return float32(math.Round(value))
	}
	return float32(value / 128)
}
