package vm

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/vsariola/polyhost"
)

type (
	// Interpreter is a Backend that encodes the patch into Bytecode and
	// decodes it for every sample. If you are interested exactly how units
	// work, studying interpreterEngine.Render is a good place to start.
	Interpreter struct {
		Logger *slog.Logger
	}

	interpreterFactory struct {
		prog     *program
		bytecode *Bytecode
	}

	interpreterEngine struct {
		voice
		bytecode *Bytecode
		stack    []float32
	}
)

var paramCounts [opOut + 1]int

func init() {
	for name, opcode := range opcodes {
		paramCounts[opcode] = len(polyhost.UnitTypes[name])
	}
}

func (Interpreter) Name() string { return "interp" }

func (b Interpreter) Factory(patch polyhost.Patch, args []string) (polyhost.Factory, error) {
	options, err := ParseOptions(args)
	if err != nil {
		return nil, err
	}
	logOptions(b.Logger, b.Name(), options)
	prog, err := compileProgram(patch, options)
	if err != nil {
		return nil, err
	}
	return &interpreterFactory{prog: prog, bytecode: newBytecode(prog)}, nil
}

func (f *interpreterFactory) Name() string                  { return f.prog.name }
func (f *interpreterFactory) Params() []polyhost.ParamSpec { return f.prog.params }
func (f *interpreterFactory) Close() error                  { return nil }

func (f *interpreterFactory) NewEngine() (polyhost.Engine, error) {
	return &interpreterEngine{
		voice:    newVoice(f.prog),
		bytecode: f.bytecode,
		stack:    make([]float32, 0, polyhost.MaxStack),
	}, nil
}

func (e *interpreterEngine) Render(buffer polyhost.AudioBuffer) (active bool, err error) {
	defer recoverRender(&err)
	var params [8]float32
	stack := e.stack[:0]
	for i := range buffer {
		opcodes, operands := e.bytecode.Opcodes, e.bytecode.Operands
		units := e.units
		for {
			op := opcodes[0]
			opcodes = opcodes[1:]
			if op == opEnd {
				break
			}
			tcount := paramCounts[op]
			if len(operands) < tcount {
				return false, errors.New("operand stream ended prematurely")
			}
			for j := 0; j < tcount; j++ {
				params[j] = e.values[operands[j]]
			}
			operands = operands[tcount:]
			unit := &units[0]
			units = units[1:]
			l := len(stack)
			switch op {
			case opEnvelope:
				stack = append(stack, envelopeStep(unit, e.gate, params[0], params[1], params[2], params[3], params[4]))
			case opOscillator:
				omega := oscillatorOmega(e.note, params[0], params[1], params[7] != 0)
				stack = append(stack, oscillatorStep(unit, omega, params[2], params[3], params[4], params[5], int(params[6])))
			case opNoise:
				stack = append(stack, noiseStep(unit, params[0], params[1]))
			case opLoadnote:
				stack = append(stack, float32(e.note)/64-1)
			case opLoadval:
				stack = append(stack, params[0]*2-1)
			case opFilter:
				stack[l-1] = filterStep(unit, stack[l-1], params[0], params[1], params[2] != 0, params[3] != 0, params[4] != 0)
			case opGain:
				stack[l-1] *= params[0]
			case opDistort:
				stack[l-1] = waveshape(stack[l-1], params[0])
			case opPan:
				stack = append(stack, stack[l-1]*(1-params[0])) // left on top
				stack[l-1] *= params[0]
			case opMulp:
				stack[l-2] *= stack[l-1]
				stack = stack[:l-1]
			case opAddp:
				stack[l-2] += stack[l-1]
				stack = stack[:l-1]
			case opPop:
				stack = stack[:l-1]
			case opPush:
				stack = append(stack, stack[l-1])
			case opOut:
				gain := params[0] * e.velocity
				buffer[i][0] += stack[l-1] * gain
				buffer[i][1] += stack[l-2] * gain
				stack = stack[:l-2]
			default:
				return false, fmt.Errorf("unknown opcode %v", op)
			}
		}
	}
	e.stack = stack[:0]
	return e.active(), nil
}
