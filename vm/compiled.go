package vm

import (
	"log/slog"

	"github.com/viterin/vek/vek32"
	"github.com/vsariola/polyhost"
)

type (
	// Compiled is a Backend that lowers the patch once into a chain of
	// kernels, one per unit. The stack positions and parameter indices of
	// every unit are resolved at compile time, and every kernel processes a
	// whole vector of samples at once.
	Compiled struct {
		Logger *slog.Logger
	}

	// kernel processes len(out) samples of one unit, at most the vector size.
	kernel func(e *compiledEngine, out polyhost.AudioBuffer)

	compiledFactory struct {
		prog    *program
		kernels []kernel
	}

	compiledEngine struct {
		voice
		kernels    []kernel
		vectorSize int
		stack      [polyhost.MaxStack][]float32
	}
)

func (Compiled) Name() string { return "compiled" }

func (b Compiled) Factory(patch polyhost.Patch, args []string) (polyhost.Factory, error) {
	options, err := ParseOptions(args)
	if err != nil {
		return nil, err
	}
	logOptions(b.Logger, b.Name(), options)
	prog, err := compileProgram(patch, options)
	if err != nil {
		return nil, err
	}
	kernels := make([]kernel, len(prog.units))
	for i, pu := range prog.units {
		kernels[i] = lower(i, pu)
	}
	return &compiledFactory{prog: prog, kernels: kernels}, nil
}

func (f *compiledFactory) Name() string                  { return f.prog.name }
func (f *compiledFactory) Params() []polyhost.ParamSpec { return f.prog.params }
func (f *compiledFactory) Close() error                  { return nil }

func (f *compiledFactory) NewEngine() (polyhost.Engine, error) {
	vs := f.prog.options.VectorSize
	e := &compiledEngine{voice: newVoice(f.prog), kernels: f.kernels, vectorSize: vs}
	mem := make([]float32, polyhost.MaxStack*vs)
	for i := range e.stack {
		e.stack[i] = mem[i*vs : (i+1)*vs]
	}
	return e, nil
}

func (e *compiledEngine) Render(buffer polyhost.AudioBuffer) (active bool, err error) {
	defer recoverRender(&err)
	for len(buffer) > 0 {
		n := min(len(buffer), e.vectorSize)
		for _, k := range e.kernels {
			k(e, buffer[:n])
		}
		buffer = buffer[n:]
	}
	return e.active(), nil
}

func lower(index int, pu programUnit) kernel {
	d, p := pu.depth, pu.firstParam
	switch pu.opcode {
	case opEnvelope:
		return func(e *compiledEngine, out polyhost.AudioBuffer) {
			v, u := e.values[p:p+5], &e.units[index]
			dst := e.stack[d][:len(out)]
			for i := range dst {
				dst[i] = envelopeStep(u, e.gate, v[0], v[1], v[2], v[3], v[4])
			}
		}
	case opOscillator:
		return func(e *compiledEngine, out polyhost.AudioBuffer) {
			v, u := e.values[p:p+8], &e.units[index]
			omega := oscillatorOmega(e.note, v[0], v[1], v[7] != 0)
			waveform := int(v[6])
			dst := e.stack[d][:len(out)]
			for i := range dst {
				dst[i] = oscillatorStep(u, omega, v[2], v[3], v[4], v[5], waveform)
			}
		}
	case opNoise:
		return func(e *compiledEngine, out polyhost.AudioBuffer) {
			v, u := e.values[p:p+2], &e.units[index]
			dst := e.stack[d][:len(out)]
			for i := range dst {
				dst[i] = noiseStep(u, v[0], v[1])
			}
		}
	case opLoadnote:
		return func(e *compiledEngine, out polyhost.AudioBuffer) {
			fill(e.stack[d][:len(out)], float32(e.note)/64-1)
		}
	case opLoadval:
		return func(e *compiledEngine, out polyhost.AudioBuffer) {
			fill(e.stack[d][:len(out)], e.values[p]*2-1)
		}
	case opFilter:
		return func(e *compiledEngine, out polyhost.AudioBuffer) {
			v, u := e.values[p:p+5], &e.units[index]
			low, band, high := v[2] != 0, v[3] != 0, v[4] != 0
			x := e.stack[d-1][:len(out)]
			for i := range x {
				x[i] = filterStep(u, x[i], v[0], v[1], low, band, high)
			}
		}
	case opGain:
		return func(e *compiledEngine, out polyhost.AudioBuffer) {
			vek32.MulNumber_Inplace(e.stack[d-1][:len(out)], e.values[p])
		}
	case opDistort:
		return func(e *compiledEngine, out polyhost.AudioBuffer) {
			drive := e.values[p]
			x := e.stack[d-1][:len(out)]
			for i := range x {
				x[i] = waveshape(x[i], drive)
			}
		}
	case opPan:
		return func(e *compiledEngine, out polyhost.AudioBuffer) {
			panning := e.values[p]
			right, left := e.stack[d-1][:len(out)], e.stack[d][:len(out)]
			for i := range right {
				left[i] = right[i] * (1 - panning)
				right[i] *= panning
			}
		}
	case opMulp:
		return func(e *compiledEngine, out polyhost.AudioBuffer) {
			vek32.Mul_Inplace(e.stack[d-2][:len(out)], e.stack[d-1][:len(out)])
		}
	case opAddp:
		return func(e *compiledEngine, out polyhost.AudioBuffer) {
			vek32.Add_Inplace(e.stack[d-2][:len(out)], e.stack[d-1][:len(out)])
		}
	case opPush:
		return func(e *compiledEngine, out polyhost.AudioBuffer) {
			copy(e.stack[d][:len(out)], e.stack[d-1][:len(out)])
		}
	case opOut:
		return func(e *compiledEngine, out polyhost.AudioBuffer) {
			gain := e.values[p] * e.velocity
			left, right := e.stack[d-1][:len(out)], e.stack[d-2][:len(out)]
			for i := range out {
				out[i][0] += left[i] * gain
				out[i][1] += right[i] * gain
			}
		}
	}
	// pop: the signal is simply left behind on the vector stack
	return func(e *compiledEngine, out polyhost.AudioBuffer) {}
}

func fill(x []float32, v float32) {
	for i := range x {
		x[i] = v
	}
}
