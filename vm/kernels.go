package vm

import "math"

const (
	envStateAttack = iota
	envStateDecay
	envStateRelease
	envStateDone
)

// unitState is the per voice state of one unit. state is interpreted by the
// unit: for envelopes [0] is the stage and [1] the level, for oscillators [0]
// is the phase, for filters [0] is the lowpass and [1] the bandpass state.
type unitState struct {
	state [4]float32
	rand  uint32
}

// The kernels below compute one sample of a unit. Both backends call them,
// so for the same patch and the same parameter values the backends produce
// the same samples.

func envelopeStep(u *unitState, gate bool, attack, decay, sustain, release, gain float32) float32 {
	state := u.state[0]
	level := u.state[1]
	if !gate && state < envStateRelease {
		state = envStateRelease
	}
	switch state {
	case envStateAttack:
		level += nonLinearMap(attack)
		if level >= 1 {
			level = 1
			state = envStateDecay
		}
	case envStateDecay:
		level -= nonLinearMap(decay)
		if level <= sustain {
			level = sustain
		}
	case envStateRelease:
		level -= nonLinearMap(release)
		if level <= 0 {
			level = 0
			state = envStateDone
		}
	case envStateDone:
		level = 0
	}
	u.state[0] = state
	u.state[1] = level
	return level * gain
}

// oscillatorOmega is the phase increment per sample of an oscillator.
func oscillatorOmega(note byte, transpose, detune float32, lfo bool) float32 {
	pitch := float64(64*(transpose*2-1) + (detune*2 - 1))
	if !lfo { // if lfo is disabled, add note to oscillator transpose
		pitch += float64(note)
	}
	pitch *= 0.083333333333 // from semitones to octaves
	omega := math.Exp2(pitch)
	if !lfo {
		omega *= 0.000092696138 // scaling coefficient to get middle-C where it should be
	} else {
		omega *= 0.000038
	}
	return float32(omega)
}

func oscillatorStep(u *unitState, omega, phase, color, shape, gain float32, waveform int) float32 {
	u.state[0] += omega
	u.state[0] -= float32(int(u.state[0]+1) - 1)
	p := u.state[0] + phase
	p -= float32(int(p))
	var amplitude float32
	switch waveform {
	case 0: // sine
		if p < color {
			amplitude = float32(math.Sin(2 * math.Pi * float64(p/color)))
		}
	case 1: // trisaw
		if p >= color {
			p = 1 - p
			color = 1 - color
		}
		if color > 0 {
			amplitude = p/color*2 - 1
		} else {
			amplitude = -1
		}
	default: // pulse
		if p >= color {
			amplitude = -1
		} else {
			amplitude = 1
		}
	}
	return waveshape(amplitude, shape) * gain
}

func noiseStep(u *unitState, shape, gain float32) float32 {
	// xorshift32
	x := u.rand
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	u.rand = x
	value := float32(int32(x)) / -2147483648.0
	return waveshape(value, shape) * gain
}

func filterStep(u *unitState, x, frequency, resonance float32, lowpass, bandpass, highpass bool) float32 {
	freq2 := frequency * frequency
	low, band := u.state[0], u.state[1]
	low += freq2 * band
	high := x - low - resonance*band
	band += freq2 * high
	u.state[0], u.state[1] = low, band
	var output float32
	if lowpass {
		output += low
	}
	if bandpass {
		output += band
	}
	if highpass {
		output += high
	}
	return output
}

func nonLinearMap(value float32) float32 {
	return float32(math.Exp2(float64(-24 * value)))
}

func waveshape(value, amount float32) float32 {
	absVal := value
	if absVal < 0 {
		absVal = -absVal
	}
	return value * amount / (1 - amount + (2*amount-1)*absVal)
}
