package polyhost

import (
	"unsafe"
)

type (
	// AudioBuffer is a buffer of stereo audio samples of variable length,
	// each sample represented by [2]float32. [0] is left channel, [1] is
	// right.
	AudioBuffer [][2]float32

	// Renderer is what an audio device pulls samples from. Render is called
	// on the audio thread and must fill the whole buffer; it must not block,
	// allocate or panic.
	Renderer interface {
		Render(buffer AudioBuffer)
	}

	// RendererFunc adapts a function to the Renderer interface.
	RendererFunc func(buffer AudioBuffer)
)

func (f RendererFunc) Render(buffer AudioBuffer) { f(buffer) }

// Clear zeroes the buffer without changing its length.
func (b AudioBuffer) Clear() {
	clear(b)
}

// Floats reinterprets the buffer as an interleaved []float32 of length
// 2*len(b), sharing the same memory. Used for the vectorized mixing
// routines.
func (b AudioBuffer) Floats() []float32 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice(&b[0][0], 2*len(b))
}

// FromFloats reinterprets an interleaved stereo []float32 as an AudioBuffer.
// An odd trailing sample is ignored.
func FromFloats(f []float32) AudioBuffer {
	if len(f) < 2 {
		return nil
	}
	return unsafe.Slice((*[2]float32)(unsafe.Pointer(&f[0])), len(f)/2)
}
