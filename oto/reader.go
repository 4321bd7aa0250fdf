package oto

import (
	"unsafe"

	"github.com/vsariola/polyhost"
)

// reader adapts a Renderer to the io.Reader oto pulls float32LE stereo bytes
// from. The render buffer is reused between reads.
type reader struct {
	renderer polyhost.Renderer
	buffer   polyhost.AudioBuffer
}

const frameBytes = 8 // two float32 channels

func newReader(r polyhost.Renderer, frames int) *reader {
	return &reader{renderer: r, buffer: make(polyhost.AudioBuffer, frames)}
}

func (r *reader) Read(p []byte) (int, error) {
	frames := len(p) / frameBytes
	if frames == 0 {
		return 0, nil
	}
	if len(r.buffer) < frames {
		r.buffer = make(polyhost.AudioBuffer, frames)
	}
	buf := r.buffer[:frames]
	r.renderer.Render(buf)
	return copy(p, bufferBytes(buf)), nil
}

// bufferBytes reinterprets the buffer as bytes. float32 values are stored in
// native byte order, which is little endian on every platform oto supports.
func bufferBytes(b polyhost.AudioBuffer) []byte {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&b[0][0])), len(b)*frameBytes)
}
