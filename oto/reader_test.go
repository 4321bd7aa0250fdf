package oto

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/vsariola/polyhost"
)

func TestReaderRendersFloat32LE(t *testing.T) {
	calls := 0
	r := newReader(polyhost.RendererFunc(func(b polyhost.AudioBuffer) {
		calls++
		for i := range b {
			b[i] = [2]float32{0.5, -0.25}
		}
	}), 4)
	p := make([]byte, 8*6+3)
	n, err := r.Read(p)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if n != 8*6 {
		t.Fatalf("expected whole frames only, got %v bytes", n)
	}
	if calls != 1 {
		t.Fatalf("expected one render call, got %v", calls)
	}
	for i := 0; i < n; i += 8 {
		left := math.Float32frombits(binary.LittleEndian.Uint32(p[i:]))
		right := math.Float32frombits(binary.LittleEndian.Uint32(p[i+4:]))
		if left != 0.5 || right != -0.25 {
			t.Fatalf("frame %d: got %v %v", i/8, left, right)
		}
	}
	if n, _ := r.Read(p[:7]); n != 0 {
		t.Fatalf("partial frame should read nothing, got %v", n)
	}
}
