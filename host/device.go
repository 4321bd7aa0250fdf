package host

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vsariola/polyhost"
)

type (
	// Device is an audio output pulling samples from a Renderer. Init does
	// not start the audio; Render is called only between Start and Stop.
	Device interface {
		Init(name string, r polyhost.Renderer) error
		Start() error
		Stop() error
		Close() error
	}

	// DummyDevice renders blocks on a ticker at the pace of the sample rate
	// and discards them.
	DummyDevice struct {
		SampleRate   int
		BufferFrames int

		renderer polyhost.Renderer
		buffer   polyhost.AudioBuffer
		blocks   atomic.Uint64
		mu       sync.Mutex
		stop     chan struct{}
		done     chan struct{}
	}
)

func (d *DummyDevice) Init(name string, r polyhost.Renderer) error {
	if d.SampleRate <= 0 {
		d.SampleRate = DefaultSampleRate
	}
	if d.BufferFrames <= 0 {
		d.BufferFrames = DefaultBufferFrames
	}
	d.renderer = r
	d.buffer = make(polyhost.AudioBuffer, d.BufferFrames)
	return nil
}

func (d *DummyDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.renderer == nil {
		return errors.New("dummy device: Start called before Init")
	}
	if d.stop != nil {
		return nil
	}
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	period := time.Duration(d.BufferFrames) * time.Second / time.Duration(d.SampleRate)
	go d.loop(period, d.stop, d.done)
	return nil
}

func (d *DummyDevice) loop(period time.Duration, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.renderer.Render(d.buffer)
			d.blocks.Add(1)
		}
	}
}

// Stop returns after the last block has been rendered.
func (d *DummyDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop == nil {
		return nil
	}
	close(d.stop)
	<-d.done
	d.stop, d.done = nil, nil
	return nil
}

func (d *DummyDevice) Close() error { return d.Stop() }

// Blocks is the number of blocks rendered so far.
func (d *DummyDevice) Blocks() uint64 { return d.blocks.Load() }
