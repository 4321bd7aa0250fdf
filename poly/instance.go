// Package poly implements a polyphonic instance: a fixed pool of voice
// engines created from one factory, driven by note events and rendered into a
// single stereo buffer.
package poly

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/viterin/vek/vek32"
	"github.com/vsariola/polyhost"
	"github.com/vsariola/polyhost/params"
)

type (
	// Options configure a polyphonic instance.
	Options struct {
		// Voices is the number of voice slots, at least 1.
		Voices int
		// Dynamic voices are rendered only when they are not idle. Without
		// it, every voice is rendered on every block.
		Dynamic bool
		// Group exposes one set of voice parameters applied to all voices,
		// under /<name>/Voices. Without it, every voice has its own set under
		// /<name>/V1 ... /<name>/VN.
		Group bool
		// MaxBlock is the maximum number of frames rendered at once; longer
		// buffers are rendered in chunks. Defaults to DefaultMaxBlock.
		MaxBlock int
		Logger   *slog.Logger
		// OnFault, if set, is called on the fault logging goroutine for every
		// fault.
		OnFault func(Fault)
	}

	// Instance is a polyphonic instance. NoteOn, NoteOff, AllNotesOff and
	// Render must be called from the audio thread only; other goroutines post
	// notes through the parameter tree. Tree and Voices are safe to call from
	// any goroutine.
	Instance struct {
		name        string
		tree        *params.Tree
		slots       []slot
		paramIndex  [][]int // tree index of every engine parameter, per slot
		volumeIndex int
		panicIndex  int
		dynamic     bool
		maxBlock    int
		scratch     polyhost.AudioBuffer
		counter     uint64
		noteHandler func(params.NoteEvent)

		logger     *slog.Logger
		onFault    func(Fault)
		faults     chan Fault
		faultCount atomic.Uint64
		quit       chan struct{}
		finished   chan struct{}
		closeOnce  sync.Once
		closeErr   error
	}
)

const DefaultMaxBlock = 512

var ErrNoVoices = errors.New("the number of voices must be at least 1")

// New creates the voice engines from the factory and builds the parameter
// tree.
func New(factory polyhost.Factory, o Options) (*Instance, error) {
	if o.Voices < 1 {
		return nil, fmt.Errorf("%w, was %v", ErrNoVoices, o.Voices)
	}
	if o.MaxBlock <= 0 {
		o.MaxBlock = DefaultMaxBlock
	}
	if o.Logger == nil {
		o.Logger = discardLogger()
	}
	p := &Instance{
		name:     factory.Name(),
		slots:    make([]slot, o.Voices),
		dynamic:  o.Dynamic,
		maxBlock: o.MaxBlock,
		scratch:  make(polyhost.AudioBuffer, o.MaxBlock),
		logger:   o.Logger,
		onFault:  o.OnFault,
		faults:   make(chan Fault, faultQueueLength),
		quit:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	p.noteHandler = p.handleNote
	for i := range p.slots {
		engine, err := factory.NewEngine()
		if err != nil {
			p.closeEngines()
			return nil, fmt.Errorf("creating voice %v: %w", i+1, err)
		}
		p.slots[i].engine = engine
		p.slots[i].set(Idle, 0)
	}
	if err := p.buildTree(factory.Params(), o.Group); err != nil {
		p.closeEngines()
		return nil, err
	}
	go p.logFaults()
	return p, nil
}

func (p *Instance) buildTree(specs []polyhost.ParamSpec, group bool) error {
	root := "/" + p.name
	b := params.NewBuilder()
	p.panicIndex = b.Trigger(root + "/Panic")
	p.volumeIndex = b.Continuous(root+"/Volume", 0, 1, 0.5)
	add := func(prefix string, spec polyhost.ParamSpec) int {
		path := prefix + "/" + spec.Path()
		var i int
		if spec.Discrete {
			i = b.Discrete(path, float64(spec.Min), float64(spec.Max), 1, float64(spec.Default))
		} else {
			i = b.Continuous(path, float64(spec.Min), float64(spec.Max), float64(spec.Default))
		}
		if spec.MIDI >= 0 {
			b.MIDI(i, spec.MIDI)
		}
		return i
	}
	p.paramIndex = make([][]int, len(p.slots))
	if group {
		indices := make([]int, len(specs))
		for j, spec := range specs {
			indices[j] = add(root+"/Voices", spec)
		}
		for v := range p.slots {
			p.paramIndex[v] = indices
		}
	} else {
		for v := range p.slots {
			p.paramIndex[v] = make([]int, len(specs))
			prefix := root + "/V" + strconv.Itoa(v+1)
			for j, spec := range specs {
				p.paramIndex[v][j] = add(prefix, spec)
			}
		}
	}
	tree, err := b.Build()
	if err != nil {
		return fmt.Errorf("building parameter tree: %w", err)
	}
	p.tree = tree
	return nil
}

// Tree returns the parameter tree of the instance.
func (p *Instance) Tree() *params.Tree { return p.tree }

// Name returns the name of the instance, the root of the tree.
func (p *Instance) Name() string { return p.name }

// Voices returns a snapshot of the voice slots.
func (p *Instance) Voices() []VoiceInfo {
	ret := make([]VoiceInfo, len(p.slots))
	for i := range p.slots {
		ret[i] = p.slots[i].info()
	}
	return ret
}

// NoteOn triggers a note on a voice chosen by allocate. An active voice
// already playing the same note is released first. Velocity 0 is a note off.
func (p *Instance) NoteOn(note, velocity byte) {
	if velocity == 0 {
		p.NoteOff(note)
		return
	}
	p.NoteOff(note)
	i := allocate(p.slots)
	s := &p.slots[i]
	p.counter++
	s.stamp = p.counter
	s.engine.Reset()
	s.engine.Trigger(note, velocity)
	s.set(Active, note)
}

// NoteOff releases the active voices playing the note.
func (p *Instance) NoteOff(note byte) {
	for i := range p.slots {
		s := &p.slots[i]
		if s.state == Active && s.note == note {
			s.engine.Release()
			s.set(Releasing, note)
		}
	}
}

// AllNotesOff silences every voice immediately.
func (p *Instance) AllNotesOff() {
	for i := range p.slots {
		s := &p.slots[i]
		s.engine.Reset()
		s.set(Idle, s.note)
	}
}

func (p *Instance) handleNote(e params.NoteEvent) {
	switch e.Type {
	case params.NoteOnEvent:
		p.NoteOn(e.Note, e.Velocity)
	case params.NoteOffEvent:
		p.NoteOff(e.Note)
	case params.AllNotesOffEvent:
		p.AllNotesOff()
	}
}

// Render fills the buffer: queued notes and parameter values are applied,
// then all the voices are summed in chunks of at most MaxBlock frames and the
// master volume is applied. A voice that fails is reset to idle and reported
// to the fault logger; the rest of the voices still render. Render does not
// allocate or block.
func (p *Instance) Render(buffer polyhost.AudioBuffer) {
	p.tree.DrainNotes(p.noteHandler)
	if p.tree.TakeTrigger(p.panicIndex) {
		p.AllNotesOff()
	}
	for v := range p.slots {
		s := &p.slots[v]
		for j, index := range p.paramIndex[v] {
			s.engine.SetParam(j, p.tree.ValueAt(index))
		}
	}
	buffer.Clear()
	for chunk := buffer; len(chunk) > 0; {
		n := min(len(chunk), p.maxBlock)
		p.renderChunk(chunk[:n])
		chunk = chunk[n:]
	}
	if volume := float32(p.tree.ValueAt(p.volumeIndex)); volume != 1 {
		vek32.MulNumber_Inplace(buffer.Floats(), volume)
	}
}

func (p *Instance) renderChunk(chunk polyhost.AudioBuffer) {
	scratch := p.scratch[:len(chunk)]
	for i := range p.slots {
		s := &p.slots[i]
		if p.dynamic && s.state == Idle {
			continue
		}
		scratch.Clear()
		active, panicked, err := renderVoice(s.engine, scratch)
		if err != nil || panicked != nil || !finite(scratch.Floats()) {
			p.fault(i, err, panicked)
			continue
		}
		vek32.Add_Inplace(chunk.Floats(), scratch.Floats())
		if !active && s.state == Releasing {
			s.set(Idle, s.note)
		}
	}
}

func renderVoice(e polyhost.Engine, buffer polyhost.AudioBuffer) (active bool, panicked any, err error) {
	defer func() {
		if r := recover(); r != nil {
			active, panicked, err = false, r, nil
		}
	}()
	active, err = e.Render(buffer)
	return active, nil, err
}

func (p *Instance) fault(i int, err error, panicked any) {
	s := &p.slots[i]
	func() {
		defer func() { recover() }()
		s.engine.Reset()
	}()
	params.TrySend(p.faults, Fault{Slot: i, Note: s.note, Err: err, Panic: panicked})
	s.set(Idle, s.note)
}

func finite(x []float32) bool {
	for _, v := range x {
		if v != v || v > math.MaxFloat32 || v < -math.MaxFloat32 {
			return false
		}
	}
	return true
}

// Close stops the fault logger and closes the engines that implement
// io.Closer. The instance must not be rendered after Close.
func (p *Instance) Close() error {
	p.closeOnce.Do(func() {
		p.stopFaultLogger()
		p.closeErr = p.closeEngines()
	})
	return p.closeErr
}

func (p *Instance) closeEngines() error {
	var errs []error
	for i := range p.slots {
		if c, ok := p.slots[i].engine.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing voice %v: %w", i+1, err))
			}
		}
	}
	return errors.Join(errs...)
}
