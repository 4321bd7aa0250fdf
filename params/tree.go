// Package params implements the parameter tree: the single registry of every
// controllable parameter of a polyphonic instance, shared by the audio thread
// and all the control surfaces.
//
// The shape of the tree (paths, kinds and ranges) is fixed when it is built,
// so lookups need no locking. Values are float64 bits in atomic words; reads
// never block and never observe a torn value. Writers to different paths never
// contend; writers to the same path are last-write-wins.
package params

import (
	"errors"
	"fmt"
	"math"
	"path"
	"sync"
	"sync/atomic"
)

type (
	// Kind is the kind of a parameter.
	Kind int

	// Descriptor describes one parameter in the tree.
	Descriptor struct {
		Path    string // unique, hierarchical, e.g. /organ/Voices/filter/frequency
		Label   string // last element of the path unless set otherwise
		Kind    Kind
		Min     float64
		Max     float64
		Default float64
		Step    float64 // grid of Discrete values, 0 for others
		// MIDI is the continuous controller number the parameter is bound
		// to, or -1 if it is not bound.
		MIDI int
	}

	// Change is a notification of a written value.
	Change struct {
		Index int
		Path  string
		Value float64
	}

	// Tree is the parameter tree. Create one with a Builder.
	Tree struct {
		descriptors []Descriptor
		index       map[string]int
		values      []atomic.Uint64
		subscribers atomic.Pointer[[]*subscriber]
		subMu       sync.Mutex
		notes       chan NoteEvent
	}

	// Builder collects descriptors for a new Tree.
	Builder struct {
		descriptors []Descriptor
		index       map[string]int
		err         error
	}

	subscriber struct {
		f func(Change)
	}
)

const (
	Continuous Kind = iota
	Discrete
	Trigger
)

func (k Kind) String() string {
	switch k {
	case Continuous:
		return "continuous"
	case Discrete:
		return "discrete"
	case Trigger:
		return "trigger"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

var (
	ErrUnknownPath  = errors.New("unknown parameter path")
	ErrInvalidValue = errors.New("invalid parameter value")
)

// NoteQueueLength is the capacity of the note queue of a tree.
const NoteQueueLength = 256

func NewBuilder() *Builder {
	return &Builder{index: map[string]int{}}
}

// Continuous adds a parameter taking any value in min..max and returns its
// index.
func (b *Builder) Continuous(path string, min, max, def float64) int {
	return b.add(Descriptor{Path: path, Kind: Continuous, Min: min, Max: max, Default: def})
}

// Discrete adds a parameter taking values min + k*step, k = 0, 1, ..., up to
// max and returns its index.
func (b *Builder) Discrete(path string, min, max, step, def float64) int {
	if step <= 0 {
		b.fail(fmt.Errorf("%v: step must be positive, was %v", path, step))
	}
	return b.add(Descriptor{Path: path, Kind: Discrete, Min: min, Max: max, Default: def, Step: step})
}

// Trigger adds a momentary parameter, e.g. a button, and returns its index.
// Writing a non-zero value sets it until the audio thread takes it.
func (b *Builder) Trigger(path string) int {
	return b.add(Descriptor{Path: path, Kind: Trigger, Min: 0, Max: 1, Step: 1})
}

// Label sets the label of descriptor i.
func (b *Builder) Label(i int, label string) {
	if i >= 0 && i < len(b.descriptors) {
		b.descriptors[i].Label = label
	}
}

// MIDI binds descriptor i to a MIDI continuous controller.
func (b *Builder) MIDI(i int, cc int) {
	if i >= 0 && i < len(b.descriptors) {
		b.descriptors[i].MIDI = cc
	}
}

func (b *Builder) add(d Descriptor) int {
	if _, ok := b.index[d.Path]; ok {
		b.fail(fmt.Errorf("duplicate parameter path %v", d.Path))
	}
	if d.Min > d.Max || math.IsNaN(d.Min) || math.IsNaN(d.Max) {
		b.fail(fmt.Errorf("%v: invalid range %v..%v", d.Path, d.Min, d.Max))
	}
	d.Label = path.Base(d.Path)
	d.MIDI = -1
	d.Default = d.clamp(d.Default)
	b.index[d.Path] = len(b.descriptors)
	b.descriptors = append(b.descriptors, d)
	return len(b.descriptors) - 1
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build returns the tree, every value set to its default. The builder should
// not be used after Build.
func (b *Builder) Build() (*Tree, error) {
	if b.err != nil {
		return nil, b.err
	}
	t := &Tree{
		descriptors: b.descriptors,
		index:       b.index,
		values:      make([]atomic.Uint64, len(b.descriptors)),
		notes:       make(chan NoteEvent, NoteQueueLength),
	}
	for i, d := range t.descriptors {
		t.values[i].Store(math.Float64bits(d.Default))
	}
	empty := []*subscriber{}
	t.subscribers.Store(&empty)
	return t, nil
}

// clamp limits v to the range of the descriptor and snaps discrete values to
// the step grid.
func (d *Descriptor) clamp(v float64) float64 {
	switch d.Kind {
	case Trigger:
		if v != 0 {
			return 1
		}
		return 0
	case Discrete:
		if d.Step > 0 {
			v = d.Min + math.Round((v-d.Min)/d.Step)*d.Step
			if v > d.Max { // the top of the range may be off the grid
				v -= d.Step
			}
		}
	}
	return min(max(v, d.Min), d.Max)
}

func (t *Tree) Len() int { return len(t.descriptors) }

// Descriptors returns the descriptors in declaration order. The returned
// slice must not be modified.
func (t *Tree) Descriptors() []Descriptor { return t.descriptors }

// Descriptor returns the descriptor at index i.
func (t *Tree) Descriptor(i int) Descriptor { return t.descriptors[i] }

// Index returns the index of the path.
func (t *Tree) Index(path string) (int, bool) {
	i, ok := t.index[path]
	return i, ok
}

func (t *Tree) Read(path string) (float64, error) {
	i, ok := t.index[path]
	if !ok {
		return 0, fmt.Errorf("%w: %v", ErrUnknownPath, path)
	}
	return t.ValueAt(i), nil
}

// ValueAt returns the value of parameter i. It never blocks and can be called
// from the audio thread.
func (t *Tree) ValueAt(i int) float64 {
	return math.Float64frombits(t.values[i].Load())
}

// Write clamps the value to the range of the parameter, stores it and notifies
// the subscribers. The stored value is returned.
func (t *Tree) Write(path string, v float64) (float64, error) {
	i, ok := t.index[path]
	if !ok {
		return 0, fmt.Errorf("%w: %v", ErrUnknownPath, path)
	}
	return t.WriteAt(i, v)
}

func (t *Tree) WriteAt(i int, v float64) (float64, error) {
	if i < 0 || i >= len(t.descriptors) {
		return 0, fmt.Errorf("%w: index %v", ErrUnknownPath, i)
	}
	if math.IsNaN(v) {
		return 0, fmt.Errorf("%w: %v = NaN", ErrInvalidValue, t.descriptors[i].Path)
	}
	v = t.descriptors[i].clamp(v)
	t.values[i].Store(math.Float64bits(v))
	c := Change{Index: i, Path: t.descriptors[i].Path, Value: v}
	for _, s := range *t.subscribers.Load() {
		s.f(c)
	}
	return v, nil
}

// TakeTrigger reports if trigger i was set, and clears it. Meant to be called
// by the audio thread; subscribers are not notified of the clearing.
func (t *Tree) TakeTrigger(i int) bool {
	return t.values[i].Swap(0) != 0
}

// Subscribe registers f to be called after every write, on the goroutine of
// the writer. f must not block for long. Calling cancel removes the
// subscription.
func (t *Tree) Subscribe(f func(Change)) (cancel func()) {
	s := &subscriber{f: f}
	t.subMu.Lock()
	old := *t.subscribers.Load()
	subs := make([]*subscriber, len(old), len(old)+1)
	copy(subs, old)
	subs = append(subs, s)
	t.subscribers.Store(&subs)
	t.subMu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			t.subMu.Lock()
			defer t.subMu.Unlock()
			old := *t.subscribers.Load()
			subs := make([]*subscriber, 0, len(old))
			for _, o := range old {
				if o != s {
					subs = append(subs, o)
				}
			}
			t.subscribers.Store(&subs)
		})
	}
}
