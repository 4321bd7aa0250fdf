// Package surface defines the control surfaces: adapters that let an external
// actor (a window, a MIDI controller, an OSC or HTTP client) read and write
// the parameter tree. The orchestrator owns the surfaces; the tree never knows
// which kinds of surfaces are attached to it.
package surface

import (
	"context"
	"fmt"

	"github.com/vsariola/polyhost/params"
)

type (
	// Kind is the kind of a surface.
	Kind int

	// Surface is a control surface. BuildFrom is called once, after the tree
	// is fully populated and before Run. Run blocks until the surface is done
	// or the context is cancelled. Close releases the resources of the
	// surface; it is called after Run has returned, even if Run was never
	// called.
	Surface interface {
		Kind() Kind
		BuildFrom(tree *params.Tree) error
		Run(ctx context.Context) error
		Close() error
	}

	// NoteSink receives note requests. The sends never block; false means
	// the request was dropped.
	NoteSink interface {
		NoteOn(note, velocity byte) bool
		NoteOff(note byte) bool
		AllNotesOff() bool
	}

	// NoteSource is implemented by surfaces that produce notes, e.g. MIDI
	// keyboards.
	NoteSource interface {
		AttachNoteSink(sink NoteSink)
	}
)

const (
	KindGUI Kind = iota
	KindMIDI
	KindOSC
	KindHTTP
	KindSignal
)

func (k Kind) String() string {
	switch k {
	case KindGUI:
		return "gui"
	case KindMIDI:
		return "midi"
	case KindOSC:
		return "osc"
	case KindHTTP:
		return "httpd"
	case KindSignal:
		return "signal"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}
