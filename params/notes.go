package params

type (
	// NoteEvent is a note request posted by a surface to the voice pool.
	NoteEvent struct {
		Type     NoteEventType
		Note     byte
		Velocity byte
	}

	NoteEventType int
)

const (
	NoteOnEvent NoteEventType = iota
	NoteOffEvent
	AllNotesOffEvent
)

// NoteOn posts a note on. Returns false if the queue is full and the event was
// dropped. Never blocks.
func (t *Tree) NoteOn(note, velocity byte) bool {
	return TrySend(t.notes, NoteEvent{Type: NoteOnEvent, Note: note, Velocity: velocity})
}

func (t *Tree) NoteOff(note byte) bool {
	return TrySend(t.notes, NoteEvent{Type: NoteOffEvent, Note: note})
}

func (t *Tree) AllNotesOff() bool {
	return TrySend(t.notes, NoteEvent{Type: AllNotesOffEvent})
}

// DrainNotes calls f for every queued note event, in the order they were
// posted, and returns when the queue is empty. Never blocks; meant to be
// called by the audio thread at the start of every block.
func (t *Tree) DrainNotes(f func(NoteEvent)) {
	for {
		select {
		case e := <-t.notes:
			f(e)
		default:
			return
		}
	}
}
