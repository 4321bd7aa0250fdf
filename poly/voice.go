package poly

import (
	"fmt"
	"sync/atomic"

	"github.com/vsariola/polyhost"
)

type (
	// VoiceState is the state of a voice slot.
	VoiceState int

	// VoiceInfo is a snapshot of one voice slot.
	VoiceInfo struct {
		State VoiceState
		Note  byte
	}

	slot struct {
		engine polyhost.Engine
		note   byte
		state  VoiceState
		stamp  uint64 // value of the trigger counter when the note was triggered
		// published packs state and note for readers on other goroutines
		published atomic.Uint32
	}
)

const (
	Idle VoiceState = iota
	Active
	Releasing
)

func (s VoiceState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Releasing:
		return "releasing"
	}
	return fmt.Sprintf("VoiceState(%d)", int(s))
}

func (s *slot) set(state VoiceState, note byte) {
	s.state = state
	s.note = note
	s.published.Store(uint32(state)<<8 | uint32(note))
}

func (s *slot) info() VoiceInfo {
	v := s.published.Load()
	return VoiceInfo{State: VoiceState(v >> 8), Note: byte(v)}
}

// allocate chooses the slot for a new note: the lowest idle slot if there is
// one, otherwise the oldest releasing slot, otherwise the oldest active slot.
// Age is the trigger counter value, so the choice is deterministic.
func allocate(slots []slot) int {
	best := -1
	for i := range slots {
		s := &slots[i]
		if s.state == Idle {
			return i
		}
		if best < 0 {
			best = i
			continue
		}
		b := &slots[best]
		switch {
		case s.state == Releasing && b.state == Active:
			best = i
		case s.state == b.state && s.stamp < b.stamp:
			best = i
		}
	}
	return best
}
