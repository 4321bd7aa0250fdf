//go:build !cgo

package cmd

import (
	"errors"

	"gitlab.com/gomidi/midi/v2/drivers"
)

// NewMIDIDriver fails: with no cgo, there is no rtmidi.
func NewMIDIDriver() (drivers.Driver, error) {
	return nil, errors.New("MIDI support requires cgo")
}
