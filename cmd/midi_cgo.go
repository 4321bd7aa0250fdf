//go:build cgo

package cmd

import (
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// NewMIDIDriver opens the rtmidi driver.
func NewMIDIDriver() (drivers.Driver, error) {
	d, err := rtmididrv.New()
	if err != nil {
		return nil, err
	}
	return d, nil
}
