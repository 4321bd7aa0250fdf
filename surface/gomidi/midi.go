// Package gomidi is the MIDI control surface. Note messages are forwarded to
// the note sink; control changes bound in the patch write the parameter tree
// and changes of bound parameters are echoed back to the controller.
package gomidi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/vsariola/polyhost/params"
	"github.com/vsariola/polyhost/surface"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

type (
	// Surface is a MIDI control surface on top of a gomidi driver. The driver
	// is created by the caller, as the rtmidi driver needs cgo.
	Surface struct {
		driver      drivers.Driver
		inputPrefix string
		logger      *slog.Logger

		tree     *params.Tree
		bindings surface.MIDIBindings
		sink     surface.NoteSink

		in          drivers.In
		out         drivers.Out
		send        func(midi.Message) error
		stopListen  func()
		unsubscribe func()
		sendMu      sync.Mutex
		// last controller value received or sent, to avoid echoing a value
		// back to the controller that just sent it
		lastValue [16][128]atomic.Int32
	}
)

const (
	ccAllSoundOff = 120
	ccAllNotesOff = 123
)

var ErrNoInput = errors.New("no MIDI input found")

// New creates a MIDI surface. The input whose name starts with inputPrefix is
// opened; with an empty prefix, the first input. driver may be nil, in which
// case the surface only handles messages passed to HandleMessage.
func New(driver drivers.Driver, inputPrefix string, logger *slog.Logger) *Surface {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Surface{driver: driver, inputPrefix: inputPrefix, logger: logger}
	for ch := range s.lastValue {
		for cc := range s.lastValue[ch] {
			s.lastValue[ch][cc].Store(-1)
		}
	}
	return s
}

func (s *Surface) Kind() surface.Kind { return surface.KindMIDI }

func (s *Surface) AttachNoteSink(sink surface.NoteSink) { s.sink = sink }

// BuildFrom reads the MIDI bindings from the tree and opens the ports.
func (s *Surface) BuildFrom(tree *params.Tree) error {
	s.tree = tree
	s.bindings = surface.BindingsFrom(tree)
	if s.driver == nil {
		return nil
	}
	ins, err := s.driver.Ins()
	if err != nil {
		return fmt.Errorf("listing MIDI inputs: %w", err)
	}
	for _, in := range ins {
		if strings.HasPrefix(in.String(), s.inputPrefix) {
			s.in = in
			break
		}
	}
	if s.in == nil {
		if s.inputPrefix == "" {
			return ErrNoInput
		}
		return fmt.Errorf("%w starting with %q", ErrNoInput, s.inputPrefix)
	}
	if err := s.in.Open(); err != nil {
		return fmt.Errorf("opening MIDI input %v: %w", s.in, err)
	}
	s.logger.Info("opened MIDI input", "port", s.in.String())
	if outs, err := s.driver.Outs(); err == nil {
		for _, out := range outs {
			if matchingPort(s.in.String(), out.String()) {
				s.attachOutput(out)
				break
			}
		}
	}
	return nil
}

// matchingPort reports if an output port belongs to the same device as an
// input port, e.g. "Launch Control:Launch Control MIDI 1 20:0" for the input
// of the same name.
func matchingPort(in, out string) bool {
	trim := func(s string) string {
		if i := strings.LastIndexByte(s, ' '); i > 0 {
			return s[:i]
		}
		return s
	}
	return in == out || trim(in) == trim(out)
}

func (s *Surface) attachOutput(out drivers.Out) {
	if err := out.Open(); err != nil {
		s.logger.Warn("could not open MIDI output, changes will not be echoed", "port", out.String(), "err", err)
		return
	}
	send, err := midi.SendTo(out)
	if err != nil {
		out.Close()
		s.logger.Warn("could not send to MIDI output", "port", out.String(), "err", err)
		return
	}
	s.out = out
	s.send = send
	s.logger.Info("opened MIDI output", "port", out.String())
}

// Run listens to the input until the context is cancelled.
func (s *Surface) Run(ctx context.Context) error {
	if s.in != nil {
		stop, err := midi.ListenTo(s.in, s.HandleMessage)
		if err != nil {
			return fmt.Errorf("listening to MIDI input: %w", err)
		}
		s.stopListen = stop
	}
	if s.send != nil {
		s.unsubscribe = s.tree.Subscribe(s.echo)
	}
	<-ctx.Done()
	return nil
}

// HandleMessage handles one incoming MIDI message. Note on with velocity 0 is
// a note off. Control changes 120 and 123 silence all notes.
func (s *Surface) HandleMessage(msg midi.Message, timestampms int32) {
	var channel, key, velocity, control, value uint8
	switch {
	case msg.GetNoteOn(&channel, &key, &velocity):
		if s.sink == nil {
			return
		}
		if velocity == 0 {
			s.sink.NoteOff(key)
		} else if !s.sink.NoteOn(key, velocity) {
			s.logger.Warn("note queue full, dropping note", "note", key)
		}
	case msg.GetNoteOff(&channel, &key, &velocity):
		if s.sink != nil {
			s.sink.NoteOff(key)
		}
	case msg.GetControlChange(&channel, &control, &value):
		if control == ccAllSoundOff || control == ccAllNotesOff {
			if s.sink != nil {
				s.sink.AllNotesOff()
			}
			return
		}
		s.lastValue[channel&15][control&127].Store(int32(value))
		for _, i := range s.bindings.GetParams(surface.MIDIControl{Channel: int(channel), Control: int(control)}) {
			if _, err := s.tree.WriteAt(i, surface.FromMIDI(s.tree.Descriptor(i), int(value))); err != nil {
				s.logger.Warn("could not apply control change", "cc", control, "err", err)
			}
		}
	}
}

func (s *Surface) echo(c params.Change) {
	control, ok := s.bindings.GetControl(c.Index)
	if !ok {
		return
	}
	channel := control.Channel
	if channel == surface.AnyChannel {
		channel = 0
	}
	value := surface.ToMIDI(s.tree.Descriptor(c.Index), c.Value)
	if s.lastValue[channel][control.Control].Swap(int32(value)) == int32(value) {
		return
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.send(midi.ControlChange(uint8(channel), uint8(control.Control), uint8(value))); err != nil {
		s.logger.Debug("could not echo control change", "cc", control.Control, "err", err)
	}
}

func (s *Surface) Close() error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.stopListen != nil {
		s.stopListen()
	}
	var errs []error
	if s.in != nil && s.in.IsOpen() {
		errs = append(errs, s.in.Close())
	}
	if s.out != nil && s.out.IsOpen() {
		errs = append(errs, s.out.Close())
	}
	if s.driver != nil {
		errs = append(errs, s.driver.Close())
	}
	return errors.Join(errs...)
}
