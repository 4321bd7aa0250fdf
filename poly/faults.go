package poly

import (
	"log/slog"
	"time"
)

// Fault is a voice that failed to render: it returned an error, panicked or
// produced a non-finite sample. The slot has already been reset to idle when
// the fault is reported.
type Fault struct {
	Slot  int
	Note  byte
	Err   error // set if the engine returned an error
	Panic any   // set if the engine panicked
}

const faultQueueLength = 64

// logFaults runs on its own goroutine, so that the audio thread never formats
// or writes log records.
func (p *Instance) logFaults() {
	defer close(p.finished)
	for {
		select {
		case f := <-p.faults:
			p.reportFault(f)
		case <-p.quit:
			for {
				select {
				case f := <-p.faults:
					p.reportFault(f)
				default:
					return
				}
			}
		}
	}
}

func (p *Instance) reportFault(f Fault) {
	p.faultCount.Add(1)
	attrs := []any{"slot", f.Slot, "note", f.Note}
	switch {
	case f.Panic != nil:
		attrs = append(attrs, "panic", f.Panic)
	case f.Err != nil:
		attrs = append(attrs, "err", f.Err)
	default:
		attrs = append(attrs, "err", "non-finite output")
	}
	p.logger.Error("voice fault, slot reset", attrs...)
	if p.onFault != nil {
		p.onFault(f)
	}
}

// FaultCount returns the number of faults reported so far.
func (p *Instance) FaultCount() uint64 {
	return p.faultCount.Load()
}

func (p *Instance) stopFaultLogger() {
	close(p.quit)
	select {
	case <-p.finished:
	case <-time.After(3 * time.Second):
		p.logger.Warn("fault logger did not stop in time")
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
