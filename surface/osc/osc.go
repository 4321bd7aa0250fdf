// Package osc is the Open Sound Control surface: every parameter path of the
// tree is an OSC address. A message with a numeric argument sets the
// parameter, a message without arguments asks for its current value.
package osc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/hypebeast/go-osc/osc"
	"github.com/vsariola/polyhost/params"
	"github.com/vsariola/polyhost/surface"
)

type (
	Config struct {
		// Port is the UDP port to listen on; 0 picks a free one.
		Port int
		// OutPort is where replies and, with Xmit, all changes are sent.
		OutPort int
		// Xmit sends every change of the tree to OutPort.
		Xmit   bool
		Name   string
		Logger *slog.Logger
	}

	// Surface is an OSC control surface.
	Surface struct {
		config   Config
		logger   *slog.Logger
		tree     *params.Tree
		sink     surface.NoteSink
		handlers map[string]osc.HandlerFunc
		conn     net.PacketConn
		closed   atomic.Bool
		client   *osc.Client
		outbox   chan *osc.Message
	}
)

const (
	DefaultPort    = 5510
	DefaultOutPort = 5511
	outboxLength   = 256
)

var errMalformed = errors.New("malformed OSC message")

func New(c Config) *Surface {
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return &Surface{
		config: c,
		logger: c.Logger.With("surface", "osc"),
		client: osc.NewClient("127.0.0.1", c.OutPort),
		outbox: make(chan *osc.Message, outboxLength),
	}
}

func (s *Surface) Kind() surface.Kind { return surface.KindOSC }

func (s *Surface) AttachNoteSink(sink surface.NoteSink) { s.sink = sink }

// BuildFrom registers one handler per path and binds the listening socket, so
// that a port already in use fails the construction of the surface.
func (s *Surface) BuildFrom(tree *params.Tree) error {
	s.tree = tree
	s.handlers = make(map[string]osc.HandlerFunc, tree.Len()+2)
	for i, d := range tree.Descriptors() {
		s.handlers[d.Path] = s.paramHandler(i)
	}
	if s.config.Name != "" {
		s.handlers["/"+s.config.Name+"/keyon"] = s.keyOn
		s.handlers["/"+s.config.Name+"/keyoff"] = s.keyOff
	}
	conn, err := net.ListenPacket("udp", net.JoinHostPort("", strconv.Itoa(s.config.Port)))
	if err != nil {
		return fmt.Errorf("osc: listening on port %d: %w", s.config.Port, err)
	}
	s.conn = conn
	s.logger.Info("listening", "addr", conn.LocalAddr().String(), "outport", s.config.OutPort, "xmit", s.config.Xmit)
	return nil
}

// Addr is the address the surface listens on, valid after BuildFrom.
func (s *Surface) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Dispatch implements osc.Dispatcher. Addresses are matched exactly; an
// address with OSC wildcards is matched against every path.
func (s *Surface) Dispatch(packet osc.Packet) {
	switch p := packet.(type) {
	case *osc.Message:
		s.dispatchMessage(p)
	case *osc.Bundle:
		for _, m := range p.Messages {
			s.dispatchMessage(m)
		}
		for _, b := range p.Bundles {
			s.Dispatch(b)
		}
	}
}

func (s *Surface) dispatchMessage(msg *osc.Message) {
	if h, ok := s.handlers[msg.Address]; ok {
		h(msg)
		return
	}
	if !strings.ContainsAny(msg.Address, "*?[{") {
		s.logger.Debug("no handler", "address", msg.Address)
		return
	}
	for path, h := range s.handlers {
		if msg.Match(path) {
			h(msg)
		}
	}
}

func (s *Surface) paramHandler(i int) osc.HandlerFunc {
	return func(msg *osc.Message) {
		if len(msg.Arguments) == 0 {
			s.reply(i)
			return
		}
		v, ok := number(msg.Arguments[0])
		if !ok {
			s.logger.Warn("dropping message", "address", msg.Address, "err", errMalformed)
			return
		}
		if _, err := s.tree.WriteAt(i, v); err != nil {
			s.logger.Warn("dropping message", "address", msg.Address, "err", err)
		}
	}
}

func (s *Surface) keyOn(msg *osc.Message) {
	if s.sink == nil {
		return
	}
	if len(msg.Arguments) < 2 {
		s.logger.Warn("dropping keyon", "err", errMalformed)
		return
	}
	note, ok1 := number(msg.Arguments[0])
	vel, ok2 := number(msg.Arguments[1])
	if !ok1 || !ok2 || note < 0 || note > 127 || vel < 0 || vel > 127 {
		s.logger.Warn("dropping keyon", "err", errMalformed)
		return
	}
	if vel == 0 {
		s.sink.NoteOff(byte(note))
		return
	}
	if !s.sink.NoteOn(byte(note), byte(vel)) {
		s.logger.Warn("note queue full, dropping note", "note", note)
	}
}

func (s *Surface) keyOff(msg *osc.Message) {
	if s.sink == nil {
		return
	}
	if len(msg.Arguments) < 1 {
		s.logger.Warn("dropping keyoff", "err", errMalformed)
		return
	}
	note, ok := number(msg.Arguments[0])
	if !ok || note < 0 || note > 127 {
		s.logger.Warn("dropping keyoff", "err", errMalformed)
		return
	}
	s.sink.NoteOff(byte(note))
}

func number(arg any) (float64, bool) {
	switch v := arg.(type) {
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func (s *Surface) reply(i int) {
	d := s.tree.Descriptor(i)
	params.TrySend(s.outbox, osc.NewMessage(d.Path, float32(s.tree.ValueAt(i))))
}

func (s *Surface) transmit(c params.Change) {
	if !params.TrySend(s.outbox, osc.NewMessage(c.Path, float32(c.Value))) {
		s.logger.Debug("outbox full, dropping change", "path", c.Path)
	}
}

// Run serves incoming packets and sends the outgoing ones until the context
// is cancelled.
func (s *Surface) Run(ctx context.Context) error {
	if s.conn == nil {
		return errors.New("osc: Run called before BuildFrom")
	}
	if s.config.Xmit {
		cancel := s.tree.Subscribe(s.transmit)
		defer cancel()
	}
	go s.send(ctx)
	server := &osc.Server{Dispatcher: s}
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()
	for {
		err := server.Serve(s.conn)
		if s.closed.Load() || errors.Is(err, net.ErrClosed) {
			return nil
		}
		s.logger.Warn("dropping packet", "err", err)
	}
}

func (s *Surface) send(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.outbox:
			if err := s.client.Send(msg); err != nil {
				s.logger.Debug("could not send", "address", msg.Address, "err", err)
			}
		}
	}
}

func (s *Surface) Close() error {
	if s.conn == nil || s.closed.Swap(true) {
		return nil
	}
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
