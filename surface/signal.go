package surface

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vsariola/polyhost/params"
)

// Signal is the primary surface when there is no window: Run returns when the
// process receives SIGINT or SIGTERM, or when the context is cancelled.
type Signal struct {
	Logger *slog.Logger
}

func (s *Signal) Kind() Kind                         { return KindSignal }
func (s *Signal) BuildFrom(tree *params.Tree) error { return nil }
func (s *Signal) Close() error                       { return nil }

func (s *Signal) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	if s.Logger != nil {
		s.Logger.Info("shutting down")
	}
	return nil
}
