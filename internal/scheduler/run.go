package scheduler

import (
	"context"
	"log/slog"

	"github.com/livinlefevreloca/sqlcron/internal/db"
	"github.com/livinlefevreloca/sqlcron/internal/events"
	"github.com/livinlefevreloca/sqlcron/internal/shutdown"
)

// Run schedules evts until an interrupt, SIGTERM or ctx cancellation, then
// waits for in-flight executions and closes conn. The error from closing
// conn is returned.
func Run(ctx context.Context, evts []*events.Event, conn db.Conn, cfg Config, logger *slog.Logger, opts ...Option) error {
	s, err := New(evts, conn, cfg, logger, opts...)
	if err != nil {
		return err
	}

	sources := s.sources
	if sources == nil {
		sources = []shutdown.Source{shutdown.Interrupt(), shutdown.Terminate()}
	}
	coord := shutdown.NewCoordinator(logger, sources...)

	s.Start()
	shutdown.NotifyReady(logger)

	return coord.Run(ctx, s, conn)
}
