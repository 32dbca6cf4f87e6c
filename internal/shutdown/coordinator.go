package shutdown

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// Target is the work drained on shutdown
type Target interface {
	// Stop ends new work without cancelling work in progress
	Stop()
	// Wait blocks until all work in progress has finished
	Wait()
}

// Coordinator waits on its sources and drains a Target when the first fires
type Coordinator struct {
	logger  *slog.Logger
	sources []Source
}

func NewCoordinator(logger *slog.Logger, sources ...Source) *Coordinator {
	return &Coordinator{logger: logger, sources: sources}
}

// Run blocks until a source fires or ctx is done, then stops target, waits
// for it without a deadline and closes resource. The returned error is the
// one from closing resource.
func (c *Coordinator) Run(ctx context.Context, target Target, resource io.Closer) error {
	reason := c.await(ctx)
	c.logger.Info("shutdown requested", "source", reason)

	NotifyStopping(c.logger)
	target.Stop()
	target.Wait()

	if resource == nil {
		return nil
	}
	if err := resource.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	c.logger.Info("shutdown complete")
	return nil
}

// await returns the name of whatever ended the wait
func (c *Coordinator) await(ctx context.Context) string {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fired := make(chan string, len(c.sources))
	for _, src := range c.sources {
		go func(src Source) {
			if src.Recv(ctx) {
				fired <- src.Name()
			}
		}(src)
	}

	select {
	case name := <-fired:
		return name
	case <-ctx.Done():
		return "context"
	}
}
