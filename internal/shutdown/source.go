// Package shutdown waits for a termination request and drains the scheduler.
package shutdown

import (
	"context"
	"os"
	"os/signal"
)

// Source is something that can request shutdown
type Source interface {
	Name() string
	// Recv blocks until the source fires (true) or ctx is done (false)
	Recv(ctx context.Context) bool
}

// signalSource fires when the process receives its OS signal
type signalSource struct {
	name string
	sig  os.Signal
}

func (s *signalSource) Name() string {
	return s.name
}

func (s *signalSource) Recv(ctx context.Context) bool {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, s.sig)
	defer signal.Stop(ch)

	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

// Interrupt fires on Ctrl-C
func Interrupt() Source {
	return &signalSource{name: "interrupt", sig: os.Interrupt}
}

// Never is a source that never fires. It stands in for signals the
// platform does not have.
type Never struct {
	Label string
}

func (n Never) Name() string {
	return n.Label
}

func (n Never) Recv(ctx context.Context) bool {
	<-ctx.Done()
	return false
}
