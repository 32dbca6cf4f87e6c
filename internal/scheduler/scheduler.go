package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/livinlefevreloca/sqlcron/internal/db"
	"github.com/livinlefevreloca/sqlcron/internal/events"
	"github.com/livinlefevreloca/sqlcron/internal/shutdown"
	"github.com/livinlefevreloca/sqlcron/internal/stats"
)

const tracerName = "github.com/livinlefevreloca/sqlcron"

// State is the lifecycle stage of a Scheduler
type State int32

const (
	StateAligning   State = iota // waiting for the first tick boundary
	StateRunning                 // ticking
	StateDraining                // stopped, waiting for executions
	StateTerminated              // all executions complete
)

func (s State) String() string {
	switch s {
	case StateAligning:
		return "aligning"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Clock provides the time used for tick evaluation
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock overrides the clock used to timestamp ticks
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithTickInterval overrides the one minute tick period
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// WithMetrics records scheduler activity in m
func WithMetrics(m *stats.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithTracer wraps every execution in a span from tracer
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Scheduler) { s.tracer = tracer }
}

// WithShutdownSources replaces the OS signal sources used by Run
func WithShutdownSources(sources ...shutdown.Source) Option {
	return func(s *Scheduler) { s.sources = sources }
}

// Scheduler dispatches loaded events on cron ticks. Executions run either
// concurrently or one at a time through a Queue when the backend is
// serialized.
type Scheduler struct {
	// Configuration
	config   Config
	logger   *slog.Logger
	clock    Clock
	interval time.Duration
	metrics  *stats.Metrics
	tracer   trace.Tracer
	sources  []shutdown.Source

	// Read-only after New
	events []*events.Event
	conn   db.Conn
	queue  *Queue // nil on the concurrent path

	// Executions never see shutdown; they are only waited for
	execCtx context.Context

	// Control
	state        atomic.Int32
	started      atomic.Bool
	stop         chan struct{}
	stopOnce     sync.Once
	loopDone     chan struct{}
	consumerDone chan struct{}
	units        sync.WaitGroup
}

// New creates a scheduler for evts. The queue is used when conn reports a
// serialized backend or cfg.Serialize is set.
func New(evts []*events.Event, conn db.Conn, cfg Config, logger *slog.Logger, opts ...Option) (*Scheduler, error) {
	if conn == nil {
		return nil, errors.New("scheduler: nil database connection")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}

	s := &Scheduler{
		config:       cfg,
		logger:       logger,
		clock:        realClock{},
		interval:     time.Minute,
		tracer:       otel.Tracer(tracerName),
		events:       evts,
		conn:         conn,
		execCtx:      context.Background(),
		stop:         make(chan struct{}),
		loopDone:     make(chan struct{}),
		consumerDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval <= 0 {
		return nil, fmt.Errorf("scheduler: tick interval must be positive, got %v", s.interval)
	}

	if conn.Serialized() || cfg.Serialize {
		s.queue = NewQueue(QueueCapacity(len(evts)), logger, s.metrics)
	}
	s.state.Store(int32(StateAligning))

	return s, nil
}

// State returns the scheduler's current lifecycle stage
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Serialized reports whether executions go through the queue
func (s *Scheduler) Serialized() bool {
	return s.queue != nil
}

// Queue returns the execution queue, or nil on the concurrent path
func (s *Scheduler) Queue() *Queue {
	return s.queue
}

// Start launches the tick loop and, when serialized, the queue consumer.
// Startup events are dispatched before the first tick boundary.
func (s *Scheduler) Start() {
	select {
	case <-s.stop:
		return
	default:
	}
	if !s.started.CompareAndSwap(false, true) {
		return
	}

	path := stats.PathConcurrent
	if s.queue != nil {
		path = stats.PathQueue
	}
	s.logger.Info("starting scheduler",
		"events", len(s.events),
		"dispatch", path,
		"tick_interval", s.interval)

	if s.queue != nil {
		go s.consume()
	} else {
		close(s.consumerDone)
	}
	go s.run()
}

// Stop ends ticking and dispatch. In-flight executions are not cancelled;
// use Wait to block until they finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.state.CompareAndSwap(int32(StateAligning), int32(StateDraining))
		s.state.CompareAndSwap(int32(StateRunning), int32(StateDraining))
		s.logger.Info("scheduler draining")
		close(s.stop)
	})
}

// Wait blocks until the tick loop has exited and every dispatched
// execution has completed
func (s *Scheduler) Wait() {
	if s.started.Load() {
		<-s.loopDone
		<-s.consumerDone
		s.units.Wait()
	}
	s.state.Store(int32(StateTerminated))
	s.logger.Info("scheduler terminated")
}

// run is the main scheduler loop
func (s *Scheduler) run() {
	defer close(s.loopDone)
	if s.queue != nil {
		// The loop is the only producer
		defer s.queue.Close()
	}

	s.dispatchStartup()

	delay := alignmentDelay(s.clock.Now(), s.interval, s.config.AlignmentSkew)
	s.logger.Debug("aligning to tick boundary", "delay", delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-s.stop:
		return
	case <-timer.C:
	}

	if !s.state.CompareAndSwap(int32(StateAligning), int32(StateRunning)) {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(s.clock.Now())
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			// Shutdown wins over a tick that fired at the same time
			select {
			case <-s.stop:
				return
			default:
			}
			s.tick(s.clock.Now())
		}
	}
}

// alignmentDelay returns the wait from now until just past the next
// interval boundary
func alignmentDelay(now time.Time, interval, skew time.Duration) time.Duration {
	next := now.Truncate(interval).Add(interval)
	return next.Sub(now) + skew
}

func (s *Scheduler) dispatchStartup() {
	for _, evt := range s.events {
		if !evt.Schedule().Startup {
			continue
		}
		select {
		case <-s.stop:
			return
		default:
		}
		s.logger.Debug("dispatching startup event", "event", evt.Label())
		s.dispatch(evt)
	}
}

// tick evaluates every event against a single timestamp and dispatches the
// matches in file order
func (s *Scheduler) tick(now time.Time) {
	s.metrics.Tick()

	due := 0
	for _, evt := range s.events {
		if evt.Schedule().Matches(now) {
			due++
			s.dispatch(evt)
		}
	}
	s.logger.Debug("tick", "time", now.Format(time.RFC3339), "due", due)
}

func (s *Scheduler) dispatch(evt *events.Event) {
	if s.queue != nil {
		s.metrics.Dispatched(evt.Label(), stats.PathQueue)
		s.queue.Push(Task{Event: evt, QueuedAt: time.Now()})
		return
	}

	s.metrics.Dispatched(evt.Label(), stats.PathConcurrent)
	s.units.Add(1)
	go func() {
		defer s.units.Done()
		s.execute(evt)
	}()
}

// consume runs queued tasks one at a time in enqueue order
func (s *Scheduler) consume() {
	defer close(s.consumerDone)

	for {
		task, ok := s.queue.Receive()
		if !ok {
			return
		}
		s.logger.Debug("dequeued event",
			"event", task.Event.Label(),
			"queue_latency", time.Since(task.QueuedAt))
		s.execute(task.Event)
	}
}

// execute runs one event and records the outcome. Failures stop here.
func (s *Scheduler) execute(evt *events.Event) {
	runID := uuid.NewString()
	logger := s.logger.With("run_id", runID)

	ctx, span := s.tracer.Start(s.execCtx, "sqlcron.event.run",
		trace.WithAttributes(
			attribute.String("sqlcron.event", evt.Label()),
			attribute.String("sqlcron.run_id", runID),
			attribute.Int("sqlcron.statements", evt.Len()),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	s.metrics.Started()
	start := time.Now()
	err := runUnit(ctx, evt, s.conn, logger)
	elapsed := time.Since(start)
	s.metrics.Finished(evt.Label(), err, elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("event failed",
			"event", evt.Label(),
			"kind", db.Classify(err),
			"duration", elapsed,
			"error", err)
		return
	}

	span.SetStatus(codes.Ok, "")
	logger.Info("event completed", "event", evt.Label(), "duration", elapsed)
}

// runUnit converts a panic inside an execution into an error
func runUnit(ctx context.Context, evt *events.Event, conn db.Conn, logger *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event %q panicked: %v", evt.Label(), r)
		}
	}()
	return evt.Run(ctx, conn, logger)
}
