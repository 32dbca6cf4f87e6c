package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/livinlefevreloca/sqlcron/internal/cron"
	"github.com/livinlefevreloca/sqlcron/internal/db"
)

// ErrEventSyntax is returned when the events file cannot be split into
// label, schedule and body
var ErrEventSyntax = errors.New("invalid event syntax")

// ValidationError reports a statement the database refused to prepare at load time
type ValidationError struct {
	Label     string
	Statement string
	Err       error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("event %q: invalid statement %q: %v", e.Label, e.Statement, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ExecutionError reports the statement that failed during a scheduled run.
// Index is the zero-based position of the statement within the event.
type ExecutionError struct {
	Label     string
	Index     int
	Statement string
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("event %q: statement %d (%s) failed: %v", e.Label, e.Index, Action(e.Statement), e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Event is a labelled batch of statements executed on a cron schedule. It is
// immutable once loaded and safe to share between concurrent executions.
type Event struct {
	label      string
	schedule   cron.Schedule
	statements []string
}

// New builds an event from already validated statements
func New(label string, schedule cron.Schedule, statements []string) *Event {
	return &Event{
		label:      label,
		schedule:   schedule,
		statements: slices.Clone(statements),
	}
}

func (e *Event) Label() string {
	return e.label
}

func (e *Event) Schedule() cron.Schedule {
	return e.schedule
}

// Statements returns a copy of the event's statements in execution order
func (e *Event) Statements() []string {
	return slices.Clone(e.statements)
}

// Len returns the number of statements in the event
func (e *Event) Len() int {
	return len(e.statements)
}

func (e *Event) String() string {
	return fmt.Sprintf("%s: %s", e.label, e.schedule)
}

// Run executes every statement of the event inside a single transaction.
// The transaction is committed only if all statements succeed; otherwise it
// is rolled back and an *ExecutionError for the failing statement is returned.
// A panic from the driver also rolls back before propagating.
func (e *Event) Run(ctx context.Context, conn db.Conn, logger *slog.Logger) error {
	err := db.WithTransaction(ctx, conn, func(tx db.Tx) error {
		for i, stmt := range e.statements {
			res, err := tx.ExecContext(ctx, stmt)
			if err != nil {
				return &ExecutionError{Label: e.label, Index: i, Statement: stmt, Err: err}
			}

			attrs := []any{"event", e.label, "statement", i, "action", Action(stmt)}
			if rows, err := res.RowsAffected(); err == nil {
				attrs = append(attrs, "rows_affected", rows)
			}
			logger.Debug("statement executed", attrs...)
		}
		return nil
	})

	var execErr *ExecutionError
	if err != nil && !errors.As(err, &execErr) {
		return fmt.Errorf("event %q: %w", e.label, err)
	}
	return err
}

// Action summarizes a statement for logs, e.g. "INSERT INTO audit" or
// "DELETE FROM sessions"
func Action(stmt string) string {
	parts := strings.Fields(stmt)
	if len(parts) == 0 {
		return ""
	}

	keep := 1
	switch strings.ToUpper(parts[0]) {
	case "INSERT":
		keep = 2
		if len(parts) > 1 && strings.EqualFold(parts[1], "INTO") {
			keep = 3
		}
	case "UPDATE":
		keep = 2
	case "DELETE":
		keep = 3
	}
	return strings.Join(parts[:min(keep, len(parts))], " ")
}
