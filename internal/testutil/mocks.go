package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/livinlefevreloca/sqlcron/internal/db"
)

// MockDB is an in-memory db.Conn that records every transaction
type MockDB struct {
	mu         sync.Mutex
	serialized bool

	validateErrors map[string]error // statement substring → error
	execErrors     map[string]error // statement substring → error
	execPanics     map[string]any   // statement substring → panic value
	execDelay      time.Duration
	execGate       chan struct{}

	validated  []string
	committed  [][]string
	rolledBack [][]string
	active     int
	maxActive  int
	closed     bool
	closeErr   error
}

var _ db.Conn = (*MockDB)(nil)

func NewMockDB() *MockDB {
	return &MockDB{
		validateErrors: make(map[string]error),
		execErrors:     make(map[string]error),
		execPanics:     make(map[string]any),
	}
}

// SetSerialized controls what Serialized reports
func (m *MockDB) SetSerialized(serialized bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.serialized = serialized
}

// FailValidation makes Validate return err for statements containing substr
func (m *MockDB) FailValidation(substr string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validateErrors[substr] = err
}

// FailExec makes ExecContext return err for statements containing substr
func (m *MockDB) FailExec(substr string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execErrors[substr] = err
}

// PanicExec makes ExecContext panic with value for statements containing substr
func (m *MockDB) PanicExec(substr string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execPanics[substr] = value
}

// SetExecDelay makes every statement take at least delay
func (m *MockDB) SetExecDelay(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execDelay = delay
}

// HoldExec blocks every statement until the returned function is called
func (m *MockDB) HoldExec() (release func()) {
	gate := make(chan struct{})
	m.mu.Lock()
	m.execGate = gate
	m.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// SetCloseError makes Close return err
func (m *MockDB) SetCloseError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeErr = err
}

func (m *MockDB) Validate(_ context.Context, stmt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.validated = append(m.validated, stmt)
	for substr, err := range m.validateErrors {
		if strings.Contains(stmt, substr) {
			return err
		}
	}
	return nil
}

func (m *MockDB) BeginTx(ctx context.Context) (db.Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("mock db: closed")
	}
	m.active++
	if m.active > m.maxActive {
		m.maxActive = m.active
	}
	return &MockTx{db: m}, nil
}

func (m *MockDB) Serialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.serialized
}

func (m *MockDB) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.closeErr
}

// Closed reports whether Close has been called
func (m *MockDB) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Validated returns every statement passed to Validate
func (m *MockDB) Validated() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.validated...)
}

// Committed returns the statements of each committed transaction in commit order
func (m *MockDB) Committed() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.committed...)
}

// RolledBack returns the statements of each rolled back transaction
func (m *MockDB) RolledBack() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.rolledBack...)
}

// Active returns the number of open transactions
func (m *MockDB) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// MaxActive returns the highest number of simultaneously open transactions
func (m *MockDB) MaxActive() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxActive
}

// MockTx is a transaction opened on a MockDB
type MockTx struct {
	db    *MockDB
	stmts []string
	done  bool
}

func (tx *MockTx) ExecContext(ctx context.Context, query string, _ ...any) (sql.Result, error) {
	tx.db.mu.Lock()
	delay := tx.db.execDelay
	gate := tx.db.execGate
	var execErr error
	for substr, err := range tx.db.execErrors {
		if strings.Contains(query, substr) {
			execErr = err
		}
	}
	var execPanic any
	for substr, v := range tx.db.execPanics {
		if strings.Contains(query, substr) {
			execPanic = v
		}
	}
	tx.db.mu.Unlock()

	if execPanic != nil {
		panic(execPanic)
	}

	if delay > 0 {
		time.Sleep(delay)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if tx.done {
		return nil, sql.ErrTxDone
	}
	if execErr != nil {
		return nil, execErr
	}
	tx.stmts = append(tx.stmts, query)
	return mockResult(1), nil
}

func (tx *MockTx) Commit() error {
	return tx.finish(true)
}

func (tx *MockTx) Rollback() error {
	return tx.finish(false)
}

func (tx *MockTx) finish(commit bool) error {
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()

	if tx.done {
		return sql.ErrTxDone
	}
	tx.done = true
	tx.db.active--
	if commit {
		tx.db.committed = append(tx.db.committed, tx.stmts)
	} else {
		tx.db.rolledBack = append(tx.db.rolledBack, tx.stmts)
	}
	return nil
}

type mockResult int64

func (r mockResult) LastInsertId() (int64, error) { return 0, nil }
func (r mockResult) RowsAffected() (int64, error) { return int64(r), nil }

// MockClock provides controllable time for testing
type MockClock struct {
	mu      sync.Mutex
	current time.Time
}

func NewMockClock(start time.Time) *MockClock {
	return &MockClock{
		current: start,
	}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
}

func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = t
}

// TestLogger provides a logger that captures logs for testing
type TestLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

func NewTestLogger() *TestLogger {
	return &TestLogger{
		entries: make([]LogEntry, 0),
	}
}

func (l *TestLogger) log(level, msg string, fields ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := LogEntry{
		Level:   level,
		Message: msg,
		Fields:  make(map[string]interface{}),
	}

	for i := 0; i < len(fields); i += 2 {
		if i+1 < len(fields) {
			key := fmt.Sprintf("%v", fields[i])
			entry.Fields[key] = fields[i+1]
		}
	}

	l.entries = append(l.entries, entry)
}

func (l *TestLogger) GetEntriesByLevel(level string) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make([]LogEntry, 0)
	for _, entry := range l.entries {
		if entry.Level == level {
			result = append(result, entry)
		}
	}
	return result
}

func (l *TestLogger) HasError() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, entry := range l.entries {
		if entry.Level == "ERROR" {
			return true
		}
	}
	return false
}

func (l *TestLogger) HasWarning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, entry := range l.entries {
		if entry.Level == "WARN" {
			return true
		}
	}
	return false
}

func (l *TestLogger) HasDebug() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, entry := range l.entries {
		if entry.Level == "DEBUG" {
			return true
		}
	}
	return false
}

// HasMessage reports whether a record with the given level and message was logged
func (l *TestLogger) HasMessage(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, entry := range l.entries {
		if entry.Level == level && entry.Message == msg {
			return true
		}
	}
	return false
}

// Logger returns a *slog.Logger that writes to this TestLogger
func (l *TestLogger) Logger() *slog.Logger {
	return slog.New(&testLogHandler{logger: l})
}

// testLogHandler implements slog.Handler for TestLogger
type testLogHandler struct {
	logger *TestLogger
	attrs  []slog.Attr
	groups []string
}

func (h *testLogHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (h *testLogHandler) Handle(_ context.Context, r slog.Record) error {
	level := r.Level.String()
	msg := r.Message

	// Collect all attributes
	fields := make([]interface{}, 0, r.NumAttrs()*2)
	r.Attrs(func(a slog.Attr) bool {
		fields = append(fields, a.Key, a.Value.Any())
		return true
	})

	// Add handler-level attributes
	for _, attr := range h.attrs {
		fields = append(fields, attr.Key, attr.Value.Any())
	}

	h.logger.log(level, msg, fields...)
	return nil
}

func (h *testLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)
	return &testLogHandler{
		logger: h.logger,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *testLogHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups[len(h.groups)] = name
	return &testLogHandler{
		logger: h.logger,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

// WaitFor waits for a condition to be true with timeout
func WaitFor(t TestingT, condition func() bool, timeout time.Duration, msgAndArgs ...interface{}) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return true
		}

		select {
		case <-ticker.C:
			if time.Now().After(deadline) {
				t.Errorf("timeout waiting for condition: %v", msgAndArgs)
				return false
			}
		}
	}
}

// TestingT is a minimal interface for testing
type TestingT interface {
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}
