package events

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/livinlefevreloca/sqlcron/internal/cron"
	"github.com/livinlefevreloca/sqlcron/internal/db"
	"github.com/livinlefevreloca/sqlcron/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSQLite opens a file-backed SQLite database with a single counters table
func newSQLite(t *testing.T) *db.DB {
	t.Helper()

	conn, err := db.Open(db.DriverSQLite3, filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	_, err = conn.Exec(`CREATE TABLE counters (name TEXT PRIMARY KEY, value INTEGER NOT NULL)`)
	require.NoError(t, err)
	return conn
}

func countCounters(t *testing.T, conn *db.DB) int {
	t.Helper()
	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM counters`).Scan(&n))
	return n
}

func everyMinute(t *testing.T) cron.Schedule {
	t.Helper()
	s, err := cron.Parse("* * * * *")
	require.NoError(t, err)
	return s
}

func TestEvent_StatementsIsCopy(t *testing.T) {
	evt := New("copy", everyMinute(t), []string{"UPDATE t SET a = 1"})

	stmts := evt.Statements()
	stmts[0] = "DROP TABLE t"

	assert.Equal(t, []string{"UPDATE t SET a = 1"}, evt.Statements())
}

func TestEvent_String(t *testing.T) {
	s, err := cron.Parse("0 3 * * * @startup")
	require.NoError(t, err)

	evt := New("nightly", s, []string{"SELECT 1"})
	assert.Equal(t, "nightly: 0 3 * * * @startup", evt.String())
}

func TestRun_CommitsAllStatements(t *testing.T) {
	mock := testutil.NewMockDB()
	evt := New("pair", everyMinute(t), []string{"UPDATE a SET x = 1", "UPDATE b SET y = 2"})

	err := evt.Run(context.Background(), mock, testutil.NewTestLogger().Logger())

	require.NoError(t, err)
	assert.Equal(t, [][]string{{"UPDATE a SET x = 1", "UPDATE b SET y = 2"}}, mock.Committed())
	assert.Empty(t, mock.RolledBack())
	assert.Equal(t, 0, mock.Active())
}

func TestRun_RollsBackOnFailure(t *testing.T) {
	mock := testutil.NewMockDB()
	execErr := errors.New("deadlock")
	mock.FailExec("UPDATE b", execErr)
	evt := New("pair", everyMinute(t), []string{"UPDATE a SET x = 1", "UPDATE b SET y = 2", "UPDATE c SET z = 3"})

	err := evt.Run(context.Background(), mock, testutil.NewTestLogger().Logger())

	var execError *ExecutionError
	require.True(t, errors.As(err, &execError))
	assert.Equal(t, "pair", execError.Label)
	assert.Equal(t, 1, execError.Index)
	assert.Equal(t, "UPDATE b SET y = 2", execError.Statement)
	assert.True(t, errors.Is(err, execErr))

	assert.Empty(t, mock.Committed())
	assert.Equal(t, [][]string{{"UPDATE a SET x = 1"}}, mock.RolledBack())
}

func TestRun_RollsBackOnDriverPanic(t *testing.T) {
	mock := testutil.NewMockDB()
	mock.PanicExec("UPDATE b", "driver bug mid-exec")
	evt := New("fragile", everyMinute(t), []string{"UPDATE a SET x = 1", "UPDATE b SET y = 2"})

	assert.PanicsWithValue(t, "driver bug mid-exec", func() {
		_ = evt.Run(context.Background(), mock, testutil.NewTestLogger().Logger())
	})

	assert.Empty(t, mock.Committed())
	assert.Equal(t, [][]string{{"UPDATE a SET x = 1"}}, mock.RolledBack())
	assert.Equal(t, 0, mock.Active())
}

func TestRun_BeginFailureNamesEvent(t *testing.T) {
	mock := testutil.NewMockDB()
	require.NoError(t, mock.Close())
	evt := New("closed", everyMinute(t), []string{"UPDATE a SET x = 1"})

	err := evt.Run(context.Background(), mock, testutil.NewTestLogger().Logger())

	require.Error(t, err)
	assert.Contains(t, err.Error(), `event "closed"`)
	var execError *ExecutionError
	assert.False(t, errors.As(err, &execError))
}

func TestEvent_Len(t *testing.T) {
	evt := New("pair", everyMinute(t), []string{"UPDATE a SET x = 1", "UPDATE b SET y = 2"})
	assert.Equal(t, 2, evt.Len())
}

func TestRun_SecondStatementFailureLeavesNothingCommitted(t *testing.T) {
	conn := newSQLite(t)
	evt := New("dup", everyMinute(t), []string{
		`INSERT INTO counters (name, value) VALUES ('a', 1)`,
		`INSERT INTO counters (name, value) VALUES ('a', 2)`,
	})

	err := evt.Run(context.Background(), conn, testutil.NewTestLogger().Logger())

	require.Error(t, err)
	assert.True(t, db.IsDuplicate(err))
	assert.Equal(t, 0, countCounters(t, conn))
}

func TestRun_SQLiteCommit(t *testing.T) {
	conn := newSQLite(t)
	evt := New("seed", everyMinute(t), []string{
		`INSERT INTO counters (name, value) VALUES ('a', 1)`,
		`UPDATE counters SET value = value + 1 WHERE name = 'a'`,
	})
	logger := testutil.NewTestLogger()

	require.NoError(t, evt.Run(context.Background(), conn, logger.Logger()))

	var value int
	require.NoError(t, conn.QueryRow(`SELECT value FROM counters WHERE name = 'a'`).Scan(&value))
	assert.Equal(t, 2, value)

	debug := logger.GetEntriesByLevel("DEBUG")
	require.Len(t, debug, 2)
	assert.Equal(t, "INSERT INTO counters", debug[0].Fields["action"])
	assert.EqualValues(t, 1, debug[1].Fields["rows_affected"])
}

func TestAction(t *testing.T) {
	tests := []struct {
		stmt string
		want string
	}{
		{"INSERT INTO audit VALUES (1)", "INSERT INTO audit"},
		{"insert ignore audit VALUES (1)", "insert ignore"},
		{"UPDATE sessions SET a = 1", "UPDATE sessions"},
		{"DELETE FROM sessions WHERE 1", "DELETE FROM sessions"},
		{"  TRUNCATE TABLE t", "TRUNCATE"},
		{"DELETE", "DELETE"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.stmt, func(t *testing.T) {
			assert.Equal(t, tt.want, Action(tt.stmt))
		})
	}
}

func TestLoad_ValidatesAgainstDatabase(t *testing.T) {
	conn := newSQLite(t)
	path := filepath.Join(t.TempDir(), "events.conf")
	require.NoError(t, os.WriteFile(path, []byte(
		"tick: * * * * *\n\tINSERT INTO counters (name, value) VALUES ('tick', 1);\n"), 0o644))

	evts, err := Load(context.Background(), path, conn, testutil.NewTestLogger().Logger())

	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, 0, countCounters(t, conn))
}

func TestLoad_UnknownTableFails(t *testing.T) {
	conn := newSQLite(t)
	path := filepath.Join(t.TempDir(), "events.conf")
	require.NoError(t, os.WriteFile(path, []byte(
		"tick: * * * * *\n\tINSERT INTO nope VALUES (1);\n"), 0o644))

	evts, err := Load(context.Background(), path, conn, testutil.NewTestLogger().Logger())

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Nil(t, evts)
	assert.Contains(t, err.Error(), path)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "absent.conf"),
		testutil.NewMockDB(), testutil.NewTestLogger().Logger())

	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestWatch_WarnsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.conf")
	require.NoError(t, os.WriteFile(path, []byte("# empty\n"), 0o644))

	logger := testutil.NewTestLogger()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, logger.Logger()) }()

	// Keep writing until the watcher is registered and reports the change
	testutil.WaitFor(t, func() bool {
		os.WriteFile(path, []byte("# changed\n"), 0o644)
		return logger.HasMessage("WARN", "events file changed; restart to apply")
	}, 5*time.Second, "watcher never reported a change")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
