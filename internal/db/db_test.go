package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Fixtures and Helpers

// NewTestDB creates a file-backed SQLite database for testing
func NewTestDB(t *testing.T) *DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(DriverSQLite3, path)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if _, err := db.Exec(`CREATE TABLE counters (name TEXT PRIMARY KEY, value INTEGER NOT NULL)`); err != nil {
		db.Close()
		t.Fatalf("failed to initialize test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func countRows(t *testing.T, db *DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM counters`).Scan(&n))
	return n
}

// Config tests

func TestConfig_DriverName(t *testing.T) {
	tests := []struct {
		driver string
		want   string
	}{
		{"mysql", DriverMySQL},
		{"MariaDB", DriverMySQL},
		{"postgres", DriverPostgres},
		{"postgresql", DriverPostgres},
		{"sqlite3", DriverSQLite3},
		{"sqlite", DriverSQLite},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			got, err := Config{Driver: tt.driver}.DriverName()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Config{Driver: "oracle"}.DriverName()
	assert.True(t, errors.Is(err, ErrInvalidDriver))
}

func TestConfig_Serialized(t *testing.T) {
	assert.True(t, Config{Driver: "sqlite3"}.Serialized())
	assert.True(t, Config{Driver: "sqlite"}.Serialized())
	assert.False(t, Config{Driver: "mysql"}.Serialized())
	assert.False(t, Config{Driver: "postgres"}.Serialized())
	assert.False(t, Config{Driver: "bogus"}.Serialized())
}

func TestConfig_MySQLSocketDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.User = "timers"
	cfg.Password = "secret"
	cfg.Database = "app"

	dsn, err := cfg.ConnString()
	require.NoError(t, err)

	parsed, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "unix", parsed.Net)
	assert.Equal(t, "/var/run/mysqld/mysqld.sock", parsed.Addr)
	assert.Equal(t, "timers", parsed.User)
	assert.Equal(t, "secret", parsed.Passwd)
	assert.Equal(t, "app", parsed.DBName)

	assert.Equal(t, "unix/app", cfg.Name())
	assert.NotContains(t, cfg.Name(), "secret")
}

func TestConfig_MySQLTCPDSN(t *testing.T) {
	cfg := Config{
		Driver:   "mysql",
		User:     "timers",
		Protocol: "TCP",
		Address:  "db.internal:3306",
		Database: "app",
		TLS:      true,
	}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "tcp(db.internal:3306)/app?tls=true", cfg.Name())
}

func TestConfig_InvalidProtocol(t *testing.T) {
	cfg := Config{Driver: "mysql", Protocol: "carrier-pigeon", Database: "app"}

	err := cfg.Validate()
	assert.True(t, errors.Is(err, ErrInvalidProtocol))
}

func TestConfig_ExplicitDSNWins(t *testing.T) {
	cfg := Config{Driver: "postgres", DSN: "postgres://u:p@pg.internal:5433/events", User: "ignored"}

	require.NoError(t, cfg.Validate())
	dsn, err := cfg.ConnString()
	require.NoError(t, err)
	assert.Equal(t, cfg.DSN, dsn)
	assert.Equal(t, "postgres(pg.internal:5433)/events", cfg.Name())
}

func TestConfig_DSNRequired(t *testing.T) {
	for _, driver := range []string{"postgres", "sqlite3", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			assert.Error(t, Config{Driver: driver}.Validate())
		})
	}
}

func TestConfig_SQLiteName(t *testing.T) {
	cfg := Config{Driver: "sqlite3", DSN: "file:/var/lib/timers/app.db?_journal=WAL"}
	assert.Equal(t, "sqlite3/app.db", cfg.Name())
}

// Connection tests

func TestOpenWithConfig_SQLite(t *testing.T) {
	for _, driver := range []string{"sqlite3", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			cfg := Config{Driver: driver, DSN: filepath.Join(t.TempDir(), "open.db")}

			db, err := OpenWithConfig(context.Background(), cfg)
			require.NoError(t, err)
			defer db.Close()

			assert.True(t, db.Serialized())
			assert.Equal(t, driver, db.Driver())
		})
	}
}

func TestOpenWithConfig_PragmasOnEveryConnection(t *testing.T) {
	for _, driver := range []string{"sqlite3", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			cfg := Config{Driver: driver, DSN: filepath.Join(t.TempDir(), "pragma.db"), MaxOpenConns: 4}

			db, err := OpenWithConfig(ctx, cfg)
			require.NoError(t, err)
			defer db.Close()

			// Hold both so the pool has to open a second connection
			first, err := db.Conn(ctx)
			require.NoError(t, err)
			defer first.Close()
			second, err := db.Conn(ctx)
			require.NoError(t, err)
			defer second.Close()

			for i, conn := range []*sql.Conn{first, second} {
				var foreignKeys, busyTimeout int
				require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&foreignKeys))
				require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busyTimeout))
				assert.Equal(t, 1, foreignKeys, "connection %d foreign_keys", i)
				assert.Equal(t, 5000, busyTimeout, "connection %d busy_timeout", i)
			}
		})
	}
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		driver string
		dsn    string
		want   string
	}{
		{DriverSQLite3, "/data/app.db", "/data/app.db?_foreign_keys=1&_busy_timeout=5000"},
		{DriverSQLite3, "file:app.db?_journal=WAL", "file:app.db?_journal=WAL&_foreign_keys=1&_busy_timeout=5000"},
		{DriverSQLite3, "app.db?_busy_timeout=100", "app.db?_busy_timeout=100&_foreign_keys=1"},
		{DriverSQLite, "/data/app.db", "/data/app.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"},
		{DriverSQLite, "app.db?_pragma=foreign_keys(0)", "app.db?_pragma=foreign_keys(0)&_pragma=busy_timeout(5000)"},
		{DriverMySQL, "u:p@tcp(db:3306)/app", "u:p@tcp(db:3306)/app"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, sqliteDSN(tt.driver, tt.dsn), "%s %s", tt.driver, tt.dsn)
	}
}

func TestOpenWithConfig_InvalidDriver(t *testing.T) {
	_, err := OpenWithConfig(context.Background(), Config{Driver: "oracle", DSN: "x"})
	assert.True(t, errors.Is(err, ErrInvalidDriver))
}

func TestOpenWithConfig_GivesUpAfterTimeout(t *testing.T) {
	cfg := Config{
		Driver:         "mysql",
		Protocol:       "tcp",
		Address:        "127.0.0.1:1",
		Database:       "app",
		ConnectTimeout: 300 * time.Millisecond,
	}

	start := time.Now()
	_, err := OpenWithConfig(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tcp(127.0.0.1:1)/app")
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestValidate(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	assert.NoError(t, db.Validate(ctx, `INSERT INTO counters (name, value) VALUES ('a', 1)`))
	assert.Error(t, db.Validate(ctx, `INSERT INTO missing_table VALUES (1)`))
	assert.Error(t, db.Validate(ctx, `INSRT INTO counters VALUES (1)`))

	// Validation never executes anything
	assert.Equal(t, 0, countRows(t, db))
}

func TestWithTransaction_Commit(t *testing.T) {
	db := NewTestDB(t)

	err := WithTransaction(context.Background(), db, func(tx Tx) error {
		_, err := tx.ExecContext(context.Background(), `INSERT INTO counters (name, value) VALUES ('a', 1)`)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countRows(t, db))
}

func TestWithTransaction_RollbackOnError(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	err := WithTransaction(ctx, db, func(tx Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO counters (name, value) VALUES ('a', 1)`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO counters (name, value) VALUES ('a', 2)`)
		return err
	})
	require.Error(t, err)
	assert.True(t, IsDuplicate(err))
	assert.Equal(t, 0, countRows(t, db))
}

func TestWithTransaction_RollbackOnPanic(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = WithTransaction(ctx, db, func(tx Tx) error {
			tx.ExecContext(ctx, `INSERT INTO counters (name, value) VALUES ('a', 1)`)
			panic("boom")
		})
	})
	assert.Equal(t, 0, countRows(t, db))
}

// Error classification tests

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrDuplicate, "duplicate"},
		{&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, "duplicate"},
		{&pgconn.PgError{Code: pgerrcode.UniqueViolation}, "duplicate"},
		{fmt.Errorf("wrapped: %w", &mysql.MySQLError{Number: 1452}), "foreign_key"},
		{&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}, "foreign_key"},
		{errors.New("FOREIGN KEY constraint failed"), "foreign_key"},
		{context.Canceled, "canceled"},
		{errors.New("syntax error"), "other"},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
