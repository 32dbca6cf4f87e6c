package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jpillora/backoff"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Conn is the database surface the scheduler depends on
type Conn interface {
	// Validate prepares stmt without executing it
	Validate(ctx context.Context, stmt string) error
	// BeginTx opens a transaction
	BeginTx(ctx context.Context) (Tx, error)
	// Serialized reports whether writer transactions must not overlap
	Serialized() bool
	Close() error
}

// Tx is an open transaction. *sql.Tx satisfies it.
type Tx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Commit() error
	Rollback() error
}

// DB wraps sql.DB with additional context
type DB struct {
	*sql.DB
	driver string
}

var _ Conn = (*DB)(nil)

// Standard errors
var (
	ErrDuplicate  = errors.New("db: duplicate key")
	ErrForeignKey = errors.New("db: foreign key violation")
)

// Open creates a new database connection
func Open(driver, dsn string) (*DB, error) {
	db, err := sql.Open(driver, sqliteDSN(driver, dsn))
	if err != nil {
		return nil, err
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return newDB(db, driver)
}

// OpenWithConfig creates an instrumented connection with custom
// configuration, retrying the initial ping with backoff until
// ConnectTimeout elapses
func OpenWithConfig(ctx context.Context, config Config) (*DB, error) {
	driver, err := config.DriverName()
	if err != nil {
		return nil, err
	}
	dsn, err := config.ConnString()
	if err != nil {
		return nil, err
	}

	system := dbSystem(driver)
	sqlDB, err := otelsql.Open(driver, sqliteDSN(driver, dsn), otelsql.WithAttributes(system))
	if err != nil {
		return nil, err
	}
	if err := otelsql.RegisterDBStatsMetrics(sqlDB, otelsql.WithAttributes(system)); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("register database metrics: %w", err)
	}

	// Apply connection pool settings
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}
	if config.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	}

	if err := pingWithRetry(ctx, sqlDB, config.ConnectTimeout); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("connect to %s: %w", config.Name(), err)
	}

	return newDB(sqlDB, driver)
}

func dbSystem(driver string) attribute.KeyValue {
	switch driver {
	case DriverMySQL:
		return semconv.DBSystemMySQL
	case DriverPostgres:
		return semconv.DBSystemPostgreSQL
	default:
		return semconv.DBSystemSqlite
	}
}

// sqliteDSN adds the foreign key and busy timeout pragmas to a SQLite DSN
// unless it already sets them. Pragmas are per connection, so they go in the
// DSN where every pooled connection applies them on open.
func sqliteDSN(driver, dsn string) string {
	var params [2]string
	switch driver {
	case DriverSQLite3:
		params = [2]string{"_foreign_keys=1", "_busy_timeout=5000"}
	case DriverSQLite:
		params = [2]string{"_pragma=foreign_keys(1)", "_pragma=busy_timeout(5000)"}
	default:
		return dsn
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	for i, name := range [2]string{"foreign_keys", "busy_timeout"} {
		if strings.Contains(dsn, name) {
			continue
		}
		dsn += sep + params[i]
		sep = "&"
	}
	return dsn
}

func newDB(sqlDB *sql.DB, driver string) (*DB, error) {
	return &DB{
		DB:     sqlDB,
		driver: driver,
	}, nil
}

func pingWithRetry(ctx context.Context, sqlDB *sql.DB, timeout time.Duration) error {
	retry := backoff.Backoff{Min: 100 * time.Millisecond, Max: 5 * time.Second, Jitter: true}
	deadline := time.Now().Add(timeout)

	for {
		err := sqlDB.PingContext(ctx)
		if err == nil {
			return nil
		}

		wait := retry.Duration()
		if time.Now().Add(wait).After(deadline) {
			return err
		}

		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(wait):
		}
	}
}

// Driver returns the database driver name
func (db *DB) Driver() string {
	return db.driver
}

// Serialized reports whether the backend is a single-writer engine
func (db *DB) Serialized() bool {
	return IsSerialized(db.driver)
}

// Validate prepares stmt against the live connection and discards the
// prepared statement, so syntax and referenced objects are checked without
// executing anything
func (db *DB) Validate(ctx context.Context, stmt string) error {
	prepared, err := db.PrepareContext(ctx, stmt)
	if err != nil {
		return err
	}
	return prepared.Close()
}

// BeginTx starts a new transaction
func (db *DB) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := db.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// WithTransaction executes fn within a transaction opened on conn.
// Commits on success, rolls back on error or panic.
func WithTransaction(ctx context.Context, conn Conn, fn func(Tx) error) error {
	tx, err := conn.BeginTx(ctx)
	if err != nil {
		return err
	}

	// Make sure we make a best effort to rollback on panic
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// Error classification functions

// IsDuplicate checks if error is a duplicate key error
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrDuplicate) {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}

	// Check database-specific error messages
	errMsg := err.Error()
	return strings.Contains(errMsg, "UNIQUE constraint failed") ||
		strings.Contains(errMsg, "duplicate key") ||
		strings.Contains(errMsg, "Duplicate entry")
}

// IsForeignKey checks if error is a foreign key error
func IsForeignKey(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrForeignKey) {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1451 || myErr.Number == 1452
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.ForeignKeyViolation
	}

	// Check database-specific error messages
	errMsg := err.Error()
	return strings.Contains(errMsg, "FOREIGN KEY constraint failed") ||
		strings.Contains(errMsg, "foreign key constraint") ||
		strings.Contains(errMsg, "violates foreign key constraint")
}

// Classify returns a short label for an execution error, used in logs
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case IsDuplicate(err):
		return "duplicate"
	case IsForeignKey(err):
		return "foreign_key"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}
