package db

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
)

// Supported driver names, as registered with database/sql
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "pgx"
	DriverSQLite3  = "sqlite3" // github.com/mattn/go-sqlite3 (cgo)
	DriverSQLite   = "sqlite"  // modernc.org/sqlite (pure Go)
)

// MySQL connection protocols
const (
	ProtocolSocket = "socket"
	ProtocolTCP    = "tcp"
)

// Config errors
var (
	ErrInvalidDriver   = errors.New("db: invalid driver")
	ErrInvalidProtocol = errors.New("db: invalid protocol")
)

// Config holds database connection configuration.
//
// DSN is passed to the driver as-is when set. For MySQL the structured
// fields (User, Password, Protocol, Address, Database, TLS) are used to
// build one when DSN is empty.
type Config struct {
	Driver string `toml:"driver" yaml:"driver"`
	DSN    string `toml:"dsn" yaml:"dsn"`

	User     string `toml:"user" yaml:"user"`
	Password string `toml:"password" yaml:"password"`
	Protocol string `toml:"protocol" yaml:"protocol"`
	Address  string `toml:"address" yaml:"address"`
	Database string `toml:"database" yaml:"database"`
	TLS      bool   `toml:"tls" yaml:"tls"`

	MaxOpenConns    int           `toml:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `toml:"conn_max_idle_time" yaml:"conn_max_idle_time"`

	// How long to keep retrying the initial connection. Zero tries once.
	ConnectTimeout time.Duration `toml:"connect_timeout" yaml:"connect_timeout"`
}

// DefaultConfig returns the default MySQL-over-socket configuration
func DefaultConfig() Config {
	return Config{
		Driver:          DriverMySQL,
		Protocol:        ProtocolSocket,
		Address:         "/var/run/mysqld/mysqld.sock",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		ConnectTimeout:  30 * time.Second,
	}
}

// DriverName normalizes the configured driver to its database/sql name
func (c Config) DriverName() (string, error) {
	switch strings.ToLower(c.Driver) {
	case "mysql", "mariadb":
		return DriverMySQL, nil
	case "postgres", "postgresql", "pgx":
		return DriverPostgres, nil
	case "sqlite3":
		return DriverSQLite3, nil
	case "sqlite":
		return DriverSQLite, nil
	default:
		return "", fmt.Errorf("%w: %q (must be mysql, postgres, sqlite3 or sqlite)", ErrInvalidDriver, c.Driver)
	}
}

// Serialized reports whether the driver cannot tolerate concurrent writer
// transactions from this process
func (c Config) Serialized() bool {
	driver, err := c.DriverName()
	if err != nil {
		return false
	}
	return IsSerialized(driver)
}

// IsSerialized reports whether a database/sql driver name is a single-writer backend
func IsSerialized(driver string) bool {
	return driver == DriverSQLite3 || driver == DriverSQLite
}

// ConnString returns the data source name passed to sql.Open
func (c Config) ConnString() (string, error) {
	driver, err := c.DriverName()
	if err != nil {
		return "", err
	}
	if c.DSN != "" {
		return c.DSN, nil
	}

	switch driver {
	case DriverMySQL:
		mc, err := c.mysqlConfig()
		if err != nil {
			return "", err
		}
		return mc.FormatDSN(), nil
	default:
		return "", fmt.Errorf("db: dsn must be specified for driver %s", c.Driver)
	}
}

func (c Config) mysqlConfig() (*mysql.Config, error) {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.DBName = c.Database
	mc.Addr = c.Address

	switch strings.ToLower(c.Protocol) {
	case ProtocolSocket, "":
		mc.Net = "unix"
	case ProtocolTCP:
		mc.Net = "tcp"
	default:
		return nil, fmt.Errorf("%w: %q (must be socket or tcp)", ErrInvalidProtocol, c.Protocol)
	}

	if c.TLS {
		mc.TLSConfig = "true"
	}
	return mc, nil
}

// Validate checks that a connection string can be built for the configuration
func (c Config) Validate() error {
	driver, err := c.DriverName()
	if err != nil {
		return err
	}

	dsn, err := c.ConnString()
	if err != nil {
		return err
	}

	switch driver {
	case DriverMySQL:
		if _, err := mysql.ParseDSN(dsn); err != nil {
			return fmt.Errorf("db: invalid mysql dsn: %w", err)
		}
	case DriverPostgres:
		if _, err := pgx.ParseConfig(dsn); err != nil {
			return fmt.Errorf("db: invalid postgres dsn: %w", err)
		}
	}
	return nil
}

// Name returns a log-friendly identifier for the database that never
// includes credentials
func (c Config) Name() string {
	driver, err := c.DriverName()
	if err != nil {
		return c.Driver
	}
	dsn, err := c.ConnString()
	if err != nil {
		return driver
	}

	switch driver {
	case DriverMySQL:
		mc, err := mysql.ParseDSN(dsn)
		if err != nil {
			return driver
		}
		if mc.Net == "unix" {
			return fmt.Sprintf("unix/%s", mc.DBName)
		}
		return fmt.Sprintf("%s(%s)/%s?tls=%t", mc.Net, mc.Addr, mc.DBName, mc.TLSConfig != "" && mc.TLSConfig != "false")
	case DriverPostgres:
		pc, err := pgx.ParseConfig(dsn)
		if err != nil {
			return driver
		}
		return fmt.Sprintf("postgres(%s:%d)/%s", pc.Host, pc.Port, pc.Database)
	default:
		path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
		return fmt.Sprintf("%s/%s", driver, filepath.Base(path))
	}
}
