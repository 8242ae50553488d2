package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Supported storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds database configuration
// ARCHITECTURAL DISCOVERY: Configuration struct provides all database settings
// needed for production deployment without hardcoded values
type Config struct {
	Driver          string        `json:"driver"`
	DatabasePath    string        `json:"database_path"`
	DSN             string        `json:"dsn"`
	MaxConnections  int           `json:"max_connections"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	WriteRetryDelay time.Duration `json:"write_retry_delay"`
}

// DefaultConfig returns production-ready database configuration
// FUNCTIONAL DISCOVERY: SQLite performs optimally with a small pool since all
// writes are serialized through a single goroutine anyway
func DefaultConfig() *Config {
	return &Config{
		Driver:          DriverSQLite,
		DatabasePath:    "./data/globalchat.db",
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute * 10,
		WriteRetryDelay: 5 * time.Second,
	}
}

// Validate ensures the configuration is valid
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverSQLite:
		if c.DatabasePath == "" {
			return errors.New("database path cannot be empty")
		}
	case DriverPostgres:
		if c.DSN == "" {
			return errors.New("postgres DSN cannot be empty")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Driver)
	}
	if c.MaxConnections <= 0 {
		return errors.New("max connections must be greater than 0")
	}
	if c.ConnMaxLifetime <= 0 {
		return errors.New("connection max lifetime must be greater than 0")
	}
	if c.ConnMaxIdleTime <= 0 {
		return errors.New("connection max idle time must be greater than 0")
	}
	if c.WriteRetryDelay < 0 {
		return errors.New("write retry delay cannot be negative")
	}
	return nil
}

// MigrationURL returns the golang-migrate database URL for this config.
func (c *Config) MigrationURL() string {
	if c.Driver == DriverPostgres {
		return c.DSN
	}
	return "sqlite3://" + c.DatabasePath
}

// SQLite optimization pragmas
// ARCHITECTURAL DISCOVERY: WAL mode enables concurrent reads while maintaining
// the single-writer pattern the SQLite manager relies on
const sqliteOptimizations = `
	PRAGMA journal_mode = WAL;
	PRAGMA synchronous = NORMAL;
	PRAGMA cache_size = -64000;
	PRAGMA temp_store = MEMORY;
	PRAGMA busy_timeout = 5000;
`

// OpenSQLite opens the configured SQLite file with pool limits and pragmas
// applied.
func OpenSQLite(c *Config) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", c.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(c.MaxConnections)
	db.SetMaxIdleConns(c.MaxConnections / 2)
	db.SetConnMaxLifetime(c.ConnMaxLifetime)
	db.SetConnMaxIdleTime(c.ConnMaxIdleTime)

	if err := applySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}
	return db, nil
}

func applySQLiteOptimizations(db *sql.DB) error {
	_, err := db.Exec(sqliteOptimizations)
	return err
}
