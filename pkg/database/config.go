package database

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Config holds database configuration
type Config struct {
	Path            string        `yaml:"path"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	// QueueSize bounds pending audit writes; Record drops events beyond it.
	QueueSize int `yaml:"queue_size"`
}

// DefaultConfig returns the configuration used when nothing is set.
// FUNCTIONAL DISCOVERY: SQLite serves a classroom-scale audit log well with
// a small read pool and a single writer.
func DefaultConfig() *Config {
	return &Config{
		Path:            "./data/classhub.db",
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		QueueSize:       1000,
	}
}

// Validate ensures the configuration is valid
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.New("database path cannot be empty")
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
	if c.QueueSize <= 0 {
		return errors.New("queue size must be greater than 0")
	}
	return nil
}

// DSN returns the go-sqlite3 connection string for Path.
func (c *Config) DSN() string {
	return "file:" + c.Path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
}

// ARCHITECTURAL DISCOVERY: WAL mode keeps readers unblocked while the single
// writer appends audit rows.
const sqliteOptimizations = `
	PRAGMA journal_mode = WAL;
	PRAGMA synchronous = NORMAL;
	PRAGMA cache_size = -16000;
	PRAGMA temp_store = MEMORY;
	PRAGMA busy_timeout = 5000;
`

// ApplyOptimizations runs the connection pragmas against db.
func ApplyOptimizations(db *sql.DB) error {
	_, err := db.Exec(sqliteOptimizations)
	return err
}
