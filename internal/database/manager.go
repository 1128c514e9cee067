package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	// ARCHITECTURAL DISCOVERY: Import SQLite driver but only reference in connection string
	_ "github.com/mattn/go-sqlite3"

	dbconfig "classhub/pkg/database"
	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

// Manager is the sqlite-backed connection lifecycle audit log.
// ARCHITECTURAL DISCOVERY: all inserts go through one writer goroutine so
// SQLite never sees concurrent writers, and Record never waits on disk.
type Manager struct {
	db       *sql.DB
	config   *dbconfig.Config
	logger   *slog.Logger
	events   chan types.ActivityEvent
	shutdown chan struct{}
	wg       sync.WaitGroup
	dropped  atomic.Uint64
	written  atomic.Uint64
	closed   bool
	mu       sync.RWMutex
}

var _ interfaces.ActivityStore = (*Manager)(nil)

// NewManager opens the database, applies migrations and starts the writer.
func NewManager(config *dbconfig.Config, logger *slog.Logger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(config.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplyOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}
	if err := dbconfig.NewMigrationManager(db, dbconfig.Migrations()).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := dbconfig.NewSchemaValidator(db).Validate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database schema check failed: %w", err)
	}

	m := &Manager{
		db:       db,
		config:   config,
		logger:   logger,
		events:   make(chan types.ActivityEvent, config.QueueSize),
		shutdown: make(chan struct{}),
	}
	m.wg.Add(1)
	go m.writeLoop()

	logger.Info("activity store opened", "path", config.Path)
	return m, nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case event := <-m.events:
			m.insert(event)

		case <-m.shutdown:
			// Flush what was queued before Close.
			for {
				select {
				case event := <-m.events:
					m.insert(event)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) insert(event types.ActivityEvent) {
	_, err := m.db.Exec(`
		INSERT INTO connection_events (connection_id, student_id, session_id, session_type, event, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		event.ConnectionID,
		event.StudentID,
		event.SessionID,
		string(event.SessionType),
		event.Event,
		event.OccurredAt.UTC(),
	)
	if err != nil {
		m.logger.Warn("failed to write activity event",
			"connection_id", event.ConnectionID,
			"event", event.Event,
			"err", err)
		return
	}
	m.written.Add(1)
}

// Record queues event for the writer. It never blocks: when the queue is
// full or the store is closed the event is dropped and counted.
func (m *Manager) Record(event types.ActivityEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		m.dropped.Add(1)
		return
	}
	select {
	case m.events <- event:
	default:
		m.dropped.Add(1)
		m.logger.Warn("activity queue full, dropping event",
			"connection_id", event.ConnectionID,
			"event", event.Event)
	}
}

// Dropped returns the number of events discarded by Record.
func (m *Manager) Dropped() uint64 {
	return m.dropped.Load()
}

// Written returns the number of events persisted.
func (m *Manager) Written() uint64 {
	return m.written.Load()
}

// RecentActivity returns up to limit events, newest first.
func (m *Manager) RecentActivity(ctx context.Context, limit int) ([]*types.ActivityEvent, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := m.db.QueryContext(ctx, `
		SELECT connection_id, student_id, session_id, session_type, event, occurred_at
		FROM connection_events
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent activity: %w", err)
	}
	return scanEvents(rows)
}

// ConnectionActivity returns every event for one connection, oldest first.
func (m *Manager) ConnectionActivity(ctx context.Context, connectionID string) ([]*types.ActivityEvent, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx, `
		SELECT connection_id, student_id, session_id, session_type, event, occurred_at
		FROM connection_events
		WHERE connection_id = ?
		ORDER BY id ASC
	`, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query connection activity: %w", err)
	}
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*types.ActivityEvent, error) {
	defer func() { _ = rows.Close() }()

	events := []*types.ActivityEvent{}
	for rows.Next() {
		var event types.ActivityEvent
		var sessionType string
		var occurredAt time.Time
		if err := rows.Scan(
			&event.ConnectionID,
			&event.StudentID,
			&event.SessionID,
			&sessionType,
			&event.Event,
			&occurredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan activity row: %w", err)
		}
		event.SessionType = types.SessionType(sessionType)
		event.OccurredAt = occurredAt.UTC()
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity rows: %w", err)
	}
	return events, nil
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM connection_events").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close flushes queued events and closes the database. Safe to call twice.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	m.logger.Info("activity store closed", "written", m.written.Load(), "dropped", m.dropped.Load())
	return nil
}

func (m *Manager) checkOpen() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return interfaces.ErrStoreClosed
	}
	return nil
}
