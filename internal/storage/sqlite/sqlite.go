package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"clicks/internal/event"
	"clicks/internal/storage"
)

type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) storage.Storage {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteStore{dbPath: dbPath, logger: logger}
}

const createEventsTableSQL = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL,
	type TEXT NOT NULL,
	target TEXT,
	clicks INTEGER NOT NULL DEFAULT 0,
	group_id TEXT,
	notes TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events (timestamp);
CREATE INDEX IF NOT EXISTS idx_events_type ON events (type);
CREATE INDEX IF NOT EXISTS idx_events_target ON events (target);
`

func (s *SQLiteStore) Init(ctx context.Context) error {
	dir := filepath.Dir(s.dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create db directory %s: %w", dir, err)
	}

	s.logger.Info("initializing SQLite database", "path", s.dbPath)
	db, err := sql.Open("sqlite3", s.dbPath+"?_journal=WAL&_timeout=5000&_fk=true")
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	s.db = db

	// SQLite is best with a single writer connection
	s.db.SetMaxOpenConns(1)
	s.db.SetMaxIdleConns(1)
	s.db.SetConnMaxLifetime(time.Minute * 5)

	if err := s.db.PingContext(ctx); err != nil {
		s.db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, createEventsTableSQL); err != nil {
		s.db.Close()
		return fmt.Errorf("failed to create events table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveEvent(ctx context.Context, e event.Event) (int64, error) {
	query := `INSERT INTO events (timestamp, type, target, clicks, group_id, notes)
	          VALUES (?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query, e.Timestamp, e.Type, e.Target, e.Clicks, e.GroupID, e.Notes)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) GetEvents(ctx context.Context, start, end time.Time, eventTypes ...event.EventType) ([]event.Event, error) {
	query := `SELECT id, timestamp, type, target, clicks, group_id, notes
	          FROM events
	          WHERE timestamp >= ? AND timestamp <= ?`
	args := []interface{}{start, end}
	query, args = withTypes(query, args, eventTypes)
	query += " ORDER BY timestamp ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var e event.Event
		var target, groupID, notes sql.NullString

		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Type, &target, &e.Clicks, &groupID, &notes); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		e.Target = target.String
		e.GroupID = groupID.String
		e.Notes = notes.String
		events = append(events, e)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return events, nil
}

func (s *SQLiteStore) CountByTarget(ctx context.Context, start, end time.Time, t event.EventType) (map[string]int, error) {
	query := `SELECT COALESCE(target, ''), COUNT(*)
	          FROM events
	          WHERE timestamp >= ? AND timestamp <= ? AND type = ?
	          GROUP BY target`
	rows, err := s.db.QueryContext(ctx, query, start, end, t)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var target string
		var n int
		if err := rows.Scan(&target, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count row: %w", err)
		}
		counts[target] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating count rows: %w", err)
	}
	return counts, nil
}

func withTypes(query string, args []interface{}, eventTypes []event.EventType) (string, []interface{}) {
	if len(eventTypes) == 0 {
		return query, args
	}
	placeholders := strings.Repeat("?,", len(eventTypes)-1) + "?"
	query += fmt.Sprintf(" AND type IN (%s)", placeholders)
	for _, et := range eventTypes {
		args = append(args, et)
	}
	return query, args
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		s.logger.Info("closing database connection")
		return s.db.Close()
	}
	return nil
}
