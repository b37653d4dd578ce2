// Package state persists the engine's view of device-synced events and the
// per-scope sync watermarks in a local SQLite database. The device calendar
// owns event ids once written; this store is what reconciliation diffs
// against between runs.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/edusync/assignsync/internal/models"
)

const schemaVersion = 1

// Store is a SQLite-backed record of synced events and watermarks.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if necessary) the state database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	// SQLite handles one writer at a time; serialize through a single
	// connection instead of surfacing SQLITE_BUSY to callers.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version WHERE name = 'assignsync'`).Scan(&version)
	if err != nil {
		if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
			name TEXT PRIMARY KEY,
			version INTEGER NOT NULL
		)`); err != nil {
			return fmt.Errorf("failed to create schema_version table: %w", err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_version (name, version) VALUES ('assignsync', 0)`); err != nil {
			return fmt.Errorf("failed to seed schema_version table: %w", err)
		}
		version = 0
	}

	if version < 1 {
		if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS events (
			event_id      TEXT PRIMARY KEY,
			assignment_id INTEGER NOT NULL,
			course_id     INTEGER NOT NULL,
			start_time    TEXT NOT NULL,
			end_time      TEXT NOT NULL,
			title         TEXT NOT NULL,
			description   TEXT NOT NULL DEFAULT ''
		)`); err != nil {
			return fmt.Errorf("failed to create events table: %w", err)
		}
		if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS watermarks (
			scope     TEXT PRIMARY KEY,
			last_sync TEXT NOT NULL
		)`); err != nil {
			return fmt.Errorf("failed to create watermarks table: %w", err)
		}
		if _, err := s.db.Exec(`UPDATE schema_version SET version = ? WHERE name = 'assignsync'`, schemaVersion); err != nil {
			return fmt.Errorf("failed to bump schema version: %w", err)
		}
		s.logger.Debug("State schema migrated", "version", schemaVersion)
	}

	return nil
}

// Events returns the recorded events whose course falls inside the scope.
func (s *Store) Events(ctx context.Context, scope models.Scope) ([]models.CalendarEvent, error) {
	query := `SELECT event_id, assignment_id, course_id, start_time, end_time, title, description FROM events`
	args := []any{}
	if !scope.IsAll() {
		query += ` WHERE course_id = ?`
		args = append(args, scope.CourseID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.CalendarEvent
	for rows.Next() {
		var event models.CalendarEvent
		var start, end string
		if err := rows.Scan(&event.ID, &event.AssignmentID, &event.CourseID, &start, &end, &event.Title, &event.Description); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		if event.StartTime, err = time.Parse(time.RFC3339, start); err != nil {
			return nil, fmt.Errorf("bad start_time for event %s: %w", event.ID, err)
		}
		if event.EndTime, err = time.Parse(time.RFC3339, end); err != nil {
			return nil, fmt.Errorf("bad end_time for event %s: %w", event.ID, err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// PutEvent inserts or replaces an event record.
func (s *Store) PutEvent(ctx context.Context, event models.CalendarEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, assignment_id, course_id, start_time, end_time, title, description)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(event_id) DO UPDATE SET
			assignment_id = excluded.assignment_id,
			course_id     = excluded.course_id,
			start_time    = excluded.start_time,
			end_time      = excluded.end_time,
			title         = excluded.title,
			description   = excluded.description`,
		event.ID, event.AssignmentID, event.CourseID,
		event.StartTime.UTC().Format(time.RFC3339),
		event.EndTime.UTC().Format(time.RFC3339),
		event.Title, event.Description)
	if err != nil {
		return fmt.Errorf("failed to store event %s: %w", event.ID, err)
	}
	return nil
}

// DeleteEvent removes an event record. Deleting an unknown id is a no-op.
func (s *Store) DeleteEvent(ctx context.Context, eventID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE event_id = ?`, eventID); err != nil {
		return fmt.Errorf("failed to delete event %s: %w", eventID, err)
	}
	return nil
}

// Watermark returns the last successful sync time for a scope, or the zero
// time when the scope has never synced.
func (s *Store) Watermark(ctx context.Context, scope models.Scope) (time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT last_sync FROM watermarks WHERE scope = ?`, scope.Key()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query watermark: %w", err)
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad watermark for scope %s: %w", scope.Key(), err)
	}
	return t, nil
}

// SetWatermark records the last successful sync time for a scope.
func (s *Store) SetWatermark(ctx context.Context, scope models.Scope, t time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO watermarks (scope, last_sync) VALUES (?, ?)
		 ON CONFLICT(scope) DO UPDATE SET last_sync = excluded.last_sync`,
		scope.Key(), t.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to set watermark for scope %s: %w", scope.Key(), err)
	}
	return nil
}
