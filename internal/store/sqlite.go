package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/qaforge/recall/internal/event"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the reference EventStore implementation.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			type TEXT,
			project TEXT,
			branch TEXT,
			source TEXT,
			timestamp DATETIME,
			importance REAL,
			tags TEXT,
			data TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_scan ON events(project, branch, type, timestamp);`,
		`CREATE TABLE IF NOT EXISTS branches (
			name TEXT PRIMARY KEY,
			head_commit TEXT,
			created_at DATETIME,
			description TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS commits (
			id TEXT PRIMARY KEY,
			branch TEXT,
			message TEXT,
			author TEXT,
			timestamp DATETIME,
			event_ids TEXT,
			parent TEXT,
			tags TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_commits_branch ON commits(branch, timestamp);`,
		`CREATE TABLE IF NOT EXISTS tags (
			name TEXT PRIMARY KEY,
			commit_id TEXT,
			message TEXT,
			created_at DATETIME
		);`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Event Implementation

func (s *SQLiteStore) Ingest(ctx context.Context, ev *event.Event) error {
	tagsJSON, err := json.Marshal(ev.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	dataJSON, err := event.MarshalPayload(ev.Type, ev.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	query := `INSERT INTO events (id, type, project, branch, source, timestamp, importance, tags, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		ev.ID, string(ev.Type), ev.Project, ev.Branch, ev.Source,
		ev.Timestamp, ev.Importance, string(tagsJSON), string(dataJSON))
	return err
}

func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*event.Event, error) {
	query := `SELECT id, type, project, branch, source, timestamp, importance, tags, data
		FROM events WHERE id = ?`
	ev, err := scanEvent(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("event %s: %w", id, event.ErrNotFound)
	}
	return ev, err
}

func (s *SQLiteStore) QueryEvents(ctx context.Context, q Query) ([]*event.Event, error) {
	sqlQuery := `SELECT id, type, project, branch, source, timestamp, importance, tags, data FROM events WHERE 1=1`
	var args []any

	if q.Project != "" {
		sqlQuery += ` AND project = ?`
		args = append(args, q.Project)
	}
	if q.Branch != "" {
		sqlQuery += ` AND branch = ?`
		args = append(args, q.Branch)
	}
	if len(q.Types) > 0 {
		sqlQuery += ` AND type IN (?` + repeat(",?", len(q.Types)-1) + `)`
		for _, t := range q.Types {
			args = append(args, string(t))
		}
	}
	if q.MinImportance > 0 {
		sqlQuery += ` AND importance >= ?`
		args = append(args, q.MinImportance)
	}
	if !q.Since.IsZero() {
		sqlQuery += ` AND timestamp >= ?`
		args = append(args, q.Since)
	}
	if !q.Until.IsZero() {
		sqlQuery += ` AND timestamp <= ?`
		args = append(args, q.Until)
	}
	sqlQuery += ` ORDER BY timestamp DESC`

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	// Tag filtering happens in memory: tags live in a JSON column and the
	// include semantics are any-of.
	var out []*event.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		if !ev.HasAnyTag(q.TagsInclude) {
			continue
		}
		out = append(out, ev)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*event.Event, error) {
	var ev event.Event
	var typ, tagsJSON, dataJSON string
	if err := row.Scan(&ev.ID, &typ, &ev.Project, &ev.Branch, &ev.Source,
		&ev.Timestamp, &ev.Importance, &tagsJSON, &dataJSON); err != nil {
		return nil, err
	}
	ev.Type = event.Type(typ)
	if err := json.Unmarshal([]byte(tagsJSON), &ev.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	data, err := event.UnmarshalPayload([]byte(dataJSON))
	if err != nil {
		return nil, err
	}
	ev.Data = data
	return &ev, nil
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
