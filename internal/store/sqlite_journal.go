package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/qaforge/recall/internal/event"
)

// Branch Implementation

func (s *SQLiteStore) ListBranches(ctx context.Context) ([]*Branch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, head_commit, created_at, description FROM branches ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Branch
	for rows.Next() {
		var b Branch
		if err := rows.Scan(&b.Name, &b.HeadCommit, &b.CreatedAt, &b.Description); err != nil {
			return nil, err
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetBranch(ctx context.Context, name string) (*Branch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, head_commit, created_at, description FROM branches WHERE name = ?`, name)
	var b Branch
	if err := row.Scan(&b.Name, &b.HeadCommit, &b.CreatedAt, &b.Description); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("branch %s: %w", name, event.ErrNotFound)
		}
		return nil, err
	}
	return &b, nil
}

func (s *SQLiteStore) CreateBranch(ctx context.Context, b *Branch) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO branches (name, head_commit, created_at, description) VALUES (?, ?, ?, ?)`,
		b.Name, b.HeadCommit, b.CreatedAt, b.Description)
	return err
}

func (s *SQLiteStore) DeleteBranch(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM branches WHERE name = ?`, name)
	return err
}

// AdvanceHead moves the branch head with a compare-and-swap: the UPDATE only
// matches when the stored head equals expectHead, so a concurrent commit to
// the same branch surfaces as event.ErrConflict instead of a lost update.
func (s *SQLiteStore) AdvanceHead(ctx context.Context, branch, expectHead, commitID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE branches SET head_commit = ? WHERE name = ? AND head_commit = ?`,
		commitID, branch, expectHead)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetBranch(ctx, branch); err != nil {
			return err
		}
		return fmt.Errorf("branch %s head moved: %w", branch, event.ErrConflict)
	}
	return nil
}

// Commit Implementation

func (s *SQLiteStore) InsertCommit(ctx context.Context, c *Commit) error {
	idsJSON, err := json.Marshal(c.EventIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal event ids: %w", err)
	}
	tagsJSON, err := json.Marshal(c.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO commits (id, branch, message, author, timestamp, event_ids, parent, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Branch, c.Message, c.Author, c.Timestamp, string(idsJSON), c.Parent, string(tagsJSON))
	return err
}

func (s *SQLiteStore) GetCommit(ctx context.Context, id string) (*Commit, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, branch, message, author, timestamp, event_ids, parent, tags FROM commits WHERE id = ?`, id)
	c, err := scanCommit(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("commit %s: %w", id, event.ErrNotFound)
	}
	return c, err
}

func (s *SQLiteStore) ListCommits(ctx context.Context, branch string, limit int) ([]*Commit, error) {
	query := `SELECT id, branch, message, author, timestamp, event_ids, parent, tags
		FROM commits WHERE branch = ? ORDER BY timestamp DESC`
	args := []any{branch}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Commit
	for rows.Next() {
		c, err := scanCommit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateCommitTags(ctx context.Context, id string, tags []string) error {
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE commits SET tags = ? WHERE id = ?`, string(tagsJSON), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("commit %s: %w", id, event.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) CountCommits(ctx context.Context, branch string) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM commits WHERE branch = ?`, branch)
	var n int
	err := row.Scan(&n)
	return n, err
}

func (s *SQLiteStore) CountCommitsSince(ctx context.Context, since time.Time) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM commits WHERE timestamp >= ?`, since)
	var n int
	err := row.Scan(&n)
	return n, err
}

func scanCommit(row rowScanner) (*Commit, error) {
	var c Commit
	var idsJSON, tagsJSON string
	if err := row.Scan(&c.ID, &c.Branch, &c.Message, &c.Author, &c.Timestamp,
		&idsJSON, &c.Parent, &tagsJSON); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(idsJSON), &c.EventIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event ids: %w", err)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &c.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	return &c, nil
}

// Tag Implementation

func (s *SQLiteStore) InsertTag(ctx context.Context, t *Tag) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tags (name, commit_id, message, created_at) VALUES (?, ?, ?, ?)`,
		t.Name, t.CommitID, t.Message, t.CreatedAt)
	return err
}

func (s *SQLiteStore) GetTag(ctx context.Context, name string) (*Tag, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, commit_id, message, created_at FROM tags WHERE name = ?`, name)
	var t Tag
	if err := row.Scan(&t.Name, &t.CommitID, &t.Message, &t.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("tag %s: %w", name, event.ErrNotFound)
		}
		return nil, err
	}
	return &t, nil
}

func (s *SQLiteStore) DeleteTag(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tags WHERE name = ?`, name)
	return err
}

func (s *SQLiteStore) ListTags(ctx context.Context) ([]*Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, commit_id, message, created_at FROM tags ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.Name, &t.CommitID, &t.Message, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}
