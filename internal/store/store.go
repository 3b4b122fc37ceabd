// Package store defines the EventStore contract the engine consumes, plus
// two implementations: a SQLite-backed store for real deployments and an
// in-memory store for tests and embedding.
package store

import (
	"context"
	"time"

	"github.com/qaforge/recall/internal/event"
)

// Query narrows an event scan. Zero values mean "no constraint"; Limit
// must be set by callers so scans stay bounded.
type Query struct {
	Project       string
	Branch        string
	Types         []event.Type
	TagsInclude   []string // any-of
	MinImportance float64
	Since         time.Time
	Until         time.Time
	Limit         int
}

// EventStore is the persistence collaborator. Events are append-only and
// immutable; the branch/commit/tag tables back the memory journal.
//
// Concurrency contract: AdvanceHead is the single atomic write on a branch
// head. Implementations must compare the stored head against expectHead and
// return event.ErrConflict on mismatch, so concurrent commits to the same
// branch serialize through optimistic retries at the caller. Commits to
// different branches need no coordination.
type EventStore interface {
	// Ingest appends an immutable event.
	Ingest(ctx context.Context, ev *event.Event) error
	// GetEvent returns the event or event.ErrNotFound.
	GetEvent(ctx context.Context, id string) (*event.Event, error)
	// QueryEvents returns matching events ordered by timestamp descending.
	QueryEvents(ctx context.Context, q Query) ([]*event.Event, error)

	ListBranches(ctx context.Context) ([]*Branch, error)
	GetBranch(ctx context.Context, name string) (*Branch, error)
	CreateBranch(ctx context.Context, b *Branch) error
	DeleteBranch(ctx context.Context, name string) error
	// AdvanceHead atomically moves a branch head from expectHead to commitID.
	// Returns event.ErrConflict if the stored head is no longer expectHead.
	AdvanceHead(ctx context.Context, branch, expectHead, commitID string) error

	InsertCommit(ctx context.Context, c *Commit) error
	GetCommit(ctx context.Context, id string) (*Commit, error)
	// ListCommits returns commits whose branch column equals branch,
	// most recent first.
	ListCommits(ctx context.Context, branch string, limit int) ([]*Commit, error)
	// UpdateCommitTags replaces the commit's tag set, the only mutable field.
	UpdateCommitTags(ctx context.Context, id string, tags []string) error
	CountCommits(ctx context.Context, branch string) (int, error)
	CountCommitsSince(ctx context.Context, since time.Time) (int, error)

	InsertTag(ctx context.Context, t *Tag) error
	GetTag(ctx context.Context, name string) (*Tag, error)
	DeleteTag(ctx context.Context, name string) error
	ListTags(ctx context.Context) ([]*Tag, error)

	Close() error
}
