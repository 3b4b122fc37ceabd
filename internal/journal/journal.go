// Package journal provides git-style versioning over the event store:
// branches, immutable commits, tags, diffs, and context reconstruction.
// It owns the branch/commit/tag tables and never writes events.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/qaforge/recall/internal/event"
	"github.com/qaforge/recall/internal/observe"
	"github.com/qaforge/recall/internal/store"
)

// MainBranch always exists and cannot be deleted.
const MainBranch = "main"

// Journal is the memory journal. Safe for concurrent use as long as the
// store honors the AdvanceHead CAS contract; concurrent commits to the same
// branch surface as event.ErrConflict and are the caller's to retry.
type Journal struct {
	store store.EventStore
	obs   *observe.Observer
}

// New creates a journal and ensures the main branch exists.
func New(ctx context.Context, st store.EventStore, obs *observe.Observer) (*Journal, error) {
	j := &Journal{store: st, obs: obs}
	if _, err := st.GetBranch(ctx, MainBranch); err != nil {
		if !errors.Is(err, event.ErrNotFound) {
			return nil, err
		}
		b := &store.Branch{
			Name:        MainBranch,
			CreatedAt:   time.Now().UTC(),
			Description: "primary memory lineage",
		}
		if err := st.CreateBranch(ctx, b); err != nil {
			return nil, err
		}
		obs.Log().Info().Str("branch", MainBranch).Msg("created main branch")
	}
	return j, nil
}

// CreateBranch creates a branch whose head equals the source branch's
// current head. This is a pointer copy: no events or commits are duplicated.
func (j *Journal) CreateBranch(ctx context.Context, name, fromBranch, description string) (*store.Branch, error) {
	src, err := j.store.GetBranch(ctx, fromBranch)
	if err != nil {
		return nil, err
	}
	if _, err := j.store.GetBranch(ctx, name); err == nil {
		return nil, fmt.Errorf("branch %s: %w", name, event.ErrAlreadyExists)
	} else if !errors.Is(err, event.ErrNotFound) {
		return nil, err
	}

	b := &store.Branch{
		Name:        name,
		HeadCommit:  src.HeadCommit,
		CreatedAt:   time.Now().UTC(),
		Description: description,
	}
	if err := j.store.CreateBranch(ctx, b); err != nil {
		return nil, err
	}

	j.obs.Log().Info().Str("branch", name).Str("from", fromBranch).Msg("branch created")
	return b, nil
}

// Commit appends an immutable commit parented on the branch's current head
// and advances the head. Event ids are not validated here; missing ids
// surface at read time and are skipped by EventsAtCommit.
func (j *Journal) Commit(ctx context.Context, branch string, eventIDs []string, message, author string, tags []string) (*store.Commit, error) {
	ctx, span := j.obs.StartSpan(ctx, "journal.Commit")
	defer span.End()

	b, err := j.store.GetBranch(ctx, branch)
	if err != nil {
		return nil, err
	}

	c := &store.Commit{
		ID:        "mc-" + uuid.NewString(),
		Branch:    branch,
		Message:   message,
		Author:    author,
		Timestamp: time.Now().UTC(),
		EventIDs:  append([]string(nil), eventIDs...),
		Parent:    b.HeadCommit,
		Tags:      append([]string(nil), tags...),
	}
	if err := j.store.InsertCommit(ctx, c); err != nil {
		return nil, err
	}
	if err := j.store.AdvanceHead(ctx, branch, b.HeadCommit, c.ID); err != nil {
		// A concurrent commit won the head; the inserted commit stays
		// orphaned and the caller decides whether to retry.
		return nil, err
	}

	j.obs.Log().Info().
		Str("branch", branch).
		Str("commit", c.ID).
		Int("events", len(c.EventIDs)).
		Msg("commit recorded")
	return c, nil
}

// GetCommit returns a commit by id.
func (j *Journal) GetCommit(ctx context.Context, id string) (*store.Commit, error) {
	return j.store.GetCommit(ctx, id)
}

// SetCommitTags replaces a commit's label set, the only mutable commit
// field. Event ids are untouched.
func (j *Journal) SetCommitTags(ctx context.Context, id string, tags []string) error {
	return j.store.UpdateCommitTags(ctx, id, tags)
}

// History walks the parent chain from the branch head, most recent first.
// The chain may cross into the source branch's lineage for branches created
// with CreateBranch.
func (j *Journal) History(ctx context.Context, branch string, limit int) ([]*store.Commit, error) {
	b, err := j.store.GetBranch(ctx, branch)
	if err != nil {
		return nil, err
	}

	var out []*store.Commit
	id := b.HeadCommit
	for id != "" {
		if limit > 0 && len(out) >= limit {
			break
		}
		c, err := j.store.GetCommit(ctx, id)
		if err != nil {
			if errors.Is(err, event.ErrNotFound) {
				break
			}
			return nil, err
		}
		out = append(out, c)
		id = c.Parent
	}
	return out, nil
}

// EventsAtCommit resolves the commit's event ids in their recorded order.
// Missing ids are skipped: a compacted event does not invalidate history.
func (j *Journal) EventsAtCommit(ctx context.Context, commitID string) ([]*event.Event, error) {
	c, err := j.store.GetCommit(ctx, commitID)
	if err != nil {
		return nil, err
	}

	out := make([]*event.Event, 0, len(c.EventIDs))
	for _, id := range c.EventIDs {
		ev, err := j.store.GetEvent(ctx, id)
		if err != nil {
			if errors.Is(err, event.ErrNotFound) {
				j.obs.Log().Warn().Str("commit", commitID).Str("event", id).Msg("skipping missing event")
				continue
			}
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// EventsAtTag resolves a tag's commit and returns its events.
func (j *Journal) EventsAtTag(ctx context.Context, tagName string) ([]*event.Event, error) {
	t, err := j.store.GetTag(ctx, tagName)
	if err != nil {
		return nil, err
	}
	return j.EventsAtCommit(ctx, t.CommitID)
}

// CreateTag points a new named tag at an existing commit.
func (j *Journal) CreateTag(ctx context.Context, name, commitID, message string) (*store.Tag, error) {
	if _, err := j.store.GetCommit(ctx, commitID); err != nil {
		return nil, err
	}
	if _, err := j.store.GetTag(ctx, name); err == nil {
		return nil, fmt.Errorf("tag %s: %w", name, event.ErrAlreadyExists)
	} else if !errors.Is(err, event.ErrNotFound) {
		return nil, err
	}

	t := &store.Tag{
		Name:      name,
		CommitID:  commitID,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if err := j.store.InsertTag(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// DeleteTag removes a tag. The commit it pointed to is unaffected.
func (j *Journal) DeleteTag(ctx context.Context, name string) error {
	if _, err := j.store.GetTag(ctx, name); err != nil {
		return err
	}
	return j.store.DeleteTag(ctx, name)
}
