package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qaforge/recall/internal/event"
	"github.com/qaforge/recall/internal/store"
)

// DeleteBranch removes a branch pointer. The main branch can never be
// deleted. Without force the branch must be merged: its head must be
// reachable from another branch's head (or the branch must have no head).
// Commits themselves are never deleted; only the pointer goes away.
func (j *Journal) DeleteBranch(ctx context.Context, name string, force bool) error {
	if name == MainBranch {
		return fmt.Errorf("cannot delete %s: %w", MainBranch, event.ErrInvalidOperation)
	}
	b, err := j.store.GetBranch(ctx, name)
	if err != nil {
		return err
	}

	if !force && b.HeadCommit != "" {
		merged, err := j.isMerged(ctx, b)
		if err != nil {
			return err
		}
		if !merged {
			return fmt.Errorf("branch %s has unmerged commits: %w", name, event.ErrInvalidOperation)
		}
	}

	if err := j.store.DeleteBranch(ctx, name); err != nil {
		return err
	}
	j.obs.Log().Info().Str("branch", name).Msg("branch deleted")
	return nil
}

// isMerged walks the ancestor chain of every other branch head looking for
// b's head commit.
func (j *Journal) isMerged(ctx context.Context, b *store.Branch) (bool, error) {
	branches, err := j.store.ListBranches(ctx)
	if err != nil {
		return false, err
	}

	for _, other := range branches {
		if other.Name == b.Name || other.HeadCommit == "" {
			continue
		}
		ok, err := j.isAncestor(ctx, b.HeadCommit, other.HeadCommit)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// isAncestor reports whether target appears on the parent chain starting at
// from (inclusive).
func (j *Journal) isAncestor(ctx context.Context, target, from string) (bool, error) {
	id := from
	for id != "" {
		if id == target {
			return true, nil
		}
		c, err := j.store.GetCommit(ctx, id)
		if err != nil {
			if errors.Is(err, event.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		id = c.Parent
	}
	return false, nil
}

// DiffResult is a pure set difference over two commits' event ids.
type DiffResult struct {
	Added   []string // in b, not in a
	Removed []string // in a, not in b
	Common  []string
}

// Diff compares the event sets of two commits.
func (j *Journal) Diff(ctx context.Context, a, b string) (*DiffResult, error) {
	ca, err := j.store.GetCommit(ctx, a)
	if err != nil {
		return nil, err
	}
	cb, err := j.store.GetCommit(ctx, b)
	if err != nil {
		return nil, err
	}

	inA := make(map[string]bool, len(ca.EventIDs))
	for _, id := range ca.EventIDs {
		inA[id] = true
	}
	inB := make(map[string]bool, len(cb.EventIDs))
	for _, id := range cb.EventIDs {
		inB[id] = true
	}

	res := &DiffResult{}
	for _, id := range cb.EventIDs {
		if inA[id] {
			res.Common = append(res.Common, id)
		} else {
			res.Added = append(res.Added, id)
		}
	}
	for _, id := range ca.EventIDs {
		if !inB[id] {
			res.Removed = append(res.Removed, id)
		}
	}
	return res, nil
}

// Stats aggregates journal-wide counts for observability.
type Stats struct {
	Branches         int
	Commits          int
	Tags             int
	PerBranch        map[string]int
	CommitsLast7Days int
}

// Stats counts branches, commits, and tags, plus commit activity over the
// last 7 days.
func (j *Journal) Stats(ctx context.Context) (*Stats, error) {
	branches, err := j.store.ListBranches(ctx)
	if err != nil {
		return nil, err
	}
	tags, err := j.store.ListTags(ctx)
	if err != nil {
		return nil, err
	}

	st := &Stats{
		Branches:  len(branches),
		Tags:      len(tags),
		PerBranch: make(map[string]int, len(branches)),
	}
	for _, b := range branches {
		n, err := j.store.CountCommits(ctx, b.Name)
		if err != nil {
			return nil, err
		}
		st.PerBranch[b.Name] = n
		st.Commits += n
	}

	recent, err := j.store.CountCommitsSince(ctx, time.Now().UTC().AddDate(0, 0, -7))
	if err != nil {
		return nil, err
	}
	st.CommitsLast7Days = recent
	return st, nil
}

// Branches lists all branch pointers.
func (j *Journal) Branches(ctx context.Context) ([]*store.Branch, error) {
	return j.store.ListBranches(ctx)
}
