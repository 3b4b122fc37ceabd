package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/qaforge/recall/internal/event"
)

// MemoryStore is an in-memory EventStore. It backs unit tests and embedded
// use; semantics match SQLiteStore, including the CAS head advance.
type MemoryStore struct {
	mu       sync.RWMutex
	events   map[string]*event.Event
	order    []string // ingest order, used to break timestamp ties
	branches map[string]*Branch
	commits  map[string]*Commit
	tags     map[string]*Tag
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:   make(map[string]*event.Event),
		branches: make(map[string]*Branch),
		commits:  make(map[string]*Commit),
		tags:     make(map[string]*Tag),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Ingest(ctx context.Context, ev *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[ev.ID]; ok {
		return fmt.Errorf("event %s: %w", ev.ID, event.ErrAlreadyExists)
	}
	cp := *ev
	s.events[ev.ID] = &cp
	s.order = append(s.order, ev.ID)
	return nil
}

func (s *MemoryStore) GetEvent(ctx context.Context, id string) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", id, event.ErrNotFound)
	}
	cp := *ev
	return &cp, nil
}

func (s *MemoryStore) QueryEvents(ctx context.Context, q Query) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*event.Event
	for _, id := range s.order {
		ev := s.events[id]
		if q.Project != "" && ev.Project != q.Project {
			continue
		}
		if q.Branch != "" && ev.Branch != q.Branch {
			continue
		}
		if len(q.Types) > 0 && !containsType(q.Types, ev.Type) {
			continue
		}
		if q.MinImportance > 0 && ev.Importance < q.MinImportance {
			continue
		}
		if !q.Since.IsZero() && ev.Timestamp.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && ev.Timestamp.After(q.Until) {
			continue
		}
		if !ev.HasAnyTag(q.TagsInclude) {
			continue
		}
		cp := *ev
		out = append(out, &cp)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func containsType(types []event.Type, t event.Type) bool {
	for _, c := range types {
		if c == t {
			return true
		}
	}
	return false
}

func (s *MemoryStore) ListBranches(ctx context.Context) ([]*Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Branch, 0, len(s.branches))
	for _, b := range s.branches {
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) GetBranch(ctx context.Context, name string) (*Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.branches[name]
	if !ok {
		return nil, fmt.Errorf("branch %s: %w", name, event.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (s *MemoryStore) CreateBranch(ctx context.Context, b *Branch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.branches[b.Name]; ok {
		return fmt.Errorf("branch %s: %w", b.Name, event.ErrAlreadyExists)
	}
	cp := *b
	s.branches[b.Name] = &cp
	return nil
}

func (s *MemoryStore) DeleteBranch(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.branches, name)
	return nil
}

func (s *MemoryStore) AdvanceHead(ctx context.Context, branch, expectHead, commitID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.branches[branch]
	if !ok {
		return fmt.Errorf("branch %s: %w", branch, event.ErrNotFound)
	}
	if b.HeadCommit != expectHead {
		return fmt.Errorf("branch %s head moved: %w", branch, event.ErrConflict)
	}
	b.HeadCommit = commitID
	return nil
}

func (s *MemoryStore) InsertCommit(ctx context.Context, c *Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.commits[c.ID]; ok {
		return fmt.Errorf("commit %s: %w", c.ID, event.ErrAlreadyExists)
	}
	cp := *c
	cp.EventIDs = append([]string(nil), c.EventIDs...)
	cp.Tags = append([]string(nil), c.Tags...)
	s.commits[c.ID] = &cp
	return nil
}

func (s *MemoryStore) GetCommit(ctx context.Context, id string) (*Commit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.commits[id]
	if !ok {
		return nil, fmt.Errorf("commit %s: %w", id, event.ErrNotFound)
	}
	cp := *c
	cp.EventIDs = append([]string(nil), c.EventIDs...)
	cp.Tags = append([]string(nil), c.Tags...)
	return &cp, nil
}

func (s *MemoryStore) ListCommits(ctx context.Context, branch string, limit int) ([]*Commit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Commit
	for _, c := range s.commits {
		if c.Branch != branch {
			continue
		}
		cp := *c
		cp.EventIDs = append([]string(nil), c.EventIDs...)
		cp.Tags = append([]string(nil), c.Tags...)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdateCommitTags(ctx context.Context, id string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commits[id]
	if !ok {
		return fmt.Errorf("commit %s: %w", id, event.ErrNotFound)
	}
	c.Tags = append([]string(nil), tags...)
	return nil
}

func (s *MemoryStore) CountCommits(ctx context.Context, branch string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.commits {
		if c.Branch == branch {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CountCommitsSince(ctx context.Context, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.commits {
		if !c.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) InsertTag(ctx context.Context, t *Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tags[t.Name]; ok {
		return fmt.Errorf("tag %s: %w", t.Name, event.ErrAlreadyExists)
	}
	cp := *t
	s.tags[t.Name] = &cp
	return nil
}

func (s *MemoryStore) GetTag(ctx context.Context, name string) (*Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tags[name]
	if !ok {
		return nil, fmt.Errorf("tag %s: %w", name, event.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) DeleteTag(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tags, name)
	return nil
}

func (s *MemoryStore) ListTags(ctx context.Context) ([]*Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Tag, 0, len(s.tags))
	for _, t := range s.tags {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
