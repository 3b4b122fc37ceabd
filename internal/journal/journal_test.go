package journal

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/qaforge/recall/internal/event"
	"github.com/qaforge/recall/internal/observe"
	"github.com/qaforge/recall/internal/store"
)

func newTestJournal(t *testing.T) (*Journal, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	obs := observe.New(io.Discard, false)
	j, err := New(context.Background(), st, obs)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return j, st
}

func ingestEvents(t *testing.T, st *store.MemoryStore, ids ...string) {
	t.Helper()
	for i, id := range ids {
		err := st.Ingest(context.Background(), &event.Event{
			ID:        id,
			Type:      event.TypeTestExecution,
			Project:   "web",
			Timestamp: time.Now().Add(time.Duration(i) * time.Second),
			Data:      event.ExecutionPayload{TestID: "t_" + id, Status: "passed"},
		})
		if err != nil {
			t.Fatalf("ingest %s: %v", id, err)
		}
	}
}

func TestJournal_MainExists(t *testing.T) {
	j, st := newTestJournal(t)
	if _, err := st.GetBranch(context.Background(), MainBranch); err != nil {
		t.Fatalf("main branch missing after New: %v", err)
	}
	// A second construction must not fail on the existing branch.
	if _, err := New(context.Background(), st, observe.New(io.Discard, false)); err != nil {
		t.Fatalf("New on existing store failed: %v", err)
	}
	if err := j.DeleteBranch(context.Background(), MainBranch, true); !errors.Is(err, event.ErrInvalidOperation) {
		t.Errorf("Expected ErrInvalidOperation deleting main, got %v", err)
	}
}

func TestJournal_BranchCopyOnCreate(t *testing.T) {
	j, st := newTestJournal(t)
	ctx := context.Background()
	ingestEvents(t, st, "e1", "e2")

	c1, err := j.Commit(ctx, MainBranch, []string{"e1"}, "seed", "qa-bot", nil)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	b, err := j.CreateBranch(ctx, "feature-x", MainBranch, "experiment")
	if err != nil {
		t.Fatalf("CreateBranch failed: %v", err)
	}
	if b.HeadCommit != c1.ID {
		t.Errorf("Expected head %s, got %s", c1.ID, b.HeadCommit)
	}

	// A later commit to main must not move feature-x's head.
	if _, err := j.Commit(ctx, MainBranch, []string{"e2"}, "more", "qa-bot", nil); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	got, _ := st.GetBranch(ctx, "feature-x")
	if got.HeadCommit != c1.ID {
		t.Errorf("feature-x head moved to %s", got.HeadCommit)
	}

	if _, err := j.CreateBranch(ctx, "feature-x", MainBranch, ""); !errors.Is(err, event.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists, got %v", err)
	}
	if _, err := j.CreateBranch(ctx, "other", "ghost", ""); !errors.Is(err, event.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing source, got %v", err)
	}
}

func TestJournal_CommitImmutability(t *testing.T) {
	j, st := newTestJournal(t)
	ctx := context.Background()
	ingestEvents(t, st, "e1", "e2", "e3")

	c, err := j.Commit(ctx, MainBranch, []string{"e1", "e2", "e3"}, "m1", "qa-bot", []string{"initial"})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if err := j.SetCommitTags(ctx, c.ID, []string{"baseline", "release"}); err != nil {
		t.Fatalf("SetCommitTags failed: %v", err)
	}
	got, _ := j.GetCommit(ctx, c.ID)
	if len(got.Tags) != 2 {
		t.Errorf("Expected 2 tags, got %v", got.Tags)
	}
	if len(got.EventIDs) != 3 || got.EventIDs[0] != "e1" {
		t.Errorf("Event ids changed after tag update: %v", got.EventIDs)
	}
}

func TestJournal_TagScenario(t *testing.T) {
	// create feature-x from main (empty), commit 3 events, tag v1,
	// context at v1 is exactly those 3 events in recorded order.
	j, st := newTestJournal(t)
	ctx := context.Background()
	ingestEvents(t, st, "e1", "e2", "e3")

	if _, err := j.CreateBranch(ctx, "feature-x", MainBranch, ""); err != nil {
		t.Fatalf("CreateBranch failed: %v", err)
	}
	c, err := j.Commit(ctx, "feature-x", []string{"e2", "e1", "e3"}, "m1", "qa-bot", nil)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if _, err := j.CreateTag(ctx, "v1", c.ID, "first cut"); err != nil {
		t.Fatalf("CreateTag failed: %v", err)
	}

	events, err := j.EventsAtTag(ctx, "v1")
	if err != nil {
		t.Fatalf("EventsAtTag failed: %v", err)
	}
	want := []string{"e2", "e1", "e3"}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	for i, ev := range events {
		if ev.ID != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], ev.ID)
		}
	}

	// Tag resolution equals direct commit resolution.
	direct, _ := j.EventsAtCommit(ctx, c.ID)
	if len(direct) != len(events) {
		t.Errorf("Tag and commit resolution diverge: %d vs %d", len(direct), len(events))
	}

	if _, err := j.CreateTag(ctx, "v1", c.ID, ""); !errors.Is(err, event.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists, got %v", err)
	}
	if _, err := j.CreateTag(ctx, "v2", "ghost", ""); !errors.Is(err, event.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing commit, got %v", err)
	}

	// Deleting the tag leaves the commit alone.
	if err := j.DeleteTag(ctx, "v1"); err != nil {
		t.Fatalf("DeleteTag failed: %v", err)
	}
	if _, err := j.GetCommit(ctx, c.ID); err != nil {
		t.Errorf("Commit affected by tag deletion: %v", err)
	}
}

func TestJournal_MissingEventsSkipped(t *testing.T) {
	j, st := newTestJournal(t)
	ctx := context.Background()
	ingestEvents(t, st, "e1")

	c, _ := j.Commit(ctx, MainBranch, []string{"e1", "ghost"}, "m", "qa-bot", nil)
	events, err := j.EventsAtCommit(ctx, c.ID)
	if err != nil {
		t.Fatalf("EventsAtCommit failed: %v", err)
	}
	if len(events) != 1 || events[0].ID != "e1" {
		t.Errorf("Expected only e1, got %d events", len(events))
	}
}

func TestJournal_DiffSymmetry(t *testing.T) {
	j, st := newTestJournal(t)
	ctx := context.Background()
	ingestEvents(t, st, "e1", "e2", "e3", "e4")

	a, _ := j.Commit(ctx, MainBranch, []string{"e1", "e2", "e3"}, "a", "qa-bot", nil)
	b, _ := j.Commit(ctx, MainBranch, []string{"e2", "e3", "e4"}, "b", "qa-bot", nil)

	ab, err := j.Diff(ctx, a.ID, b.ID)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	ba, _ := j.Diff(ctx, b.ID, a.ID)

	if len(ab.Added) != 1 || ab.Added[0] != "e4" {
		t.Errorf("Expected added [e4], got %v", ab.Added)
	}
	if len(ab.Removed) != 1 || ab.Removed[0] != "e1" {
		t.Errorf("Expected removed [e1], got %v", ab.Removed)
	}
	if len(ab.Common) != 2 {
		t.Errorf("Expected 2 common, got %v", ab.Common)
	}

	// diff(a,b).added == diff(b,a).removed and vice versa.
	if len(ab.Added) != len(ba.Removed) || ab.Added[0] != ba.Removed[0] {
		t.Errorf("Diff asymmetry: added %v vs removed %v", ab.Added, ba.Removed)
	}
	if len(ab.Removed) != len(ba.Added) || ab.Removed[0] != ba.Added[0] {
		t.Errorf("Diff asymmetry: removed %v vs added %v", ab.Removed, ba.Added)
	}
}

func TestJournal_History(t *testing.T) {
	j, st := newTestJournal(t)
	ctx := context.Background()
	ingestEvents(t, st, "e1", "e2", "e3")

	c1, _ := j.Commit(ctx, MainBranch, []string{"e1"}, "first", "qa-bot", nil)
	j.CreateBranch(ctx, "feature-x", MainBranch, "")
	c2, _ := j.Commit(ctx, "feature-x", []string{"e2"}, "second", "qa-bot", nil)
	c3, _ := j.Commit(ctx, "feature-x", []string{"e3"}, "third", "qa-bot", nil)

	// History crosses the branch point into main's lineage.
	hist, err := j.History(ctx, "feature-x", 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("Expected 3 commits, got %d", len(hist))
	}
	if hist[0].ID != c3.ID || hist[1].ID != c2.ID || hist[2].ID != c1.ID {
		t.Errorf("History out of order: %s %s %s", hist[0].ID, hist[1].ID, hist[2].ID)
	}

	limited, _ := j.History(ctx, "feature-x", 2)
	if len(limited) != 2 {
		t.Errorf("Expected limit 2, got %d", len(limited))
	}
}

func TestJournal_DeleteBranchMergeDetection(t *testing.T) {
	j, st := newTestJournal(t)
	ctx := context.Background()
	ingestEvents(t, st, "e1", "e2")

	j.Commit(ctx, MainBranch, []string{"e1"}, "base", "qa-bot", nil)
	j.CreateBranch(ctx, "merged", MainBranch, "")
	j.CreateBranch(ctx, "wild", MainBranch, "")
	j.Commit(ctx, "wild", []string{"e2"}, "unmerged work", "qa-bot", nil)

	// merged's head equals main's head - deletable without force.
	if err := j.DeleteBranch(ctx, "merged", false); err != nil {
		t.Errorf("Expected merged branch delete to succeed, got %v", err)
	}

	// wild has a commit no other head can reach.
	if err := j.DeleteBranch(ctx, "wild", false); !errors.Is(err, event.ErrInvalidOperation) {
		t.Errorf("Expected ErrInvalidOperation for unmerged branch, got %v", err)
	}
	if err := j.DeleteBranch(ctx, "wild", true); err != nil {
		t.Errorf("Expected forced delete to succeed, got %v", err)
	}
}

func TestJournal_Stats(t *testing.T) {
	j, st := newTestJournal(t)
	ctx := context.Background()
	ingestEvents(t, st, "e1", "e2")

	c, _ := j.Commit(ctx, MainBranch, []string{"e1"}, "one", "qa-bot", nil)
	j.CreateBranch(ctx, "feature-x", MainBranch, "")
	j.Commit(ctx, "feature-x", []string{"e2"}, "two", "qa-bot", nil)
	j.CreateTag(ctx, "v1", c.ID, "")

	st2, err := j.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st2.Branches != 2 || st2.Commits != 2 || st2.Tags != 1 {
		t.Errorf("Unexpected stats: %+v", st2)
	}
	if st2.PerBranch[MainBranch] != 1 || st2.PerBranch["feature-x"] != 1 {
		t.Errorf("Unexpected per-branch counts: %v", st2.PerBranch)
	}
	if st2.CommitsLast7Days != 2 {
		t.Errorf("Expected 2 recent commits, got %d", st2.CommitsLast7Days)
	}
}
