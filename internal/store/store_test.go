package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/qaforge/recall/internal/event"
)

func TestSQLiteStore(t *testing.T) {
	tmpDir, _ := os.MkdirTemp("", "store-test-*")
	defer os.RemoveAll(tmpDir)

	s, err := NewSQLiteStore(filepath.Join(tmpDir, "recall.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("Events", func(t *testing.T) {
		ev := &event.Event{
			ID:         "e1",
			Type:       event.TypeTestFailure,
			Project:    "web",
			Branch:     "main",
			Source:     "runner",
			Timestamp:  now,
			Importance: 3.5,
			Tags:       []string{"checkout", "ui"},
			Data: event.FailurePayload{
				TestID:       "test_login",
				ErrorType:    "TimeoutError",
				ErrorMessage: "element not found",
			},
		}
		if err := s.Ingest(ctx, ev); err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}

		got, err := s.GetEvent(ctx, "e1")
		if err != nil {
			t.Fatalf("GetEvent failed: %v", err)
		}
		fp, ok := got.Data.(event.FailurePayload)
		if !ok {
			t.Fatalf("Expected FailurePayload, got %T", got.Data)
		}
		if fp.TestID != "test_login" || fp.ErrorType != "TimeoutError" {
			t.Errorf("Payload round trip mismatch: %+v", fp)
		}

		if _, err := s.GetEvent(ctx, "nope"); !errors.Is(err, event.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("QueryFilters", func(t *testing.T) {
		s.Ingest(ctx, &event.Event{
			ID: "e2", Type: event.TypeTestExecution, Project: "web", Branch: "main",
			Timestamp: now.Add(time.Minute), Importance: 1.0, Tags: []string{"smoke"},
			Data: event.ExecutionPayload{TestID: "test_login", Status: "passed"},
		})
		s.Ingest(ctx, &event.Event{
			ID: "e3", Type: event.TypeCodeChange, Project: "api", Branch: "main",
			Timestamp: now.Add(2 * time.Minute), Importance: 4.0,
			Data: event.ChangePayload{Files: []string{"api/auth.go"}},
		})

		got, err := s.QueryEvents(ctx, Query{Project: "web", Limit: 10})
		if err != nil {
			t.Fatalf("QueryEvents failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("Expected 2 web events, got %d", len(got))
		}
		// Ordered most recent first.
		if got[0].ID != "e2" || got[1].ID != "e1" {
			t.Errorf("Expected [e2 e1], got [%s %s]", got[0].ID, got[1].ID)
		}

		got, _ = s.QueryEvents(ctx, Query{TagsInclude: []string{"smoke", "nope"}, Limit: 10})
		if len(got) != 1 || got[0].ID != "e2" {
			t.Errorf("Expected any-of tag match on e2, got %d results", len(got))
		}

		got, _ = s.QueryEvents(ctx, Query{MinImportance: 3.0, Limit: 10})
		if len(got) != 2 {
			t.Errorf("Expected 2 events with importance >= 3, got %d", len(got))
		}
	})

	t.Run("BranchCAS", func(t *testing.T) {
		b := &Branch{Name: "main", CreatedAt: now, Description: "primary"}
		if err := s.CreateBranch(ctx, b); err != nil {
			t.Fatalf("CreateBranch failed: %v", err)
		}

		if err := s.AdvanceHead(ctx, "main", "", "c1"); err != nil {
			t.Fatalf("AdvanceHead from empty failed: %v", err)
		}
		if err := s.AdvanceHead(ctx, "main", "", "c2"); !errors.Is(err, event.ErrConflict) {
			t.Errorf("Expected ErrConflict on stale head, got %v", err)
		}
		if err := s.AdvanceHead(ctx, "gone", "", "c1"); !errors.Is(err, event.ErrNotFound) {
			t.Errorf("Expected ErrNotFound for missing branch, got %v", err)
		}

		got, _ := s.GetBranch(ctx, "main")
		if got.HeadCommit != "c1" {
			t.Errorf("Expected head c1, got %s", got.HeadCommit)
		}
	})

	t.Run("Commits", func(t *testing.T) {
		c := &Commit{
			ID: "c1", Branch: "main", Message: "m1", Author: "qa-bot",
			Timestamp: now, EventIDs: []string{"e1", "e2"}, Tags: []string{},
		}
		if err := s.InsertCommit(ctx, c); err != nil {
			t.Fatalf("InsertCommit failed: %v", err)
		}

		got, err := s.GetCommit(ctx, "c1")
		if err != nil {
			t.Fatalf("GetCommit failed: %v", err)
		}
		if len(got.EventIDs) != 2 || got.EventIDs[0] != "e1" {
			t.Errorf("Event ids mismatch: %v", got.EventIDs)
		}

		if err := s.UpdateCommitTags(ctx, "c1", []string{"release"}); err != nil {
			t.Fatalf("UpdateCommitTags failed: %v", err)
		}
		got, _ = s.GetCommit(ctx, "c1")
		if len(got.Tags) != 1 || got.Tags[0] != "release" {
			t.Errorf("Expected tags [release], got %v", got.Tags)
		}
		if err := s.UpdateCommitTags(ctx, "nope", nil); !errors.Is(err, event.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}

		n, _ := s.CountCommits(ctx, "main")
		if n != 1 {
			t.Errorf("Expected 1 commit on main, got %d", n)
		}
		n, _ = s.CountCommitsSince(ctx, now.Add(-time.Hour))
		if n != 1 {
			t.Errorf("Expected 1 recent commit, got %d", n)
		}
	})

	t.Run("Tags", func(t *testing.T) {
		tag := &Tag{Name: "v1", CommitID: "c1", Message: "first", CreatedAt: now}
		if err := s.InsertTag(ctx, tag); err != nil {
			t.Fatalf("InsertTag failed: %v", err)
		}
		got, err := s.GetTag(ctx, "v1")
		if err != nil {
			t.Fatalf("GetTag failed: %v", err)
		}
		if got.CommitID != "c1" {
			t.Errorf("Expected commit c1, got %s", got.CommitID)
		}
		if err := s.DeleteTag(ctx, "v1"); err != nil {
			t.Fatalf("DeleteTag failed: %v", err)
		}
		if _, err := s.GetTag(ctx, "v1"); !errors.Is(err, event.ErrNotFound) {
			t.Errorf("Expected ErrNotFound after delete, got %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	t.Run("CAS", func(t *testing.T) {
		s.CreateBranch(ctx, &Branch{Name: "main", CreatedAt: now})
		if err := s.AdvanceHead(ctx, "main", "", "c1"); err != nil {
			t.Fatalf("AdvanceHead failed: %v", err)
		}
		if err := s.AdvanceHead(ctx, "main", "", "c2"); !errors.Is(err, event.ErrConflict) {
			t.Errorf("Expected ErrConflict, got %v", err)
		}
	})

	t.Run("CommitIsolation", func(t *testing.T) {
		ids := []string{"e1", "e2"}
		s.InsertCommit(ctx, &Commit{ID: "c1", Branch: "main", Timestamp: now, EventIDs: ids})
		ids[0] = "mutated"

		got, _ := s.GetCommit(ctx, "c1")
		if got.EventIDs[0] != "e1" {
			t.Errorf("Stored commit shares caller slice: %v", got.EventIDs)
		}
		got.EventIDs[1] = "mutated"
		again, _ := s.GetCommit(ctx, "c1")
		if again.EventIDs[1] != "e2" {
			t.Errorf("Returned commit shares internal slice: %v", again.EventIDs)
		}
	})

	t.Run("DuplicateEvent", func(t *testing.T) {
		ev := &event.Event{ID: "dup", Type: event.TypeSystem, Timestamp: now}
		if err := s.Ingest(ctx, ev); err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
		if err := s.Ingest(ctx, ev); !errors.Is(err, event.ErrAlreadyExists) {
			t.Errorf("Expected ErrAlreadyExists, got %v", err)
		}
	})
}
