package retriever

import (
	"context"
	"testing"
	"time"

	"github.com/qaforge/recall/internal/event"
	"github.com/qaforge/recall/internal/store"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	emb := NewHashEmbedder()
	ctx := context.Background()

	a1, err := emb.Embed(ctx, "timeout in checkout flow")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	a2, _ := emb.Embed(ctx, "timeout in checkout flow")
	b, _ := emb.Embed(ctx, "something else entirely")

	if len(a1) != emb.Dimensions() {
		t.Fatalf("Expected %d dims, got %d", emb.Dimensions(), len(a1))
	}
	for i := range a1 {
		if a1[i] != a2[i] {
			t.Fatalf("Embedding not deterministic at dim %d", i)
		}
	}

	same := true
	for i := range a1 {
		if a1[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("Different texts produced identical embeddings")
	}

	// Unit vector.
	var norm float32
	for _, v := range a1 {
		norm += v * v
	}
	if norm < 0.99 || norm > 1.01 {
		t.Errorf("Expected unit vector, norm^2 = %f", norm)
	}
}

func TestHybrid_Retrieve(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	seed := []*event.Event{
		{
			ID: "old-low", Type: event.TypeTestExecution, Project: "web", Branch: "main",
			Timestamp: now.AddDate(0, 0, -60), Importance: 0.5,
			Data: event.ExecutionPayload{TestID: "test_misc", Status: "passed"},
		},
		{
			ID: "fresh-high", Type: event.TypeTestFailure, Project: "web", Branch: "main",
			Timestamp: now.Add(-time.Hour), Importance: 5.0,
			Data: event.FailurePayload{TestID: "test_checkout", ErrorType: "TimeoutError", ErrorMessage: "checkout timed out"},
		},
		{
			ID: "other-branch", Type: event.TypeTestFailure, Project: "web", Branch: "experiment",
			Timestamp: now.Add(-time.Hour), Importance: 5.0,
			Data: event.FailurePayload{TestID: "test_checkout", ErrorType: "TimeoutError", ErrorMessage: "checkout timed out"},
		},
	}
	for _, ev := range seed {
		if err := st.Ingest(ctx, ev); err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
	}

	h, err := NewHybrid(st, NewHashEmbedder())
	if err != nil {
		t.Fatalf("NewHybrid failed: %v", err)
	}
	if err := h.SyncProject(ctx, "web", 100); err != nil {
		t.Fatalf("SyncProject failed: %v", err)
	}

	results, err := h.Retrieve(ctx, Query{
		Text:      "checkout timeout",
		Project:   "web",
		Branch:    "main",
		Weights:   Weights{Semantic: 1.6, Recency: 1.0, Importance: 2.0},
		MaxEvents: 10,
	})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("Expected 2 main-branch results, got %d", len(results))
	}
	for _, r := range results {
		if r.EventID == "other-branch" {
			t.Error("Branch filter leaked an experiment event")
		}
	}

	// Fresh, important event must outrank the stale unimportant one given
	// the recency and importance channel weights.
	if results[0].EventID != "fresh-high" {
		t.Errorf("Expected fresh-high first, got %s", results[0].EventID)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("Results not sorted descending at %d", i)
		}
	}

	t.Run("MaxEvents", func(t *testing.T) {
		capped, err := h.Retrieve(ctx, Query{
			Text: "checkout", Project: "web",
			Weights: Weights{Semantic: 1, Recency: 1, Importance: 1}, MaxEvents: 1,
		})
		if err != nil {
			t.Fatalf("Retrieve failed: %v", err)
		}
		if len(capped) != 1 {
			t.Errorf("Expected 1 result, got %d", len(capped))
		}
	})

	t.Run("EmptyProject", func(t *testing.T) {
		none, err := h.Retrieve(ctx, Query{
			Text: "anything", Project: "ghost",
			Weights: Weights{Semantic: 1}, MaxEvents: 5,
		})
		if err != nil {
			t.Fatalf("Retrieve failed: %v", err)
		}
		if len(none) != 0 {
			t.Errorf("Expected no results for unindexed project, got %d", len(none))
		}
	})
}
