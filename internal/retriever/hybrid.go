package retriever

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	chromem "github.com/philippgille/chromem-go"

	"github.com/qaforge/recall/internal/event"
	"github.com/qaforge/recall/internal/store"
)

// recencyHalfLifeDays controls the recency channel: an event this many days
// old scores 0.5.
const recencyHalfLifeDays = 7.0

// Hybrid is the reference Retriever. The semantic channel runs over a
// chromem-go embedded vector index (one collection per project); recency
// and importance come straight from the event. Resolved events pass through
// a ristretto cache since hot events are re-scored on every call.
type Hybrid struct {
	store    store.EventStore
	embedder Embedder

	db          *chromem.DB
	collections map[string]*chromem.Collection
	indexed     map[string]bool
	mu          sync.RWMutex

	cache *ristretto.Cache
}

func NewHybrid(st store.EventStore, emb Embedder) (*Hybrid, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1 << 22,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create event cache: %w", err)
	}

	return &Hybrid{
		store:       st,
		embedder:    emb,
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
		indexed:     make(map[string]bool),
		cache:       cache,
	}, nil
}

func (h *Hybrid) collection(project string) (*chromem.Collection, error) {
	h.mu.RLock()
	col, ok := h.collections[project]
	h.mu.RUnlock()
	if ok {
		return col, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if col, ok := h.collections[project]; ok {
		return col, nil
	}

	name := "project_" + project
	if project == "" {
		name = "global"
	}
	col, err := h.db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	h.collections[project] = col
	return col, nil
}

// Index adds an event to the semantic channel. Indexing the same event
// twice is a no-op.
func (h *Hybrid) Index(ctx context.Context, ev *event.Event) error {
	h.mu.RLock()
	done := h.indexed[ev.ID]
	h.mu.RUnlock()
	if done {
		return nil
	}

	col, err := h.collection(ev.Project)
	if err != nil {
		return err
	}

	text := event.Render(ev)
	embedding, err := h.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed event %s: %w", ev.ID, err)
	}

	err = col.AddDocument(ctx, chromem.Document{
		ID:        ev.ID,
		Content:   text,
		Embedding: embedding,
		Metadata:  map[string]string{"branch": ev.Branch, "type": string(ev.Type)},
	})
	if err != nil {
		return fmt.Errorf("index event %s: %w", ev.ID, err)
	}

	h.mu.Lock()
	h.indexed[ev.ID] = true
	h.mu.Unlock()
	return nil
}

// SyncProject indexes the project's most recent events from the store.
// Call it before Retrieve when the index may be stale.
func (h *Hybrid) SyncProject(ctx context.Context, project string, limit int) error {
	events, err := h.store.QueryEvents(ctx, store.Query{Project: project, Limit: limit})
	if err != nil {
		return err
	}
	for _, ev := range events {
		if err := h.Index(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// Retrieve ranks indexed events by the blended channel score.
func (h *Hybrid) Retrieve(ctx context.Context, q Query) ([]Result, error) {
	col, err := h.collection(q.Project)
	if err != nil {
		return nil, err
	}

	n := col.Count()
	if n == 0 {
		return nil, nil
	}
	// Over-fetch so branch filtering does not starve the result set.
	fetch := q.MaxEvents * 2
	if fetch <= 0 || fetch > n {
		fetch = n
	}

	embedding, err := h.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	docs, err := col.QueryEmbedding(ctx, embedding, fetch, nil, nil)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var out []Result
	for _, doc := range docs {
		ev, err := h.resolve(ctx, doc.ID)
		if err != nil {
			continue // compacted since indexing
		}
		if q.Branch != "" && ev.Branch != "" && ev.Branch != q.Branch {
			continue
		}
		out = append(out, Result{
			EventID: ev.ID,
			Score:   blend(q.Weights, float64(doc.Similarity), ev, now),
			Event:   ev,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if q.MaxEvents > 0 && len(out) > q.MaxEvents {
		out = out[:q.MaxEvents]
	}
	return out, nil
}

func (h *Hybrid) resolve(ctx context.Context, id string) (*event.Event, error) {
	if v, ok := h.cache.Get(id); ok {
		return v.(*event.Event), nil
	}
	ev, err := h.store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	h.cache.Set(id, ev, 1)
	return ev, nil
}

// blend combines the three channels into one score in [0,1], weighted by
// the policy's channel weights.
func blend(w Weights, semantic float64, ev *event.Event, now time.Time) float64 {
	total := w.Semantic + w.Recency + w.Importance
	if total <= 0 {
		return semantic
	}

	ageDays := now.Sub(ev.Timestamp).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	recency := math.Exp(-math.Ln2 * ageDays / recencyHalfLifeDays)
	importance := ev.Importance / 5.0

	if semantic < 0 {
		semantic = 0
	}
	return (w.Semantic*semantic + w.Recency*recency + w.Importance*importance) / total
}
