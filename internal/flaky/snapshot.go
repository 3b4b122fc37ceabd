package flaky

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/qaforge/recall/internal/event"
	"github.com/qaforge/recall/internal/journal"
	"github.com/qaforge/recall/internal/store"
)

const (
	tagRegistry = "flaky-registry"
	tagSnapshot = "snapshot"

	snapshotKind = "flaky-registry-snapshot"
)

// SnapshotDocument is the serialized cache state carried in a snapshot
// event's body.
type SnapshotDocument struct {
	Project   string    `json:"project"`
	TakenAt   time.Time `json:"taken_at"`
	Records   []*Record `json:"records"`
	TestCount int       `json:"test_count"`
}

// CommitRegistrySnapshot serializes the cached records for the project
// into one system event, ingests it, and commits that single event on the
// main branch. The resulting commit is the point-in-time bridge back into
// versioned history.
func (r *Registry) CommitRegistrySnapshot(ctx context.Context, project, message, author string) (*store.Commit, error) {
	if r.cache == nil {
		return nil, fmt.Errorf("registry has no cache to snapshot: %w", event.ErrInvalidOperation)
	}

	var records []*Record
	for _, rec := range r.cache.All() {
		if rec.Project == project {
			records = append(records, rec)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].TestID < records[j].TestID
	})

	doc := SnapshotDocument{
		Project:   project,
		TakenAt:   time.Now().UTC(),
		Records:   records,
		TestCount: len(records),
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("serialize registry snapshot: %w", err)
	}

	ev := &event.Event{
		ID:         "ev-" + uuid.NewString(),
		Type:       event.TypeSystem,
		Project:    project,
		Branch:     journal.MainBranch,
		Source:     "flaky-registry",
		Timestamp:  doc.TakenAt,
		Importance: 3.0,
		Tags:       []string{tagRegistry, tagSnapshot},
		Data:       event.SystemPayload{Kind: snapshotKind, Body: string(body)},
	}
	if err := r.store.Ingest(ctx, ev); err != nil {
		return nil, fmt.Errorf("ingest registry snapshot: %w", err)
	}

	commit, err := r.journal.Commit(ctx, journal.MainBranch, []string{ev.ID}, message, author,
		[]string{tagRegistry, tagSnapshot})
	if err != nil {
		return nil, err
	}
	r.obs.Log().Info().
		Str("project", project).
		Str("commit", commit.ID).
		Int("records", len(records)).
		Msg("registry snapshot committed")
	return commit, nil
}

// LoadSnapshot decodes a snapshot event previously written by
// CommitRegistrySnapshot.
func LoadSnapshot(ev *event.Event) (*SnapshotDocument, error) {
	p, ok := ev.Data.(event.SystemPayload)
	if !ok || p.Kind != snapshotKind {
		return nil, fmt.Errorf("event %s is not a registry snapshot: %w", ev.ID, event.ErrInvalidOperation)
	}
	var doc SnapshotDocument
	if err := json.Unmarshal([]byte(p.Body), &doc); err != nil {
		return nil, fmt.Errorf("decode registry snapshot: %w", err)
	}
	return &doc, nil
}
