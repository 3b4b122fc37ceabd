package flaky

import (
	"context"
	"sort"
	"time"

	"github.com/qaforge/recall/internal/event"
	"github.com/qaforge/recall/internal/journal"
	"github.com/qaforge/recall/internal/observe"
	"github.com/qaforge/recall/internal/store"
)

const (
	// Query cap so detection scans stay bounded.
	scanLimit = 5000
	// Manifestation keys truncate the error message to this many bytes.
	messagePrefixLen = 100
)

// Registry mines the event store for flaky tests. The cache is injected
// so embedders can share one across registries or run without one.
type Registry struct {
	store   store.EventStore
	journal *journal.Journal
	cache   *Cache
	obs     *observe.Observer
}

func NewRegistry(st store.EventStore, j *journal.Journal, cache *Cache, obs *observe.Observer) *Registry {
	return &Registry{store: st, journal: j, cache: cache, obs: obs}
}

// SetStatus applies an explicit lifecycle transition to a cached record.
// Investigating, quarantined and false-positive are reachable only here;
// detection and healing drive the other edges.
func (r *Registry) SetStatus(testID string, to Status) error {
	if r.cache == nil {
		return event.ErrNotFound
	}
	return r.cache.SetStatus(testID, to)
}

// DetectFlakyTests rescans the window and rebuilds the cache for the
// project. A test is flaky when it has at least minExecutions runs and its
// failure rate lies in [threshold, 1.0); a test that never passes is
// failing, not flaky. Results are sorted by failure rate descending.
func (r *Registry) DetectFlakyTests(ctx context.Context, project string, days, minExecutions int, threshold float64) ([]*Record, error) {
	ctx, span := r.obs.StartSpan(ctx, "flaky.DetectFlakyTests")
	defer span.End()

	since := time.Now().AddDate(0, 0, -days)

	execs, err := r.store.QueryEvents(ctx, store.Query{
		Project: project,
		Types:   []event.Type{event.TypeTestExecution},
		Since:   since,
		Limit:   scanLimit,
	})
	if err != nil {
		return nil, err
	}

	type tally struct {
		passed, failed int
		first, last    time.Time
	}
	tallies := make(map[string]*tally)
	for _, ev := range execs {
		p, ok := ev.Data.(event.ExecutionPayload)
		if !ok || p.TestID == "" {
			continue
		}
		tl, ok := tallies[p.TestID]
		if !ok {
			tl = &tally{first: ev.Timestamp, last: ev.Timestamp}
			tallies[p.TestID] = tl
		}
		if p.Passed() {
			tl.passed++
		} else {
			tl.failed++
		}
		if ev.Timestamp.Before(tl.first) {
			tl.first = ev.Timestamp
		}
		if ev.Timestamp.After(tl.last) {
			tl.last = ev.Timestamp
		}
	}

	var flagged []*Record
	for testID, tl := range tallies {
		total := tl.passed + tl.failed
		if total < minExecutions {
			continue
		}
		rate := float64(tl.failed) / float64(total)
		if rate < threshold || rate >= 1.0 {
			continue
		}

		rec := &Record{
			TestID:        testID,
			Project:       project,
			Level:         classify(rate),
			Status:        StatusDetected,
			FailureCount:  tl.failed,
			SuccessCount:  tl.passed,
			FirstDetected: tl.first,
			LastSeen:      tl.last,
		}
		// Already-triaged records keep their lifecycle state across
		// rescans; only the derived counters refresh.
		if r.cache != nil {
			if prev, ok := r.cache.Get(testID); ok {
				rec.Status = prev.Status
				rec.HealingAttempts = prev.HealingAttempts
				rec.Tags = prev.Tags
				rec.FirstDetected = prev.FirstDetected
			}
		}
		if report, err := r.AnalyzeManifestations(ctx, testID, project, days); err == nil {
			rec.Manifestations = report.Manifestations
		}
		flagged = append(flagged, rec)
	}

	sort.SliceStable(flagged, func(i, j int) bool {
		ri, rj := flagged[i].FailureRate(), flagged[j].FailureRate()
		if ri != rj {
			return ri > rj
		}
		return flagged[i].TestID < flagged[j].TestID
	})

	if r.cache != nil {
		r.cache.ReplaceProject(project, flagged)
	}
	r.obs.Log().Info().
		Str("project", project).
		Int("days", days).
		Int("tests_scanned", len(tallies)).
		Int("flagged", len(flagged)).
		Msg("flaky detection complete")
	return flagged, nil
}

// AnalyzeManifestations groups a test's failures by error type plus the
// first 100 characters of the message, separating one recurring root cause
// from genuinely polymorphic flakiness.
func (r *Registry) AnalyzeManifestations(ctx context.Context, testID, project string, days int) (*ManifestationReport, error) {
	since := time.Now().AddDate(0, 0, -days)
	fails, err := r.store.QueryEvents(ctx, store.Query{
		Project: project,
		Types:   []event.Type{event.TypeTestFailure},
		Since:   since,
		Limit:   scanLimit,
	})
	if err != nil {
		return nil, err
	}

	type key struct{ errType, prefix string }
	groups := make(map[key]*Manifestation)
	total := 0
	for _, ev := range fails {
		p, ok := ev.Data.(event.FailurePayload)
		if !ok || p.TestID != testID {
			continue
		}
		total++
		prefix := p.ErrorMessage
		if len(prefix) > messagePrefixLen {
			prefix = prefix[:messagePrefixLen]
		}
		k := key{errType: p.ErrorType, prefix: prefix}
		m, ok := groups[k]
		if !ok {
			m = &Manifestation{ErrorType: p.ErrorType, MessagePrefix: prefix}
			groups[k] = m
		}
		m.Count++
		if ev.Timestamp.After(m.LastSeen) {
			m.LastSeen = ev.Timestamp
		}
	}

	report := &ManifestationReport{TestID: testID, Project: project, TotalFailures: total}
	for _, m := range groups {
		if total > 0 {
			m.Percent = float64(m.Count) / float64(total) * 100
		}
		report.Manifestations = append(report.Manifestations, *m)
	}
	sort.SliceStable(report.Manifestations, func(i, j int) bool {
		a, b := report.Manifestations[i], report.Manifestations[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.MessagePrefix < b.MessagePrefix
	})
	return report, nil
}

// ManifestationReport is the grouped failure-signature breakdown for one
// test.
type ManifestationReport struct {
	TestID         string          `json:"test_id"`
	Project        string          `json:"project"`
	TotalFailures  int             `json:"total_failures"`
	Manifestations []Manifestation `json:"manifestations"`
}
