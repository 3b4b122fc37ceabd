package regression

import (
	"context"
	"math"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/qaforge/recall/internal/event"
	"github.com/qaforge/recall/internal/store"
)

// Tags that mark a test as critical-path for the criticality boost.
var criticalTags = []string{"critical", "e2e", "integration"}

type execution struct {
	when       time.Time
	durationMS float64
	passed     bool
}

type changeRecord struct {
	when  time.Time
	files []string
}

// testHistory aggregates one test's stored events for scoring. changeLog
// is shared across all tests of the project.
type testHistory struct {
	now           time.Time
	executions    []execution
	failures      []time.Time
	importanceSum float64
	importanceN   int
	criticalTag   bool
	changeLog     []changeRecord
}

// loadHistory scans the project's executions, failures and code changes in
// the lookback window and groups them per test id.
func (s *Selector) loadHistory(ctx context.Context, project string) (map[string]*testHistory, error) {
	now := time.Now()
	since := now.AddDate(0, 0, -historyDays)

	hist := make(map[string]*testHistory)
	get := func(testID string) *testHistory {
		h, ok := hist[testID]
		if !ok {
			h = &testHistory{now: now}
			hist[testID] = h
		}
		return h
	}

	execs, err := s.store.QueryEvents(ctx, store.Query{
		Project: project,
		Types:   []event.Type{event.TypeTestExecution},
		Since:   since,
		Limit:   scanLimit,
	})
	if err != nil {
		return nil, err
	}
	for _, ev := range execs {
		p, ok := ev.Data.(event.ExecutionPayload)
		if !ok || p.TestID == "" {
			continue
		}
		h := get(p.TestID)
		h.executions = append(h.executions, execution{
			when:       ev.Timestamp,
			durationMS: p.DurationMS,
			passed:     p.Passed(),
		})
		h.importanceSum += ev.Importance
		h.importanceN++
		if ev.HasAnyTag(criticalTags) {
			h.criticalTag = true
		}
	}

	fails, err := s.store.QueryEvents(ctx, store.Query{
		Project: project,
		Types:   []event.Type{event.TypeTestFailure},
		Since:   since,
		Limit:   scanLimit,
	})
	if err != nil {
		return nil, err
	}
	for _, ev := range fails {
		p, ok := ev.Data.(event.FailurePayload)
		if !ok || p.TestID == "" {
			continue
		}
		h := get(p.TestID)
		h.failures = append(h.failures, ev.Timestamp)
		h.importanceSum += ev.Importance
		h.importanceN++
	}

	// Changes slightly before the window can still explain its earliest
	// failures.
	changes, err := s.store.QueryEvents(ctx, store.Query{
		Project: project,
		Types:   []event.Type{event.TypeCodeChange},
		Since:   since.Add(-correlationWindow),
		Limit:   scanLimit,
	})
	if err != nil {
		return nil, err
	}
	changeLog := make([]changeRecord, 0, len(changes))
	for _, ev := range changes {
		p, ok := ev.Data.(event.ChangePayload)
		if !ok {
			continue
		}
		changeLog = append(changeLog, changeRecord{when: ev.Timestamp, files: p.Files})
	}
	for _, h := range hist {
		h.changeLog = changeLog
	}
	return hist, nil
}

// correlation is the fraction of the test's failures that happened within
// 24 hours after a stored code change touching files overlapping the input
// change set.
func (h *testHistory) correlation(changes []CodeChange) float64 {
	if len(h.failures) == 0 {
		return 0
	}
	var inputFiles []string
	for _, c := range changes {
		inputFiles = append(inputFiles, c.Files...)
	}
	if len(inputFiles) == 0 {
		return 0
	}

	correlated := 0
	for _, failedAt := range h.failures {
		for _, cr := range h.changeLog {
			if cr.when.After(failedAt) || failedAt.Sub(cr.when) > correlationWindow {
				continue
			}
			if filesOverlap(inputFiles, cr.files) {
				correlated++
				break
			}
		}
	}
	return float64(correlated) / float64(len(h.failures))
}

// filesOverlap treats the input entries as doublestar patterns so callers
// can pass globs like internal/auth/** as well as literal paths.
func filesOverlap(inputFiles, changedFiles []string) bool {
	for _, pattern := range inputFiles {
		for _, f := range changedFiles {
			if pattern == f {
				return true
			}
			if ok, err := doublestar.Match(pattern, f); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// criticality derives from average historical importance on a 0-5 scale,
// boosted when any recent execution carries a critical-path tag.
func (h *testHistory) criticality() float64 {
	if h.importanceN == 0 {
		return 0
	}
	v := h.importanceSum / float64(h.importanceN) / 5.0
	if h.criticalTag {
		v += 0.2
	}
	if v > 1 {
		return 1
	}
	return v
}

// flakyPenalty is nonzero only for tests with enough recent runs and a
// failure rate strictly inside (10%, 90%); it peaks at a 50% rate.
func (h *testHistory) flakyPenalty() float64 {
	windowStart := h.now.AddDate(0, 0, -flakyWindowDays)
	total, failed := 0, 0
	for _, e := range h.executions {
		if e.when.Before(windowStart) {
			continue
		}
		total++
		if !e.passed {
			failed++
		}
	}
	if total < 5 {
		return 0
	}
	rate := float64(failed) / float64(total)
	if rate <= 0.1 || rate >= 0.9 {
		return 0
	}
	return 1 - math.Abs(rate-0.5)/0.4
}

func (h *testHistory) avgDurationMS() float64 {
	var total float64
	n := 0
	for _, e := range h.executions {
		if e.durationMS > 0 {
			total += e.durationMS
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}
