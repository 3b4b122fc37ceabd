// Package regression scores candidate tests against a set of code changes
// and selects a ranked, optionally time-budgeted subset to run.
package regression

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/qaforge/recall/internal/observe"
	"github.com/qaforge/recall/internal/policy"
	"github.com/qaforge/recall/internal/store"
)

// Composite weights. Flakiness is subtracted.
const (
	weightSemantic    = 0.40
	weightCorrelation = 0.30
	weightCriticality = 0.15
	weightFlakiness   = 0.10
	weightEfficiency  = 0.05
)

const (
	// Tests below this composite score are dropped, not merely low-ranked.
	dropThreshold = 0.1
	// Average duration assumed when a test has no execution history.
	defaultDurationMS = 5000
	// Lookback for failure correlation and criticality.
	historyDays = 90
	// Lookback for the flakiness window.
	flakyWindowDays = 30
	// A code change explains a failure only if it landed this close before it.
	correlationWindow = 24 * time.Hour
	// Query cap so history scans stay bounded.
	scanLimit = 5000
)

// CodeChange is one change the selection is reacting to.
type CodeChange struct {
	ID          string    `json:"id"`
	Files       []string  `json:"files"`
	Description string    `json:"description"`
	Author      string    `json:"author,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Request is one selection call.
type Request struct {
	Project           string
	Branch            string
	CodeChanges       []CodeChange
	AvailableTests    []string
	MaxTests          int // 0 means unbounded
	TimeBudgetMinutes int // 0 means no time budget
}

// ScoredTest is one candidate with its composite score and the individual
// factors that produced it.
type ScoredTest struct {
	TestID             string  `json:"test_id"`
	Score              float64 `json:"score"`
	Semantic           float64 `json:"semantic"`
	FailureCorrelation float64 `json:"failure_correlation"`
	Criticality        float64 `json:"criticality"`
	Flakiness          float64 `json:"flakiness"`
	Efficiency         float64 `json:"efficiency"`
	RiskLevel          string  `json:"risk_level"`
	AvgDurationMS      float64 `json:"avg_duration_ms"`
}

// Selection is the ranked outcome of one SelectTests call.
type Selection struct {
	Tests               []ScoredTest `json:"tests"`
	TotalCandidates     int          `json:"total_candidates"`
	DroppedLowScore     int          `json:"dropped_low_score"`
	DroppedByBudget     int          `json:"dropped_by_budget"`
	EstimatedDurationMS float64      `json:"estimated_duration_ms"`
}

// ContextRetriever is the slice of the policy engine the selector needs.
type ContextRetriever interface {
	RetrieveContext(ctx context.Context, req policy.Request) (*policy.ContextPack, error)
}

// Selector ranks candidate tests. Stateless between calls; every score is
// recomputed from the store and one retrieval pass.
type Selector struct {
	store  store.EventStore
	engine ContextRetriever
	obs    *observe.Observer
}

func NewSelector(st store.EventStore, engine ContextRetriever, obs *observe.Observer) *Selector {
	return &Selector{store: st, engine: engine, obs: obs}
}

// SelectTests scores every candidate independently, sorts descending by
// composite score, truncates to MaxTests, then applies the time-budget
// pass. Retrieval or store errors propagate unmodified.
func (s *Selector) SelectTests(ctx context.Context, req Request) (*Selection, error) {
	ctx, span := s.obs.StartSpan(ctx, "regression.SelectTests")
	defer span.End()

	if len(req.AvailableTests) == 0 {
		return &Selection{}, nil
	}

	mentions, err := s.semanticMentions(ctx, req)
	if err != nil {
		return nil, err
	}
	hist, err := s.loadHistory(ctx, req.Project)
	if err != nil {
		return nil, err
	}

	sel := &Selection{TotalCandidates: len(req.AvailableTests)}
	scored := make([]ScoredTest, 0, len(req.AvailableTests))
	for _, testID := range req.AvailableTests {
		st := s.score(testID, mentions[testID], hist[testID], req.CodeChanges)
		if st.Score < dropThreshold {
			sel.DroppedLowScore++
			continue
		}
		scored = append(scored, st)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].TestID < scored[j].TestID
	})
	if req.MaxTests > 0 && len(scored) > req.MaxTests {
		scored = scored[:req.MaxTests]
	}

	sel.Tests = s.applyTimeBudget(scored, req.TimeBudgetMinutes, sel)
	for _, t := range sel.Tests {
		sel.EstimatedDurationMS += t.AvgDurationMS
	}

	s.obs.Log().Info().
		Str("project", req.Project).
		Int("candidates", sel.TotalCandidates).
		Int("selected", len(sel.Tests)).
		Int("dropped_low_score", sel.DroppedLowScore).
		Int("dropped_by_budget", sel.DroppedByBudget).
		Msg("regression selection complete")
	return sel, nil
}

// semanticMentions runs one retrieval pass under the regression-selection
// policy and counts, per candidate test, how many pack items mention it.
func (s *Selector) semanticMentions(ctx context.Context, req Request) (map[string]int, error) {
	var descs, files []string
	for _, c := range req.CodeChanges {
		if c.Description != "" {
			descs = append(descs, c.Description)
		}
		files = append(files, c.Files...)
	}

	pack, err := s.engine.RetrieveContext(ctx, policy.Request{
		Task:    "regression_selection",
		Project: req.Project,
		Branch:  req.Branch,
		Inputs: map[string]string{
			"query":     strings.Join(descs, "; "),
			"file_path": strings.Join(files, " "),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("regression retrieval: %w", err)
	}

	mentions := make(map[string]int, len(req.AvailableTests))
	for _, item := range pack.Items {
		for _, testID := range req.AvailableTests {
			if strings.Contains(item.Content, testID) {
				mentions[testID]++
			}
		}
	}
	return mentions, nil
}

// score combines the five factors into one clamped composite.
func (s *Selector) score(testID string, mentions int, h *testHistory, changes []CodeChange) ScoredTest {
	st := ScoredTest{
		TestID:        testID,
		Semantic:      semanticScore(mentions),
		AvgDurationMS: defaultDurationMS,
	}
	if h != nil {
		st.FailureCorrelation = h.correlation(changes)
		st.Criticality = h.criticality()
		st.Flakiness = h.flakyPenalty()
		if d := h.avgDurationMS(); d > 0 {
			st.AvgDurationMS = d
		}
	}
	st.Efficiency = efficiencyScore(st.AvgDurationMS)

	st.Score = clamp01(weightSemantic*st.Semantic +
		weightCorrelation*st.FailureCorrelation +
		weightCriticality*st.Criticality -
		weightFlakiness*st.Flakiness +
		weightEfficiency*st.Efficiency)
	st.RiskLevel = riskLevel(st)
	return st
}

// semanticScore saturates at three mentions; one mention already signals a
// real connection between the change set and the test.
func semanticScore(mentions int) float64 {
	if mentions <= 0 {
		return 0
	}
	v := float64(mentions) / 3.0
	if v > 1 {
		return 1
	}
	return v
}

// efficiencyScore maps average duration to fixed bands; faster is better.
func efficiencyScore(avgMS float64) float64 {
	switch {
	case avgMS < 1000:
		return 1.0
	case avgMS < 5000:
		return 0.8
	case avgMS < 15000:
		return 0.6
	case avgMS < 60000:
		return 0.4
	default:
		return 0.2
	}
}

// riskLevel annotates a scored test. Informational only; never gates
// selection.
func riskLevel(st ScoredTest) string {
	switch {
	case st.Semantic > 0.7 || st.FailureCorrelation > 0.7:
		return "critical"
	case st.Score > 0.7:
		return "high"
	case st.Score > 0.4:
		return "medium"
	default:
		return "low"
	}
}

// applyTimeBudget greedily accepts tests in score order until the running
// duration would exceed the budget; the first overflow stops the pass.
func (s *Selector) applyTimeBudget(scored []ScoredTest, minutes int, sel *Selection) []ScoredTest {
	if minutes <= 0 {
		return scored
	}
	budgetMS := float64(minutes) * 60_000
	var totalMS float64
	for i, t := range scored {
		if totalMS+t.AvgDurationMS > budgetMS {
			sel.DroppedByBudget = len(scored) - i
			return scored[:i]
		}
		totalMS += t.AvgDurationMS
	}
	return scored
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
