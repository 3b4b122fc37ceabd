package flaky

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/qaforge/recall/internal/event"
	"github.com/qaforge/recall/internal/store"
)

// Fixed audit tags on every healing-attempt event, joined by the strategy
// name and an outcome tag.
const (
	tagSelfHealing    = "self-healing"
	tagHealingAttempt = "healing-attempt"
	tagHealed         = "healed"

	outcomeSuccess = "healing-success"
	outcomeFailure = "healing-failure"
)

// HealingRequest describes one fix attempt to record.
type HealingRequest struct {
	TestID   string
	Project  string
	Branch   string
	Strategy string
	Success  bool
	Detail   string
	Source   string
}

// RecordHealingAttempt appends the audit event first; that write is the
// source of truth and its failure surfaces to the caller. The cache update
// afterwards is best-effort and never fails the call. A successful attempt
// moves the record to healed and appends the healed tag.
func (r *Registry) RecordHealingAttempt(ctx context.Context, req HealingRequest) (*event.Event, error) {
	if req.TestID == "" || req.Strategy == "" {
		return nil, fmt.Errorf("healing attempt needs test_id and strategy: %w", event.ErrInvalidOperation)
	}
	outcome := outcomeFailure
	if req.Success {
		outcome = outcomeSuccess
	}
	source := req.Source
	if source == "" {
		source = "flaky-registry"
	}

	ev := &event.Event{
		ID:         "ev-" + uuid.NewString(),
		Type:       event.TypeAgentAction,
		Project:    req.Project,
		Branch:     req.Branch,
		Source:     source,
		Timestamp:  time.Now().UTC(),
		Importance: 3.0,
		Tags:       []string{tagSelfHealing, tagHealingAttempt, req.Strategy, outcome},
		Data: event.ActionPayload{
			Action:   "healing_attempt",
			TestID:   req.TestID,
			Strategy: req.Strategy,
			Success:  req.Success,
			Detail:   req.Detail,
		},
	}
	if err := r.store.Ingest(ctx, ev); err != nil {
		return nil, fmt.Errorf("record healing attempt: %w", err)
	}

	if r.cache != nil {
		if rec, ok := r.cache.Get(req.TestID); ok {
			rec.HealingAttempts = append(rec.HealingAttempts, HealingAttempt{
				Strategy:  req.Strategy,
				Success:   req.Success,
				Timestamp: ev.Timestamp,
				EventID:   ev.ID,
			})
			if req.Success {
				if rec.Status.canTransition(StatusHealed) {
					rec.Status = StatusHealed
				}
				if !hasString(rec.Tags, tagHealed) {
					rec.Tags = append(rec.Tags, tagHealed)
				}
			} else if rec.Status.canTransition(StatusHealingAttempted) {
				rec.Status = StatusHealingAttempted
			}
		}
	}

	r.obs.Log().Info().
		Str("test", req.TestID).
		Str("strategy", req.Strategy).
		Str("outcome", outcome).
		Msg("healing attempt recorded")
	return ev, nil
}

// StrategyStats is the per-strategy slice of the healing aggregate.
type StrategyStats struct {
	Attempts    int     `json:"attempts"`
	Successes   int     `json:"successes"`
	SuccessRate float64 `json:"success_rate"`
}

// HealingStats aggregates healing-attempt audit events.
type HealingStats struct {
	TotalAttempts int                       `json:"total_attempts"`
	Successes     int                       `json:"successes"`
	SuccessRate   float64                   `json:"success_rate"`
	PerStrategy   map[string]*StrategyStats `json:"per_strategy"`
}

// GetHealingSuccessRate aggregates healing-attempt events over the window,
// optionally narrowed to one test or one strategy. Pure read.
func (r *Registry) GetHealingSuccessRate(ctx context.Context, project, testID, strategy string, days int) (*HealingStats, error) {
	since := time.Now().AddDate(0, 0, -days)
	events, err := r.store.QueryEvents(ctx, store.Query{
		Project:     project,
		Types:       []event.Type{event.TypeAgentAction},
		TagsInclude: []string{tagHealingAttempt},
		Since:       since,
		Limit:       scanLimit,
	})
	if err != nil {
		return nil, err
	}

	stats := &HealingStats{PerStrategy: make(map[string]*StrategyStats)}
	for _, ev := range events {
		p, ok := ev.Data.(event.ActionPayload)
		if !ok {
			continue
		}
		if testID != "" && p.TestID != testID {
			continue
		}
		if strategy != "" && p.Strategy != strategy {
			continue
		}
		stats.TotalAttempts++
		per, ok := stats.PerStrategy[p.Strategy]
		if !ok {
			per = &StrategyStats{}
			stats.PerStrategy[p.Strategy] = per
		}
		per.Attempts++
		if p.Success {
			stats.Successes++
			per.Successes++
		}
	}
	if stats.TotalAttempts > 0 {
		stats.SuccessRate = float64(stats.Successes) / float64(stats.TotalAttempts)
	}
	for _, per := range stats.PerStrategy {
		per.SuccessRate = float64(per.Successes) / float64(per.Attempts)
	}
	return stats, nil
}

func hasString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
