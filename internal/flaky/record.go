// Package flaky classifies unstable tests from execution history, tracks
// their failure manifestations and healing attempts, and snapshots the
// registry back into versioned history.
package flaky

import (
	"fmt"
	"sync"
	"time"

	"github.com/qaforge/recall/internal/event"
)

// Level buckets a failure rate into a severity band.
type Level string

const (
	LevelIntermittent Level = "intermittent"
	LevelModerate     Level = "moderate"
	LevelHigh         Level = "high"
	LevelSevere       Level = "severe"
)

// classify maps a failure rate to its band. Boundaries are inclusive on
// the upper band: exactly 25% is moderate, exactly 75% is severe.
func classify(rate float64) Level {
	switch {
	case rate < 0.25:
		return LevelIntermittent
	case rate < 0.5:
		return LevelModerate
	case rate < 0.75:
		return LevelHigh
	default:
		return LevelSevere
	}
}

// Status is a record's place in the triage lifecycle.
type Status string

const (
	StatusDetected         Status = "detected"
	StatusInvestigating    Status = "investigating"
	StatusHealingAttempted Status = "healing_attempted"
	StatusHealed           Status = "healed"
	StatusQuarantined      Status = "quarantined"
	StatusFalsePositive    Status = "false_positive"
)

// transitions is the allowed edge set. Healed, quarantined and
// false-positive are terminal.
var transitions = map[Status][]Status{
	StatusDetected:         {StatusInvestigating, StatusHealingAttempted, StatusFalsePositive},
	StatusInvestigating:    {StatusHealingAttempted, StatusQuarantined, StatusFalsePositive},
	StatusHealingAttempted: {StatusHealingAttempted, StatusHealed, StatusQuarantined, StatusFalsePositive},
}

func (s Status) canTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// HealingAttempt is one recorded fix attempt, linked to its audit event.
type HealingAttempt struct {
	Strategy  string    `json:"strategy"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
	EventID   string    `json:"event_id"`
}

// Manifestation is one distinct failure signature.
type Manifestation struct {
	ErrorType     string    `json:"error_type"`
	MessagePrefix string    `json:"message_prefix"`
	Count         int       `json:"count"`
	Percent       float64   `json:"percent"`
	LastSeen      time.Time `json:"last_seen"`
}

// Record is the derived aggregate for one flaky test. Rebuilt from the
// event store on every detection pass; never the source of truth.
type Record struct {
	TestID          string           `json:"test_id"`
	Project         string           `json:"project"`
	Level           Level            `json:"flakiness_level"`
	Status          Status           `json:"status"`
	FailureCount    int              `json:"failure_count"`
	SuccessCount    int              `json:"success_count"`
	FirstDetected   time.Time        `json:"first_detected"`
	LastSeen        time.Time        `json:"last_seen"`
	Manifestations  []Manifestation  `json:"manifestations,omitempty"`
	HealingAttempts []HealingAttempt `json:"healing_attempts,omitempty"`
	Tags            []string         `json:"tags,omitempty"`
}

// FailureRate derives from the counters.
func (r *Record) FailureRate() float64 {
	total := r.FailureCount + r.SuccessCount
	if total == 0 {
		return 0
	}
	return float64(r.FailureCount) / float64(total)
}

// Cache holds the in-memory records keyed by test id. Purely a
// performance optimization: losing it costs one detection rescan.
type Cache struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewCache() *Cache {
	return &Cache{records: make(map[string]*Record)}
}

func (c *Cache) Get(testID string) (*Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.records[testID]
	return r, ok
}

func (c *Cache) Put(r *Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[r.TestID] = r
}

// All returns the cached records in unspecified order.
func (c *Cache) All() []*Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Record, 0, len(c.records))
	for _, r := range c.records {
		out = append(out, r)
	}
	return out
}

// ReplaceProject swaps every record belonging to project with the given
// set, leaving other projects' records alone.
func (c *Cache) ReplaceProject(project string, records []*Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, r := range c.records {
		if r.Project == project {
			delete(c.records, id)
		}
	}
	for _, r := range records {
		c.records[r.TestID] = r
	}
}

// SetStatus validates and applies one lifecycle transition.
func (c *Cache) SetStatus(testID string, to Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.records[testID]
	if !ok {
		return fmt.Errorf("flaky record %s: %w", testID, event.ErrNotFound)
	}
	if !r.Status.canTransition(to) {
		return fmt.Errorf("transition %s -> %s: %w", r.Status, to, event.ErrInvalidOperation)
	}
	r.Status = to
	return nil
}
