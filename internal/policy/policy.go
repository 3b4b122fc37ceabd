// Package policy loads named retrieval policies and packs retrieved events
// into token-budgeted context bundles.
package policy

import (
	"github.com/qaforge/recall/internal/event"
)

// DefaultPolicyID is the policy synthesized when none exist and the
// fallback route for unknown tasks.
const DefaultPolicyID = "qa_code_review_py"

// Weight defaults applied to missing policy fields.
const (
	DefaultPinnedWeight     = 3.0
	DefaultImportanceWeight = 2.0
	DefaultSemanticWeight   = 1.6
	DefaultRecencyWeight    = 1.0
	DefaultDiversityWeight  = 0.5
	DefaultBudgetTokens     = 4096
	DefaultMaxEvents        = 50
)

// Diversity modes. Cosmetic applies the penalty to the reported item score
// only; reorder re-sorts remaining candidates after each pick so the
// penalty influences inclusion order.
const (
	DiversityCosmetic = "cosmetic"
	DiversityReorder  = "reorder"
)

// Weights are the five named retrieval weights. All non-negative.
type Weights struct {
	Pinned     float64 `yaml:"pinned" json:"pinned"`
	Importance float64 `yaml:"importance" json:"importance"`
	Semantic   float64 `yaml:"semantic" json:"semantic"`
	Recency    float64 `yaml:"recency" json:"recency"`
	Diversity  float64 `yaml:"diversity" json:"diversity"`
}

// Policy is a named retrieval configuration, loaded once at startup.
type Policy struct {
	PolicyID       string       `yaml:"policy_id" json:"policy_id"`
	Task           string       `yaml:"task" json:"task"`
	Weights        Weights      `yaml:"weights" json:"weights"`
	BudgetTokens   int          `yaml:"budget_tokens" json:"budget_tokens"`
	EventTypes     []event.Type `yaml:"event_types" json:"event_types"`
	MinImportance  float64      `yaml:"min_importance" json:"min_importance"`
	TagsInclude    []string     `yaml:"tags_include" json:"tags_include"`
	TagsExclude    []string     `yaml:"tags_exclude" json:"tags_exclude"`
	IncludeRollups bool         `yaml:"include_rollups" json:"include_rollups"`
	MaxEvents      int          `yaml:"max_events" json:"max_events"`
	DiversityMode  string       `yaml:"diversity_mode" json:"diversity_mode"`
}

// allowsType applies the event-type allow-list; an empty list allows all.
func (p *Policy) allowsType(t event.Type) bool {
	if len(p.EventTypes) == 0 {
		return true
	}
	for _, et := range p.EventTypes {
		if et == t {
			return true
		}
	}
	return false
}

// DefaultPolicy is the synthesized code-review policy: failure, code-change
// and agent-action events of at least moderate importance.
func DefaultPolicy() *Policy {
	return &Policy{
		PolicyID: DefaultPolicyID,
		Task:     "code_review",
		Weights: Weights{
			Pinned:     DefaultPinnedWeight,
			Importance: DefaultImportanceWeight,
			Semantic:   DefaultSemanticWeight,
			Recency:    DefaultRecencyWeight,
			Diversity:  DefaultDiversityWeight,
		},
		BudgetTokens: DefaultBudgetTokens,
		EventTypes: []event.Type{
			event.TypeTestFailure,
			event.TypeCodeChange,
			event.TypeAgentAction,
		},
		MinImportance: 2.0,
		MaxEvents:     DefaultMaxEvents,
		DiversityMode: DiversityCosmetic,
	}
}

// taskRoutes is the fixed task-to-policy lookup used when no explicit
// policy id is given. Unknown tasks fall back to the code-review policy.
var taskRoutes = map[string]string{
	"code_review":          DefaultPolicyID,
	"regression_selection": "qa_regression_selection",
	"failure_triage":       "qa_failure_triage",
	"test_healing":         "qa_test_healing",
}
