package policy

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/qaforge/recall/internal/event"
	"github.com/qaforge/recall/internal/observe"
	"github.com/qaforge/recall/internal/retriever"
)

// Request is one context-retrieval call.
type Request struct {
	Task        string
	Project     string
	Branch      string
	Inputs      map[string]string
	PolicyID    string // optional explicit policy
	TokenBudget int    // optional budget override
}

// PackItem is one packed event with its rendered content and the score
// reported to the caller (diversity-adjusted).
type PackItem struct {
	EventID  string
	Content  string
	Score    float64
	Metadata map[string]string
}

// ContextPack is the token-budgeted bundle returned by a retrieval call.
// Produced fresh each time; never persisted unless the caller chooses to.
type ContextPack struct {
	PackID       string
	PolicyID     string
	Task         string
	Items        []PackItem
	TotalItems   int
	TotalTokens  int
	BudgetTokens int
	Utilization  float64
	Summary      string
}

// Engine resolves policies and turns retrieval results into context packs.
// The loaded-policy map is populated once and read-mostly afterwards.
type Engine struct {
	policies map[string]*Policy
	retr     retriever.Retriever
	counter  TokenCounter
	obs      *observe.Observer
}

// NewEngine builds an engine from an already-loaded policy map.
func NewEngine(policies map[string]*Policy, r retriever.Retriever, counter TokenCounter, obs *observe.Observer) *Engine {
	if counter == nil {
		counter = HeuristicCounter{}
	}
	return &Engine{policies: policies, retr: r, counter: counter, obs: obs}
}

// NewEngineFromDir loads policies from dir and builds an engine.
func NewEngineFromDir(dir string, r retriever.Retriever, counter TokenCounter, obs *observe.Observer) (*Engine, error) {
	policies, err := LoadDir(dir, obs)
	if err != nil {
		return nil, err
	}
	return NewEngine(policies, r, counter, obs), nil
}

// Policies returns the loaded policies keyed by id.
func (e *Engine) Policies() map[string]*Policy {
	return e.policies
}

// resolvePolicy picks the policy for a request: explicit id first, then the
// task route, then the default code-review policy.
func (e *Engine) resolvePolicy(req Request) (*Policy, error) {
	if req.PolicyID != "" {
		p, ok := e.policies[req.PolicyID]
		if !ok {
			return nil, fmt.Errorf("policy %s: %w", req.PolicyID, event.ErrNotFound)
		}
		return p, nil
	}
	if id, ok := taskRoutes[req.Task]; ok {
		if p, ok := e.policies[id]; ok {
			return p, nil
		}
	}
	p, ok := e.policies[DefaultPolicyID]
	if !ok {
		return nil, fmt.Errorf("policy %s: %w", DefaultPolicyID, event.ErrNotFound)
	}
	return p, nil
}

// queryInputs are the recognized input fields, in priority order.
var queryInputs = []string{"test_id", "error", "query", "file_path"}

const queryDelimiter = " | "

func buildQuery(task string, inputs map[string]string) string {
	parts := []string{task}
	for _, key := range queryInputs {
		if v := inputs[key]; v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, queryDelimiter)
}

// RetrieveContext runs hybrid retrieval under the resolved policy, applies
// the policy filters, and packs the survivors under the token budget.
// Retriever errors propagate unmodified.
func (e *Engine) RetrieveContext(ctx context.Context, req Request) (*ContextPack, error) {
	ctx, span := e.obs.StartSpan(ctx, "policy.RetrieveContext")
	defer span.End()

	pol, err := e.resolvePolicy(req)
	if err != nil {
		return nil, err
	}

	results, err := e.retr.Retrieve(ctx, retriever.Query{
		Text:    buildQuery(req.Task, req.Inputs),
		Project: req.Project,
		Branch:  req.Branch,
		Weights: retriever.Weights{
			Semantic:   pol.Weights.Semantic,
			Recency:    pol.Weights.Recency,
			Importance: pol.Weights.Importance,
		},
		MaxEvents: pol.MaxEvents,
	})
	if err != nil {
		return nil, err
	}

	filtered := filter(results, pol)

	budget := pol.BudgetTokens
	if req.TokenBudget > 0 {
		budget = req.TokenBudget
	}

	pack := e.pack(filtered, pol, budget)
	pack.PolicyID = pol.PolicyID
	pack.Task = req.Task

	e.obs.Log().Info().
		Str("policy", pol.PolicyID).
		Int("candidates", len(results)).
		Int("packed", pack.TotalItems).
		Int("tokens", pack.TotalTokens).
		Msg("context pack assembled")
	return pack, nil
}

// filter applies the policy's event-type allow-list, importance floor and
// tag include/exclude sets (both any-of). Roll-up events are dropped unless
// the policy opts in.
func filter(results []retriever.Result, pol *Policy) []retriever.Result {
	var out []retriever.Result
	for _, r := range results {
		ev := r.Event
		if !pol.allowsType(ev.Type) {
			continue
		}
		if ev.Importance < pol.MinImportance {
			continue
		}
		if !ev.HasAnyTag(pol.TagsInclude) {
			continue
		}
		if len(pol.TagsExclude) > 0 && anyTagMatch(ev, pol.TagsExclude) {
			continue
		}
		if !pol.IncludeRollups && isRollup(ev) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func anyTagMatch(ev *event.Event, tags []string) bool {
	for _, t := range tags {
		if ev.HasTag(t) {
			return true
		}
	}
	return false
}

func isRollup(ev *event.Event) bool {
	for _, t := range ev.Tags {
		if strings.HasPrefix(t, "rollup-") {
			return true
		}
	}
	return false
}

// pack greedily fills the budget in ranked order: first candidate that
// would overflow stops the pack outright. No partial inclusion and no
// backtracking to smaller later items; simplicity and latency win over
// optimal packing. The diversity penalty multiplies the reported score by
// (1 - diversity weight) for repeated event types; in cosmetic mode it
// never changes which items are included.
func (e *Engine) pack(candidates []retriever.Result, pol *Policy, budget int) *ContextPack {
	pack := &ContextPack{
		PackID:       "cp-" + uuid.NewString(),
		BudgetTokens: budget,
	}
	seen := make(map[event.Type]bool)

	if pol.DiversityMode == DiversityReorder {
		e.packReorder(pack, candidates, pol, budget, seen)
	} else {
		for _, r := range candidates {
			if !e.add(pack, r, pol, budget, seen) {
				break
			}
		}
	}

	pack.TotalItems = len(pack.Items)
	if budget > 0 {
		pack.Utilization = float64(pack.TotalTokens) / float64(budget)
	}
	pack.Summary = summarize(pack.Items)
	return pack
}

// packReorder re-sorts the remaining candidates by penalty-adjusted score
// after every pick, so the penalty influences inclusion order rather than
// just the reported numbers.
func (e *Engine) packReorder(pack *ContextPack, candidates []retriever.Result, pol *Policy, budget int, seen map[event.Type]bool) {
	remaining := append([]retriever.Result(nil), candidates...)
	for len(remaining) > 0 {
		best := 0
		bestScore := adjusted(remaining[0], pol, seen)
		for i := 1; i < len(remaining); i++ {
			if s := adjusted(remaining[i], pol, seen); s > bestScore {
				best, bestScore = i, s
			}
		}
		if !e.add(pack, remaining[best], pol, budget, seen) {
			return
		}
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
}

func adjusted(r retriever.Result, pol *Policy, seen map[event.Type]bool) float64 {
	if seen[r.Event.Type] {
		return r.Score * (1 - pol.Weights.Diversity)
	}
	return r.Score
}

// add renders, budgets, and appends one candidate. Returns false when the
// candidate would overflow the budget.
func (e *Engine) add(pack *ContextPack, r retriever.Result, pol *Policy, budget int, seen map[event.Type]bool) bool {
	content := event.Render(r.Event)
	tokens := e.counter.Count(content)
	if pack.TotalTokens+tokens > budget {
		return false
	}

	score := adjusted(r, pol, seen)
	seen[r.Event.Type] = true

	pack.Items = append(pack.Items, PackItem{
		EventID: r.EventID,
		Content: content,
		Score:   score,
		Metadata: map[string]string{
			"type":       string(r.Event.Type),
			"project":    r.Event.Project,
			"branch":     r.Event.Branch,
			"source":     r.Event.Source,
			"timestamp":  r.Event.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
			"importance": strconv.FormatFloat(r.Event.Importance, 'f', 1, 64),
		},
	})
	pack.TotalTokens += tokens
	return true
}

// summarize reports the item count and per-type frequencies, most frequent
// first with alphabetical tie-breaks, so the same pack always summarizes
// the same way.
func summarize(items []PackItem) string {
	if len(items) == 0 {
		return "0 items"
	}

	counts := make(map[string]int)
	for _, it := range items {
		counts[it.Metadata["type"]]++
	}
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if counts[types[i]] != counts[types[j]] {
			return counts[types[i]] > counts[types[j]]
		}
		return types[i] < types[j]
	})

	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, fmt.Sprintf("%s x%d", t, counts[t]))
	}
	return fmt.Sprintf("%d items: %s", len(items), strings.Join(parts, ", "))
}
