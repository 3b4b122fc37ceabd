package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/qaforge/recall/internal/event"
	"github.com/qaforge/recall/internal/observe"
)

// policyFile is the raw on-disk form. Pointer fields distinguish "missing"
// from an explicit zero so defaults only fill real gaps.
type policyFile struct {
	PolicyID       string       `yaml:"policy_id" json:"policy_id"`
	Task           string       `yaml:"task" json:"task"`
	Weights        *weightsFile `yaml:"weights" json:"weights"`
	BudgetTokens   *int         `yaml:"budget_tokens" json:"budget_tokens"`
	EventTypes     []string     `yaml:"event_types" json:"event_types"`
	MinImportance  *float64     `yaml:"min_importance" json:"min_importance"`
	TagsInclude    []string     `yaml:"tags_include" json:"tags_include"`
	TagsExclude    []string     `yaml:"tags_exclude" json:"tags_exclude"`
	IncludeRollups *bool        `yaml:"include_rollups" json:"include_rollups"`
	MaxEvents      *int         `yaml:"max_events" json:"max_events"`
	DiversityMode  string       `yaml:"diversity_mode" json:"diversity_mode"`
}

type weightsFile struct {
	Pinned     *float64 `yaml:"pinned" json:"pinned"`
	Importance *float64 `yaml:"importance" json:"importance"`
	Semantic   *float64 `yaml:"semantic" json:"semantic"`
	Recency    *float64 `yaml:"recency" json:"recency"`
	Diversity  *float64 `yaml:"diversity" json:"diversity"`
}

func (f *policyFile) resolve() (*Policy, error) {
	if f.PolicyID == "" {
		return nil, fmt.Errorf("policy_id is required")
	}
	if f.Task == "" {
		return nil, fmt.Errorf("task is required")
	}

	p := &Policy{
		PolicyID: f.PolicyID,
		Task:     f.Task,
		Weights: Weights{
			Pinned:     DefaultPinnedWeight,
			Importance: DefaultImportanceWeight,
			Semantic:   DefaultSemanticWeight,
			Recency:    DefaultRecencyWeight,
			Diversity:  DefaultDiversityWeight,
		},
		BudgetTokens:  DefaultBudgetTokens,
		MaxEvents:     DefaultMaxEvents,
		TagsInclude:   f.TagsInclude,
		TagsExclude:   f.TagsExclude,
		DiversityMode: DiversityCosmetic,
	}

	if w := f.Weights; w != nil {
		if w.Pinned != nil {
			p.Weights.Pinned = *w.Pinned
		}
		if w.Importance != nil {
			p.Weights.Importance = *w.Importance
		}
		if w.Semantic != nil {
			p.Weights.Semantic = *w.Semantic
		}
		if w.Recency != nil {
			p.Weights.Recency = *w.Recency
		}
		if w.Diversity != nil {
			p.Weights.Diversity = *w.Diversity
		}
	}
	if f.BudgetTokens != nil {
		if *f.BudgetTokens <= 0 {
			return nil, fmt.Errorf("budget_tokens must be positive")
		}
		p.BudgetTokens = *f.BudgetTokens
	}
	if f.MinImportance != nil {
		p.MinImportance = *f.MinImportance
	}
	if f.IncludeRollups != nil {
		p.IncludeRollups = *f.IncludeRollups
	}
	if f.MaxEvents != nil {
		p.MaxEvents = *f.MaxEvents
	}
	if f.DiversityMode != "" {
		if f.DiversityMode != DiversityCosmetic && f.DiversityMode != DiversityReorder {
			return nil, fmt.Errorf("unknown diversity_mode %q", f.DiversityMode)
		}
		p.DiversityMode = f.DiversityMode
	}
	for _, t := range f.EventTypes {
		et := event.Type(t)
		if !et.Valid() {
			return nil, fmt.Errorf("unknown event type %q", t)
		}
		p.EventTypes = append(p.EventTypes, et)
	}
	return p, nil
}

// LoadDir reads every policy definition in dir (.yaml, .yml or .json). A
// file that fails to parse is logged and skipped; one bad file must not
// prevent the others from loading. If the directory yields no policies the
// default policy is synthesized and persisted there.
func LoadDir(dir string, obs *observe.Observer) (map[string]*Policy, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create policy directory: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy directory: %w", err)
	}

	policies := make(map[string]*Policy)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		p, err := loadFile(path, ext)
		if err != nil {
			obs.Log().Warn().Str("file", entry.Name()).Err(err).Msg("skipping bad policy file")
			continue
		}
		if _, dup := policies[p.PolicyID]; dup {
			obs.Log().Warn().Str("policy", p.PolicyID).Str("file", entry.Name()).Msg("skipping duplicate policy id")
			continue
		}
		policies[p.PolicyID] = p
	}

	if len(policies) == 0 {
		def := DefaultPolicy()
		if err := persist(dir, def); err != nil {
			return nil, err
		}
		policies[def.PolicyID] = def
		obs.Log().Info().Str("policy", def.PolicyID).Msg("synthesized default policy")
	}
	return policies, nil
}

func loadFile(path, ext string) (*Policy, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var f policyFile
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to unmarshal JSON policy: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to unmarshal YAML policy: %w", err)
		}
	}
	return f.resolve()
}

func persist(dir string, p *Policy) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal policy: %w", err)
	}
	path := filepath.Join(dir, p.PolicyID+".yaml")
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to persist policy: %w", err)
	}
	return nil
}
