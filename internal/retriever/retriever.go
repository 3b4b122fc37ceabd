// Package retriever defines the hybrid retrieval collaborator consumed by
// the policy engine, plus a reference implementation blending semantic,
// recency, and importance channels over the event store.
package retriever

import (
	"context"

	"github.com/qaforge/recall/internal/event"
)

// Weights are the channel weights for one retrieval call. They come from
// the active retrieval policy.
type Weights struct {
	Semantic   float64
	Recency    float64
	Importance float64
}

// Query is a single retrieval request.
type Query struct {
	Text      string
	Project   string
	Branch    string
	Weights   Weights
	MaxEvents int
}

// Result is one ranked candidate. Score is the blended channel score,
// higher is better; results are ordered descending.
type Result struct {
	EventID string
	Score   float64
	Event   *event.Event
}

// Retriever ranks events against a textual query. Errors propagate to the
// caller unmodified; retry policy belongs to the implementation.
type Retriever interface {
	Retrieve(ctx context.Context, q Query) ([]Result, error)
}
