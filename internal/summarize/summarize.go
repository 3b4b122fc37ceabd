// Package summarize turns report payloads into narrative text through a
// configurable model backend. Every caller treats summaries as optional:
// backend failures fall back to templated text upstream.
package summarize

import (
	"context"
	"fmt"
)

// systemPrompt frames every summary request.
const systemPrompt = "You are a QA analyst. Summarize the following test " +
	"health data in two or three plain sentences for an engineering " +
	"standup. Lead with the most actionable finding. No markdown."

// Summarizer produces free text from a report prompt.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
	// Name returns the backend identifier (e.g. "stub", "openai").
	Name() string
}

// New builds the backend named in configuration.
func New(backend, model, apiKey string) (Summarizer, error) {
	switch backend {
	case "", "stub":
		return NewStub(), nil
	case "openai":
		return NewOpenAI(apiKey, "", model)
	case "ollama":
		return NewOllama(model)
	case "gemini":
		return NewGemini(apiKey, model)
	default:
		return nil, fmt.Errorf("unknown summarizer backend %q", backend)
	}
}
