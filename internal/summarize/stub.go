package summarize

import "context"

// Stub echoes the prompt back, so offline runs and tests see the templated
// text unchanged.
type Stub struct{}

func NewStub() *Stub {
	return &Stub{}
}

func (Stub) Name() string {
	return "stub"
}

func (Stub) Summarize(_ context.Context, prompt string) (string, error) {
	return prompt, nil
}
