package policy

import "strings"

// TokenCounter estimates the token cost of rendered text. The packing
// logic never looks past this interface, so a real tokenizer can be
// swapped in without touching it.
type TokenCounter interface {
	Count(text string) int
}

// HeuristicCounter approximates a GPT-style tokenizer: every run of four
// characters inside a word costs a token, and short words cost one. Close
// enough for budgeting; exactness is a non-goal.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(text string) int {
	total := 0
	for _, field := range strings.Fields(text) {
		n := (len(field) + 3) / 4
		if n < 1 {
			n = 1
		}
		total += n
	}
	return total
}

// FixedCounter charges a flat cost per item regardless of content. Used in
// tests to make budgets exact.
type FixedCounter struct {
	Cost int
}

func (f FixedCounter) Count(text string) int {
	return f.Cost
}
