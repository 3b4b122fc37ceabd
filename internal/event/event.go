// Package event defines the immutable event model shared by every part of
// the engine. Events are produced by external subsystems (test runners,
// CI hooks, agents) and are never mutated once ingested; everything layered
// on top holds read references by id.
package event

import (
	"time"
)

// Type enumerates the kinds of facts the store accepts.
type Type string

const (
	TypeTestExecution Type = "test_execution"
	TypeTestFailure   Type = "test_failure"
	TypeCodeChange    Type = "code_change"
	TypeAgentAction   Type = "agent_action"
	TypeDeployment    Type = "deployment"
	TypeSystem        Type = "system_event"
)

// Valid reports whether t is a known event type.
func (t Type) Valid() bool {
	switch t {
	case TypeTestExecution, TypeTestFailure, TypeCodeChange,
		TypeAgentAction, TypeDeployment, TypeSystem:
		return true
	}
	return false
}

// Event is an immutable fact. Importance ranges 0.0-5.0 and denotes
// retrieval priority, not severity.
type Event struct {
	ID         string
	Type       Type
	Project    string
	Branch     string
	Source     string
	Timestamp  time.Time
	Importance float64
	Tags       []string
	Data       Payload
}

// HasTag reports whether the event carries the given tag.
func (e *Event) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasAnyTag reports whether the event carries at least one of the tags.
// An empty filter matches everything.
func (e *Event) HasAnyTag(tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	for _, t := range tags {
		if e.HasTag(t) {
			return true
		}
	}
	return false
}
