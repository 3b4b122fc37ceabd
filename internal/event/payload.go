package event

import (
	"encoding/json"
	"fmt"
)

// Payload is the typed data attached to an Event. One implementation exists
// per event type; producers with no matching shape fall back to Generic.
// The union collapses to a string-keyed map only at the storage boundary
// (see Marshal/Unmarshal below).
type Payload interface {
	EventType() Type
}

// ExecutionPayload describes a single test run.
type ExecutionPayload struct {
	TestID     string  `json:"test_id"`
	Suite      string  `json:"suite,omitempty"`
	Status     string  `json:"status"` // "passed" or "failed"
	DurationMS float64 `json:"duration_ms"`
}

func (ExecutionPayload) EventType() Type { return TypeTestExecution }

// Passed reports whether the run succeeded.
func (p ExecutionPayload) Passed() bool { return p.Status == "passed" }

// FailurePayload describes a test failure with its error signature.
type FailurePayload struct {
	TestID       string `json:"test_id"`
	ErrorType    string `json:"error_type"`
	ErrorMessage string `json:"error_message"`
	StackTrace   string `json:"stack_trace,omitempty"`
	File         string `json:"file,omitempty"`
}

func (FailurePayload) EventType() Type { return TypeTestFailure }

// ChangePayload describes a code change touching a set of files.
type ChangePayload struct {
	Files       []string `json:"files"`
	Author      string   `json:"author,omitempty"`
	CommitHash  string   `json:"commit_hash,omitempty"`
	Description string   `json:"description,omitempty"`
}

func (ChangePayload) EventType() Type { return TypeCodeChange }

// ActionPayload describes an agent action, including healing attempts.
type ActionPayload struct {
	Action   string `json:"action"`
	TestID   string `json:"test_id,omitempty"`
	Strategy string `json:"strategy,omitempty"`
	Success  bool   `json:"success,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

func (ActionPayload) EventType() Type { return TypeAgentAction }

// DeploymentPayload describes a deployment.
type DeploymentPayload struct {
	Environment string `json:"environment"`
	Version     string `json:"version,omitempty"`
	Status      string `json:"status,omitempty"`
}

func (DeploymentPayload) EventType() Type { return TypeDeployment }

// SystemPayload covers system events, including registry snapshots and
// roll-ups, whose body is a free-form document.
type SystemPayload struct {
	Kind string `json:"kind"`
	Body string `json:"body,omitempty"`
}

func (SystemPayload) EventType() Type { return TypeSystem }

// Generic carries payloads from producers this engine does not model.
type Generic map[string]any

func (Generic) EventType() Type { return "" }

// payloadEnvelope is the wire form: the event type doubles as the tag.
type payloadEnvelope struct {
	Kind Type            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalPayload serializes a payload with its type tag.
func MarshalPayload(t Type, p Payload) ([]byte, error) {
	if p == nil {
		p = Generic{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return json.Marshal(payloadEnvelope{Kind: t, Data: data})
}

// UnmarshalPayload restores a payload from its wire form. Unknown kinds
// decode as Generic so foreign events survive a round trip.
func UnmarshalPayload(raw []byte) (Payload, error) {
	var env payloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshal payload envelope: %w", err)
	}

	var p Payload
	switch env.Kind {
	case TypeTestExecution:
		p = &ExecutionPayload{}
	case TypeTestFailure:
		p = &FailurePayload{}
	case TypeCodeChange:
		p = &ChangePayload{}
	case TypeAgentAction:
		p = &ActionPayload{}
	case TypeDeployment:
		p = &DeploymentPayload{}
	case TypeSystem:
		p = &SystemPayload{}
	default:
		g := Generic{}
		if err := json.Unmarshal(env.Data, &g); err != nil {
			return nil, fmt.Errorf("unmarshal generic payload: %w", err)
		}
		return g, nil
	}

	if err := json.Unmarshal(env.Data, p); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", env.Kind, err)
	}

	switch v := p.(type) {
	case *ExecutionPayload:
		return *v, nil
	case *FailurePayload:
		return *v, nil
	case *ChangePayload:
		return *v, nil
	case *ActionPayload:
		return *v, nil
	case *DeploymentPayload:
		return *v, nil
	case *SystemPayload:
		return *v, nil
	}
	return p, nil
}
