package ports

import (
	"context"

	"github.com/aretw0/tutorgraph/pkg/domain"
)

// DecisionRequest carries everything a supervisor hands to its decision delegate.
type DecisionRequest struct {
	// Node is the supervisor asking for a decision.
	Node domain.NodeID
	// Messages is the full prompt: system prompt, trimmed history and trailing instruction.
	Messages []domain.Message
	// Choices is the closed set of routes the supervisor may emit.
	Choices []domain.Route
	// Function is the structured-output function the delegate must call.
	Function domain.Tool
}

// Decider produces a structured routing decision.
// The returned map is the raw function-call payload; it must contain "next" and "response".
type Decider interface {
	Decide(ctx context.Context, req DecisionRequest) (map[string]any, error)
}

// DeciderFunc adapts a function to the Decider interface.
type DeciderFunc func(ctx context.Context, req DecisionRequest) (map[string]any, error)

// Decide implements Decider.
func (f DeciderFunc) Decide(ctx context.Context, req DecisionRequest) (map[string]any, error) {
	return f(ctx, req)
}

// RespondRequest carries everything a leaf agent hands to its content delegate.
type RespondRequest struct {
	Agent domain.NodeID
	// Messages is the system prompt followed by the conversation so far.
	Messages []domain.Message
	// Tools the delegate may use while producing its answer.
	Tools []Tool
}

// Responder produces the content of a leaf agent's reply.
// Any tool use happens inside the delegate; the router only sees the final text.
type Responder interface {
	Respond(ctx context.Context, req RespondRequest) (string, error)
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(ctx context.Context, req RespondRequest) (string, error)

// Respond implements Responder.
func (f ResponderFunc) Respond(ctx context.Context, req RespondRequest) (string, error) {
	return f(ctx, req)
}

// Tool is a callable capability offered to a Responder.
type Tool interface {
	Definition() domain.Tool
	Call(ctx context.Context, args map[string]any) (string, error)
}
