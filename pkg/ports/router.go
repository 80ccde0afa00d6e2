package ports

import (
	"context"

	"github.com/aretw0/tutorgraph/pkg/domain"
)

// RunResult is the outcome of driving a state from the entry node to Halt.
type RunResult struct {
	State domain.State    `json:"state"`
	Path  []domain.NodeID `json:"path"`
	Steps int             `json:"steps"`
}

// Router is the driving port consumed by adapters (e.g., HTTP, MCP).
// Implementations are stateless: every call receives the full State.
type Router interface {
	// Step executes a single node and returns the updated state and the next node.
	Step(ctx context.Context, node domain.NodeID, state domain.State) (domain.State, domain.NodeID, error)

	// Run drives the state from the entry node until Halt.
	Run(ctx context.Context, state domain.State) (RunResult, error)

	// Inspect returns the static topology for introspection.
	Inspect() []domain.Edge
}
