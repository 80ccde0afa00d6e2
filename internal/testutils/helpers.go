package testutils

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/aretw0/tutorgraph/pkg/ports"
	"github.com/stretchr/testify/require"
)

// Choice is one scripted decision.
type Choice struct {
	Next     string
	Response string
	// Payload, when set, is returned verbatim instead of {next, response}.
	Payload map[string]any
	Err     error
}

// ScriptedDecider returns scripted decisions per node, in order.
// It records every request it receives.
type ScriptedDecider struct {
	mu       sync.Mutex
	script   map[domain.NodeID][]Choice
	Requests []ports.DecisionRequest
}

// NewScriptedDecider creates an empty script.
func NewScriptedDecider() *ScriptedDecider {
	return &ScriptedDecider{script: make(map[domain.NodeID][]Choice)}
}

// On queues decisions for node. It returns the decider for chaining.
func (d *ScriptedDecider) On(node domain.NodeID, choices ...Choice) *ScriptedDecider {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script[node] = append(d.script[node], choices...)
	return d
}

// Decide implements ports.Decider.
func (d *ScriptedDecider) Decide(ctx context.Context, req ports.DecisionRequest) (map[string]any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Requests = append(d.Requests, req)

	queue := d.script[req.Node]
	if len(queue) == 0 {
		return nil, fmt.Errorf("no scripted decision left for %s", req.Node)
	}
	c := queue[0]
	d.script[req.Node] = queue[1:]

	if c.Err != nil {
		return nil, c.Err
	}
	if c.Payload != nil {
		return c.Payload, nil
	}
	return map[string]any{"next": c.Next, "response": c.Response}, nil
}

// EchoResponder answers "<agent>: <last human text>" and records requests.
type EchoResponder struct {
	mu       sync.Mutex
	Err      error
	Requests []ports.RespondRequest
}

// Respond implements ports.Responder.
func (r *EchoResponder) Respond(ctx context.Context, req ports.RespondRequest) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Requests = append(r.Requests, req)
	if r.Err != nil {
		return "", r.Err
	}

	last := ""
	for _, m := range req.Messages {
		if m.Kind == domain.KindHuman {
			last = m.Content
		}
	}
	return fmt.Sprintf("%s: %s", req.Agent, last), nil
}

// NewState creates a student state with the given human turns. It fails the test on error.
func NewState(t *testing.T, turns ...string) domain.State {
	t.Helper()

	msgs := make([]domain.Message, len(turns))
	for i, turn := range turns {
		msgs[i] = domain.HumanMessage(turn)
	}
	s, err := domain.NewState(domain.RoleStudent, msgs...)
	require.NoError(t, err, "Failed to create state")
	return s
}
