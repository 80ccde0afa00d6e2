package agents

import (
	"context"
	"fmt"

	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/aretw0/tutorgraph/pkg/ports"
	"github.com/aretw0/tutorgraph/pkg/route"
)

// Supervisor is a routing node: it asks its Decider to pick one of a closed set
// of routes and records the pick in State.Next.
type Supervisor struct {
	id          domain.NodeID
	author      string
	description string
	instruction string
	choices     []domain.Route
	topLevel    bool
	decider     ports.Decider
	cfg         *config
}

// NewTopLevel creates the supervisor that chooses a subject supervisor.
// It is the only node that sets State.CurrentSupervisor.
func NewTopLevel(decider ports.Decider, subjects []domain.NodeID, opts ...Option) *Supervisor {
	choices := []domain.Route{domain.RouteFinish}
	for _, s := range subjects {
		choices = append(choices, domain.Route(s))
	}
	return &Supervisor{
		id:          domain.TopLevelSupervisor,
		author:      string(domain.TopLevelSupervisor),
		description: topLevelDescription(),
		instruction: topLevelInstruction(choices),
		choices:     choices,
		topLevel:    true,
		decider:     decider,
		cfg:         newConfig(TopLevelPrompt, opts),
	}
}

// NewSubject creates a subject supervisor that dispatches to agents.
// Its messages are authored by the subject name.
func NewSubject(id domain.NodeID, subject string, agents []domain.NodeID, decider ports.Decider, opts ...Option) *Supervisor {
	choices := []domain.Route{domain.RouteFinish, domain.RouteReturnToTopLevel}
	for _, a := range agents {
		choices = append(choices, domain.Route(a))
	}
	return &Supervisor{
		id:          id,
		author:      subject,
		description: subjectDescription(subject),
		instruction: subjectInstruction(subject, choices),
		choices:     choices,
		decider:     decider,
		cfg:         newConfig(subjectPrompt(id), opts),
	}
}

func subjectPrompt(id domain.NodeID) string {
	switch id {
	case domain.MathSupervisor:
		return MathPrompt
	case domain.EnglishSupervisor:
		return EnglishPrompt
	}
	return ""
}

// ID returns the node this supervisor implements.
func (s *Supervisor) ID() domain.NodeID { return s.id }

// Choices returns a copy of the routes this supervisor may emit.
func (s *Supervisor) Choices() []domain.Route {
	return append([]domain.Route(nil), s.choices...)
}

// Run asks the decider for the next route and records it.
func (s *Supervisor) Run(ctx context.Context, state domain.State) (domain.State, error) {
	prompt := make([]domain.Message, 0, len(state.Messages)+2)
	prompt = append(prompt, domain.SystemMessage(s.cfg.systemPrompt))
	prompt = append(prompt, state.Messages...)
	prompt = append(prompt, domain.SystemMessage(s.instruction))

	trimmed, err := s.cfg.trimmer.Trim(prompt)
	if err != nil {
		return state, err
	}

	fn, err := route.Function(s.description, s.choices)
	if err != nil {
		return state, fmt.Errorf("%s: %w", s.id, err)
	}

	payload, err := s.decider.Decide(ctx, ports.DecisionRequest{
		Node:     s.id,
		Messages: trimmed,
		Choices:  s.Choices(),
		Function: fn,
	})
	if err != nil {
		return state, err
	}

	decision, err := route.Decode(s.id, s.choices, payload)
	if err != nil {
		s.cfg.logger.Warn("rejected decision", "run_id", state.RunID, "node", s.id, "error", err)
		return state, err
	}

	next := state.WithMessage(domain.NamedMessage(s.author, decision.Response))
	next.Next = decision.Next
	if s.topLevel {
		if decision.Next == domain.RouteFinish {
			next.CurrentSupervisor = ""
		} else {
			next.CurrentSupervisor = domain.NodeID(decision.Next)
		}
	}

	s.cfg.logger.Debug("decision", "run_id", state.RunID, "node", s.id, "next", decision.Next)
	return next, nil
}
