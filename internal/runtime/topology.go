package runtime

import (
	"fmt"

	"github.com/aretw0/tutorgraph/pkg/domain"
)

// supervisorEdges is the static transition table of the routing nodes.
var supervisorEdges = map[domain.NodeID][]domain.Edge{
	domain.TopLevelSupervisor: {
		{From: domain.TopLevelSupervisor, To: domain.MathSupervisor, On: domain.RouteMathSupervisor},
		{From: domain.TopLevelSupervisor, To: domain.EnglishSupervisor, On: domain.RouteEnglishSupervisor},
		{From: domain.TopLevelSupervisor, To: domain.Halt, On: domain.RouteFinish},
	},
	domain.MathSupervisor:    subjectEdges(domain.MathSupervisor),
	domain.EnglishSupervisor: subjectEdges(domain.EnglishSupervisor),
}

func subjectEdges(from domain.NodeID) []domain.Edge {
	return []domain.Edge{
		{From: from, To: domain.LessonAgent, On: domain.RouteLessonAgent},
		{From: from, To: domain.AssessmentAgent, On: domain.RouteAssessmentAgent},
		{From: from, To: domain.TopLevelSupervisor, On: domain.RouteReturnToTopLevel},
		{From: from, To: domain.Halt, On: domain.RouteFinish},
	}
}

func leafEdges(from domain.NodeID) []domain.Edge {
	return []domain.Edge{
		{From: from, To: domain.Halt, Condition: "next == FINISH"},
		{From: from, To: domain.Halt, Condition: "current_supervisor == \"\""},
		{From: from, To: domain.MathSupervisor, Condition: "current_supervisor == MathSupervisor"},
		{From: from, To: domain.EnglishSupervisor, Condition: "current_supervisor == EnglishSupervisor"},
	}
}

// Edges returns the full static topology in node declaration order.
func Edges() []domain.Edge {
	var out []domain.Edge
	for _, id := range domain.Nodes {
		switch id.Kind() {
		case domain.KindLeaf:
			out = append(out, leafEdges(id)...)
		default:
			out = append(out, supervisorEdges[id]...)
		}
	}
	return out
}

// Choices returns the routes a supervisor may emit, in table order.
func Choices(node domain.NodeID) []domain.Route {
	edges := supervisorEdges[node]
	out := make([]domain.Route, len(edges))
	for i, e := range edges {
		out[i] = e.On
	}
	return out
}

// Resolve computes the node that runs after from, given the state it produced.
func Resolve(from domain.NodeID, state domain.State) (domain.NodeID, error) {
	switch from.Kind() {
	case domain.KindTopLevel, domain.KindSubject:
		for _, e := range supervisorEdges[from] {
			if e.On == state.Next {
				return e.To, nil
			}
		}
		return "", &domain.RoutingContractViolation{
			Node:    from,
			Got:     string(state.Next),
			Allowed: Choices(from),
		}
	case domain.KindLeaf:
		return continueAfterLeaf(state), nil
	case domain.KindTerminal:
		return domain.Halt, nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownNode, from)
	}
}

// continueAfterLeaf hands control back to the supervisor in charge.
// It depends only on Next and CurrentSupervisor.
func continueAfterLeaf(state domain.State) domain.NodeID {
	if state.Next == domain.RouteFinish {
		return domain.Halt
	}
	switch state.CurrentSupervisor {
	case domain.MathSupervisor:
		return domain.MathSupervisor
	case domain.EnglishSupervisor:
		return domain.EnglishSupervisor
	default:
		return domain.Halt
	}
}
