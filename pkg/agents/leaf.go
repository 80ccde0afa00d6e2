package agents

import (
	"context"

	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/aretw0/tutorgraph/pkg/ports"
)

// Leaf is a task agent: it appends one message produced by its Responder.
type Leaf struct {
	id        domain.NodeID
	responder ports.Responder
	cfg       *config
}

// NewLeaf creates a leaf agent.
func NewLeaf(id domain.NodeID, prompt string, responder ports.Responder, opts ...Option) *Leaf {
	return &Leaf{
		id:        id,
		responder: responder,
		cfg:       newConfig(prompt, opts),
	}
}

// NewLesson creates the lesson agent. Pass the search tool with WithTools.
func NewLesson(responder ports.Responder, opts ...Option) *Leaf {
	return NewLeaf(domain.LessonAgent, LessonPrompt, responder, opts...)
}

// NewAssessment creates the assessment agent.
func NewAssessment(responder ports.Responder, opts ...Option) *Leaf {
	return NewLeaf(domain.AssessmentAgent, AssessmentPrompt, responder, opts...)
}

// ID returns the node this agent implements.
func (l *Leaf) ID() domain.NodeID { return l.id }

// Run appends the responder's reply. Only Messages changes.
func (l *Leaf) Run(ctx context.Context, state domain.State) (domain.State, error) {
	msgs := make([]domain.Message, 0, len(state.Messages)+1)
	msgs = append(msgs, domain.SystemMessage(l.cfg.systemPrompt))
	msgs = append(msgs, state.Messages...)

	text, err := l.responder.Respond(ctx, ports.RespondRequest{
		Agent:    l.id,
		Messages: msgs,
		Tools:    l.cfg.tools,
	})
	if err != nil {
		return state, err
	}

	l.cfg.logger.Debug("agent replied", "run_id", state.RunID, "node", l.id, "chars", len(text))
	return state.WithMessage(domain.AgentMessage(l.id, text)), nil
}
