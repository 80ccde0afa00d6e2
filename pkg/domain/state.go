package domain

import (
	"github.com/google/uuid"
)

// Role records who is talking to the router. Routing never reads it.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTeacher
}

// State represents the conversation snapshot threaded through a run.
// It is passed by value; nodes return a new State instead of mutating the one they received.
type State struct {
	// RunID tags logs, traces and metrics. It is not read by routing.
	RunID string `json:"run_id,omitempty"`
	// Messages is append-only and in conversation order.
	Messages []Message `json:"messages"`
	// Next holds the route chosen by the last supervisor that ran.
	Next Route `json:"next"`
	// CurrentSupervisor is the subject supervisor in control, empty at the top level.
	CurrentSupervisor NodeID `json:"current_supervisor"`
	// Role is recorded for the host and the prompts.
	Role Role `json:"role"`
}

// NewState creates a clean state for a new run.
func NewState(role Role, messages ...Message) (State, error) {
	if role == "" {
		role = RoleStudent
	}
	if !role.Valid() {
		return State{}, ErrUnknownRole
	}
	s := State{
		RunID:    uuid.NewString(),
		Messages: make([]Message, 0, len(messages)),
		Role:     role,
	}
	s.Messages = append(s.Messages, messages...)
	return s, nil
}

// Clone returns a copy whose Messages slice does not share a backing array with s.
func (s State) Clone() State {
	next := s
	next.Messages = make([]Message, len(s.Messages))
	copy(next.Messages, s.Messages)
	return next
}

// WithMessage returns a copy of s with m appended.
func (s State) WithMessage(m Message) State {
	next := s
	next.Messages = make([]Message, len(s.Messages), len(s.Messages)+1)
	copy(next.Messages, s.Messages)
	next.Messages = append(next.Messages, m)
	return next
}

// LastMessage returns the most recent message, if any.
func (s State) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// AtTopLevel reports whether no subject supervisor is in control.
func (s State) AtTopLevel() bool {
	return s.CurrentSupervisor == ""
}
