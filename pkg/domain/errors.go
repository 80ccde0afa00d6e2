package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownNode is returned when a step is requested for a node outside the graph.
var ErrUnknownNode = errors.New("unknown node")

// ErrUnknownRole is returned when a state is created with a role other than teacher or student.
var ErrUnknownRole = errors.New("unknown role")

// ErrStepLimitExceeded is returned when a run does not halt within the configured number of steps.
var ErrStepLimitExceeded = errors.New("step limit exceeded")

// ErrSessionNotFound is returned when a stored conversation does not exist.
var ErrSessionNotFound = errors.New("session not found")

// ErrNoSearcher is returned when the search tool is invoked without a backend.
var ErrNoSearcher = errors.New("no search backend configured")

// RoutingContractViolation is raised when a decision names a route outside the
// declared choice set of the node that made it.
type RoutingContractViolation struct {
	Node    NodeID
	Got     string
	Allowed []Route
}

func (e *RoutingContractViolation) Error() string {
	return fmt.Sprintf("routing contract violation at %s: %q is not one of [%s]",
		e.Node, e.Got, strings.Join(Strings(e.Allowed), ", "))
}

// MalformedDecisionError is raised when the decision delegate returns a payload
// without the required fields or with fields of the wrong type.
type MalformedDecisionError struct {
	Node  NodeID
	Field string
	Cause error
}

func (e *MalformedDecisionError) Error() string {
	msg := fmt.Sprintf("malformed decision at %s", e.Node)
	if e.Field != "" {
		msg += fmt.Sprintf(": field %q", e.Field)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

func (e *MalformedDecisionError) Unwrap() error {
	return e.Cause
}
