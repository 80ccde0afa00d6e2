package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeEnter EventType = "node_enter"
	EventNodeLeave EventType = "node_leave"
	EventDecision  EventType = "decision"
	EventHalt      EventType = "halt"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
}

// NodeEvent represents entry or exit from a node.
type NodeEvent struct {
	EventBase
	NodeID   NodeID   `json:"node_id"`
	NodeKind NodeKind `json:"node_kind"`
	// Duration is set on leave events.
	Duration time.Duration `json:"duration,omitempty"`
	// Diff is set on successful leave events.
	Diff *StateDiff `json:"diff,omitempty"`
	// Err is set on leave events when the node failed.
	Err error `json:"-"`
}

// DecisionEvent is emitted after the engine resolves the next node.
type DecisionEvent struct {
	EventBase
	From  NodeID `json:"from"`
	Route Route  `json:"route"`
	To    NodeID `json:"to"`
}

// HaltEvent is emitted once per run, when the engine reaches Halt.
type HaltEvent struct {
	EventBase
	LastNode NodeID `json:"last_node"`
	Steps    int    `json:"steps"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnNodeEnter func(context.Context, *NodeEvent)
	OnNodeLeave func(context.Context, *NodeEvent)
	OnDecision  func(context.Context, *DecisionEvent)
	OnHalt      func(context.Context, *HaltEvent)
}

// Merge combines hooks so that each callback fans out to every non-nil handler.
func Merge(hooks ...LifecycleHooks) LifecycleHooks {
	var out LifecycleHooks
	for _, h := range hooks {
		h := h
		if h.OnNodeEnter != nil {
			prev := out.OnNodeEnter
			out.OnNodeEnter = func(ctx context.Context, e *NodeEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnNodeEnter(ctx, e)
			}
		}
		if h.OnNodeLeave != nil {
			prev := out.OnNodeLeave
			out.OnNodeLeave = func(ctx context.Context, e *NodeEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnNodeLeave(ctx, e)
			}
		}
		if h.OnDecision != nil {
			prev := out.OnDecision
			out.OnDecision = func(ctx context.Context, e *DecisionEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnDecision(ctx, e)
			}
		}
		if h.OnHalt != nil {
			prev := out.OnHalt
			out.OnHalt = func(ctx context.Context, e *HaltEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnHalt(ctx, e)
			}
		}
	}
	return out
}
