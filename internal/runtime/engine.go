package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/aretw0/tutorgraph/pkg/ports"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// DefaultMaxSteps bounds a run that never reaches Halt.
const DefaultMaxSteps = 25

// Handler executes one node of the graph.
// It receives its own copy of the state and returns the updated copy.
type Handler interface {
	Run(ctx context.Context, state domain.State) (domain.State, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, state domain.State) (domain.State, error)

// Run implements Handler.
func (f HandlerFunc) Run(ctx context.Context, state domain.State) (domain.State, error) {
	return f(ctx, state)
}

// Handlers maps every executable node to its implementation.
type Handlers map[domain.NodeID]Handler

// Engine is the core routing state machine.
type Engine struct {
	handlers Handlers
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
	tracer   trace.Tracer
	maxSteps int
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTracer sets the tracer used for run and step spans.
func WithTracer(tracer trace.Tracer) EngineOption {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// WithMaxSteps bounds the number of steps a run may take.
func WithMaxSteps(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// NewEngine creates an engine over the fixed topology.
// Every executable node must have a handler.
func NewEngine(handlers Handlers, opts ...EngineOption) (*Engine, error) {
	for _, id := range domain.Nodes {
		if handlers[id] == nil {
			return nil, fmt.Errorf("missing handler for node %s", id)
		}
	}

	e := &Engine{
		handlers: handlers,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:   noop.NewTracerProvider().Tracer("tutorgraph"),
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

var _ ports.Router = (*Engine)(nil)

// Step executes node against state and resolves the node that runs next.
// Handler errors are returned as-is.
func (e *Engine) Step(ctx context.Context, node domain.NodeID, state domain.State) (domain.State, domain.NodeID, error) {
	if err := ctx.Err(); err != nil {
		return state, node, err
	}
	handler, ok := e.handlers[node]
	if !ok {
		return state, node, fmt.Errorf("%w: %q", domain.ErrUnknownNode, node)
	}

	ctx, span := e.tracer.Start(ctx, "tutorgraph.Step",
		trace.WithAttributes(
			attribute.String("tutorgraph.run_id", state.RunID),
			attribute.String("tutorgraph.node", string(node)),
		),
	)
	defer span.End()

	e.emitNodeEnter(ctx, state.RunID, node)
	start := time.Now()
	next, err := handler.Run(ctx, state.Clone())
	var diff *domain.StateDiff
	if err == nil {
		diff = domain.Diff(&state, &next)
	}
	e.emitNodeLeave(ctx, state.RunID, node, time.Since(start), diff, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "node failed")
		e.logger.Debug("node failed", "run_id", state.RunID, "node", node, "error", err)
		return state, node, err
	}

	to, err := Resolve(node, next)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "routing failed")
		return state, node, err
	}

	span.SetAttributes(
		attribute.String("tutorgraph.next", string(next.Next)),
		attribute.String("tutorgraph.to", string(to)),
	)
	e.emitDecision(ctx, next.RunID, node, next.Next, to)
	e.logger.Debug("step",
		"run_id", next.RunID,
		"node", node,
		"next", next.Next,
		"to", to,
		"current_supervisor", next.CurrentSupervisor,
		"messages", len(next.Messages),
	)
	return next, to, nil
}

// Run drives state from the entry node until Halt.
// On error the result holds the last good state and the path walked so far.
func (e *Engine) Run(ctx context.Context, state domain.State) (ports.RunResult, error) {
	if state.RunID == "" {
		state.RunID = uuid.NewString()
	}

	ctx, span := e.tracer.Start(ctx, "tutorgraph.Run",
		trace.WithAttributes(attribute.String("tutorgraph.run_id", state.RunID)),
	)
	defer span.End()

	res := ports.RunResult{State: state.Clone()}
	node := domain.EntryNode
	for node != domain.Halt {
		if res.Steps >= e.maxSteps {
			err := fmt.Errorf("%w: run %s reached %d steps at %s", domain.ErrStepLimitExceeded, state.RunID, e.maxSteps, node)
			span.RecordError(err)
			span.SetStatus(codes.Error, "step limit")
			return res, err
		}

		res.Path = append(res.Path, node)
		next, to, err := e.Step(ctx, node, res.State)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "step failed")
			return res, err
		}
		res.State = next
		res.Steps++
		node = to
	}

	last := domain.EntryNode
	if len(res.Path) > 0 {
		last = res.Path[len(res.Path)-1]
	}
	e.emitHalt(ctx, res.State.RunID, last, res.Steps)
	e.logger.Info("run halted",
		"run_id", res.State.RunID,
		"steps", res.Steps,
		"last_node", last,
		"current_supervisor", res.State.CurrentSupervisor,
	)
	span.SetAttributes(attribute.Int("tutorgraph.steps", res.Steps))
	return res, nil
}

// Inspect returns the static topology.
func (e *Engine) Inspect() []domain.Edge {
	return Edges()
}

func (e *Engine) emitNodeEnter(ctx context.Context, runID string, node domain.NodeID) {
	if e.hooks.OnNodeEnter == nil {
		return
	}
	e.hooks.OnNodeEnter(ctx, &domain.NodeEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventNodeEnter, RunID: runID},
		NodeID:    node,
		NodeKind:  node.Kind(),
	})
}

func (e *Engine) emitNodeLeave(ctx context.Context, runID string, node domain.NodeID, d time.Duration, diff *domain.StateDiff, err error) {
	if e.hooks.OnNodeLeave == nil {
		return
	}
	e.hooks.OnNodeLeave(ctx, &domain.NodeEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventNodeLeave, RunID: runID},
		NodeID:    node,
		NodeKind:  node.Kind(),
		Duration:  d,
		Diff:      diff,
		Err:       err,
	})
}

func (e *Engine) emitDecision(ctx context.Context, runID string, from domain.NodeID, route domain.Route, to domain.NodeID) {
	if e.hooks.OnDecision == nil {
		return
	}
	e.hooks.OnDecision(ctx, &domain.DecisionEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventDecision, RunID: runID},
		From:      from,
		Route:     route,
		To:        to,
	})
}

func (e *Engine) emitHalt(ctx context.Context, runID string, last domain.NodeID, steps int) {
	if e.hooks.OnHalt == nil {
		return
	}
	e.hooks.OnHalt(ctx, &domain.HaltEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventHalt, RunID: runID},
		LastNode:  last,
		Steps:     steps,
	})
}
