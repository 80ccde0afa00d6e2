package tutorgraph

import (
	"context"
	"io"
	"log/slog"

	"github.com/aretw0/tutorgraph/internal/runtime"
	"github.com/aretw0/tutorgraph/pkg/agents"
	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/aretw0/tutorgraph/pkg/ports"
	"go.opentelemetry.io/otel/trace"
)

// Engine is the high-level entry point for the tutorgraph library.
// It wires the five nodes of the tutoring graph to the given delegates.
type Engine struct {
	runtime *runtime.Engine
	logger  *slog.Logger
}

type options struct {
	hooks       []domain.LifecycleHooks
	logger      *slog.Logger
	tracer      trace.Tracer
	maxSteps    int
	prompts     map[domain.NodeID]string
	trimmer     ports.Trimmer
	lessonTools []ports.Tool
}

// Option defines a functional option for configuring the Engine.
type Option func(*options)

// WithLifecycleHooks registers observability hooks. It may be given more than once.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(o *options) {
		o.hooks = append(o.hooks, hooks)
	}
}

// WithLogger sets a custom structured logger for the engine and its nodes.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTracer sets the OpenTelemetry tracer for run and step spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithMaxSteps bounds a run (default 25).
func WithMaxSteps(n int) Option {
	return func(o *options) {
		o.maxSteps = n
	}
}

// WithPrompts overrides system prompts per node.
func WithPrompts(prompts map[domain.NodeID]string) Option {
	return func(o *options) {
		o.prompts = prompts
	}
}

// WithTrimmer sets the history trimmer supervisors apply before deciding.
func WithTrimmer(t ports.Trimmer) Option {
	return func(o *options) {
		o.trimmer = t
	}
}

// WithLessonTools offers tools (e.g. search) to the lesson agent.
func WithLessonTools(tools ...ports.Tool) Option {
	return func(o *options) {
		o.lessonTools = append(o.lessonTools, tools...)
	}
}

// New builds the tutoring graph. The decider serves every supervisor and the
// responder serves both leaf agents.
func New(decider ports.Decider, responder ports.Responder, opts ...Option) (*Engine, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	prompts := agents.DefaultPrompts().Merge(o.prompts)
	common := func(id domain.NodeID) []agents.Option {
		nodeOpts := []agents.Option{
			agents.WithSystemPrompt(prompts[id]),
			agents.WithLogger(o.logger.With("node", string(id))),
		}
		if o.trimmer != nil {
			nodeOpts = append(nodeOpts, agents.WithTrimmer(o.trimmer))
		}
		return nodeOpts
	}

	subjects := []domain.NodeID{domain.MathSupervisor, domain.EnglishSupervisor}
	leaves := []domain.NodeID{domain.LessonAgent, domain.AssessmentAgent}
	lessonOpts := append(common(domain.LessonAgent), agents.WithTools(o.lessonTools...))

	handlers := runtime.Handlers{
		domain.TopLevelSupervisor: agents.NewTopLevel(decider, subjects, common(domain.TopLevelSupervisor)...),
		domain.MathSupervisor: agents.NewSubject(domain.MathSupervisor, agents.SubjectMath, leaves, decider,
			common(domain.MathSupervisor)...),
		domain.EnglishSupervisor: agents.NewSubject(domain.EnglishSupervisor, agents.SubjectEnglish, leaves, decider,
			common(domain.EnglishSupervisor)...),
		domain.LessonAgent:     agents.NewLesson(responder, lessonOpts...),
		domain.AssessmentAgent: agents.NewAssessment(responder, common(domain.AssessmentAgent)...),
	}

	rt, err := runtime.NewEngine(handlers,
		runtime.WithLifecycleHooks(domain.Merge(o.hooks...)),
		runtime.WithLogger(o.logger),
		runtime.WithTracer(o.tracer),
		runtime.WithMaxSteps(o.maxSteps),
	)
	if err != nil {
		return nil, err
	}
	return &Engine{runtime: rt, logger: o.logger}, nil
}

var _ ports.Router = (*Engine)(nil)

// Step executes one node against state and returns the updated state and the next node.
func (e *Engine) Step(ctx context.Context, node domain.NodeID, state domain.State) (domain.State, domain.NodeID, error) {
	return e.runtime.Step(ctx, node, state)
}

// Run drives state from TopLevelSupervisor until HALT.
func (e *Engine) Run(ctx context.Context, state domain.State) (ports.RunResult, error) {
	return e.runtime.Run(ctx, state)
}

// Reply appends a human turn to state and runs the graph on the result.
func (e *Engine) Reply(ctx context.Context, state domain.State, text string) (ports.RunResult, error) {
	return e.runtime.Run(ctx, state.WithMessage(domain.HumanMessage(text)))
}

// Inspect returns the static topology for visualization or introspection tools.
func (e *Engine) Inspect() []domain.Edge {
	return e.runtime.Inspect()
}
