package runtime_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/tutorgraph/internal/runtime"
	"github.com/aretw0/tutorgraph/internal/testutils"
	"github.com/aretw0/tutorgraph/pkg/agents"
	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newHandlers(decider *testutils.ScriptedDecider, responder *testutils.EchoResponder) runtime.Handlers {
	subjects := []domain.NodeID{domain.MathSupervisor, domain.EnglishSupervisor}
	leaves := []domain.NodeID{domain.LessonAgent, domain.AssessmentAgent}
	return runtime.Handlers{
		domain.TopLevelSupervisor: agents.NewTopLevel(decider, subjects),
		domain.MathSupervisor:     agents.NewSubject(domain.MathSupervisor, agents.SubjectMath, leaves, decider),
		domain.EnglishSupervisor:  agents.NewSubject(domain.EnglishSupervisor, agents.SubjectEnglish, leaves, decider),
		domain.LessonAgent:        agents.NewLesson(responder),
		domain.AssessmentAgent:    agents.NewAssessment(responder),
	}
}

func newEngine(t *testing.T, decider *testutils.ScriptedDecider, opts ...runtime.EngineOption) *runtime.Engine {
	t.Helper()
	engine, err := runtime.NewEngine(newHandlers(decider, &testutils.EchoResponder{}), opts...)
	require.NoError(t, err)
	return engine
}

func TestNewEngine_MissingHandler(t *testing.T) {
	handlers := newHandlers(testutils.NewScriptedDecider(), &testutils.EchoResponder{})
	delete(handlers, domain.AssessmentAgent)

	_, err := runtime.NewEngine(handlers)
	assert.Error(t, err)
}

func TestStep_TopLevelChoosesSubject(t *testing.T) {
	decider := testutils.NewScriptedDecider().
		On(domain.TopLevelSupervisor, testutils.Choice{Next: "MathSupervisor", Response: "Routing to math."})
	engine := newEngine(t, decider)

	state := testutils.NewState(t, "Teach me fractions")
	next, to, err := engine.Step(context.Background(), domain.TopLevelSupervisor, state)
	require.NoError(t, err)

	assert.Equal(t, domain.MathSupervisor, to)
	assert.Equal(t, domain.RouteMathSupervisor, next.Next)
	assert.Equal(t, domain.MathSupervisor, next.CurrentSupervisor)
	require.Len(t, next.Messages, 2)
	assert.Equal(t, "TopLevelSupervisor", next.Messages[1].Name)
	assert.Equal(t, "Routing to math.", next.Messages[1].Content)

	// The input state is untouched.
	assert.Len(t, state.Messages, 1)
	assert.Equal(t, domain.NodeID(""), state.CurrentSupervisor)
}

func TestStep_EmptyState(t *testing.T) {
	decider := testutils.NewScriptedDecider().
		On(domain.TopLevelSupervisor, testutils.Choice{Next: "MathSupervisor", Response: "Math."})
	engine := newEngine(t, decider)

	next, to, err := engine.Step(context.Background(), domain.TopLevelSupervisor, domain.State{})
	require.NoError(t, err)
	assert.Equal(t, domain.MathSupervisor, to)
	assert.Equal(t, domain.MathSupervisor, next.CurrentSupervisor)
	assert.Len(t, next.Messages, 1)
}

func TestStep_SubjectToLeafAndBack(t *testing.T) {
	decider := testutils.NewScriptedDecider().
		On(domain.MathSupervisor, testutils.Choice{Next: "LessonAgent", Response: "Starting a lesson."})
	engine := newEngine(t, decider)
	ctx := context.Background()

	state := testutils.NewState(t, "Teach me fractions")
	state.CurrentSupervisor = domain.MathSupervisor
	state.Next = domain.RouteMathSupervisor

	afterSup, to, err := engine.Step(ctx, domain.MathSupervisor, state)
	require.NoError(t, err)
	assert.Equal(t, domain.LessonAgent, to)
	assert.Equal(t, "Math", afterSup.Messages[len(afterSup.Messages)-1].Name)
	assert.Equal(t, domain.MathSupervisor, afterSup.CurrentSupervisor)

	afterLeaf, to, err := engine.Step(ctx, domain.LessonAgent, afterSup)
	require.NoError(t, err)
	assert.Equal(t, domain.MathSupervisor, to)
	assert.Len(t, afterLeaf.Messages, len(afterSup.Messages)+1)
	assert.Equal(t, "LessonAgent", afterLeaf.Messages[len(afterLeaf.Messages)-1].Name)
	assert.Equal(t, afterSup.Next, afterLeaf.Next, "leaf agents never change Next")
}

func TestStep_SubjectFinishKeepsSupervisor(t *testing.T) {
	decider := testutils.NewScriptedDecider().
		On(domain.MathSupervisor, testutils.Choice{Next: "FINISH", Response: "Done."})
	engine := newEngine(t, decider)

	state := testutils.NewState(t, "thanks")
	state.CurrentSupervisor = domain.MathSupervisor

	next, to, err := engine.Step(context.Background(), domain.MathSupervisor, state)
	require.NoError(t, err)
	assert.Equal(t, domain.Halt, to)
	assert.Equal(t, domain.RouteFinish, next.Next)
	assert.Equal(t, domain.MathSupervisor, next.CurrentSupervisor)
}

func TestStep_UnknownChoice(t *testing.T) {
	decider := testutils.NewScriptedDecider().
		On(domain.MathSupervisor, testutils.Choice{Next: "Unknown", Response: "?"})
	engine := newEngine(t, decider)

	state := testutils.NewState(t, "hi")
	state.CurrentSupervisor = domain.MathSupervisor

	got, node, err := engine.Step(context.Background(), domain.MathSupervisor, state)

	var violation *domain.RoutingContractViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, domain.MathSupervisor, violation.Node)
	assert.Equal(t, "Unknown", violation.Got)
	assert.Equal(t, domain.MathSupervisor, node)
	assert.Equal(t, state.Messages, got.Messages)
}

func TestStep_SubjectCannotPickSubject(t *testing.T) {
	decider := testutils.NewScriptedDecider().
		On(domain.EnglishSupervisor, testutils.Choice{Next: "MathSupervisor", Response: "?"})
	engine := newEngine(t, decider)

	_, _, err := engine.Step(context.Background(), domain.EnglishSupervisor, testutils.NewState(t, "hi"))

	var violation *domain.RoutingContractViolation
	assert.ErrorAs(t, err, &violation)
}

func TestStep_MalformedDecision(t *testing.T) {
	decider := testutils.NewScriptedDecider().
		On(domain.TopLevelSupervisor, testutils.Choice{Payload: map[string]any{"next": "FINISH"}})
	engine := newEngine(t, decider)

	_, _, err := engine.Step(context.Background(), domain.TopLevelSupervisor, testutils.NewState(t, "hi"))

	var malformed *domain.MalformedDecisionError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "response", malformed.Field)
}

func TestStep_DelegateErrorIsReturnedUnchanged(t *testing.T) {
	boom := errors.New("model unavailable")
	decider := testutils.NewScriptedDecider().
		On(domain.TopLevelSupervisor, testutils.Choice{Err: boom})
	engine := newEngine(t, decider)

	_, _, err := engine.Step(context.Background(), domain.TopLevelSupervisor, testutils.NewState(t, "hi"))
	assert.Same(t, boom, err)

	responder := &testutils.EchoResponder{Err: boom}
	eng, err := runtime.NewEngine(newHandlers(testutils.NewScriptedDecider(), responder))
	require.NoError(t, err)
	_, _, err = eng.Step(context.Background(), domain.LessonAgent, testutils.NewState(t, "hi"))
	assert.Same(t, boom, err)
}

func TestStep_UnknownNode(t *testing.T) {
	engine := newEngine(t, testutils.NewScriptedDecider())

	_, _, err := engine.Step(context.Background(), domain.NodeID("Principal"), testutils.NewState(t, "hi"))
	assert.ErrorIs(t, err, domain.ErrUnknownNode)
}

func TestStep_CancelledContext(t *testing.T) {
	engine := newEngine(t, testutils.NewScriptedDecider())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := engine.Step(ctx, domain.TopLevelSupervisor, testutils.NewState(t, "hi"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_FullConversation(t *testing.T) {
	decider := testutils.NewScriptedDecider().
		On(domain.TopLevelSupervisor, testutils.Choice{Next: "MathSupervisor", Response: "Math it is."}).
		On(domain.MathSupervisor,
			testutils.Choice{Next: "LessonAgent", Response: "Lesson first."},
			testutils.Choice{Next: "AssessmentAgent", Response: "Now a quiz."},
			testutils.Choice{Next: "FINISH", Response: "All done."},
		)
	engine := newEngine(t, decider)

	res, err := engine.Run(context.Background(), testutils.NewState(t, "Teach me fractions"))
	require.NoError(t, err)

	assert.Equal(t, []domain.NodeID{
		domain.TopLevelSupervisor,
		domain.MathSupervisor,
		domain.LessonAgent,
		domain.MathSupervisor,
		domain.AssessmentAgent,
		domain.MathSupervisor,
	}, res.Path)
	assert.Equal(t, 6, res.Steps)
	assert.Equal(t, domain.RouteFinish, res.State.Next)
	assert.Equal(t, domain.MathSupervisor, res.State.CurrentSupervisor)
	assert.Len(t, res.State.Messages, 7)
	assert.NotEmpty(t, res.State.RunID)
}

func TestRun_ReturnToTopLevel(t *testing.T) {
	decider := testutils.NewScriptedDecider().
		On(domain.TopLevelSupervisor,
			testutils.Choice{Next: "MathSupervisor", Response: "Math."},
			testutils.Choice{Next: "EnglishSupervisor", Response: "English."},
		).
		On(domain.MathSupervisor, testutils.Choice{Next: "ReturnToTopLevel", Response: "Not math."}).
		On(domain.EnglishSupervisor, testutils.Choice{Next: "FINISH", Response: "Bye."})
	engine := newEngine(t, decider)

	res, err := engine.Run(context.Background(), testutils.NewState(t, "adjectives"))
	require.NoError(t, err)
	assert.Equal(t, []domain.NodeID{
		domain.TopLevelSupervisor,
		domain.MathSupervisor,
		domain.TopLevelSupervisor,
		domain.EnglishSupervisor,
	}, res.Path)
	assert.Equal(t, domain.EnglishSupervisor, res.State.CurrentSupervisor)
}

func TestRun_TopLevelFinishClearsSupervisor(t *testing.T) {
	decider := testutils.NewScriptedDecider().
		On(domain.TopLevelSupervisor, testutils.Choice{Next: "FINISH", Response: "Nothing to do."})
	engine := newEngine(t, decider)

	state := testutils.NewState(t, "hello")
	state.CurrentSupervisor = domain.EnglishSupervisor

	res, err := engine.Run(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Steps)
	assert.Equal(t, domain.NodeID(""), res.State.CurrentSupervisor)
}

func TestRun_StepLimit(t *testing.T) {
	decider := testutils.NewScriptedDecider()
	for i := 0; i < 10; i++ {
		decider.On(domain.TopLevelSupervisor, testutils.Choice{Next: "MathSupervisor", Response: "math"})
		decider.On(domain.MathSupervisor, testutils.Choice{Next: "ReturnToTopLevel", Response: "back"})
	}
	engine := newEngine(t, decider, runtime.WithMaxSteps(4))

	res, err := engine.Run(context.Background(), testutils.NewState(t, "loop"))
	assert.ErrorIs(t, err, domain.ErrStepLimitExceeded)
	assert.Equal(t, 4, res.Steps)
}

func TestRun_MessagesNeverShrink(t *testing.T) {
	decider := testutils.NewScriptedDecider().
		On(domain.TopLevelSupervisor, testutils.Choice{Next: "EnglishSupervisor", Response: "English."}).
		On(domain.EnglishSupervisor,
			testutils.Choice{Next: "LessonAgent", Response: "Lesson."},
			testutils.Choice{Next: "FINISH", Response: "Done."},
		)

	prev := 0
	hooks := domain.LifecycleHooks{}
	engine := newEngine(t, decider, runtime.WithLifecycleHooks(hooks))

	state := testutils.NewState(t, "What is an adjective?")
	node := domain.EntryNode
	for node != domain.Halt {
		next, to, err := engine.Step(context.Background(), node, state)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(next.Messages), prev)
		assert.Equal(t, state.Messages, next.Messages[:len(state.Messages)], "existing messages are never rewritten")
		prev = len(next.Messages)
		state, node = next, to
	}
}

func TestRun_LifecycleHooks(t *testing.T) {
	decider := testutils.NewScriptedDecider().
		On(domain.TopLevelSupervisor, testutils.Choice{Next: "MathSupervisor", Response: "Math."}).
		On(domain.MathSupervisor, testutils.Choice{Next: "FINISH", Response: "Done."})

	var entered, left []domain.NodeID
	var diffs []*domain.StateDiff
	var decisions []domain.Route
	var halted *domain.HaltEvent
	hooks := domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) { entered = append(entered, e.NodeID) },
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			left = append(left, e.NodeID)
			diffs = append(diffs, e.Diff)
		},
		OnDecision:  func(ctx context.Context, e *domain.DecisionEvent) { decisions = append(decisions, e.Route) },
		OnHalt:      func(ctx context.Context, e *domain.HaltEvent) { halted = e },
	}
	engine := newEngine(t, decider, runtime.WithLifecycleHooks(hooks))

	_, err := engine.Run(context.Background(), testutils.NewState(t, "fractions"))
	require.NoError(t, err)

	assert.Equal(t, []domain.NodeID{domain.TopLevelSupervisor, domain.MathSupervisor}, entered)
	assert.Equal(t, entered, left)
	assert.Equal(t, []domain.Route{domain.RouteMathSupervisor, domain.RouteFinish}, decisions)
	require.NotNil(t, halted)
	assert.Equal(t, domain.MathSupervisor, halted.LastNode)
	assert.Equal(t, 2, halted.Steps)

	require.Len(t, diffs, 2)
	require.NotNil(t, diffs[0])
	require.NotNil(t, diffs[0].CurrentSupervisor)
	assert.Equal(t, domain.MathSupervisor, *diffs[0].CurrentSupervisor)
	require.Len(t, diffs[1].Appended, 1)
	assert.Equal(t, "Math", diffs[1].Appended[0].Name)
}

func TestRun_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	decider := testutils.NewScriptedDecider().
		On(domain.TopLevelSupervisor, testutils.Choice{Next: "FINISH", Response: "bye"})
	engine := newEngine(t, decider, runtime.WithTracer(provider.Tracer("test")))

	_, err := engine.Run(context.Background(), testutils.NewState(t, "hi"))
	require.NoError(t, err)

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{"tutorgraph.Step", "tutorgraph.Run"}, names)
}

func TestInspect(t *testing.T) {
	engine := newEngine(t, testutils.NewScriptedDecider())
	edges := engine.Inspect()

	assert.Len(t, edges, 3+4+4+4+4)
	assert.Contains(t, edges, domain.Edge{From: domain.MathSupervisor, To: domain.TopLevelSupervisor, On: domain.RouteReturnToTopLevel})
}
