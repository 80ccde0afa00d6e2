package http_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/tutorgraph/internal/runtime"
	"github.com/aretw0/tutorgraph/internal/testutils"
	httpadapter "github.com/aretw0/tutorgraph/pkg/adapters/http"
	"github.com/aretw0/tutorgraph/pkg/agents"
	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/aretw0/tutorgraph/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, decider *testutils.ScriptedDecider, opts ...runtime.EngineOption) *runtime.Engine {
	t.Helper()
	subjects := []domain.NodeID{domain.MathSupervisor, domain.EnglishSupervisor}
	leaves := []domain.NodeID{domain.LessonAgent, domain.AssessmentAgent}
	responder := &testutils.EchoResponder{}
	engine, err := runtime.NewEngine(runtime.Handlers{
		domain.TopLevelSupervisor: agents.NewTopLevel(decider, subjects),
		domain.MathSupervisor:     agents.NewSubject(domain.MathSupervisor, agents.SubjectMath, leaves, decider),
		domain.EnglishSupervisor:  agents.NewSubject(domain.EnglishSupervisor, agents.SubjectEnglish, leaves, decider),
		domain.LessonAgent:        agents.NewLesson(responder),
		domain.AssessmentAgent:    agents.NewAssessment(responder),
	}, opts...)
	require.NoError(t, err)
	return engine
}

func mathLesson() *testutils.ScriptedDecider {
	return testutils.NewScriptedDecider().
		On(domain.TopLevelSupervisor, testutils.Choice{Next: "MathSupervisor", Response: "Math it is."}).
		On(domain.MathSupervisor,
			testutils.Choice{Next: "LessonAgent", Response: "Lesson time."},
			testutils.Choice{Next: "FINISH", Response: "Done."},
		)
}

func newHandler(t *testing.T, router ports.Router, opts ...httpadapter.Option) http.Handler {
	t.Helper()
	h, err := httpadapter.NewHandler(router, opts...)
	require.NoError(t, err)
	return h
}

func post(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestSpec_Loads(t *testing.T) {
	doc, err := httpadapter.Spec(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, doc.Paths.Find("/v1/run"))
	assert.NotNil(t, doc.Paths.Find("/v1/step"))
}

func TestStaticRoutes(t *testing.T) {
	h := newHandler(t, newEngine(t, testutils.NewScriptedDecider()), httpadapter.WithVersion("1.2.3\n"))

	tests := []struct {
		path     string
		contains string
	}{
		{"/health", `"status":"ok"`},
		{"/info", `"version":"1.2.3"`},
		{"/openapi.yaml", "openapi: 3.0.3"},
		{"/v1/graph", `"from":"TopLevelSupervisor"`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Body.String(), tt.contains)
		})
	}
}

func TestGraph_ReturnsEveryEdge(t *testing.T) {
	h := newHandler(t, newEngine(t, testutils.NewScriptedDecider()))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/graph", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var edges []domain.Edge
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &edges))
	assert.Len(t, edges, len(runtime.Edges()))
}

func TestRun(t *testing.T) {
	h := newHandler(t, newEngine(t, mathLesson()))

	w := post(t, h, "/v1/run", domain.State{
		RunID:    "run-1",
		Messages: []domain.Message{domain.HumanMessage("Teach me fractions")},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result ports.RunResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, []domain.NodeID{
		domain.TopLevelSupervisor,
		domain.MathSupervisor,
		domain.LessonAgent,
		domain.MathSupervisor,
	}, result.Path)
	assert.Equal(t, domain.RouteFinish, result.State.Next)
	assert.Equal(t, domain.MathSupervisor, result.State.CurrentSupervisor)
	assert.Equal(t, domain.RoleStudent, result.State.Role)
	assert.Len(t, result.State.Messages, 5)
}

func TestRun_BadRequests(t *testing.T) {
	h := newHandler(t, newEngine(t, testutils.NewScriptedDecider()))

	t.Run("Unknown Role", func(t *testing.T) {
		w := post(t, h, "/v1/run", domain.State{Role: "principal"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Message Kind Outside Schema", func(t *testing.T) {
		w := post(t, h, "/v1/run", map[string]any{
			"messages": []map[string]any{{"kind": "robot", "content": "beep"}},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Malformed JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/run", strings.NewReader("{"))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRun_DelegateFailure(t *testing.T) {
	decider := testutils.NewScriptedDecider().
		On(domain.TopLevelSupervisor, testutils.Choice{Err: errors.New("model unavailable")})
	h := newHandler(t, newEngine(t, decider))

	w := post(t, h, "/v1/run", domain.State{Messages: []domain.Message{domain.HumanMessage("hi")}})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "model unavailable")
}

func TestRun_StepLimit(t *testing.T) {
	decider := testutils.NewScriptedDecider().
		On(domain.TopLevelSupervisor, testutils.Choice{Next: "MathSupervisor", Response: "Math."}).
		On(domain.MathSupervisor, testutils.Choice{Next: "LessonAgent", Response: "Lesson."})
	h := newHandler(t, newEngine(t, decider, runtime.WithMaxSteps(2)))

	w := post(t, h, "/v1/run", domain.State{Messages: []domain.Message{domain.HumanMessage("fractions")}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestStep(t *testing.T) {
	h := newHandler(t, newEngine(t, mathLesson()))

	w := post(t, h, "/v1/step", httpadapter.StepRequest{
		Node:  domain.TopLevelSupervisor,
		State: domain.State{RunID: "r", Messages: []domain.Message{domain.HumanMessage("fractions")}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp httpadapter.StepResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.MathSupervisor, resp.NextNode)
	assert.Equal(t, domain.MathSupervisor, resp.State.CurrentSupervisor)
	require.NotNil(t, resp.Diff)
	require.NotNil(t, resp.Diff.CurrentSupervisor)
	assert.Equal(t, domain.MathSupervisor, *resp.Diff.CurrentSupervisor)
	require.Len(t, resp.Diff.Appended, 1)
	assert.Equal(t, "TopLevelSupervisor", resp.Diff.Appended[0].Name)
}

func TestStep_UnknownNode(t *testing.T) {
	h := newHandler(t, newEngine(t, testutils.NewScriptedDecider()))

	w := post(t, h, "/v1/step", map[string]any{"node": "HistorySupervisor", "state": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEvents_RequiresRunID(t *testing.T) {
	h := newHandler(t, newEngine(t, testutils.NewScriptedDecider()))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/events", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEvents_StreamsDiffsPerStep(t *testing.T) {
	streams := httpadapter.NewStreamManager(nil)
	engine := newEngine(t, mathLesson(), runtime.WithLifecycleHooks(streams.Hooks()))
	srv := httptest.NewServer(newHandler(t, engine, httpadapter.WithStreams(streams)))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events?run_id=run-7&watch=messages", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool { return streams.Subscribers("run-7") == 1 }, time.Second, 10*time.Millisecond)

	body, err := json.Marshal(domain.State{RunID: "run-7", Messages: []domain.Message{domain.HumanMessage("fractions")}})
	require.NoError(t, err)
	runResp, err := http.Post(srv.URL+"/v1/run", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	runResp.Body.Close()
	require.Equal(t, http.StatusOK, runResp.StatusCode)

	var events []string
	var diffs int
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			events = append(events, name)
			if name == httpadapter.EventHalt {
				break
			}
		}
		if strings.HasPrefix(line, "data: {") && strings.Contains(line, `"appended"`) {
			diffs++
		}
	}

	assert.Equal(t, []string{"ping", "diff", "diff", "diff", "diff", "halt"}, events)
	assert.Equal(t, 4, diffs)
}

func TestStreamManager_Unsubscribe(t *testing.T) {
	sm := httpadapter.NewStreamManager(nil)
	ch, cancel := sm.Subscribe("r")
	assert.Equal(t, 1, sm.Subscribers("r"))

	sm.Broadcast("r", httpadapter.Event{Name: "diff", Data: "{}"})
	ev := <-ch
	assert.Equal(t, "diff", ev.Name)

	cancel()
	cancel()
	assert.Equal(t, 0, sm.Subscribers("r"))
	_, open := <-ch
	assert.False(t, open)
}
