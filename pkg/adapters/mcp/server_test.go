package mcp_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aretw0/tutorgraph/internal/runtime"
	"github.com/aretw0/tutorgraph/internal/testutils"
	mcpadapter "github.com/aretw0/tutorgraph/pkg/adapters/mcp"
	"github.com/aretw0/tutorgraph/pkg/agents"
	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/aretw0/tutorgraph/pkg/ports"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, decider *testutils.ScriptedDecider) *client.Client {
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
	})
	require.NoError(t, err)

	srv := mcpadapter.NewServer(engine, mcpadapter.WithVersion("0.0.1"))
	c, err := client.NewInProcessClient(srv.MCPServer())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	_, err = c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo:      mcp.Implementation{Name: "test", Version: "1"},
		},
	})
	require.NoError(t, err)
	return c
}

func callTool(t *testing.T, c *client.Client, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := c.CallTool(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	require.NoError(t, err)
	return res
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok)
	return tc.Text
}

func TestRunConversation(t *testing.T) {
	decider := testutils.NewScriptedDecider().
		On(domain.TopLevelSupervisor, testutils.Choice{Next: "EnglishSupervisor", Response: "English."}).
		On(domain.EnglishSupervisor,
			testutils.Choice{Next: "AssessmentAgent", Response: "Quiz time."},
			testutils.Choice{Next: "FINISH", Response: "Done."},
		)
	c := newClient(t, decider)

	res := callTool(t, c, "run_conversation", map[string]any{
		"messages": []map[string]any{{"kind": "human", "content": "Quiz me on nouns"}},
		"role":     "teacher",
		"run_id":   "mcp-1",
	})
	require.False(t, res.IsError, text(t, res))

	var result ports.RunResult
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &result))
	assert.Equal(t, "mcp-1", result.State.RunID)
	assert.Equal(t, domain.RoleTeacher, result.State.Role)
	assert.Equal(t, domain.EnglishSupervisor, result.State.CurrentSupervisor)
	assert.Equal(t, []domain.NodeID{
		domain.TopLevelSupervisor,
		domain.EnglishSupervisor,
		domain.AssessmentAgent,
		domain.EnglishSupervisor,
	}, result.Path)
}

func TestRunConversation_Errors(t *testing.T) {
	t.Run("Unknown Role", func(t *testing.T) {
		c := newClient(t, testutils.NewScriptedDecider())
		res := callTool(t, c, "run_conversation", map[string]any{
			"messages": []map[string]any{{"kind": "human", "content": "hi"}},
			"role":     "principal",
		})
		assert.True(t, res.IsError)
	})

	t.Run("Delegate Failure", func(t *testing.T) {
		decider := testutils.NewScriptedDecider().
			On(domain.TopLevelSupervisor, testutils.Choice{Err: errors.New("model unavailable")})
		c := newClient(t, decider)
		res := callTool(t, c, "run_conversation", map[string]any{
			"messages": []map[string]any{{"kind": "human", "content": "hi"}},
		})
		assert.True(t, res.IsError)
		assert.Contains(t, text(t, res), "model unavailable")
	})
}

func TestGetGraph(t *testing.T) {
	c := newClient(t, testutils.NewScriptedDecider())

	res := callTool(t, c, "get_graph", nil)
	require.False(t, res.IsError)

	var edges []domain.Edge
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &edges))
	assert.Len(t, edges, len(runtime.Edges()))
}

func TestGraphResource(t *testing.T) {
	c := newClient(t, testutils.NewScriptedDecider())

	res, err := c.ReadResource(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: mcpadapter.GraphURI},
	})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)

	contents, ok := mcp.AsTextResourceContents(res.Contents[0])
	require.True(t, ok)
	assert.Equal(t, "application/json", contents.MIMEType)
	assert.Contains(t, contents.Text, `"from":"TopLevelSupervisor"`)
}

func TestSSEHandler_CORS(t *testing.T) {
	srv := mcpadapter.NewServer(nil)
	h := srv.SSEHandler("http://localhost:0")

	for _, path := range []string{"/sse", "/message"} {
		req := httptest.NewRequest(http.MethodOptions, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"), path)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
