package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/aretw0/tutorgraph/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// GraphURI is the resource exposing the static topology.
const GraphURI = "tutorgraph://graph"

// RunArgs are the arguments of the run_conversation tool.
type RunArgs struct {
	Messages []domain.Message `json:"messages"`
	Role     domain.Role      `json:"role,omitempty"`
	RunID    string           `json:"run_id,omitempty"`
}

// Server wraps a ports.Router and exposes it as an MCP server.
type Server struct {
	router    ports.Router
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*serverConfig)

type serverConfig struct {
	version string
	logger  *slog.Logger
}

// WithVersion sets the version advertised to clients.
func WithVersion(v string) Option {
	return func(c *serverConfig) { c.version = strings.TrimSpace(v) }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *serverConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(router ports.Router, opts ...Option) *Server {
	cfg := serverConfig{
		version: "dev",
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{
		router:    router,
		mcpServer: server.NewMCPServer("tutorgraph-mcp", cfg.version),
		logger:    cfg.logger,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server, e.g. for in-process clients.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// SSEHandler serves the MCP SSE transport on /sse and /message.
// baseURL is the address clients use to reach this handler.
func (s *Server) SSEHandler(baseURL string) http.Handler {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))
	return mux
}

// ServeSSE listens on port until ctx is cancelled, then shuts down gracefully.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.SSEHandler(fmt.Sprintf("http://localhost:%d", port)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("mcp server error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

var messageSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"kind":    map[string]any{"type": "string", "enum": []string{"system", "human", "agent"}},
		"name":    map[string]any{"type": "string"},
		"content": map[string]any{"type": "string"},
	},
	"required": []string{"kind", "content"},
}

func (s *Server) registerTools() {
	runTool := mcp.NewTool("run_conversation",
		mcp.WithDescription("Route a tutoring conversation from the top-level supervisor until it halts. Returns the final state and the visited path."),
		mcp.WithArray("messages", mcp.Required(), mcp.Items(messageSchema),
			mcp.Description("Conversation so far, oldest first. The last message is usually the student's turn.")),
		mcp.WithString("role", mcp.Enum(string(domain.RoleStudent), string(domain.RoleTeacher)),
			mcp.Description("Who is talking (default student)")),
		mcp.WithString("run_id", mcp.Description("Correlation id for logs and traces (optional)")),
		mcp.WithOutputSchema[ports.RunResult](),
	)
	s.mcpServer.AddTool(runTool, mcp.NewStructuredToolHandler(s.handleRunConversation))

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the static routing topology for introspection."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jsonBytes, err := json.Marshal(s.router.Inspect())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("inspect failed: %v", err)), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})
}

func (s *Server) handleRunConversation(ctx context.Context, request mcp.CallToolRequest, args RunArgs) (ports.RunResult, error) {
	state, err := domain.NewState(args.Role, args.Messages...)
	if err != nil {
		return ports.RunResult{}, err
	}
	if args.RunID != "" {
		state.RunID = args.RunID
	}

	result, err := s.router.Run(ctx, state)
	if err != nil {
		s.logger.Error("MCP run_conversation failed", "run_id", state.RunID, "error", err)
		return ports.RunResult{}, fmt.Errorf("run failed: %w", err)
	}
	return result, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(GraphURI, "Routing Graph",
		mcp.WithResourceDescription("Declared edges between supervisors and agents"),
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.router.Inspect())
		if err != nil {
			return nil, fmt.Errorf("failed to inspect graph: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      GraphURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
