// Package anthropic implements the decision and content delegates on top of the
// Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/aretw0/tutorgraph/pkg/ports"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-sonnet-4-5-20250929"
	// DefaultMaxTokens bounds each completion.
	DefaultMaxTokens = 4096
	// DefaultMaxToolRounds bounds the tool loop of a single Respond call.
	DefaultMaxToolRounds = 3
	// APIKeyEnv is the environment variable the CLI reads the key from.
	APIKeyEnv = "ANTHROPIC_API_KEY"
)

// emptyTurn is sent when the conversation has no user turn yet.
const emptyTurn = "Continue."

// Client implements ports.Decider and ports.Responder.
type Client struct {
	client        anthropic.Client
	model         string
	maxTokens     int64
	maxToolRounds int
	logger        *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithModel sets the model identifier.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithMaxTokens sets the completion budget.
func WithMaxTokens(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = int64(n)
		}
	}
}

// WithMaxToolRounds bounds how many tool round-trips Respond may take.
func WithMaxToolRounds(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxToolRounds = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client. Request options are passed to the SDK (API key, base URL, retries).
func New(reqOpts []option.RequestOption, opts ...Option) *Client {
	c := &Client{
		client:        anthropic.NewClient(reqOpts...),
		model:         DefaultModel,
		maxTokens:     DefaultMaxTokens,
		maxToolRounds: DefaultMaxToolRounds,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewWithKey creates a client with an explicit API key.
func NewWithKey(apiKey string, opts ...Option) *Client {
	return New([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
}

var (
	_ ports.Decider   = (*Client)(nil)
	_ ports.Responder = (*Client)(nil)
)

// Decide forces a call to the routing function and returns its arguments.
// A reply without that call yields an empty payload.
func (c *Client) Decide(ctx context.Context, req ports.DecisionRequest) (map[string]any, error) {
	system, msgs := convertMessages(req.Messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  msgs,
		System:    system,
		Tools:     []anthropic.ToolUnionParam{convertTool(req.Function)},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: req.Function.Name},
		},
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type != "tool_use" || block.Name != req.Function.Name {
			continue
		}
		payload := map[string]any{}
		if err := json.Unmarshal(block.Input, &payload); err != nil {
			return nil, &domain.MalformedDecisionError{Node: req.Node, Cause: err}
		}
		c.logger.Debug("decision received", "node", req.Node, "input_tokens", resp.Usage.InputTokens)
		return payload, nil
	}
	c.logger.Warn("model did not call the routing function", "node", req.Node, "stop_reason", resp.StopReason)
	return map[string]any{}, nil
}

// Respond asks the model for the agent's reply, running offered tools when the model calls them.
func (c *Client) Respond(ctx context.Context, req ports.RespondRequest) (string, error) {
	system, msgs := convertMessages(req.Messages)

	tools := make(map[string]ports.Tool, len(req.Tools))
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    system,
	}
	for _, t := range req.Tools {
		def := t.Definition()
		tools[def.Name] = t
		params.Tools = append(params.Tools, convertTool(def))
	}

	for round := 0; ; round++ {
		params.Messages = msgs
		resp, err := c.client.Messages.New(ctx, params)
		if err != nil {
			return "", fmt.Errorf("anthropic API call failed: %w", err)
		}

		var text []string
		var uses []anthropic.ContentBlockParamUnion
		var results []anthropic.ContentBlockParamUnion
		for i := range resp.Content {
			block := &resp.Content[i]
			switch block.Type {
			case "text":
				text = append(text, block.Text)
			case "tool_use":
				uses = append(uses, anthropic.NewToolUseBlock(block.ID, block.Input, block.Name))
				results = append(results, c.callTool(ctx, req.Agent, tools, block.ID, block.Name, block.Input))
			}
		}

		if len(uses) == 0 || round >= c.maxToolRounds {
			return strings.Join(text, ""), nil
		}
		msgs = appendTurn(msgs, anthropic.MessageParamRoleAssistant, uses...)
		msgs = appendTurn(msgs, anthropic.MessageParamRoleUser, results...)
	}
}

func (c *Client) callTool(ctx context.Context, agent domain.NodeID, tools map[string]ports.Tool, id, name string, input json.RawMessage) anthropic.ContentBlockParamUnion {
	tool, ok := tools[name]
	if !ok {
		return anthropic.NewToolResultBlock(id, fmt.Sprintf("unknown tool %q", name), true)
	}
	var args map[string]any
	if err := json.Unmarshal(input, &args); err != nil {
		return anthropic.NewToolResultBlock(id, fmt.Sprintf("invalid arguments: %v", err), true)
	}
	out, err := tool.Call(ctx, args)
	if err != nil {
		c.logger.Warn("tool call failed", "agent", agent, "tool", name, "error", err)
		return anthropic.NewToolResultBlock(id, err.Error(), true)
	}
	c.logger.Debug("tool call completed", "agent", agent, "tool", name)
	return anthropic.NewToolResultBlock(id, out, false)
}

// convertMessages maps the conversation onto the Messages API shape:
// leading system messages become the system prompt, later ones become user turns,
// human turns are user messages and agent messages are assistant messages.
// Consecutive turns of the same role are merged and the first turn is always a user turn.
func convertMessages(in []domain.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	i := 0
	for ; i < len(in) && in[i].Kind == domain.KindSystem; i++ {
		system = append(system, anthropic.TextBlockParam{Text: in[i].Content})
	}

	var out []anthropic.MessageParam
	for _, m := range in[i:] {
		role := anthropic.MessageParamRoleUser
		if m.Kind == domain.KindAgent {
			role = anthropic.MessageParamRoleAssistant
		}
		out = appendTurn(out, role, anthropic.NewTextBlock(m.Content))
	}

	if len(out) == 0 || out[0].Role != anthropic.MessageParamRoleUser {
		out = append([]anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(emptyTurn))}, out...)
	}
	return system, out
}

// appendTurn adds blocks to the conversation, merging into the last turn when the role repeats.
func appendTurn(msgs []anthropic.MessageParam, role anthropic.MessageParamRole, blocks ...anthropic.ContentBlockParamUnion) []anthropic.MessageParam {
	if n := len(msgs); n > 0 && msgs[n-1].Role == role {
		msgs[n-1].Content = append(msgs[n-1].Content, blocks...)
		return msgs
	}
	return append(msgs, anthropic.MessageParam{Role: role, Content: blocks})
}

func convertTool(tool domain.Tool) anthropic.ToolUnionParam {
	return anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name:        tool.Name,
			Description: anthropic.String(tool.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: tool.Parameters["properties"],
				Required:   requiredFields(tool.Parameters["required"]),
			},
		},
	}
}

func requiredFields(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
