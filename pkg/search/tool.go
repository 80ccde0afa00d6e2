// Package search exposes a web search backend to leaf agents as a tool, with an
// optional result cache in front of the backend.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/aretw0/tutorgraph/pkg/ports"
	"github.com/mitchellh/mapstructure"
)

const (
	// ToolName is the name the model sees.
	ToolName = "tavily_search_results_json"
	// DefaultMaxResults is the number of hits returned per query.
	DefaultMaxResults = 5
)

const toolDescription = "A search engine optimized for comprehensive, accurate, and trusted results. " +
	"Useful for when you need to answer questions about current events. Input should be a search query."

type toolArgs struct {
	Query string `mapstructure:"query"`
}

// Tool adapts a ports.Searcher to the ports.Tool interface.
type Tool struct {
	searcher   ports.Searcher
	maxResults int
	logger     *slog.Logger
}

// ToolOption configures a Tool.
type ToolOption func(*Tool)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ToolOption {
	return func(t *Tool) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTool creates the search tool. maxResults <= 0 uses DefaultMaxResults.
func NewTool(searcher ports.Searcher, maxResults int, opts ...ToolOption) *Tool {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	t := &Tool{
		searcher:   searcher,
		maxResults: maxResults,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

var _ ports.Tool = (*Tool)(nil)

// Definition implements ports.Tool.
func (t *Tool) Definition() domain.Tool {
	return domain.Tool{
		Name:        ToolName,
		Description: toolDescription,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "search query to look up",
				},
			},
			"required": []string{"query"},
		},
	}
}

// Call implements ports.Tool. The result is the JSON list of hits.
func (t *Tool) Call(ctx context.Context, args map[string]any) (string, error) {
	var params toolArgs
	if err := mapstructure.Decode(args, &params); err != nil {
		return "", fmt.Errorf("invalid %s arguments: %w", ToolName, err)
	}
	if strings.TrimSpace(params.Query) == "" {
		return "", fmt.Errorf("query is required")
	}
	if t.searcher == nil {
		return "", domain.ErrNoSearcher
	}

	start := time.Now()
	results, err := t.searcher.Search(ctx, params.Query, t.maxResults)
	if err != nil {
		t.logger.Error("web search failed", "query", params.Query, "error", err)
		return "", fmt.Errorf("web search failed: %w", err)
	}
	t.logger.Debug("web search completed", "query", params.Query, "results", len(results), "duration", time.Since(start))

	if results == nil {
		results = []domain.SearchResult{}
	}
	out, err := json.Marshal(results)
	if err != nil {
		return "", fmt.Errorf("failed to encode search results: %w", err)
	}
	return string(out), nil
}
