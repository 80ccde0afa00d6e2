package agents

import (
	"io"
	"log/slog"

	"github.com/aretw0/tutorgraph/pkg/history"
	"github.com/aretw0/tutorgraph/pkg/ports"
)

type config struct {
	systemPrompt string
	trimmer      ports.Trimmer
	tools        []ports.Tool
	logger       *slog.Logger
}

// Option configures a node.
type Option func(*config)

// WithSystemPrompt overrides the node's default system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(c *config) {
		if prompt != "" {
			c.systemPrompt = prompt
		}
	}
}

// WithTrimmer sets the history trimmer used before each decision.
func WithTrimmer(t ports.Trimmer) Option {
	return func(c *config) {
		if t != nil {
			c.trimmer = t
		}
	}
}

// WithTools offers tools to a leaf agent's responder.
func WithTools(tools ...ports.Tool) Option {
	return func(c *config) {
		c.tools = append(c.tools, tools...)
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func newConfig(defaultPrompt string, opts []Option) *config {
	c := &config{
		systemPrompt: defaultPrompt,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.trimmer == nil {
		c.trimmer = history.New(history.WithCounter(history.EstimateCounter{}))
	}
	return c
}
