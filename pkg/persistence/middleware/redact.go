package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/aretw0/tutorgraph/pkg/ports"
)

// Mask replaces every redacted match.
const Mask = "***"

type redactMiddleware struct {
	next     ports.StateStore
	patterns []*regexp.Regexp
}

// NewRedactMiddleware masks matches of the patterns in human and agent messages before
// they reach the store. System prompts are saved untouched. The caller's state is not modified.
func NewRedactMiddleware(patterns []string) (Middleware, error) {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redact pattern %q: %w", p, err)
		}
		compiled[i] = re
	}
	return func(next ports.StateStore) ports.StateStore {
		return &redactMiddleware{next: next, patterns: compiled}
	}, nil
}

func (m *redactMiddleware) Save(ctx context.Context, sessionID string, state domain.State) error {
	masked := state.Clone()
	for i, msg := range masked.Messages {
		if msg.Kind == domain.KindSystem {
			continue
		}
		for _, re := range m.patterns {
			msg.Content = re.ReplaceAllString(msg.Content, Mask)
		}
		masked.Messages[i] = msg
	}
	return m.next.Save(ctx, sessionID, masked)
}

func (m *redactMiddleware) Load(ctx context.Context, sessionID string) (domain.State, error) {
	return m.next.Load(ctx, sessionID)
}

func (m *redactMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *redactMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}
