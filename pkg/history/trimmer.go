// Package history bounds the conversation handed to a supervisor's decision delegate.
package history

import (
	"fmt"

	"github.com/aretw0/tutorgraph/pkg/domain"
)

// DefaultMaxTokens is the token budget used when none is configured.
const DefaultMaxTokens = 100000

// Trimmer keeps the most recent messages that fit a token budget.
type Trimmer struct {
	maxTokens     int
	includeSystem bool
	counter       Counter
}

// Option configures a Trimmer.
type Option func(*Trimmer)

// WithMaxTokens sets the token budget.
func WithMaxTokens(n int) Option {
	return func(t *Trimmer) {
		if n > 0 {
			t.maxTokens = n
		}
	}
}

// WithIncludeSystem keeps a leading system message regardless of age.
func WithIncludeSystem(include bool) Option {
	return func(t *Trimmer) {
		t.includeSystem = include
	}
}

// WithCounter sets the token counter. Defaults to a tiktoken counter.
func WithCounter(c Counter) Option {
	return func(t *Trimmer) {
		t.counter = c
	}
}

// New creates a Trimmer.
func New(opts ...Option) *Trimmer {
	t := &Trimmer{
		maxTokens:     DefaultMaxTokens,
		includeSystem: true,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.counter == nil {
		t.counter = NewTiktokenCounter(DefaultEncoding)
	}
	return t
}

// Trim returns the newest suffix of messages whose cost fits the budget.
// With include-system set, a leading system message is always kept.
// The input slice is never modified.
func (t *Trimmer) Trim(messages []domain.Message) ([]domain.Message, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	var head []domain.Message
	body := messages
	if t.includeSystem && messages[0].Kind == domain.KindSystem {
		head = messages[:1]
		body = messages[1:]
	}

	total, err := t.counter.Count(messages)
	if err != nil {
		return nil, fmt.Errorf("failed to count history tokens: %w", err)
	}
	if total <= t.maxTokens {
		return append([]domain.Message(nil), messages...), nil
	}

	// Grow the kept suffix from the newest message until it no longer fits.
	start := len(body)
	for start > 0 {
		candidate := make([]domain.Message, 0, len(head)+len(body)-start+1)
		candidate = append(candidate, head...)
		candidate = append(candidate, body[start-1:]...)
		cost, err := t.counter.Count(candidate)
		if err != nil {
			return nil, fmt.Errorf("failed to count history tokens: %w", err)
		}
		if cost > t.maxTokens {
			break
		}
		start--
	}

	out := make([]domain.Message, 0, len(head)+len(body)-start)
	out = append(out, head...)
	out = append(out, body[start:]...)
	return out, nil
}
