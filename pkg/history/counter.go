package history

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE encoding used by gpt-4o class models.
const DefaultEncoding = "o200k_base"

const (
	messageOverhead      = 4
	conversationOverhead = 3
	charsPerToken        = 4
)

// Counter measures the token cost of a list of messages.
type Counter interface {
	Count(messages []domain.Message) (int, error)
}

// CounterFunc adapts a function to the Counter interface.
type CounterFunc func(messages []domain.Message) (int, error)

// Count implements Counter.
func (f CounterFunc) Count(messages []domain.Message) (int, error) {
	return f(messages)
}

// TiktokenCounter counts tokens with a tiktoken encoding.
// The encoding is loaded on first use (it may download the BPE ranks).
type TiktokenCounter struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
}

// NewTiktokenCounter creates a counter for the given encoding (DefaultEncoding when empty).
func NewTiktokenCounter(encoding string) *TiktokenCounter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &TiktokenCounter{encoding: encoding}
}

func (c *TiktokenCounter) init() error {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding(c.encoding)
		if err != nil {
			c.initErr = fmt.Errorf("init tiktoken encoding %s: %w", c.encoding, err)
			return
		}
		c.enc = enc
	})
	return c.initErr
}

// Count implements Counter.
func (c *TiktokenCounter) Count(messages []domain.Message) (int, error) {
	if err := c.init(); err != nil {
		return 0, err
	}

	total := 0
	for _, msg := range messages {
		total += messageOverhead
		total += len(c.enc.Encode(msg.Content, nil, nil))
		total += len(c.enc.Encode(msg.Author(), nil, nil))
	}
	return total + conversationOverhead, nil
}

// EstimateCounter approximates token usage without an encoding table.
type EstimateCounter struct{}

// Count implements Counter.
func (EstimateCounter) Count(messages []domain.Message) (int, error) {
	total := 0
	for _, msg := range messages {
		total += messageOverhead
		total += estimate(msg.Content) + estimate(msg.Author())
	}
	return total + conversationOverhead, nil
}

func estimate(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + charsPerToken - 1) / charsPerToken
}
