package history

import (
	"errors"
	"strings"
	"testing"

	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// oneTokenPerMessage makes budgets easy to reason about.
var oneTokenPerMessage = CounterFunc(func(messages []domain.Message) (int, error) {
	return len(messages), nil
})

func TestTrim_UnderBudget(t *testing.T) {
	msgs := []domain.Message{
		domain.SystemMessage("sys"),
		domain.HumanMessage("a"),
		domain.HumanMessage("b"),
	}
	tr := New(WithMaxTokens(10), WithCounter(oneTokenPerMessage))

	out, err := tr.Trim(msgs)
	require.NoError(t, err)
	assert.Equal(t, msgs, out)

	out[0].Content = "changed"
	assert.Equal(t, "sys", msgs[0].Content, "input must not be aliased")
}

func TestTrim_KeepsLastAndSystem(t *testing.T) {
	msgs := []domain.Message{
		domain.SystemMessage("sys"),
		domain.HumanMessage("1"),
		domain.HumanMessage("2"),
		domain.HumanMessage("3"),
		domain.HumanMessage("4"),
	}
	tr := New(WithMaxTokens(3), WithCounter(oneTokenPerMessage))

	out, err := tr.Trim(msgs)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, domain.KindSystem, out[0].Kind)
	assert.Equal(t, "3", out[1].Content)
	assert.Equal(t, "4", out[2].Content)
}

func TestTrim_WithoutSystem(t *testing.T) {
	msgs := []domain.Message{
		domain.SystemMessage("sys"),
		domain.HumanMessage("1"),
		domain.HumanMessage("2"),
	}
	tr := New(WithMaxTokens(2), WithIncludeSystem(false), WithCounter(oneTokenPerMessage))

	out, err := tr.Trim(msgs)
	require.NoError(t, err)
	assert.Equal(t, []domain.Message{domain.HumanMessage("1"), domain.HumanMessage("2")}, out)
}

func TestTrim_CounterError(t *testing.T) {
	boom := errors.New("boom")
	tr := New(WithCounter(CounterFunc(func([]domain.Message) (int, error) { return 0, boom })))

	_, err := tr.Trim([]domain.Message{domain.HumanMessage("x")})
	assert.ErrorIs(t, err, boom)
}

func TestTrim_Empty(t *testing.T) {
	out, err := New(WithCounter(oneTokenPerMessage)).Trim(nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestEstimateCounter(t *testing.T) {
	n, err := EstimateCounter{}.Count([]domain.Message{domain.HumanMessage(strings.Repeat("a", 8))})
	require.NoError(t, err)
	// 4 overhead + 2 content + 2 author ("human") + 3 conversation
	assert.Equal(t, 11, n)

	n, err = EstimateCounter{}.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestTrim_EstimateBudget(t *testing.T) {
	long := strings.Repeat("x", 400)
	msgs := []domain.Message{
		domain.HumanMessage(long),
		domain.AgentMessage(domain.LessonAgent, long),
		domain.HumanMessage("short"),
	}
	tr := New(WithMaxTokens(50), WithCounter(EstimateCounter{}))

	out, err := tr.Trim(msgs)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "short", out[0].Content)
}
