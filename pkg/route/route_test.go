package route

import (
	"testing"

	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mathChoices = []domain.Route{
	domain.RouteFinish,
	domain.RouteReturnToTopLevel,
	domain.RouteLessonAgent,
	domain.RouteAssessmentAgent,
}

func TestDecode_Valid(t *testing.T) {
	d, err := Decode(domain.MathSupervisor, mathChoices, map[string]any{
		"next":     "LessonAgent",
		"response": "Let's start with fractions.",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RouteLessonAgent, d.Next)
	assert.Equal(t, "Let's start with fractions.", d.Response)
}

func TestDecode_UnknownChoice(t *testing.T) {
	_, err := Decode(domain.MathSupervisor, mathChoices, map[string]any{
		"next":     "Unknown",
		"response": "?",
	})

	var violation *domain.RoutingContractViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, domain.MathSupervisor, violation.Node)
	assert.Equal(t, "Unknown", violation.Got)
	assert.ElementsMatch(t, mathChoices, violation.Allowed)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name      string
		payload   map[string]any
		wantField string
	}{
		{"nil payload", nil, ""},
		{"missing next", map[string]any{"response": "hi"}, "next"},
		{"missing response", map[string]any{"next": "FINISH"}, "response"},
		{"next wrong type", map[string]any{"next": 3.0, "response": "hi"}, "next"},
		{"response wrong type", map[string]any{"next": "FINISH", "response": true}, "response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(domain.EnglishSupervisor, mathChoices, tt.payload)

			var malformed *domain.MalformedDecisionError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, domain.EnglishSupervisor, malformed.Node)
			assert.Equal(t, tt.wantField, malformed.Field)
		})
	}
}

func TestFunction_Schema(t *testing.T) {
	fn, err := Function("Select the next agent to act in the math subject.", mathChoices)
	require.NoError(t, err)

	assert.Equal(t, "route", fn.Name)
	assert.Equal(t, "object", fn.Parameters["type"])
	assert.ElementsMatch(t, []any{"next", "response"}, fn.Parameters["required"])

	props, ok := fn.Parameters["properties"].(map[string]any)
	require.True(t, ok)
	next, ok := props["next"].(map[string]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []any{"FINISH", "ReturnToTopLevel", "LessonAgent", "AssessmentAgent"}, next["enum"])
}
