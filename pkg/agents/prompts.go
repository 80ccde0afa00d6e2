package agents

import (
	"fmt"
	"strings"

	"github.com/aretw0/tutorgraph/pkg/domain"
)

// Default system prompts per node.
const (
	TopLevelPrompt   = "You are the top-level supervisor. Decide which subject supervisor should handle the student's request."
	MathPrompt       = "You are the supervisor for the math subject. Guide the student through math lessons, practice, and assessment."
	EnglishPrompt    = "You are the supervisor for the English subject. Guide the student through English lessons, practice, and assessment."
	LessonPrompt     = "Agent responsible for delivering lessons."
	AssessmentPrompt = "Agent responsible for assessing the student's understanding."
)

// Subject names, used as message authors and in routing instructions.
const (
	SubjectMath    = "Math"
	SubjectEnglish = "English"
)

// Prompts maps nodes to system prompts.
type Prompts map[domain.NodeID]string

// DefaultPrompts returns the built-in system prompts.
func DefaultPrompts() Prompts {
	return Prompts{
		domain.TopLevelSupervisor: TopLevelPrompt,
		domain.MathSupervisor:     MathPrompt,
		domain.EnglishSupervisor:  EnglishPrompt,
		domain.LessonAgent:        LessonPrompt,
		domain.AssessmentAgent:    AssessmentPrompt,
	}
}

// Merge returns a copy of p with non-empty overrides applied.
func (p Prompts) Merge(overrides map[domain.NodeID]string) Prompts {
	out := make(Prompts, len(p))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range overrides {
		if strings.TrimSpace(v) != "" {
			out[k] = v
		}
	}
	return out
}

func topLevelDescription() string {
	return "Select the next subject supervisor to act."
}

func subjectDescription(subject string) string {
	return fmt.Sprintf("Select the next agent to act in the %s subject.", subject)
}

func topLevelInstruction(options []domain.Route) string {
	return "Given the student's request, which subject supervisor should act next?" +
		" Or should we FINISH? Select one of: " + formatOptions(options) +
		" if it's finished, please provide a response message."
}

func subjectInstruction(subject string, options []domain.Route) string {
	return fmt.Sprintf("Given the student's progress in %s, which agent should act next?", subject) +
		" Or should we FINISH or ReturnToTopLevel? Select one of: " + formatOptions(options) +
		" if it's finished, please provide a response message."
}

// formatOptions renders routes as a bracketed, quoted list: ['FINISH', 'MathSupervisor'].
func formatOptions(options []domain.Route) string {
	quoted := make([]string, len(options))
	for i, o := range options {
		quoted[i] = "'" + string(o) + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
