// Package rules provides deterministic keyword-based delegates for offline runs.
//
// Rules only look at the messages since the latest human turn. Once a leaf agent
// has answered that turn, every supervisor finishes.
package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode"

	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/aretw0/tutorgraph/pkg/ports"
)

// Keywords per subject supervisor, matched as word prefixes.
var (
	MathKeywords = []string{
		"math", "fraction", "decimal", "algebra", "geometry", "equation", "number",
		"add", "subtract", "multipl", "divi", "percent", "arithmetic", "triangle",
	}
	EnglishKeywords = []string{
		"english", "grammar", "noun", "verb", "adjective", "adverb", "spelling",
		"vocabulary", "essay", "reading", "writing", "sentence", "punctuation", "poem",
	}
	AssessmentKeywords = []string{"quiz", "test", "assess", "check", "exercise", "practice", "exam"}
)

// Engine implements ports.Decider and ports.Responder with keyword rules.
type Engine struct {
	subjects []subject
	assess   []string
	logger   *slog.Logger
}

type subject struct {
	node     domain.NodeID
	keywords []string
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithSubjectKeywords replaces the keywords of a subject supervisor.
func WithSubjectKeywords(node domain.NodeID, keywords ...string) Option {
	return func(e *Engine) {
		for i := range e.subjects {
			if e.subjects[i].node == node {
				e.subjects[i].keywords = keywords
			}
		}
	}
}

// New creates a rule engine with the default keyword tables.
func New(opts ...Option) *Engine {
	e := &Engine{
		subjects: []subject{
			{node: domain.MathSupervisor, keywords: MathKeywords},
			{node: domain.EnglishSupervisor, keywords: EnglishKeywords},
		},
		assess: AssessmentKeywords,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var (
	_ ports.Decider   = (*Engine)(nil)
	_ ports.Responder = (*Engine)(nil)
)

// Decide implements ports.Decider.
func (e *Engine) Decide(ctx context.Context, req ports.DecisionRequest) (map[string]any, error) {
	turn := latestTurn(req.Messages)

	var next domain.Route
	switch req.Node.Kind() {
	case domain.KindTopLevel:
		next = e.decideTopLevel(turn)
	case domain.KindSubject:
		next = e.decideSubject(req.Node, turn)
	default:
		return nil, fmt.Errorf("rules: %s does not make routing decisions", req.Node)
	}

	if !domain.Contains(req.Choices, next) {
		e.logger.Debug("rule choice outside choice set", "node", req.Node, "choice", next)
		next = domain.RouteFinish
	}
	return map[string]any{
		"next":     string(next),
		"response": responseFor(req.Node, next),
	}, nil
}

func (e *Engine) decideTopLevel(turn turn) domain.Route {
	if !turn.found || turn.answered {
		return domain.RouteFinish
	}
	for _, s := range e.subjects {
		if mentions(turn.words, s.keywords) {
			return domain.Route(s.node)
		}
	}
	return domain.RouteFinish
}

func (e *Engine) decideSubject(node domain.NodeID, turn turn) domain.Route {
	if !turn.found || turn.answered {
		return domain.RouteFinish
	}

	own, other := false, false
	for _, s := range e.subjects {
		hit := mentions(turn.words, s.keywords)
		if s.node == node {
			own = hit
		} else if hit {
			other = true
		}
	}
	if other && !own {
		return domain.RouteReturnToTopLevel
	}
	if mentions(turn.words, e.assess) {
		return domain.RouteAssessmentAgent
	}
	return domain.RouteLessonAgent
}

// Respond implements ports.Responder. The lesson reply cites search results when a tool is offered.
func (e *Engine) Respond(ctx context.Context, req ports.RespondRequest) (string, error) {
	turn := latestTurn(req.Messages)
	topic := strings.TrimSpace(turn.text)
	if topic == "" {
		topic = "today's topic"
	}

	switch req.Agent {
	case domain.LessonAgent:
		reply := fmt.Sprintf("Here is a short lesson on %q: start from what you already know, then work through one example step by step.", topic)
		if refs := e.reading(ctx, req.Tools, topic); refs != "" {
			reply += " Further reading: " + refs
		}
		return reply, nil
	case domain.AssessmentAgent:
		return fmt.Sprintf("Quick check on %q: explain it in your own words, then solve one example and show your steps.", topic), nil
	}
	return fmt.Sprintf("%s: %s", req.Agent, topic), nil
}

func (e *Engine) reading(ctx context.Context, tools []ports.Tool, topic string) string {
	for _, t := range tools {
		out, err := t.Call(ctx, map[string]any{"query": topic})
		if err != nil {
			e.logger.Warn("tool call failed", "tool", t.Definition().Name, "error", err)
			continue
		}
		var hits []domain.SearchResult
		if err := json.Unmarshal([]byte(out), &hits); err != nil || len(hits) == 0 {
			continue
		}
		titles := make([]string, 0, len(hits))
		for _, h := range hits {
			titles = append(titles, h.Title)
		}
		return strings.Join(titles, "; ")
	}
	return ""
}

func responseFor(node domain.NodeID, next domain.Route) string {
	switch next {
	case domain.RouteFinish:
		return "That's all for now. Ask me anything else when you're ready."
	case domain.RouteReturnToTopLevel:
		return "That sounds like a different subject, let me hand you back."
	case domain.RouteMathSupervisor:
		return "Let's work on math together."
	case domain.RouteEnglishSupervisor:
		return "Let's work on English together."
	case domain.RouteLessonAgent:
		return "Let's start with a lesson."
	case domain.RouteAssessmentAgent:
		return "Let's check your understanding."
	}
	return fmt.Sprintf("%s chose %s.", node, next)
}

type turn struct {
	found    bool
	text     string
	words    []string
	answered bool
}

// latestTurn finds the newest human message and whether a leaf agent replied after it.
func latestTurn(msgs []domain.Message) turn {
	idx := -1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Kind == domain.KindHuman {
			idx = i
			break
		}
	}
	if idx < 0 {
		return turn{}
	}

	t := turn{found: true, text: msgs[idx].Content, words: words(msgs[idx].Content)}
	for _, m := range msgs[idx+1:] {
		if m.Kind == domain.KindAgent && domain.NodeID(m.Name).Kind() == domain.KindLeaf {
			t.answered = true
			break
		}
	}
	return t
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func mentions(words, keywords []string) bool {
	for _, w := range words {
		for _, k := range keywords {
			if strings.HasPrefix(w, k) {
				return true
			}
		}
	}
	return false
}
