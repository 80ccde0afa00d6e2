package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// Renderer turns markdown into terminal output.
type Renderer func(markdown string) (string, error)

// NewRenderer returns a glamour renderer that picks a light or dark style from the terminal.
// A width of zero keeps glamour's default wrap.
func NewRenderer(width int) (Renderer, error) {
	opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return r.Render, nil
}

// PlainRenderer returns markdown unchanged. It is used when stdout is not a terminal.
func PlainRenderer(markdown string) (string, error) {
	return markdown + "\n", nil
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// TerminalWidth returns the width of f, or 0 when unknown.
func TerminalWidth(f *os.File) int {
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return w
}

// FormatMessage renders one conversation message as markdown, prefixed with its author.
func FormatMessage(m domain.Message) string {
	content := strings.TrimSpace(m.Content)
	switch m.Kind {
	case domain.KindHuman:
		return "> " + strings.ReplaceAll(content, "\n", "\n> ")
	case domain.KindSystem:
		return "_" + content + "_"
	default:
		return fmt.Sprintf("**%s**: %s", m.Author(), content)
	}
}
