package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/tutorgraph/pkg/agents"
	"github.com/aretw0/tutorgraph/pkg/domain"
)

// GraphOverlay contains dynamic run data to visualize on the graph.
type GraphOverlay struct {
	VisitedNodes []domain.NodeID
	CurrentNode  domain.NodeID
}

// GenerateMermaid produces a Mermaid flowchart from the declared edges.
// Node shapes follow the node kind:
// - Top level: ((Circle))
// - Subject supervisor: {{Hexagon}}
// - Leaf agent: [[Subroutine]]
// - HALT: ([Stadium])
// Edges selected by a route are solid and labelled with it; leaf continuation
// edges are dotted and labelled with their condition.
func GenerateMermaid(edges []domain.Edge, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	seen := make(map[domain.NodeID]bool)
	declare := func(id domain.NodeID) {
		if seen[id] {
			return
		}
		seen[id] = true
		opener, closer := "[", "]"
		switch id.Kind() {
		case domain.KindTopLevel:
			opener, closer = "((", "))"
		case domain.KindSubject:
			opener, closer = "{{", "}}"
		case domain.KindLeaf:
			opener, closer = "[[", "]]"
		case domain.KindTerminal:
			opener, closer = "([", "])"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", sanitizeMermaidID(id), opener, id, closer)
	}

	for _, e := range edges {
		declare(e.From)
		declare(e.To)
	}

	for _, e := range edges {
		from, to := sanitizeMermaidID(e.From), sanitizeMermaidID(e.To)
		switch {
		case e.On != domain.RouteNone:
			fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", from, escapeLabel(string(e.On)), to)
		case e.Condition != "":
			fmt.Fprintf(&sb, "    %s -. \"%s\" .-> %s\n", from, escapeLabel(e.Condition), to)
		default:
			fmt.Fprintf(&sb, "    %s --> %s\n", from, to)
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visited := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if !visited[safeID] && safeID != "" {
				visited[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}
		if overlay.CurrentNode != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode))
		}
	}

	return sb.String()
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id domain.NodeID) string {
	return strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_").Replace(string(id))
}

// OverlayFromState highlights the nodes that authored messages in state and the
// supervisor currently in control.
func OverlayFromState(state domain.State) *GraphOverlay {
	overlay := &GraphOverlay{CurrentNode: domain.TopLevelSupervisor}
	if !state.AtTopLevel() {
		overlay.CurrentNode = state.CurrentSupervisor
	}

	seen := make(map[domain.NodeID]bool)
	for _, m := range state.Messages {
		if m.Kind != domain.KindAgent {
			continue
		}
		id := authorNode(m.Name)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		overlay.VisitedNodes = append(overlay.VisitedNodes, id)
	}
	return overlay
}

// authorNode maps a message author back to its node. Subject supervisors sign with the subject name.
func authorNode(name string) domain.NodeID {
	switch name {
	case agents.SubjectMath:
		return domain.MathSupervisor
	case agents.SubjectEnglish:
		return domain.EnglishSupervisor
	}
	if id := domain.NodeID(name); id.Valid() {
		return id
	}
	return ""
}
