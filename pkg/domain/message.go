package domain

// Kind classifies the originator of a message.
type Kind string

const (
	// KindSystem marks instructions addressed to the model (prompts).
	KindSystem Kind = "system"
	// KindHuman marks a turn written by the student or teacher.
	KindHuman Kind = "human"
	// KindAgent marks a message produced by a graph node.
	KindAgent Kind = "agent"
)

// Message is a single conversation entry.
// For agent messages, Name holds the author (e.g. "LessonAgent", or "Math" for a subject supervisor).
type Message struct {
	Kind    Kind   `json:"kind" yaml:"kind"`
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Content string `json:"content" yaml:"content"`
}

// SystemMessage builds a system prompt entry.
func SystemMessage(content string) Message {
	return Message{Kind: KindSystem, Content: content}
}

// HumanMessage builds a human turn.
func HumanMessage(content string) Message {
	return Message{Kind: KindHuman, Content: content}
}

// AgentMessage builds a message authored by the given node.
func AgentMessage(author NodeID, content string) Message {
	return NamedMessage(string(author), content)
}

// NamedMessage builds an agent message under a display name (e.g. a subject name).
func NamedMessage(name, content string) Message {
	return Message{Kind: KindAgent, Name: name, Content: content}
}

// Author returns the originator tag: the node name for agent messages,
// the kind otherwise.
func (m Message) Author() string {
	if m.Kind == KindAgent && m.Name != "" {
		return m.Name
	}
	return string(m.Kind)
}
