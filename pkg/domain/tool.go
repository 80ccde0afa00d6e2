package domain

// Tool defines metadata about a capability offered to a content delegate.
// This is used for generating schemas/prompts.
type Tool struct {
	Name        string         `json:"name" yaml:"name" mapstructure:"name"`
	Description string         `json:"description" yaml:"description" mapstructure:"description"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty" mapstructure:"parameters"`
}

// SearchResult is a single hit returned by the search capability.
type SearchResult struct {
	Title   string  `json:"title" mapstructure:"title"`
	URL     string  `json:"url" mapstructure:"url"`
	Content string  `json:"content" mapstructure:"content"`
	Score   float64 `json:"score,omitempty" mapstructure:"score"`
}
