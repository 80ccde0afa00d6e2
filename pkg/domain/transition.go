package domain

// Edge is a declared transition of the static topology.
type Edge struct {
	From NodeID `json:"from" yaml:"from"`
	To   NodeID `json:"to" yaml:"to"`
	// On is the route that selects this edge. Empty for edges derived from the
	// continuation rule of leaf agents.
	On Route `json:"on,omitempty" yaml:"on,omitempty"`
	// Condition describes edges that are not selected by a route (leaf continuation).
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}
