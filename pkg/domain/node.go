package domain

// NodeID identifies a node of the routing graph.
type NodeID string

// The graph is fixed: one top-level supervisor, two subject supervisors and two
// leaf agents. Halt is the terminal pseudo-node.
const (
	TopLevelSupervisor NodeID = "TopLevelSupervisor"
	MathSupervisor     NodeID = "MathSupervisor"
	EnglishSupervisor  NodeID = "EnglishSupervisor"
	LessonAgent        NodeID = "LessonAgent"
	AssessmentAgent    NodeID = "AssessmentAgent"
	Halt               NodeID = "HALT"
)

// EntryNode is where every run starts.
const EntryNode = TopLevelSupervisor

// NodeKind defines the control flow behavior of a node.
type NodeKind string

const (
	// KindTopLevel chooses a subject supervisor and owns CurrentSupervisor.
	KindTopLevel NodeKind = "top_level"
	// KindSubject chooses a leaf agent, returns to the top level, or finishes.
	KindSubject NodeKind = "subject"
	// KindLeaf performs a task and never chooses the next hop.
	KindLeaf NodeKind = "leaf"
	// KindTerminal is the sink.
	KindTerminal NodeKind = "terminal"
)

// Nodes lists every executable node in declaration order.
var Nodes = []NodeID{TopLevelSupervisor, MathSupervisor, EnglishSupervisor, LessonAgent, AssessmentAgent}

// Kind reports the control flow behavior of the node.
func (n NodeID) Kind() NodeKind {
	switch n {
	case TopLevelSupervisor:
		return KindTopLevel
	case MathSupervisor, EnglishSupervisor:
		return KindSubject
	case LessonAgent, AssessmentAgent:
		return KindLeaf
	case Halt:
		return KindTerminal
	}
	return ""
}

// Valid reports whether n is part of the graph (Halt included).
func (n NodeID) Valid() bool {
	return n.Kind() != ""
}

// IsSupervisor reports whether the node makes routing decisions.
func (n NodeID) IsSupervisor() bool {
	k := n.Kind()
	return k == KindTopLevel || k == KindSubject
}

// Route is a value a supervisor writes into State.Next.
type Route string

const (
	RouteNone              Route = ""
	RouteFinish            Route = "FINISH"
	RouteReturnToTopLevel  Route = "ReturnToTopLevel"
	RouteMathSupervisor    Route = Route(MathSupervisor)
	RouteEnglishSupervisor Route = Route(EnglishSupervisor)
	RouteLessonAgent       Route = Route(LessonAgent)
	RouteAssessmentAgent   Route = Route(AssessmentAgent)
)

// Routes converts a list of strings into routes.
func Routes(values ...string) []Route {
	out := make([]Route, len(values))
	for i, v := range values {
		out[i] = Route(v)
	}
	return out
}

// Strings converts routes into plain strings (e.g. for schema enums).
func Strings(routes []Route) []string {
	out := make([]string, len(routes))
	for i, r := range routes {
		out[i] = string(r)
	}
	return out
}

// Contains reports whether r is one of routes.
func Contains(routes []Route, r Route) bool {
	for _, candidate := range routes {
		if candidate == r {
			return true
		}
	}
	return false
}
