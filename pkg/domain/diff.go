package domain

// StateDiff represents the changes between two states.
// It is designed to be serialized to JSON for partial updates on the client.
type StateDiff struct {
	RunID string `json:"run_id"`

	Next              *Route  `json:"next,omitempty"`
	CurrentSupervisor *NodeID `json:"current_supervisor,omitempty"`
	Role              *Role   `json:"role,omitempty"`

	// Appended contains the messages added since the old state.
	Appended []Message `json:"appended,omitempty"`
}

// Diff calculates the difference between oldState and newState.
// If oldState is nil, it returns a diff representing the entire newState (initial load).
// Messages are append-only, so only the new tail is reported.
func Diff(oldState, newState *State) *StateDiff {
	if newState == nil {
		return nil
	}

	diff := &StateDiff{
		RunID: newState.RunID,
	}

	if oldState == nil || oldState.Next != newState.Next {
		next := newState.Next
		diff.Next = &next
	}
	if oldState == nil || oldState.CurrentSupervisor != newState.CurrentSupervisor {
		sup := newState.CurrentSupervisor
		diff.CurrentSupervisor = &sup
	}
	if oldState == nil || oldState.Role != newState.Role {
		role := newState.Role
		diff.Role = &role
	}

	diff.Appended = diffMessages(oldState, newState)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffMessages(old *State, new *State) []Message {
	if len(new.Messages) == 0 {
		return nil
	}
	if old == nil {
		return append([]Message(nil), new.Messages...)
	}
	if len(new.Messages) > len(old.Messages) {
		return append([]Message(nil), new.Messages[len(old.Messages):]...)
	}
	return nil
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *StateDiff) IsEmpty() bool {
	return d.Next == nil &&
		d.CurrentSupervisor == nil &&
		d.Role == nil &&
		len(d.Appended) == 0
}
