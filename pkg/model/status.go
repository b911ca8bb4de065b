package model

// statusTransitions lists the allowed status state machine edges.
// DEPRECATED is terminal: components stay queryable but accept no further
// lifecycle transitions.
var statusTransitions = map[ComponentStatus][]ComponentStatus{
	StatusActive:   {StatusUpdating, StatusInactive, StatusDeprecated},
	StatusUpdating: {StatusActive, StatusError},
	StatusError:    {StatusUpdating, StatusDeprecated},
	StatusInactive: {StatusActive, StatusDeprecated},
}

// CanTransitionTo reports whether the status state machine allows moving
// from s to next. A no-op transition (s == next) is always allowed.
func (s ComponentStatus) CanTransitionTo(next ComponentStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status accepts no further transitions.
func (s ComponentStatus) Terminal() bool {
	return len(statusTransitions[s]) == 0
}
