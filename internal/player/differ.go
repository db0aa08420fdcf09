package player

// ChangedAttributes returns what a consumer holding previous needs to reach
// next. A nil previous or a state change yields the full next snapshot so
// consumers can re-render from scratch; otherwise only differing keys are
// returned, taken over the union of both key sets.
func ChangedAttributes(previous, next Attributes) Attributes {
	if previous == nil {
		return next.Clone()
	}
	if previous[AttrState] != next[AttrState] {
		return next.Clone()
	}

	changed := Attributes{}
	for key, value := range next {
		if old, ok := previous[key]; !ok || old != value {
			changed[key] = value
		}
	}
	for key := range previous {
		if _, ok := next[key]; !ok {
			changed[key] = nil
		}
	}
	return changed
}
