package nodes

// ActiveSet is an optional allow-list of node IDs. When it is enabled (present
// and non-empty), proposals from nodes outside the set are dropped before they
// reach consensus. An empty or nil ActiveSet means every registered node is
// implicitly active.
type ActiveSet struct {
	ids map[string]struct{}
}

// NewActiveSet builds an ActiveSet from a list of node IDs.
func NewActiveSet(ids []string) *ActiveSet {
	set := &ActiveSet{
		ids: make(map[string]struct{}, len(ids)),
	}

	for _, id := range ids {
		set.ids[id] = struct{}{}
	}

	return set
}

// Enabled reports whether the allow-list is actually restricting anything.
func (a *ActiveSet) Enabled() bool {
	return a != nil && len(a.ids) > 0
}

// Contains reports whether a node is in the allow-list. When the set is not
// Enabled, Contains returns true for every ID.
func (a *ActiveSet) Contains(id string) bool {
	if !a.Enabled() {
		return true
	}

	_, ok := a.ids[id]

	return ok
}

// IDs returns the members of the allow-list.
func (a *ActiveSet) IDs() []string {
	if a == nil {
		return nil
	}

	res := make([]string, 0, len(a.ids))
	for id := range a.ids {
		res = append(res, id)
	}

	return res
}
