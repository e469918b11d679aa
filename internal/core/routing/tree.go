package routing

// =============================================================================
// Build Tree
// =============================================================================

// NoParent is the parent handle of a build root.
const NoParent = -1

// BuildUnit is one content node visited during a build.
type BuildUnit struct {
	NodeID   string
	SiteID   string
	TypeName string
	// IsLeaf is informational: false for container types.
	IsLeaf bool
	Slugs  CandidateSet

	// Parent is an index into the owning Tree, NoParent for the root.
	Parent         int
	Children       []int
	ChildrenLoaded bool

	AlreadyCommitted bool
	// AlsoRecurseInto is the child whose descendants are expanded
	// unconditionally. Only the root carries it, in sibling mode.
	AlsoRecurseInto string
}

// HasPendingChanges reports whether the unit's slugs need writing.
func (u *BuildUnit) HasPendingChanges() bool {
	return u.Slugs.HasPendingChanges()
}

// Tree is the arena owning every unit of one build. Units refer to each
// other by index only.
type Tree struct {
	Policy BuildPolicy
	// TriggerNodeID is the node the build was requested for.
	TriggerNodeID string
	// UseCurrentDraft is set when slugs were computed from latest drafts.
	UseCurrentDraft bool
	units           []*BuildUnit
}

// NewTree creates an empty tree for policy.
func NewTree(policy BuildPolicy, triggerNodeID string) *Tree {
	return &Tree{Policy: policy, TriggerNodeID: triggerNodeID}
}

// Add appends u under parent and returns its handle.
func (t *Tree) Add(parent int, u *BuildUnit) int {
	u.Parent = parent
	idx := len(t.units)
	t.units = append(t.units, u)
	if parent != NoParent {
		p := t.units[parent]
		p.Children = append(p.Children, idx)
	}
	return idx
}

// Root returns the build root, or nil for an empty tree.
func (t *Tree) Root() *BuildUnit {
	if len(t.units) == 0 {
		return nil
	}
	return t.units[0]
}

// Unit returns the unit at idx.
func (t *Tree) Unit(idx int) *BuildUnit {
	return t.units[idx]
}

// ParentOf returns the in-tree parent of the unit at idx, or nil.
func (t *Tree) ParentOf(idx int) *BuildUnit {
	p := t.units[idx].Parent
	if p == NoParent {
		return nil
	}
	return t.units[p]
}

// Len returns the number of units.
func (t *Tree) Len() int { return len(t.units) }

// Walk visits units depth-first, left to right, starting at the root. It
// stops at the first error fn returns.
func (t *Tree) Walk(fn func(idx int, u *BuildUnit) error) error {
	if len(t.units) == 0 {
		return nil
	}
	return t.walk(0, fn)
}

func (t *Tree) walk(idx int, fn func(int, *BuildUnit) error) error {
	u := t.units[idx]
	if err := fn(idx, u); err != nil {
		return err
	}
	for _, c := range u.Children {
		if err := t.walk(c, fn); err != nil {
			return err
		}
	}
	return nil
}

// PendingUnits counts units with pending changes.
func (t *Tree) PendingUnits() int {
	n := 0
	for _, u := range t.units {
		if u.HasPendingChanges() {
			n++
		}
	}
	return n
}
