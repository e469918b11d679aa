package routing

import (
	"errors"
	"fmt"
)

// =============================================================================
// Triggers
// =============================================================================

// TriggerKind names a content or configuration change that may invalidate
// slugs.
type TriggerKind string

const (
	NodeCreated          TriggerKind = "node.created"
	NodeUpdated          TriggerKind = "node.updated"
	NodeMoved            TriggerKind = "node.moved"
	NodeCopied           TriggerKind = "node.copied"
	NodeReordered        TriggerKind = "node.reordered"
	NodePublished        TriggerKind = "node.published"
	NodeDeleted          TriggerKind = "node.deleted"
	LocaleAdded          TriggerKind = "site.locale_added"
	LocaleRemoved        TriggerKind = "site.locale_removed"
	DefaultLocaleChanged TriggerKind = "site.default_locale_changed"
	TypeTemplateChanged  TriggerKind = "type.template_changed"
	ExcludedTypesChanged TriggerKind = "site.excluded_types_changed"
	Reconcile            TriggerKind = "site.reconcile"
)

var (
	ErrUnknownTrigger       = errors.New("unknown trigger kind")
	ErrTriggerNodeRequired  = errors.New("trigger requires a node id")
	ErrTriggerSiteRequired  = errors.New("trigger requires a site id")
	ErrTriggerTypesRequired = errors.New("trigger requires at least one type name")
)

// Trigger is an inbound change notification.
type Trigger struct {
	Kind   TriggerKind `json:"kind"`
	SiteID string      `json:"site_id"`
	NodeID string      `json:"node_id,omitempty"`
	// ParentID is the parent of a deleted node, or the new parent of a moved one.
	ParentID string `json:"parent_id,omitempty"`
	// OldParentID is the parent a node was moved away from.
	OldParentID string   `json:"old_parent_id,omitempty"`
	TypeNames   []string `json:"type_names,omitempty"`
	// BuildSiblings asks node triggers to recompute the node's siblings too.
	BuildSiblings bool `json:"build_siblings,omitempty"`
}

// IsNodeTrigger reports whether the trigger is about a single node.
func (k TriggerKind) IsNodeTrigger() bool {
	switch k {
	case NodeCreated, NodeUpdated, NodeMoved, NodeCopied, NodeReordered, NodePublished, NodeDeleted:
		return true
	}
	return false
}

// Validate checks that the trigger carries what its kind needs.
func (t Trigger) Validate() error {
	if t.SiteID == "" {
		return ErrTriggerSiteRequired
	}
	switch {
	case t.Kind.IsNodeTrigger():
		if t.NodeID == "" {
			return ErrTriggerNodeRequired
		}
	case t.Kind == TypeTemplateChanged:
		if len(t.TypeNames) == 0 {
			return ErrTriggerTypesRequired
		}
	case t.Kind == LocaleAdded, t.Kind == LocaleRemoved, t.Kind == DefaultLocaleChanged,
		t.Kind == ExcludedTypesChanged, t.Kind == Reconcile:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTrigger, t.Kind)
	}
	return nil
}

// =============================================================================
// Scopes
// =============================================================================

// ScopeKind is the shape of the set of nodes a trigger rebuilds.
type ScopeKind int

const (
	// ScopeNodes rebuilds explicit targets.
	ScopeNodes ScopeKind = iota
	// ScopeSite rebuilds every node of the site.
	ScopeSite
	// ScopeTypes rebuilds every node of the named types on the site.
	ScopeTypes
)

// Target is one build to run for a node-scoped trigger.
type Target struct {
	NodeID           string
	BuildSiblings    bool
	BuildDescendants bool
	// ChildrenOnly rebuilds the children of NodeID, not NodeID itself.
	ChildrenOnly bool
}

// Scope is the resolved rebuild scope of a trigger.
type Scope struct {
	Kind      ScopeKind
	SiteID    string
	Targets   []Target
	TypeNames []string
	// BuildDescendants applies to site and type scopes.
	BuildDescendants bool
}

// ScopeFor maps a trigger to the nodes it rebuilds.
func ScopeFor(t Trigger) (Scope, error) {
	if err := t.Validate(); err != nil {
		return Scope{}, err
	}
	s := Scope{Kind: ScopeNodes, SiteID: t.SiteID}

	switch t.Kind {
	case NodeCreated, NodeUpdated, NodeCopied, NodeReordered, NodePublished:
		s.Targets = []Target{{NodeID: t.NodeID, BuildSiblings: t.BuildSiblings}}

	case NodeMoved:
		s.Targets = []Target{{NodeID: t.NodeID, BuildSiblings: t.BuildSiblings}}
		if t.OldParentID != "" && t.OldParentID != t.ParentID {
			s.Targets = append(s.Targets, Target{NodeID: t.OldParentID, ChildrenOnly: true})
		}

	case NodeDeleted:
		// Root deletions leave nothing to resort; the node's own slugs go
		// with the node.
		if t.ParentID != "" {
			s.Targets = []Target{{NodeID: t.ParentID, ChildrenOnly: true}}
		}

	case LocaleAdded, LocaleRemoved, DefaultLocaleChanged, Reconcile:
		s.Kind = ScopeSite
		s.BuildDescendants = true

	case TypeTemplateChanged:
		s.Kind = ScopeTypes
		s.TypeNames = t.TypeNames

	case ExcludedTypesChanged:
		if len(t.TypeNames) > 0 {
			s.Kind = ScopeTypes
			s.TypeNames = t.TypeNames
		} else {
			s.Kind = ScopeSite
			s.BuildDescendants = true
		}
	}
	return s, nil
}

// SuppressionKey is the key of the in-progress marker for a trigger, scoped
// to the entity it touches and the kind of operation.
func SuppressionKey(t Trigger) string {
	entity := t.NodeID
	if entity == "" {
		entity = "site:" + t.SiteID
	}
	return fmt.Sprintf("%s|%s", entity, t.Kind)
}
