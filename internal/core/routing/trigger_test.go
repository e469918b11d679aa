package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Trigger Scope Tests
// =============================================================================

func TestScopeFor_NodeTriggers(t *testing.T) {
	for _, kind := range []TriggerKind{NodeCreated, NodeUpdated, NodeCopied, NodeReordered, NodePublished} {
		s, err := ScopeFor(Trigger{Kind: kind, SiteID: "s1", NodeID: "n1", BuildSiblings: true})
		require.NoError(t, err, kind)
		assert.Equal(t, ScopeNodes, s.Kind)
		assert.Equal(t, []Target{{NodeID: "n1", BuildSiblings: true}}, s.Targets)
	}
}

func TestScopeFor_Moved(t *testing.T) {
	s, err := ScopeFor(Trigger{Kind: NodeMoved, SiteID: "s1", NodeID: "n1", ParentID: "p2", OldParentID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, []Target{
		{NodeID: "n1"},
		{NodeID: "p1", ChildrenOnly: true},
	}, s.Targets)
}

func TestScopeFor_MovedWithinParent(t *testing.T) {
	s, err := ScopeFor(Trigger{Kind: NodeMoved, SiteID: "s1", NodeID: "n1", ParentID: "p1", OldParentID: "p1"})
	require.NoError(t, err)
	assert.Len(t, s.Targets, 1)
}

func TestScopeFor_Deleted(t *testing.T) {
	s, err := ScopeFor(Trigger{Kind: NodeDeleted, SiteID: "s1", NodeID: "n1", ParentID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, []Target{{NodeID: "p1", ChildrenOnly: true}}, s.Targets)

	s, err = ScopeFor(Trigger{Kind: NodeDeleted, SiteID: "s1", NodeID: "n1"})
	require.NoError(t, err)
	assert.Empty(t, s.Targets)
}

func TestScopeFor_SiteWide(t *testing.T) {
	for _, kind := range []TriggerKind{LocaleAdded, LocaleRemoved, DefaultLocaleChanged, Reconcile} {
		s, err := ScopeFor(Trigger{Kind: kind, SiteID: "s1"})
		require.NoError(t, err, kind)
		assert.Equal(t, ScopeSite, s.Kind)
		assert.True(t, s.BuildDescendants)
	}
}

func TestScopeFor_TypeTemplateChanged(t *testing.T) {
	s, err := ScopeFor(Trigger{Kind: TypeTemplateChanged, SiteID: "s1", TypeNames: []string{"page"}})
	require.NoError(t, err)
	assert.Equal(t, ScopeTypes, s.Kind)
	assert.Equal(t, []string{"page"}, s.TypeNames)

	_, err = ScopeFor(Trigger{Kind: TypeTemplateChanged, SiteID: "s1"})
	assert.ErrorIs(t, err, ErrTriggerTypesRequired)
}

func TestScopeFor_ExcludedTypes(t *testing.T) {
	s, err := ScopeFor(Trigger{Kind: ExcludedTypesChanged, SiteID: "s1", TypeNames: []string{"folder"}})
	require.NoError(t, err)
	assert.Equal(t, ScopeTypes, s.Kind)

	s, err = ScopeFor(Trigger{Kind: ExcludedTypesChanged, SiteID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, ScopeSite, s.Kind)
}

func TestTriggerValidate(t *testing.T) {
	assert.ErrorIs(t, Trigger{Kind: NodeUpdated}.Validate(), ErrTriggerSiteRequired)
	assert.ErrorIs(t, Trigger{Kind: NodeUpdated, SiteID: "s1"}.Validate(), ErrTriggerNodeRequired)
	assert.ErrorIs(t, Trigger{Kind: "bogus", SiteID: "s1"}.Validate(), ErrUnknownTrigger)
}

func TestSuppressionKey(t *testing.T) {
	assert.Equal(t, "n1|node.updated", SuppressionKey(Trigger{Kind: NodeUpdated, SiteID: "s1", NodeID: "n1"}))
	assert.Equal(t, "site:s1|site.locale_added", SuppressionKey(Trigger{Kind: LocaleAdded, SiteID: "s1"}))
}

// =============================================================================
// Policy Tests
// =============================================================================

func TestParseConflictMode(t *testing.T) {
	m, err := ParseConflictMode("")
	require.NoError(t, err)
	assert.Equal(t, ConflictAbort, m)

	m, err = ParseConflictMode("Append")
	require.NoError(t, err)
	assert.Equal(t, ConflictAppendSuffix, m)

	_, err = ParseConflictMode("ignore")
	assert.ErrorIs(t, err, ErrUnknownConflictMode)
}

func TestBuildPolicyValidate(t *testing.T) {
	p := BuildPolicy{SiteID: "s1", Locales: []string{"en", "fr"}, DefaultLocale: "en"}
	assert.NoError(t, p.Validate())
	assert.True(t, p.IsDefault("EN"))
	assert.True(t, p.HasLocale("fr"))

	assert.ErrorIs(t, BuildPolicy{}.Validate(), ErrPolicySiteRequired)
	assert.ErrorIs(t, BuildPolicy{SiteID: "s1"}.Validate(), ErrPolicyNoLocales)
	assert.ErrorIs(t, BuildPolicy{SiteID: "s1", Locales: []string{"en"}, DefaultLocale: "de"}.Validate(), ErrPolicyDefaultLocale)
}
