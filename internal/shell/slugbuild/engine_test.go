package slugbuild

import (
	"context"
	"sort"
	"testing"

	"github.com/artpar/dynroute/internal/core/domain"
	"github.com/artpar/dynroute/internal/core/routing"
	"github.com/artpar/dynroute/internal/shell/pattern"
	"github.com/artpar/dynroute/internal/shell/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *store.SQLiteStore
	engine *Engine
}

// newFixture creates site s1 (en, fr; default en) with a "root" type
// rendering {Title} and a "page" type rendering {ParentUrl}/{Title}.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	require.NoError(t, s.CreateSite(ctx, &domain.Site{ID: "s1", DefaultLocale: "en", Locales: []string{"en", "fr"}}))
	require.NoError(t, s.UpsertNodeType(ctx, &domain.NodeType{Name: "root", PathTemplate: "{Title}", IsContainer: true}))
	require.NoError(t, s.UpsertNodeType(ctx, &domain.NodeType{Name: "page", PathTemplate: "{ParentUrl}/{Title}"}))

	return &fixture{
		t:      t,
		ctx:    ctx,
		store:  s,
		engine: NewEngine(s, s, pattern.NewResolver(), DefaultEngineConfig(), nil),
	}
}

// node creates a node with a published document titled title in each of
// locales (en when none are given).
func (f *fixture) node(id, parent, typeName, title string, locales ...string) {
	f.t.Helper()
	if len(locales) == 0 {
		locales = []string{"en"}
	}
	order := 0
	if parent != "" {
		children, err := f.store.ListChildren(f.ctx, parent)
		require.NoError(f.t, err)
		order = len(children)
	}
	require.NoError(f.t, f.store.CreateNode(f.ctx, &domain.Node{
		ID: id, SiteID: "s1", ParentID: parent, TypeName: typeName, Name: title, AliasPath: "/" + title, Order: order,
	}))
	for _, l := range locales {
		f.doc(id, l, title, true)
	}
}

func (f *fixture) doc(nodeID, locale, title string, published bool) {
	f.t.Helper()
	require.NoError(f.t, f.store.SaveDocument(f.ctx, &domain.Document{
		NodeID: nodeID, Locale: locale, Published: published, Fields: map[string]string{"Title": title},
	}))
}

func (f *fixture) policy(mods ...func(*routing.BuildPolicy)) routing.BuildPolicy {
	p := routing.BuildPolicy{
		SiteID:        "s1",
		Locales:       []string{"en"},
		DefaultLocale: "en",
		ConflictMode:  routing.ConflictAppendSuffix,
	}
	for _, m := range mods {
		m(&p)
	}
	return p
}

func (f *fixture) run(nodeID string, policy routing.BuildPolicy) *Result {
	f.t.Helper()
	res, err := f.engine.Run(f.ctx, nodeID, policy, false)
	require.NoError(f.t, err)
	return res
}

// slug returns the persisted text for node and locale, "" when absent.
func (f *fixture) slug(nodeID, locale string) string {
	f.t.Helper()
	rec, err := f.store.GetSlugByNodeLocale(f.ctx, nodeID, locale)
	if store.IsNotFound(err) {
		return ""
	}
	require.NoError(f.t, err)
	return rec.Text
}

// findUnit returns the index of nodeID in tree, -1 when absent.
func findUnit(tree *routing.Tree, nodeID string) int {
	found := -1
	_ = tree.Walk(func(idx int, u *routing.BuildUnit) error {
		if found == -1 && u.NodeID == nodeID {
			found = idx
		}
		return nil
	})
	return found
}

func withDescendants(p *routing.BuildPolicy) { p.BuildDescendants = true }
func withSiblings(p *routing.BuildPolicy)    { p.BuildSiblings = true }
func withChecking(p *routing.BuildPolicy)    { p.CheckingOnly = true }
func withAbort(p *routing.BuildPolicy)       { p.ConflictMode = routing.ConflictAbort }
func withFrench(p *routing.BuildPolicy)      { p.Locales = []string{"en", "fr"} }

// =============================================================================
// Scenario Tests
// =============================================================================

func TestEngine_RootAndChildSlugs(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home")
	f.node("about", "home", "page", "About")

	res := f.run("home", f.policy(withDescendants))

	assert.Equal(t, "home", f.slug("home", "en"))
	assert.Equal(t, "home/about", f.slug("about", "en"))
	assert.Equal(t, 2, res.Stats.Inserted)
}

func TestEngine_SiblingCollisionGetsSuffix(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home")
	f.run("home", f.policy())
	f.node("team1", "home", "page", "Team")
	f.node("team2", "home", "page", "Team")

	f.run("team1", f.policy())
	assert.Equal(t, "home/team", f.slug("team1", "en"))

	f.run("team2", f.policy())
	assert.Equal(t, "home/team-(1)", f.slug("team2", "en"))
	assert.Equal(t, "home/team", f.slug("team1", "en"))
}

func TestEngine_CustomSlugSurvivesTemplateChange(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home")
	f.node("a", "home", "page", "Alpha")
	f.node("b", "home", "page", "Beta")
	f.node("c", "home", "page", "Gamma")
	f.run("home", f.policy(withDescendants))
	require.NoError(t, f.store.PinSlug(f.ctx, &domain.SlugRecord{NodeID: "b", SiteID: "s1", Locale: "en", Text: "special-page"}))

	require.NoError(t, f.store.UpsertNodeType(f.ctx, &domain.NodeType{Name: "page", PathTemplate: "{ParentUrl}/p/{Title}"}))
	nodes, err := f.store.ListNodesByType(f.ctx, "s1", []string{"page"})
	require.NoError(t, err)
	for _, n := range nodes {
		f.run(n.ID, f.policy())
	}

	assert.Equal(t, "special-page", f.slug("b", "en"))
	assert.Equal(t, "home/p/alpha", f.slug("a", "en"))
	assert.Equal(t, "home/p/gamma", f.slug("c", "en"))
}

func TestEngine_MissingLocaleWithoutFallback(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home")
	f.node("about", "home", "page", "About")
	f.run("home", f.policy(withDescendants))
	require.NoError(t, f.store.InsertSlug(f.ctx, &domain.SlugRecord{NodeID: "about", SiteID: "s1", Locale: "fr", Text: "home/a-propos"}))

	res := f.run("about", f.policy(withFrench))

	assert.Empty(t, f.slug("about", "fr"))
	assert.Equal(t, "home/about", f.slug("about", "en"))
	assert.Equal(t, 1, res.Stats.Deleted)
}

func TestEngine_MissingLocaleNoCandidate(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home")

	tree, err := f.engine.Build(f.ctx, "home", f.policy(withFrench), false)
	require.NoError(t, err)

	assert.Nil(t, tree.Root().Slugs.Get("fr"))
	assert.NotNil(t, tree.Root().Slugs.Get("en"))
}

func TestEngine_GenerateIfLocaleMissing(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home")
	f.node("about", "home", "page", "About")
	f.doc("home", "fr", "Accueil", true)

	f.run("home", f.policy(withFrench, withDescendants, func(p *routing.BuildPolicy) {
		p.GenerateIfLocaleMissing = true
	}))

	assert.Equal(t, "accueil", f.slug("home", "fr"))
	assert.Equal(t, "accueil/about", f.slug("about", "fr"), "fr falls back to the en document")
}

// =============================================================================
// Property Tests
// =============================================================================

func TestEngine_RebuildIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home", "en", "fr")
	f.node("about", "home", "page", "About", "en", "fr")
	f.node("team", "home", "page", "Team", "en")
	f.run("home", f.policy(withFrench, withDescendants))

	tree, err := f.engine.Build(f.ctx, "home", f.policy(withFrench, withDescendants), false)
	require.NoError(t, err)
	assert.Equal(t, 3, tree.Len())
	assert.Zero(t, tree.PendingUnits())

	res := f.run("home", f.policy(withFrench, withDescendants))
	assert.False(t, res.Committed())
}

func TestEngine_UnchangedSubtreeNotExpanded(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home")
	f.node("about", "home", "page", "About")
	f.run("home", f.policy(withDescendants))

	tree, err := f.engine.Build(f.ctx, "home", f.policy(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, tree.Len())
	assert.False(t, tree.Root().ChildrenLoaded)
}

func TestEngine_ParentChangePropagates(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home")
	f.node("about", "home", "page", "About")
	f.node("deep", "about", "page", "Deep")
	f.run("home", f.policy(withDescendants))

	f.doc("home", "en", "Start", true)
	f.run("home", f.policy())

	assert.Equal(t, "start", f.slug("home", "en"))
	assert.Equal(t, "start/about", f.slug("about", "en"))
	assert.Equal(t, "start/about/deep", f.slug("deep", "en"))
}

func TestEngine_CustomPinNeverOverwritten(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home")
	f.node("about", "home", "page", "About")
	f.node("deep", "about", "page", "Deep")
	f.run("home", f.policy(withDescendants))
	require.NoError(t, f.store.PinSlug(f.ctx, &domain.SlugRecord{NodeID: "about", SiteID: "s1", Locale: "en", Text: "special"}))

	f.doc("home", "en", "Start", true)
	f.run("home", f.policy(withDescendants))

	assert.Equal(t, "special", f.slug("about", "en"))
	assert.Equal(t, "special/deep", f.slug("deep", "en"), "children inherit the pinned slug")
}

func TestEngine_NCollisionsAreDistinct(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home")
	f.run("home", f.policy())

	ids := []string{"t1", "t2", "t3", "t4"}
	for _, id := range ids {
		f.node(id, "home", "page", "Team")
		f.run(id, f.policy())
	}

	texts := make([]string, 0, len(ids))
	for _, id := range ids {
		texts = append(texts, f.slug(id, "en"))
	}
	sort.Strings(texts)
	assert.Equal(t, []string{"home/team", "home/team-(1)", "home/team-(2)", "home/team-(3)"}, texts)
}

func TestEngine_SiblingsCollidingInOneBuild(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home")
	f.node("t1", "home", "page", "Team")
	f.node("t2", "home", "page", "Team")
	f.node("t3", "home", "page", "Team")

	f.run("home", f.policy(withDescendants))

	assert.Equal(t, "home/team", f.slug("t1", "en"))
	assert.Equal(t, "home/team-(1)", f.slug("t2", "en"))
	assert.Equal(t, "home/team-(2)", f.slug("t3", "en"))
}

func TestEngine_SuffixIsReplacedNotStacked(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home")
	f.run("home", f.policy())
	f.node("a", "home", "page", "Team")
	f.run("a", f.policy())
	f.node("b", "home", "page", "Other")
	f.run("b", f.policy())
	require.NoError(t, f.store.PinSlug(f.ctx, &domain.SlugRecord{NodeID: "b", SiteID: "s1", Locale: "en", Text: "home/team-(2)"}))

	f.node("c", "home", "page", "Team-(2)")
	f.run("c", f.policy())

	assert.Equal(t, "home/team-(3)", f.slug("c", "en"))
}

func TestEngine_SuffixedSlugIsStable(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home")
	f.node("t1", "home", "page", "Team")
	f.node("t2", "home", "page", "Team")
	f.run("home", f.policy(withDescendants))
	require.Equal(t, "home/team-(1)", f.slug("t2", "en"))

	tree, err := f.engine.Build(f.ctx, "t2", f.policy(), false)
	require.NoError(t, err)
	c := tree.Root().Slugs.Get("en")
	require.NotNil(t, c)
	assert.Equal(t, routing.Unchanged, c.State)
	assert.Equal(t, "home/team-(1)", c.Text)
}

func TestEngine_SuffixedSlugReclaimsFreedBase(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home")
	f.node("t1", "home", "page", "Team")
	f.node("t2", "home", "page", "Team")
	f.run("home", f.policy(withDescendants))
	require.Equal(t, "home/team-(1)", f.slug("t2", "en"))

	require.NoError(t, f.store.DeleteNode(f.ctx, "t1"))
	res := f.run("t2", f.policy())

	assert.Equal(t, 1, res.Stats.Updated)
	assert.Equal(t, "home/team", f.slug("t2", "en"))
}

// =============================================================================
// Conflict Mode Tests
// =============================================================================

func TestEngine_AbortModeWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home")
	f.run("home", f.policy())
	f.node("t1", "home", "page", "Team")
	f.run("t1", f.policy())
	f.node("t2", "home", "page", "Team")

	res, err := f.engine.Run(f.ctx, "t2", f.policy(withAbort), false)

	fc, ok := IsFatalConflict(err)
	require.True(t, ok)
	require.Len(t, fc.Conflicts, 1)
	assert.Equal(t, "t2", fc.Conflicts[0].NodeID)
	assert.Equal(t, "t1", fc.Conflicts[0].ConflictingNodeID)
	assert.Equal(t, "home/team", fc.Conflicts[0].Text)
	assert.Equal(t, fc.Conflicts, res.Conflicts)
	assert.Empty(t, f.slug("t2", "en"))
}

func TestEngine_ConflictsAcrossLocales(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home")
	f.node("a", "home", "page", "Team", "en")
	f.node("b", "home", "page", "Other", "en", "fr")
	f.doc("b", "fr", "Team", true)
	f.run("a", f.policy(withFrench))

	res, err := f.engine.Run(f.ctx, "b", f.policy(withFrench, withChecking), false)
	require.NoError(t, err)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "fr", res.Conflicts[0].Locale)
	assert.Equal(t, "en", res.Conflicts[0].ConflictingLocale)
}

func TestEngine_FindConflictsInTree(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home")
	f.node("t1", "home", "page", "Team")
	f.node("t2", "home", "page", "Team")

	tree, err := f.engine.Build(f.ctx, "home", f.policy(withDescendants), false)
	require.NoError(t, err)
	reports, err := f.engine.FindConflicts(f.ctx, tree)
	require.NoError(t, err)

	require.Len(t, reports, 1)
	assert.True(t, reports[0].InTree)
	assert.Equal(t, "t2", reports[0].NodeID)
	assert.Equal(t, "t1", reports[0].ConflictingNodeID)
}

// =============================================================================
// Dry Run Tests
// =============================================================================

func TestEngine_CheckingOnlyIsReadOnly(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home")
	f.node("about", "home", "page", "About")
	f.run("home", f.policy(withDescendants))
	require.NoError(t, f.store.InsertSlug(f.ctx, &domain.SlugRecord{NodeID: "about", SiteID: "s1", Locale: "fr", Text: "home/a-propos"}))
	f.doc("about", "en", "About Us", true)

	res, err := f.engine.Run(f.ctx, "about", f.policy(withFrench, withChecking), false)
	require.NoError(t, err)

	fr := res.Tree.Root().Slugs.Get("fr")
	require.NotNil(t, fr)
	assert.Equal(t, routing.MarkedForDeletion, fr.State)
	en := res.Tree.Root().Slugs.Get("en")
	assert.Equal(t, "home/about-us", en.Text)
	assert.Equal(t, "home/about", en.PreviousText)

	assert.Equal(t, "home/a-propos", f.slug("about", "fr"))
	assert.Equal(t, "home/about", f.slug("about", "en"))

	_, err = f.engine.Commit(f.ctx, res.Tree, true)
	assert.ErrorIs(t, err, ErrReadOnlyBuild)
}

func TestEngine_CheckUsesDraft(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home")
	f.node("about", "home", "page", "About")
	f.run("home", f.policy(withDescendants))
	f.doc("about", "en", "About Draft", false)

	res, err := f.engine.Run(f.ctx, "about", f.policy(withChecking), true)
	require.NoError(t, err)
	assert.Equal(t, "home/about-draft", res.Tree.Root().Slugs.Get("en").Text)

	res = f.run("about", f.policy())
	assert.False(t, res.Committed(), "published build ignores the draft")
}

// =============================================================================
// Tree Shape Tests
// =============================================================================

func TestEngine_SiblingModeRootsAtParent(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home")
	f.node("about", "home", "page", "About")
	f.node("team", "home", "page", "Team")
	f.node("deep", "about", "page", "Deep")
	f.run("home", f.policy(withDescendants))

	tree, err := f.engine.Build(f.ctx, "about", f.policy(withSiblings), false)
	require.NoError(t, err)

	assert.Equal(t, "home", tree.Root().NodeID)
	assert.Equal(t, "about", tree.Root().AlsoRecurseInto)
	assert.Equal(t, "about", tree.TriggerNodeID)
	about := findUnit(tree, "about")
	require.NotEqual(t, -1, about)
	assert.True(t, tree.Unit(about).ChildrenLoaded, "the triggering node is always expanded")
	assert.NotEqual(t, -1, findUnit(tree, "deep"))
	team := findUnit(tree, "team")
	require.NotEqual(t, -1, team)
	assert.False(t, tree.Unit(team).ChildrenLoaded)
}

func TestEngine_SiblingModeOnRootNode(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home")

	tree, err := f.engine.Build(f.ctx, "home", f.policy(withSiblings), false)
	require.NoError(t, err)
	assert.Equal(t, "home", tree.Root().NodeID)
}

func TestEngine_ExcludedTypeSlugsDeleted(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home")
	f.node("about", "home", "page", "About")
	f.run("home", f.policy(withDescendants))

	site, err := f.store.GetSite(f.ctx, "s1")
	require.NoError(t, err)
	site.ExcludedTypes = []string{"page"}
	require.NoError(t, f.store.UpdateSite(f.ctx, site))

	res := f.run("home", f.policy(withDescendants))
	assert.Equal(t, 1, res.Stats.Deleted)
	assert.Empty(t, f.slug("about", "en"))
	assert.Equal(t, "home", f.slug("home", "en"))
}

func TestEngine_RemovedLocaleSlugsDeleted(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home", "en", "fr")
	f.run("home", f.policy(withFrench))
	require.Equal(t, "home", f.slug("home", "fr"))

	f.run("home", f.policy())
	assert.Empty(t, f.slug("home", "fr"))
}

func TestEngine_EmptyTemplateUsesAliasPath(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.UpsertNodeType(f.ctx, &domain.NodeType{Name: "folder"}))
	require.NoError(t, f.store.CreateNode(f.ctx, &domain.Node{
		ID: "docs", SiteID: "s1", TypeName: "folder", Name: "Docs", AliasPath: "/Company/Docs",
	}))
	f.doc("docs", "en", "ignored", true)

	f.run("docs", f.policy())
	assert.Equal(t, "company/docs", f.slug("docs", "en"))
}

// =============================================================================
// Commit Tests
// =============================================================================

func TestEngine_CommitTwiceIsNoop(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home")
	f.node("about", "home", "page", "About")

	tree, err := f.engine.Build(f.ctx, "home", f.policy(withDescendants), false)
	require.NoError(t, err)
	require.NoError(t, f.engine.ResolveConflicts(f.ctx, tree, routing.ConflictAppendSuffix))

	stats, err := f.engine.Commit(f.ctx, tree, true)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Inserted)

	stats, err = f.engine.Commit(f.ctx, tree, true)
	require.NoError(t, err)
	assert.Zero(t, stats.Total())
	assert.True(t, tree.Root().AlreadyCommitted)
}

func TestEngine_UpdateKeepsRecordAndWritesRedirect(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home")
	f.run("home", f.policy())
	before, err := f.store.GetSlugByNodeLocale(f.ctx, "home", "en")
	require.NoError(t, err)

	f.doc("home", "en", "Start", true)
	res := f.run("home", f.policy())

	assert.Equal(t, 1, res.Stats.Updated)
	after, err := f.store.GetSlugByNodeLocale(f.ctx, "home", "en")
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	redirects, err := f.store.ListRedirectsByNode(f.ctx, "home")
	require.NoError(t, err)
	require.Len(t, redirects, 1)
	assert.Equal(t, "home", redirects[0].Text)
}

// racingStore inserts a competing record right before the first insert of
// text, as a concurrent build would.
type racingStore struct {
	*store.SQLiteStore
	text  string
	fired bool
}

func (r *racingStore) InsertSlug(ctx context.Context, rec *domain.SlugRecord) error {
	if !r.fired && rec.Text == r.text {
		r.fired = true
		if err := r.SQLiteStore.InsertSlug(ctx, &domain.SlugRecord{
			NodeID: "rival", SiteID: rec.SiteID, Locale: "en", Text: rec.Text,
		}); err != nil {
			return err
		}
	}
	return r.SQLiteStore.InsertSlug(ctx, rec)
}

func TestEngine_WriteTimeDuplicateRetriesWithSuffix(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home")
	f.run("home", f.policy())
	f.node("rival", "home", "page", "Rival")
	f.node("team", "home", "page", "Team")

	racing := &racingStore{SQLiteStore: f.store, text: "home/team"}
	engine := NewEngine(f.store, racing, pattern.NewResolver(), DefaultEngineConfig(), nil)

	res, err := engine.Run(f.ctx, "team", f.policy(withAbort), false)
	require.NoError(t, err)

	assert.True(t, racing.fired)
	assert.Equal(t, "home/team-(1)", f.slug("team", "en"))
	assert.Equal(t, "home/team", f.slug("rival", "en"))
	assert.Equal(t, 1, res.Stats.Inserted)
}

func TestEngine_WriteTimeRenameRederivesChildren(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home")
	f.run("home", f.policy())
	f.node("rival", "home", "page", "Rival")
	f.node("team", "home", "page", "Team")
	f.node("lead", "team", "page", "Lead")

	racing := &racingStore{SQLiteStore: f.store, text: "home/team"}
	engine := NewEngine(f.store, racing, pattern.NewResolver(), DefaultEngineConfig(), nil)

	res, err := engine.Run(f.ctx, "team", f.policy(withAbort), false)
	require.NoError(t, err)

	require.True(t, racing.fired)
	assert.Equal(t, "home/team-(1)", f.slug("team", "en"))
	assert.Equal(t, "home/team-(1)/lead", f.slug("lead", "en"))
	assert.Equal(t, 2, res.Stats.Inserted)

	res = f.run("team", f.policy(withDescendants))
	assert.False(t, res.Committed(), "stored slugs already match the renamed parent")
}

// =============================================================================
// Renamed Parent Tests
// =============================================================================

func TestEngine_RenamedParentRederivesChildren(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home")
	f.run("home", f.policy())
	f.node("team1", "home", "page", "Team")
	f.run("team1", f.policy())
	require.Equal(t, "home/team", f.slug("team1", "en"))

	f.node("team2", "home", "page", "Team")
	f.node("lead2", "team2", "page", "Lead")
	f.run("team2", f.policy())

	assert.Equal(t, "home/team-(1)", f.slug("team2", "en"))
	assert.Equal(t, "home/team-(1)/lead", f.slug("lead2", "en"))

	res := f.run("team2", f.policy(withDescendants))
	assert.False(t, res.Committed())
	assert.Equal(t, "home/team-(1)/lead", f.slug("lead2", "en"))
}

func TestEngine_RenamedParentChildCollisionResolved(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home")
	f.run("home", f.policy())
	f.node("team1", "home", "page", "Team")
	f.run("team1", f.policy())
	f.node("stray", "home", "page", "Stray")
	require.NoError(t, f.store.InsertSlug(f.ctx, &domain.SlugRecord{NodeID: "stray", SiteID: "s1", Locale: "en", Text: "home/team-(1)/lead"}))

	f.node("team2", "home", "page", "Team")
	f.node("lead2", "team2", "page", "Lead")
	f.run("team2", f.policy())

	assert.Equal(t, "home/team-(1)", f.slug("team2", "en"))
	assert.Equal(t, "home/team-(1)/lead-(1)", f.slug("lead2", "en"))
	assert.Equal(t, "home/team-(1)/lead", f.slug("stray", "en"))
}

func TestEngine_DeletedParentLocaleFallsBackToDefault(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home", "en", "fr")
	f.doc("home", "fr", "Accueil", true)
	f.node("about", "home", "page", "About", "en", "fr")
	f.run("home", f.policy(withFrench, withDescendants))
	require.Equal(t, "accueil", f.slug("home", "fr"))
	require.Equal(t, "accueil/about", f.slug("about", "fr"))

	require.NoError(t, f.store.DeleteDocument(f.ctx, "home", "fr", true))
	f.run("home", f.policy(withFrench, withDescendants))

	assert.Empty(t, f.slug("home", "fr"))
	assert.Equal(t, "home/about", f.slug("about", "fr"))

	res := f.run("about", f.policy(withFrench))
	assert.False(t, res.Committed(), "in-tree and stored parent lookups agree")
}

// =============================================================================
// Error Tests
// =============================================================================

func TestEngine_MissingNode(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Build(f.ctx, "nope", f.policy(), false)

	var be *BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "nope", be.NodeID)
	assert.Equal(t, "load node", be.Op)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEngine_InvalidPolicy(t *testing.T) {
	f := newFixture(t)
	f.node("home", "", "root", "Home")

	_, err := f.engine.Build(f.ctx, "home", routing.BuildPolicy{SiteID: "s1"}, false)
	assert.ErrorIs(t, err, routing.ErrPolicyNoLocales)
}

func TestEngine_UnknownTemplateField(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.UpsertNodeType(f.ctx, &domain.NodeType{Name: "news", PathTemplate: "{ParentUrl}/{Headline}"}))
	f.node("home", "", "root", "Home")
	f.node("n1", "home", "news", "Story")

	_, err := f.engine.Run(f.ctx, "n1", f.policy(), false)

	var be *BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "resolve template", be.Op)
	assert.ErrorIs(t, err, pattern.ErrUnknownField)
}

func TestEngine_SiteMismatch(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.CreateSite(f.ctx, &domain.Site{ID: "s2", DefaultLocale: "en", Locales: []string{"en"}}))
	f.node("home", "", "root", "Home")

	_, err := f.engine.Build(f.ctx, "home", f.policy(func(p *routing.BuildPolicy) { p.SiteID = "s2" }), false)
	assert.ErrorIs(t, err, ErrSiteMismatch)
}
