package slugbuild

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/artpar/dynroute/internal/core/domain"
	"github.com/artpar/dynroute/internal/core/routing"
)

// =============================================================================
// Tree Construction
// =============================================================================

// builder holds the per-build lookups shared by every unit of one tree.
type builder struct {
	e      *Engine
	tree   *routing.Tree
	site   *domain.Site
	policy routing.BuildPolicy
	draft  bool

	types         map[string]*domain.NodeType
	parentRecords map[string][]domain.SlugRecord
}

// Build computes the build tree for nodeID. In sibling mode the tree is
// rooted at the node's parent and the node's own subtree is always
// expanded. Children of other units are loaded only when forced by the
// policy or when the unit's slugs changed.
func (e *Engine) Build(ctx context.Context, nodeID string, policy routing.BuildPolicy, useCurrentDraft bool) (*routing.Tree, error) {
	if err := policy.Validate(); err != nil {
		return nil, buildErr(nodeID, "validate policy", err)
	}

	node, err := e.content.GetNode(ctx, nodeID)
	if err != nil {
		return nil, buildErr(nodeID, "load node", err)
	}
	if node.SiteID != policy.SiteID {
		return nil, buildErr(nodeID, "load node", fmt.Errorf("%w: %s", ErrSiteMismatch, node.SiteID))
	}

	tree := routing.NewTree(policy, nodeID)
	tree.UseCurrentDraft = useCurrentDraft
	b, err := e.newBuilder(ctx, tree)
	if err != nil {
		return nil, buildErr(nodeID, "load site", err)
	}

	root, force, alsoRecurseInto := node, false, ""
	if policy.BuildSiblings && !node.IsRoot() {
		parent, err := e.content.GetNode(ctx, node.ParentID)
		if err != nil {
			return nil, buildErr(node.ParentID, "load parent", err)
		}
		root, force, alsoRecurseInto = parent, true, node.ID
	}

	if err := b.visit(ctx, routing.NoParent, *root, force, alsoRecurseInto); err != nil {
		return nil, err
	}
	return b.tree, nil
}

// newBuilder prepares the lookups for computing slugs into tree.
func (e *Engine) newBuilder(ctx context.Context, tree *routing.Tree) (*builder, error) {
	site, err := e.content.GetSite(ctx, tree.Policy.SiteID)
	if err != nil {
		return nil, err
	}
	return &builder{
		e:             e,
		tree:          tree,
		site:          site,
		policy:        tree.Policy,
		draft:         tree.UseCurrentDraft,
		types:         make(map[string]*domain.NodeType),
		parentRecords: make(map[string][]domain.SlugRecord),
	}, nil
}

// visit adds node under parent, computes its slugs and expands its
// children when the recursion rule holds. alsoRecurseInto names the child
// whose subtree is expanded unconditionally.
func (b *builder) visit(ctx context.Context, parent int, node domain.Node, force bool, alsoRecurseInto string) error {
	nt, err := b.nodeType(ctx, node.TypeName)
	if err != nil {
		return buildErr(node.ID, "load node type", err)
	}

	idx := b.tree.Add(parent, &routing.BuildUnit{
		NodeID:          node.ID,
		SiteID:          node.SiteID,
		TypeName:        node.TypeName,
		IsLeaf:          !nt.IsContainer,
		AlsoRecurseInto: alsoRecurseInto,
	})
	u := b.tree.Unit(idx)

	if err := b.computeSlugs(ctx, idx, node, nt); err != nil {
		return err
	}

	if !force && !b.policy.BuildDescendants && !u.HasPendingChanges() {
		return nil
	}
	return b.expand(ctx, idx, alsoRecurseInto)
}

// expand loads the children of the unit at idx into the tree.
func (b *builder) expand(ctx context.Context, idx int, alsoRecurseInto string) error {
	u := b.tree.Unit(idx)
	children, err := b.e.content.ListChildren(ctx, u.NodeID)
	if err != nil {
		return buildErr(u.NodeID, "list children", err)
	}
	u.ChildrenLoaded = true
	for _, child := range children {
		if err := b.visit(ctx, idx, child, child.ID == alsoRecurseInto, ""); err != nil {
			return err
		}
	}
	return nil
}

// refreshBelow brings the subtree under idx in line with the unit's
// current slug texts, after conflict resolution or a write-time retry
// renamed them. Children computed from the old texts are recomputed, and so
// on down wherever a child's texts changed in turn.
func (b *builder) refreshBelow(ctx context.Context, idx int) error {
	u := b.tree.Unit(idx)
	if !u.ChildrenLoaded {
		return b.expand(ctx, idx, "")
	}
	for _, child := range u.Children {
		if err := b.recompute(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) recompute(ctx context.Context, idx int) error {
	u := b.tree.Unit(idx)
	node, err := b.e.content.GetNode(ctx, u.NodeID)
	if err != nil {
		return buildErr(u.NodeID, "load node", err)
	}
	nt, err := b.nodeType(ctx, node.TypeName)
	if err != nil {
		return buildErr(u.NodeID, "load node type", err)
	}

	before := liveTexts(&u.Slugs)
	u.Slugs = routing.CandidateSet{}
	if err := b.computeSlugs(ctx, idx, *node, nt); err != nil {
		return err
	}

	if !u.ChildrenLoaded {
		if !u.HasPendingChanges() {
			return nil
		}
		return b.expand(ctx, idx, "")
	}
	if maps.Equal(before, liveTexts(&u.Slugs)) {
		return nil
	}
	return b.refreshBelow(ctx, idx)
}

// liveTexts maps each locale a child could inherit from to its text.
func liveTexts(set *routing.CandidateSet) map[string]string {
	out := make(map[string]string, set.Len())
	for _, c := range set.All() {
		if c.State != routing.MarkedForDeletion {
			out[strings.ToLower(c.Locale)] = c.Text
		}
	}
	return out
}

func (b *builder) nodeType(ctx context.Context, name string) (*domain.NodeType, error) {
	if nt, ok := b.types[name]; ok {
		return nt, nil
	}
	nt, err := b.e.content.GetNodeType(ctx, name)
	if err != nil {
		return nil, err
	}
	b.types[name] = nt
	return nt, nil
}

// =============================================================================
// Slug Computation
// =============================================================================

// computeSlugs fills the unit's candidate set. Persisted records are the
// diff baseline; custom ones are carried over untouched.
func (b *builder) computeSlugs(ctx context.Context, idx int, node domain.Node, nt *domain.NodeType) error {
	u := b.tree.Unit(idx)

	records, err := b.e.slugs.ListSlugsByNode(ctx, node.ID)
	if err != nil {
		return buildErr(node.ID, "load slugs", err)
	}
	var baseline routing.CandidateSet
	for _, rec := range records {
		c := routing.CandidateFromRecord(rec, b.policy.DefaultLocale)
		baseline.Put(c)
		if c.IsCustom {
			u.Slugs.Put(c)
		}
	}

	if b.site.IsExcluded(node.TypeName) {
		for _, c := range baseline.All() {
			if routing.MarkDeleted(&c) {
				u.Slugs.Put(c)
			}
		}
		return nil
	}

	docs, err := b.e.content.ListDocuments(ctx, node.ID)
	if err != nil {
		return buildErr(node.ID, "load documents", err)
	}
	tpl := nt.EffectiveTemplate()

	for _, locale := range b.policy.Locales {
		if u.Slugs.HasCustom(locale) {
			continue
		}
		existing := baseline.Get(locale)

		doc := domain.PickDocument(docs, locale, b.draft)
		if doc == nil && (b.policy.IsDefault(locale) || b.policy.GenerateIfLocaleMissing) {
			doc = b.fallbackDocument(docs)
		}
		if doc == nil {
			if existing != nil {
				c := *existing
				if routing.MarkDeleted(&c) {
					u.Slugs.Put(c)
				}
			}
			continue
		}

		parentSlug, err := b.parentSlug(ctx, idx, node, locale)
		if err != nil {
			return buildErr(node.ID, "load parent slug", err)
		}
		raw, err := b.e.resolver.Resolve(tpl, templateValues(doc, node, locale, parentSlug))
		if err != nil {
			return buildErr(node.ID, "resolve template", err)
		}
		text := domain.Sanitize(raw, b.site.Rules)
		if text == "" {
			text = b.emptyFallback(node)
		}

		c := routing.Diff(existing, locale, text, b.policy.IsDefault(locale))
		if c.State == routing.Unchanged && c.Text != text {
			// A suffixed slug takes its base text back once the base is free.
			taken, err := b.e.taken(ctx, node.SiteID, node.ID, text, nil)
			if err != nil {
				return buildErr(node.ID, "load slugs", err)
			}
			if !taken {
				c.PreviousText = c.Text
				c.Text = text
				c.State = routing.NewOrUpdated
			}
		}
		u.Slugs.Put(c)
	}

	// Records of locales the site no longer serves.
	for _, c := range baseline.All() {
		if b.policy.HasLocale(c.Locale) {
			continue
		}
		if routing.MarkDeleted(&c) {
			u.Slugs.Put(c)
		}
	}
	return nil
}

// fallbackDocument is the default-locale document, else the first document
// in locale order.
func (b *builder) fallbackDocument(docs []domain.Document) *domain.Document {
	if doc := domain.PickDocument(docs, b.policy.DefaultLocale, b.draft); doc != nil {
		return doc
	}
	for _, locale := range b.policy.Locales {
		if doc := domain.PickDocument(docs, locale, b.draft); doc != nil {
			return doc
		}
	}
	if len(docs) > 0 {
		return domain.PickDocument(docs, docs[0].Locale, b.draft)
	}
	return nil
}

// emptyFallback names nodes whose template rendered nothing usable.
func (b *builder) emptyFallback(node domain.Node) string {
	if s := domain.Sanitize(node.Name, b.site.Rules); s != "" {
		return s
	}
	return domain.Sanitize(node.ID, b.site.Rules)
}

// parentSlug resolves the slug the unit at idx inherits for locale: from
// the in-tree parent when there is one, else from the parent's persisted
// records. Parent slugs about to be deleted are never inherited.
func (b *builder) parentSlug(ctx context.Context, idx int, node domain.Node, locale string) (string, error) {
	if p := b.tree.ParentOf(idx); p != nil {
		text, _ := p.Slugs.ResolvedSlug(locale, b.policy.DefaultLocale)
		return text, nil
	}
	if node.IsRoot() {
		return "", nil
	}

	records, ok := b.parentRecords[node.ParentID]
	if !ok {
		var err error
		records, err = b.e.slugs.ListSlugsByNode(ctx, node.ParentID)
		if err != nil {
			return "", err
		}
		b.parentRecords[node.ParentID] = records
	}
	rec, ok := routing.RankParentRecords(records, locale, b.policy.DefaultLocale)
	if !ok {
		return "", nil
	}
	return rec.Text, nil
}

func templateValues(doc *domain.Document, node domain.Node, locale, parentSlug string) map[string]string {
	values := make(map[string]string, len(doc.Fields)+4)
	for k, v := range doc.Fields {
		values[k] = v
	}
	values[ValueParentURL] = parentSlug
	values[ValueLocale] = locale
	values[ValueNodeAliasPath] = node.AliasPath
	values[ValueNodeName] = node.Name
	return values
}
