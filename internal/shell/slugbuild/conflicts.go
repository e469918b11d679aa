package slugbuild

import (
	"context"
	"fmt"

	"github.com/artpar/dynroute/internal/core/routing"
)

// =============================================================================
// Conflict Detection
// =============================================================================

// FindConflicts reports every pending candidate of the tree whose text is
// already used on the site by another node, or claimed by another pending
// unit of the same tree. Units are checked depth-first.
func (e *Engine) FindConflicts(ctx context.Context, tree *routing.Tree) ([]routing.ConflictReport, error) {
	var reports []routing.ConflictReport
	claims := routing.NewClaims()

	err := tree.Walk(func(_ int, u *routing.BuildUnit) error {
		items := u.Slugs.All()
		for i := range items {
			c := &items[i]
			if c.State != routing.NewOrUpdated {
				continue
			}
			report, err := e.conflictFor(ctx, u, c, claims)
			if err != nil {
				return buildErr(u.NodeID, "find conflicts", err)
			}
			if report != nil {
				reports = append(reports, *report)
			}
			claims.Claim(c.Text, u.NodeID, c.Locale)
		}
		return nil
	})
	return reports, err
}

func (e *Engine) conflictFor(ctx context.Context, u *routing.BuildUnit, c *routing.SlugCandidate, claims *routing.Claims) (*routing.ConflictReport, error) {
	report := routing.ConflictReport{SiteID: u.SiteID, Text: c.Text, NodeID: u.NodeID, Locale: c.Locale}

	if node, locale, ok := claims.Owner(c.Text, u.NodeID); ok {
		report.ConflictingNodeID = node
		report.ConflictingLocale = locale
		report.InTree = true
		return &report, nil
	}

	found, err := e.slugs.FindSlugsByText(ctx, u.SiteID, c.Text)
	if err != nil {
		return nil, err
	}
	for _, rec := range found {
		if rec.NodeID == u.NodeID {
			continue
		}
		report.ConflictingNodeID = rec.NodeID
		report.ConflictingLocale = rec.Locale
		return &report, nil
	}
	return nil, nil
}

// =============================================================================
// Conflict Resolution
// =============================================================================

// ResolveConflicts applies mode to the tree. Under ConflictAbort any
// conflict yields a FatalConflictError and the tree is left untouched.
// Under ConflictAppendSuffix each conflicting candidate is renamed with the
// next free -(n) suffix and the descendants of renamed units are
// recomputed from the new text.
func (e *Engine) ResolveConflicts(ctx context.Context, tree *routing.Tree, mode routing.ConflictMode) error {
	if mode != routing.ConflictAppendSuffix {
		reports, err := e.FindConflicts(ctx, tree)
		if err != nil {
			return err
		}
		if len(reports) > 0 {
			return &FatalConflictError{Conflicts: reports}
		}
		return nil
	}

	sfx := &suffixer{e: e, tree: tree, claims: routing.NewClaims(), limit: -1}
	if tree.Len() == 0 {
		return nil
	}
	return sfx.resolve(ctx, 0)
}

// suffixer renames conflicting candidates top-down. A unit is resolved
// before its children, and children derived from a renamed text are
// recomputed first, so every child sees its parent's final slug.
type suffixer struct {
	e      *Engine
	tree   *routing.Tree
	b      *builder
	claims *routing.Claims
	limit  int
}

func (s *suffixer) resolve(ctx context.Context, idx int) error {
	u := s.tree.Unit(idx)
	renamed := false

	items := u.Slugs.All()
	for i := range items {
		c := &items[i]
		if c.State != routing.NewOrUpdated {
			continue
		}
		report, err := s.e.conflictFor(ctx, u, c, s.claims)
		if err != nil {
			return buildErr(u.NodeID, "resolve conflicts", err)
		}
		if report != nil {
			if s.limit < 0 {
				if s.limit, err = s.e.suffixLimit(ctx, s.tree); err != nil {
					return buildErr(u.NodeID, "resolve conflicts", err)
				}
			}
			text, err := routing.Disambiguate(c.Text, s.limit, func(candidate string) (bool, error) {
				return s.e.taken(ctx, u.SiteID, u.NodeID, candidate, s.claims)
			})
			if err != nil {
				return buildErr(u.NodeID, "resolve conflicts", err)
			}
			s.e.logger.Info("slug renamed to resolve conflict",
				"node_id", u.NodeID,
				"locale", c.Locale,
				"slug", report.Text,
				"conflicting_node_id", report.ConflictingNodeID,
				"resolved", text,
			)
			c.Text = text
			renamed = true
			if c.ExistingID != "" && c.Text == c.PreviousText {
				c.State = routing.Unchanged
				c.PreviousText = ""
			}
		}
		s.claims.Claim(c.Text, u.NodeID, c.Locale)
	}

	if renamed {
		if err := s.refreshBelow(ctx, idx); err != nil {
			return err
		}
	}
	for _, child := range u.Children {
		if err := s.resolve(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

func (s *suffixer) refreshBelow(ctx context.Context, idx int) error {
	if s.b == nil {
		b, err := s.e.newBuilder(ctx, s.tree)
		if err != nil {
			return buildErr(s.tree.Unit(idx).NodeID, "load site", err)
		}
		s.b = b
	}
	return s.b.refreshBelow(ctx, idx)
}

// suffixLimit bounds the suffix search by the number of texts that could
// possibly be taken.
func (e *Engine) suffixLimit(ctx context.Context, tree *routing.Tree) (int, error) {
	n, err := e.slugs.CountSlugsBySite(ctx, tree.Policy.SiteID)
	if err != nil {
		return 0, fmt.Errorf("count slugs: %w", err)
	}
	return n + tree.Len()*len(tree.Policy.Locales) + 2, nil
}

// taken reports whether text is used by a node other than nodeID, in
// storage or among the claims of the current build.
func (e *Engine) taken(ctx context.Context, siteID, nodeID, text string, claims *routing.Claims) (bool, error) {
	if claims != nil {
		if _, _, ok := claims.Owner(text, nodeID); ok {
			return true, nil
		}
	}
	found, err := e.slugs.FindSlugsByText(ctx, siteID, text)
	if err != nil {
		return false, err
	}
	for _, rec := range found {
		if rec.NodeID != nodeID {
			return true, nil
		}
	}
	return false, nil
}
