package slugbuild

import (
	"context"
	"errors"
	"maps"

	"github.com/artpar/dynroute/internal/core/domain"
	"github.com/artpar/dynroute/internal/core/routing"
	"github.com/artpar/dynroute/internal/shell/store"
)

// CommitStats counts the writes of one commit.
type CommitStats struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Deleted  int `json:"deleted"`
	// Skipped counts updates refused because the record was pinned
	// concurrently.
	Skipped int `json:"skipped"`
}

// Total returns the number of records written.
func (s CommitStats) Total() int {
	return s.Inserted + s.Updated + s.Deleted
}

// =============================================================================
// Commit
// =============================================================================

// Commit writes the pending candidates of the tree, top-down. Each unit is
// written at most once, so committing the same tree twice is a no-op.
// Children are committed when recurse is set or their parent wrote
// anything. A failure stops the walk before the failing unit's children.
func (e *Engine) Commit(ctx context.Context, tree *routing.Tree, recurse bool) (CommitStats, error) {
	var stats CommitStats
	if tree.Policy.CheckingOnly {
		return stats, ErrReadOnlyBuild
	}
	if tree.Len() == 0 {
		return stats, nil
	}
	err := e.commitUnit(ctx, tree, 0, recurse, &stats)
	return stats, err
}

func (e *Engine) commitUnit(ctx context.Context, tree *routing.Tree, idx int, recurse bool, stats *CommitStats) error {
	u := tree.Unit(idx)

	changed := false
	if !u.AlreadyCommitted {
		before, texts := stats.Total(), liveTexts(&u.Slugs)
		if err := e.commitCandidates(ctx, tree, u, stats); err != nil {
			return buildErr(u.NodeID, "commit", err)
		}
		u.AlreadyCommitted = true
		changed = stats.Total() > before

		if !maps.Equal(texts, liveTexts(&u.Slugs)) {
			if err := e.resettle(ctx, tree, idx); err != nil {
				return err
			}
		}
	}

	if !recurse && !changed {
		return nil
	}
	for _, child := range u.Children {
		if err := e.commitUnit(ctx, tree, child, recurse, stats); err != nil {
			return err
		}
	}
	return nil
}

// resettle recomputes the subtree under idx after a write-time retry
// renamed the unit, then resolves the recomputed children against what is
// already stored. The retry suffixes in every conflict mode, and so does
// this.
func (e *Engine) resettle(ctx context.Context, tree *routing.Tree, idx int) error {
	sfx := &suffixer{e: e, tree: tree, claims: routing.NewClaims(), limit: -1}
	if err := sfx.refreshBelow(ctx, idx); err != nil {
		return err
	}
	for _, child := range tree.Unit(idx).Children {
		if err := sfx.resolve(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

// commitCandidates applies all deletions of the unit before its upserts.
func (e *Engine) commitCandidates(ctx context.Context, tree *routing.Tree, u *routing.BuildUnit, stats *CommitStats) error {
	items := u.Slugs.All()

	for i := range items {
		c := &items[i]
		if c.State != routing.MarkedForDeletion {
			continue
		}
		err := e.slugs.DeleteSlug(ctx, c.ExistingID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err == nil {
			stats.Deleted++
		}
	}

	for i := range items {
		c := &items[i]
		if !c.IsPending() || c.State == routing.MarkedForDeletion {
			continue
		}
		if err := e.writeCandidate(ctx, tree, u, c, stats); err != nil {
			return err
		}
	}
	return nil
}

// writeCandidate upserts c. A uniqueness violation at write time means a
// concurrent build took the text; the candidate is re-suffixed against
// current storage and retried a bounded number of times.
func (e *Engine) writeCandidate(ctx context.Context, tree *routing.Tree, u *routing.BuildUnit, c *routing.SlugCandidate, stats *CommitStats) error {
	for attempt := 0; ; attempt++ {
		rec := &domain.SlugRecord{
			ID:     c.ExistingID,
			NodeID: u.NodeID,
			SiteID: u.SiteID,
			Locale: c.Locale,
			Text:   c.Text,
		}

		var err error
		if c.ExistingID != "" {
			err = e.slugs.UpdateSlug(ctx, rec)
		} else {
			err = e.slugs.InsertSlug(ctx, rec)
		}

		switch {
		case err == nil:
			if c.ExistingID == "" {
				c.ExistingID = rec.ID
				stats.Inserted++
			} else {
				stats.Updated++
			}
			return nil

		case store.IsCustomSlug(err):
			e.logger.Warn("slug pinned during build, keeping custom slug",
				"node_id", u.NodeID,
				"locale", c.Locale,
			)
			c.IsCustom = true
			c.State = routing.Unchanged
			stats.Skipped++
			return nil

		case errors.Is(err, store.ErrNotFound) && c.ExistingID != "":
			// Deleted underneath us; write it as a new record.
			c.ExistingID = ""

		case errors.Is(err, store.ErrDuplicateSlug):
			if attempt >= e.config.WriteRetryLimit {
				return err
			}
			limit, lerr := e.suffixLimit(ctx, tree)
			if lerr != nil {
				return lerr
			}
			text, derr := routing.Disambiguate(c.Text, limit, func(candidate string) (bool, error) {
				return e.taken(ctx, u.SiteID, u.NodeID, candidate, nil)
			})
			if derr != nil {
				return derr
			}
			e.logger.Info("slug taken at write time, retrying with suffix",
				"node_id", u.NodeID,
				"locale", c.Locale,
				"slug", c.Text,
				"resolved", text,
				"attempt", attempt+1,
			)
			c.Text = text

		default:
			return err
		}
	}
}
