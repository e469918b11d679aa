package routing

import (
	"cmp"
	"slices"
	"strings"

	"github.com/artpar/dynroute/internal/core/domain"
)

// =============================================================================
// Candidate Diffing
// =============================================================================

// Diff builds the candidate for a freshly computed slug text against the
// persisted baseline for the same locale (nil when none exists).
func Diff(baseline *SlugCandidate, locale, computed string, isDefault bool) SlugCandidate {
	c := SlugCandidate{
		Locale:          locale,
		Text:            computed,
		IsDefaultLocale: isDefault,
		State:           NewOrUpdated,
	}
	if baseline == nil {
		return c
	}
	c.ExistingID = baseline.ExistingID
	if MatchesBase(baseline.Text, computed) {
		c.Text = baseline.Text
		c.State = Unchanged
		return c
	}
	c.PreviousText = baseline.Text
	return c
}

// MarkDeleted turns a persisted non-custom candidate into a deletion.
// It returns false when there is nothing to delete.
func MarkDeleted(c *SlugCandidate) bool {
	if c == nil || c.IsCustom || c.ExistingID == "" {
		return false
	}
	c.State = MarkedForDeletion
	return true
}

// =============================================================================
// Parent Slug Ranking
// =============================================================================

// RankParentRecords picks the parent slug to inherit for locale from the
// parent's persisted records: exact locale first, then the default locale,
// then the lexically smallest locale.
func RankParentRecords(records []domain.SlugRecord, locale, defaultLocale string) (domain.SlugRecord, bool) {
	if len(records) == 0 {
		return domain.SlugRecord{}, false
	}
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b domain.SlugRecord) int {
		return compareParentLocales(a.Locale, b.Locale, locale, defaultLocale)
	})
	return sorted[0], true
}

// compareParentLocales orders two parent slug locales by how well they
// serve a child in locale.
func compareParentLocales(a, b, locale, defaultLocale string) int {
	rank := func(l string) int {
		switch {
		case strings.EqualFold(l, locale):
			return 0
		case strings.EqualFold(l, defaultLocale):
			return 1
		}
		return 2
	}
	if c := cmp.Compare(rank(a), rank(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}
