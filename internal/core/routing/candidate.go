package routing

import (
	"strings"

	"github.com/artpar/dynroute/internal/core/domain"
)

// =============================================================================
// Slug State
// =============================================================================

// SlugState is the pending action for a candidate.
type SlugState int

const (
	Unchanged SlugState = iota
	NewOrUpdated
	MarkedForDeletion
)

func (s SlugState) String() string {
	switch s {
	case Unchanged:
		return "unchanged"
	case NewOrUpdated:
		return "new_or_updated"
	case MarkedForDeletion:
		return "marked_for_deletion"
	}
	return "unknown"
}

// =============================================================================
// Slug Candidate
// =============================================================================

// SlugCandidate is one locale's slug for one node during a build.
type SlugCandidate struct {
	Locale          string
	Text            string
	IsCustom        bool
	IsDefaultLocale bool
	// ExistingID is the persisted record id, empty when none exists.
	ExistingID string
	// PreviousText is set when an update replaces a persisted text.
	PreviousText string
	State        SlugState
}

// IsPending reports whether committing this candidate would write anything.
func (c *SlugCandidate) IsPending() bool {
	return c.State != Unchanged || c.ExistingID == ""
}

// CandidateFromRecord seeds a candidate from a persisted record.
func CandidateFromRecord(rec domain.SlugRecord, defaultLocale string) SlugCandidate {
	return SlugCandidate{
		Locale:          rec.Locale,
		Text:            rec.Text,
		IsCustom:        rec.IsCustom,
		IsDefaultLocale: strings.EqualFold(rec.Locale, defaultLocale),
		ExistingID:      rec.ID,
		State:           Unchanged,
	}
}

// =============================================================================
// Candidate Set
// =============================================================================

// CandidateSet holds at most one candidate per locale, in insertion order.
// Locale keys compare case-insensitively.
type CandidateSet struct {
	items []SlugCandidate
}

// Len returns the number of candidates.
func (s *CandidateSet) Len() int { return len(s.items) }

// All returns the candidates in insertion order. The slice is shared.
func (s *CandidateSet) All() []SlugCandidate { return s.items }

// Get returns a pointer to the candidate for locale, or nil.
func (s *CandidateSet) Get(locale string) *SlugCandidate {
	for i := range s.items {
		if strings.EqualFold(s.items[i].Locale, locale) {
			return &s.items[i]
		}
	}
	return nil
}

// Put inserts c or replaces the candidate with the same locale, keeping its
// original position.
func (s *CandidateSet) Put(c SlugCandidate) {
	if existing := s.Get(c.Locale); existing != nil {
		*existing = c
		return
	}
	s.items = append(s.items, c)
}

// HasCustom reports whether locale is pinned by a custom slug.
func (s *CandidateSet) HasCustom(locale string) bool {
	c := s.Get(locale)
	return c != nil && c.IsCustom
}

// Slug returns the slug text for locale: the exact locale match, else the
// default-locale candidate, else the first candidate. ok is false only when
// the set is empty.
func (s *CandidateSet) Slug(locale string) (string, bool) {
	var def, first *SlugCandidate
	for i := range s.items {
		c := &s.items[i]
		if strings.EqualFold(c.Locale, locale) {
			return c.Text, true
		}
		if def == nil && c.IsDefaultLocale {
			def = c
		}
		if first == nil {
			first = c
		}
	}
	if def != nil {
		return def.Text, true
	}
	if first != nil {
		return first.Text, true
	}
	return "", false
}

// HasPendingChanges reports whether any candidate needs to be written.
func (s *CandidateSet) HasPendingChanges() bool {
	for i := range s.items {
		if s.items[i].IsPending() {
			return true
		}
	}
	return false
}

// ResolvedSlug returns the text a child inherits for locale once the set
// is committed. Candidates marked for deletion are skipped; the rest are
// ranked like persisted parent records (see RankParentRecords).
func (s *CandidateSet) ResolvedSlug(locale, defaultLocale string) (string, bool) {
	best := -1
	for i := range s.items {
		if s.items[i].State == MarkedForDeletion {
			continue
		}
		if best < 0 || compareParentLocales(s.items[i].Locale, s.items[best].Locale, locale, defaultLocale) < 0 {
			best = i
		}
	}
	if best < 0 {
		return "", false
	}
	return s.items[best].Text, true
}
