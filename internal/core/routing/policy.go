// Package routing contains the pure slug-building rules: build policies,
// slug candidates, the build tree arena, conflict suffixing and trigger scopes.
// This is part of the Functional Core - all functions are pure with no I/O.
package routing

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Conflict Mode
// =============================================================================

// ConflictMode selects how slug collisions are handled.
type ConflictMode string

const (
	// ConflictAbort fails the build on any collision; nothing is written.
	ConflictAbort ConflictMode = "abort"
	// ConflictAppendSuffix disambiguates collisions with a -(n) suffix.
	ConflictAppendSuffix ConflictMode = "append"
)

var ErrUnknownConflictMode = errors.New("unknown conflict mode")

// ParseConflictMode parses a configured conflict mode.
func ParseConflictMode(s string) (ConflictMode, error) {
	switch ConflictMode(strings.ToLower(strings.TrimSpace(s))) {
	case ConflictAbort, "":
		return ConflictAbort, nil
	case ConflictAppendSuffix, "suffix", "auto-suffix":
		return ConflictAppendSuffix, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownConflictMode, s)
}

// =============================================================================
// Build Policy
// =============================================================================

// BuildPolicy is the immutable configuration of one build.
type BuildPolicy struct {
	SiteID        string
	Locales       []string
	DefaultLocale string

	// BuildSiblings roots the build at the triggering node's parent.
	BuildSiblings bool
	// BuildDescendants forces recursion even when nothing changed.
	BuildDescendants bool
	// CheckingOnly computes and reports conflicts without persisting.
	CheckingOnly bool
	// GenerateIfLocaleMissing synthesizes slugs from a fallback document.
	GenerateIfLocaleMissing bool

	ConflictMode ConflictMode
}

var (
	ErrPolicySiteRequired  = errors.New("build policy requires a site")
	ErrPolicyNoLocales     = errors.New("build policy requires at least one locale")
	ErrPolicyDefaultLocale = errors.New("build policy default locale is not configured")
)

// Validate checks the policy invariants.
func (p BuildPolicy) Validate() error {
	if p.SiteID == "" {
		return ErrPolicySiteRequired
	}
	if len(p.Locales) == 0 {
		return ErrPolicyNoLocales
	}
	if !p.HasLocale(p.DefaultLocale) {
		return ErrPolicyDefaultLocale
	}
	return nil
}

// HasLocale reports whether locale is configured.
func (p BuildPolicy) HasLocale(locale string) bool {
	for _, l := range p.Locales {
		if strings.EqualFold(l, locale) {
			return true
		}
	}
	return false
}

// IsDefault reports whether locale is the policy default.
func (p BuildPolicy) IsDefault(locale string) bool {
	return strings.EqualFold(locale, p.DefaultLocale)
}
