package domain

import (
	"errors"
	"slices"
	"strings"
)

var (
	ErrSiteIDRequired      = errors.New("site id is required")
	ErrSiteNoLocales       = errors.New("site must have at least one locale")
	ErrSiteDefaultLocale   = errors.New("site default locale must be one of its locales")
	ErrSiteDuplicateLocale = errors.New("site locales must be unique")
	ErrSiteReplacement     = errors.New("replacement must be empty or one of - _ .")
)

// Site is the uniqueness boundary for slugs.
type Site struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	DefaultLocale string             `json:"default_locale"`
	Locales       []string           `json:"locales"`
	ExcludedTypes []string           `json:"excluded_types,omitempty"`
	Rules         NormalizationRules `json:"rules"`
}

// IsExcluded reports whether nodes of typeName are exempt from slug generation.
func (s *Site) IsExcluded(typeName string) bool {
	for _, t := range s.ExcludedTypes {
		if strings.EqualFold(t, typeName) {
			return true
		}
	}
	return false
}

// ValidateSite validates site configuration.
func ValidateSite(s Site) error {
	if s.ID == "" {
		return ErrSiteIDRequired
	}
	if len(s.Locales) == 0 {
		return ErrSiteNoLocales
	}
	seen := make(map[string]bool, len(s.Locales))
	for _, l := range s.Locales {
		key := strings.ToLower(l)
		if seen[key] {
			return ErrSiteDuplicateLocale
		}
		seen[key] = true
	}
	if !slices.ContainsFunc(s.Locales, func(l string) bool { return strings.EqualFold(l, s.DefaultLocale) }) {
		return ErrSiteDefaultLocale
	}
	switch s.Rules.Replacement {
	case "", "-", "_", ".":
	default:
		return ErrSiteReplacement
	}
	return nil
}
