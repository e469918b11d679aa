package domain

import (
	"errors"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrSlugTextRequired   = errors.New("slug text is required")
	ErrSlugLocaleRequired = errors.New("slug locale is required")
	ErrSlugNotCanonical   = errors.New("slug text is not in canonical form")
)

// =============================================================================
// Slug Records
// =============================================================================

// SlugRecord is a persisted slug for one node in one locale.
type SlugRecord struct {
	ID        string    `json:"id"`
	NodeID    string    `json:"node_id"`
	SiteID    string    `json:"site_id"`
	Locale    string    `json:"locale"`
	Text      string    `json:"text"`
	IsCustom  bool      `json:"is_custom"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GenerateSlugID returns a new slug record GUID.
func GenerateSlugID() string {
	return uuid.New().String()
}

// SlugRedirect keeps a slug text a node used to answer to, so callers can
// issue permanent redirects after the slug changed.
type SlugRedirect struct {
	ID        string    `json:"id"`
	NodeID    string    `json:"node_id"`
	SiteID    string    `json:"site_id"`
	Locale    string    `json:"locale"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// =============================================================================
// Path Sanitizer
// =============================================================================

// NormalizationRules are the per-site options for canonical slugs.
type NormalizationRules struct {
	// Replacement substitutes illegal characters and whitespace. Default "-".
	Replacement string `json:"replacement,omitempty"`
	// KeepCase disables lowercasing.
	KeepCase bool `json:"keep_case,omitempty"`
	// KeepUnicode keeps non-ASCII letters instead of folding them to ASCII.
	KeepUnicode bool `json:"keep_unicode,omitempty"`
	// MaxLength truncates the slug when > 0.
	MaxLength int `json:"max_length,omitempty"`
}

func (r NormalizationRules) replacement() rune {
	if r.Replacement == "" {
		return '-'
	}
	c, _ := utf8.DecodeRuneInString(r.Replacement)
	return c
}

// Sanitize converts a rendered path template into a canonical slug.
//
// Each "/" separated segment is trimmed, case-folded, stripped of
// diacritics and illegal characters, and has separator runs collapsed.
// Empty segments are dropped, so slugs never start or end with "/".
//
//	Sanitize("/Home/About Us/", NormalizationRules{})     // "home/about-us"
//	Sanitize("Café  Déjà-Vu!", NormalizationRules{})      // "cafe-deja-vu"
//	Sanitize("home/team-(1)", NormalizationRules{})       // "home/team-(1)"
func Sanitize(raw string, rules NormalizationRules) string {
	s := strings.TrimSpace(strings.ReplaceAll(raw, `\`, "/"))
	if !rules.KeepUnicode {
		s = foldDiacritics(s)
	}
	if !rules.KeepCase {
		s = strings.ToLower(s)
	}

	segments := strings.Split(s, "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		clean := SanitizeSegment(seg, rules)
		if clean == "" || clean == "." || clean == ".." {
			continue
		}
		out = append(out, clean)
	}

	slug := strings.Join(out, "/")
	if rules.MaxLength > 0 && len(slug) > rules.MaxLength {
		slug = truncate(slug, rules.MaxLength, rules.replacement())
	}
	return slug
}

// SanitizeSegment cleans a single path segment. It does not fold case or
// diacritics; Sanitize does that once for the whole path.
func SanitizeSegment(seg string, rules NormalizationRules) string {
	rep := rules.replacement()
	var b strings.Builder
	b.Grow(len(seg))
	lastRep := true // suppresses a leading replacement
	for _, r := range strings.TrimSpace(seg) {
		if isSlugRune(r, rules.KeepUnicode) && r != rep {
			b.WriteRune(r)
			lastRep = false
			continue
		}
		if !lastRep {
			b.WriteRune(rep)
			lastRep = true
		}
	}
	return strings.TrimRight(b.String(), string(rep))
}

// IsCanonical reports whether text is already a sanitized slug.
func IsCanonical(text string, rules NormalizationRules) bool {
	return text != "" && Sanitize(text, rules) == text
}

// ValidateSlugRecord validates a slug record before it is persisted.
func ValidateSlugRecord(rec SlugRecord, rules NormalizationRules) error {
	if rec.NodeID == "" {
		return ErrNodeIDRequired
	}
	if rec.SiteID == "" {
		return ErrSiteIDRequired
	}
	if rec.Locale == "" {
		return ErrSlugLocaleRequired
	}
	if rec.Text == "" {
		return ErrSlugTextRequired
	}
	if !IsCanonical(rec.Text, rules) {
		return ErrSlugNotCanonical
	}
	return nil
}

func isSlugRune(r rune, keepUnicode bool) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_', r == '.', r == '(', r == ')', r == '~':
		return true
	case keepUnicode && r > unicode.MaxASCII:
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}
	return false
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

func truncate(slug string, max int, rep rune) string {
	cut := max
	for cut > 0 && !utf8.RuneStart(slug[cut]) {
		cut--
	}
	return strings.TrimRight(slug[:cut], "/"+string(rep))
}
