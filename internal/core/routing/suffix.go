package routing

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// =============================================================================
// Conflict Suffixes
// =============================================================================

var (
	// ErrSuffixExhausted is returned when no free suffix was found within the
	// attempt limit.
	ErrSuffixExhausted = errors.New("no unique slug suffix found")

	suffixRegex = regexp.MustCompile(`^(.*)-\((\d+)\)$`)
)

// SplitSuffix splits "base-(n)" into base and n. ok is false when text
// carries no suffix.
func SplitSuffix(text string) (base string, n int, ok bool) {
	m := suffixRegex.FindStringSubmatch(text)
	if m == nil || m[1] == "" {
		return text, 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return text, 0, false
	}
	return m[1], n, true
}

// WithSuffix appends the -(n) suffix to base.
func WithSuffix(base string, n int) string {
	return fmt.Sprintf("%s-(%d)", base, n)
}

// NextSuffix returns the next disambiguation of text. A trailing -(k) is
// replaced by -(k+1); otherwise -(1) is appended.
//
//	NextSuffix("home/team")     // "home/team-(1)"
//	NextSuffix("home/team-(2)") // "home/team-(3)"
func NextSuffix(text string) string {
	if base, n, ok := SplitSuffix(text); ok {
		return WithSuffix(base, n+1)
	}
	return WithSuffix(text, 1)
}

// MatchesBase reports whether existing is computed, or computed with a
// disambiguation suffix. A node that already won a suffixed slug keeps it
// while its template output is unchanged.
func MatchesBase(existing, computed string) bool {
	if existing == computed {
		return true
	}
	base, _, ok := SplitSuffix(existing)
	return ok && base == computed
}

// Disambiguate advances text with NextSuffix until taken reports it free.
// It gives up with ErrSuffixExhausted after limit attempts.
func Disambiguate(text string, limit int, taken func(candidate string) (bool, error)) (string, error) {
	if limit < 1 {
		limit = 1
	}
	candidate := text
	for i := 0; i < limit; i++ {
		candidate = NextSuffix(candidate)
		used, err := taken(candidate)
		if err != nil {
			return "", err
		}
		if !used {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %q after %d attempts", ErrSuffixExhausted, text, limit)
}
