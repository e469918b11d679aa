package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSite(t *testing.T) {
	s := Site{ID: "s1", DefaultLocale: "en", Locales: []string{"en", "fr"}}
	assert.NoError(t, ValidateSite(s))

	assert.ErrorIs(t, ValidateSite(Site{}), ErrSiteIDRequired)
	assert.ErrorIs(t, ValidateSite(Site{ID: "s1"}), ErrSiteNoLocales)
	assert.ErrorIs(t, ValidateSite(Site{ID: "s1", DefaultLocale: "de", Locales: []string{"en"}}), ErrSiteDefaultLocale)
	assert.ErrorIs(t, ValidateSite(Site{ID: "s1", DefaultLocale: "en", Locales: []string{"en", "EN"}}), ErrSiteDuplicateLocale)

	s.Rules.Replacement = "+"
	assert.ErrorIs(t, ValidateSite(s), ErrSiteReplacement)
}

func TestSiteIsExcluded(t *testing.T) {
	s := Site{ExcludedTypes: []string{"Folder"}}
	assert.True(t, s.IsExcluded("folder"))
	assert.False(t, s.IsExcluded("page"))
}
