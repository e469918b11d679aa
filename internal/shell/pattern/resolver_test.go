package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Tag Templates
// =============================================================================

func TestResolve_Tags(t *testing.T) {
	r := NewResolver()
	values := map[string]string{"ParentUrl": "home", "Title": "About Us"}

	tests := []struct {
		name string
		tpl  string
		want string
	}{
		{"single field", "{Title}", "About Us"},
		{"parent and field", "{ParentUrl}/{Title}", "home/About Us"},
		{"literal text", "blog/{Title}.html", "blog/About Us.html"},
		{"case insensitive", "{parenturl}/{TITLE}", "home/About Us"},
		{"no tags", "static", "static"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.tpl, values)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_TagsUnknownField(t *testing.T) {
	r := NewResolver()
	_, err := r.Resolve("{ParentUrl}/{Missing}", map[string]string{"ParentUrl": "home"})
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestResolve_TagsUnclosed(t *testing.T) {
	r := NewResolver()
	_, err := r.Resolve("{Title", map[string]string{"Title": "x"})
	assert.Error(t, err)
}

// =============================================================================
// Program Templates
// =============================================================================

func TestResolve_Program(t *testing.T) {
	r := NewResolver()
	values := map[string]string{"ParentUrl": "", "Title": "News", "Category": ""}

	got, err := r.Resolve(`{{if .ParentUrl}}{{.ParentUrl}}/{{end}}{{lower .Title}}`, values)
	require.NoError(t, err)
	assert.Equal(t, "news", got)

	got, err = r.Resolve(`{{default "general" .Category}}/{{.Title}}`, values)
	require.NoError(t, err)
	assert.Equal(t, "general/News", got)
}

func TestResolve_ProgramUnknownField(t *testing.T) {
	r := NewResolver()
	_, err := r.Resolve(`{{.Nope}}`, map[string]string{"Title": "x"})
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestResolve_CachesParsedTemplates(t *testing.T) {
	r := NewResolver()
	_, err := r.Resolve("{Title}", map[string]string{"Title": "a"})
	require.NoError(t, err)
	got, err := r.Resolve("{Title}", map[string]string{"Title": "b"})
	require.NoError(t, err)
	assert.Equal(t, "b", got)
	assert.Len(t, r.tags, 1)
}
