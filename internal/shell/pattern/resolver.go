// Package pattern evaluates node type path templates.
//
// Two syntaxes are accepted. The common one is "{ParentUrl}/{Title}": each
// {Name} tag is replaced by the named value. Templates containing "{{" are
// Go text/template programs evaluated against the same values, for path
// rules that need conditionals or string helpers.
package pattern

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/template"

	"github.com/valyala/fasttemplate"
)

// ErrUnknownField is returned when a template names a value that is neither
// a document field nor an injected value.
var ErrUnknownField = errors.New("unknown template field")

// Resolver renders path templates. Parsed templates are cached by source
// text. A Resolver is safe for concurrent use.
type Resolver struct {
	mu    sync.RWMutex
	tags  map[string]*fasttemplate.Template
	progs map[string]*template.Template
}

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{
		tags:  make(map[string]*fasttemplate.Template),
		progs: make(map[string]*template.Template),
	}
}

// Resolve renders tpl with values. Value names match case-insensitively
// when no exact name exists.
func (r *Resolver) Resolve(tpl string, values map[string]string) (string, error) {
	if strings.Contains(tpl, "{{") {
		return r.resolveProgram(tpl, values)
	}
	return r.resolveTags(tpl, values)
}

func (r *Resolver) resolveTags(tpl string, values map[string]string) (string, error) {
	t, err := r.tagTemplate(tpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	_, err = t.ExecuteFunc(&buf, func(w io.Writer, tag string) (int, error) {
		v, ok := lookup(values, strings.TrimSpace(tag))
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrUnknownField, tag)
		}
		return w.Write([]byte(v))
	})
	if err != nil {
		return "", fmt.Errorf("render path template %q: %w", tpl, err)
	}
	return buf.String(), nil
}

func (r *Resolver) tagTemplate(tpl string) (*fasttemplate.Template, error) {
	r.mu.RLock()
	t, ok := r.tags[tpl]
	r.mu.RUnlock()
	if ok {
		return t, nil
	}
	t, err := fasttemplate.NewTemplate(tpl, "{", "}")
	if err != nil {
		return nil, fmt.Errorf("parse path template %q: %w", tpl, err)
	}
	r.mu.Lock()
	r.tags[tpl] = t
	r.mu.Unlock()
	return t, nil
}

func (r *Resolver) resolveProgram(tpl string, values map[string]string) (string, error) {
	prog, err := r.program(tpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := prog.Execute(&buf, values); err != nil {
		if strings.Contains(err.Error(), "map has no entry for key") {
			return "", fmt.Errorf("render path template %q: %w: %v", tpl, ErrUnknownField, err)
		}
		return "", fmt.Errorf("render path template %q: %w", tpl, err)
	}
	return buf.String(), nil
}

func (r *Resolver) program(tpl string) (*template.Template, error) {
	r.mu.RLock()
	prog, ok := r.progs[tpl]
	r.mu.RUnlock()
	if ok {
		return prog, nil
	}
	prog, err := template.New("path").Funcs(funcs).Option("missingkey=error").Parse(tpl)
	if err != nil {
		return nil, fmt.Errorf("parse path template %q: %w", tpl, err)
	}
	r.mu.Lock()
	r.progs[tpl] = prog
	r.mu.Unlock()
	return prog, nil
}

var funcs = template.FuncMap{
	"lower":   strings.ToLower,
	"upper":   strings.ToUpper,
	"trim":    strings.TrimSpace,
	"replace": strings.ReplaceAll,
	"default": func(fallback, v string) string {
		if v == "" {
			return fallback
		}
		return v
	},
}

func lookup(values map[string]string, name string) (string, bool) {
	if v, ok := values[name]; ok {
		return v, true
	}
	for k, v := range values {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}
