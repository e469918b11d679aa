// Package domain contains the core domain types and validation logic.
// This is part of the Functional Core - all functions are pure with no I/O.
package domain

import (
	"errors"
	"regexp"
	"strings"
)

// =============================================================================
// Errors
// =============================================================================

var (
	ErrTypeNameRequired     = errors.New("type name is required")
	ErrTypeNameInvalidChars = errors.New("type name can only contain letters, digits, dots and underscores")
	ErrTemplateUnbalanced   = errors.New("path template has unbalanced braces")
)

// FallbackPathTemplate is used for node types with no path template, so
// every node resolves to its alias path.
const FallbackPathTemplate = "{NodeAliasPath}"

var (
	typeNameRegex   = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)
	parentCallRegex = regexp.MustCompile(`(?i)ParentUrl\(\)`)
)

// =============================================================================
// Node Type
// =============================================================================

// NodeType describes a class of content nodes and how their slugs are derived.
type NodeType struct {
	Name         string `json:"name"`
	PathTemplate string `json:"path_template"`
	IsContainer  bool   `json:"is_container"`
}

// EffectiveTemplate returns the template used to render slugs for this type.
// Legacy "ParentUrl()" calls are rewritten to the plain ParentUrl value.
func (t NodeType) EffectiveTemplate() string {
	tpl := strings.TrimSpace(t.PathTemplate)
	if tpl == "" {
		return FallbackPathTemplate
	}
	return parentCallRegex.ReplaceAllString(tpl, "ParentUrl")
}

// ReferencesParent reports whether the type's template depends on the
// parent slug.
func (t NodeType) ReferencesParent() bool {
	return strings.Contains(strings.ToLower(t.EffectiveTemplate()), "parenturl")
}

// ValidateNodeType validates a node type definition.
func ValidateNodeType(t NodeType) error {
	if t.Name == "" {
		return ErrTypeNameRequired
	}
	if !typeNameRegex.MatchString(t.Name) {
		return ErrTypeNameInvalidChars
	}
	if strings.Count(t.PathTemplate, "{") != strings.Count(t.PathTemplate, "}") {
		return ErrTemplateUnbalanced
	}
	return nil
}
