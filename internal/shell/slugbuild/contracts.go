// Package slugbuild builds, checks and commits the slugs of a content subtree.
// This is part of the Imperative Shell - it loads the tree through the
// ContentTree and SlugStore contracts and applies the pure routing rules.
package slugbuild

import (
	"context"

	"github.com/artpar/dynroute/internal/core/domain"
)

// ContentTree is the read side of the content repository.
type ContentTree interface {
	GetSite(ctx context.Context, id string) (*domain.Site, error)
	GetNode(ctx context.Context, id string) (*domain.Node, error)
	ListChildren(ctx context.Context, parentID string) ([]domain.Node, error)
	ListDocuments(ctx context.Context, nodeID string) ([]domain.Document, error)
	GetNodeType(ctx context.Context, name string) (*domain.NodeType, error)
}

// TemplateResolver renders a path template against named values.
type TemplateResolver interface {
	Resolve(template string, values map[string]string) (string, error)
}

// SlugStore persists slug records. Errors follow the store package
// sentinels: store.ErrNotFound, store.ErrDuplicateSlug and
// store.ErrCustomSlug are recognised with errors.Is.
type SlugStore interface {
	ListSlugsByNode(ctx context.Context, nodeID string) ([]domain.SlugRecord, error)
	FindSlugsByText(ctx context.Context, siteID, text string) ([]domain.SlugRecord, error)
	CountSlugsBySite(ctx context.Context, siteID string) (int, error)
	InsertSlug(ctx context.Context, rec *domain.SlugRecord) error
	UpdateSlug(ctx context.Context, rec *domain.SlugRecord) error
	DeleteSlug(ctx context.Context, id string) error
}

// Injected template values. Document fields with the same name are shadowed.
const (
	ValueParentURL     = "ParentUrl"
	ValueLocale        = "Locale"
	ValueNodeAliasPath = "NodeAliasPath"
	ValueNodeName      = "NodeName"
)
