package store

import (
	"context"

	"github.com/artpar/dynroute/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for the content tree and its slugs.
type Store interface {
	// Site operations
	CreateSite(ctx context.Context, site *domain.Site) error
	GetSite(ctx context.Context, id string) (*domain.Site, error)
	UpdateSite(ctx context.Context, site *domain.Site) error
	ListSites(ctx context.Context) ([]domain.Site, error)

	// Node type operations
	UpsertNodeType(ctx context.Context, nt *domain.NodeType) error
	GetNodeType(ctx context.Context, name string) (*domain.NodeType, error)
	ListNodeTypes(ctx context.Context) ([]domain.NodeType, error)

	// Node operations
	CreateNode(ctx context.Context, node *domain.Node) error
	GetNode(ctx context.Context, id string) (*domain.Node, error)
	UpdateNode(ctx context.Context, node *domain.Node) error
	DeleteNode(ctx context.Context, id string) error
	ListChildren(ctx context.Context, parentID string) ([]domain.Node, error)
	ListRootNodes(ctx context.Context, siteID string) ([]domain.Node, error)
	ListNodesByType(ctx context.Context, siteID string, typeNames []string) ([]domain.Node, error)

	// Document operations
	SaveDocument(ctx context.Context, doc *domain.Document) error
	ListDocuments(ctx context.Context, nodeID string) ([]domain.Document, error)
	DeleteDocument(ctx context.Context, nodeID, locale string, published bool) error

	// Slug operations
	GetSlug(ctx context.Context, id string) (*domain.SlugRecord, error)
	GetSlugByNodeLocale(ctx context.Context, nodeID, locale string) (*domain.SlugRecord, error)
	ListSlugsByNode(ctx context.Context, nodeID string) ([]domain.SlugRecord, error)
	FindSlugsByText(ctx context.Context, siteID, text string) ([]domain.SlugRecord, error)
	CountSlugsBySite(ctx context.Context, siteID string) (int, error)
	InsertSlug(ctx context.Context, rec *domain.SlugRecord) error
	UpdateSlug(ctx context.Context, rec *domain.SlugRecord) error
	DeleteSlug(ctx context.Context, id string) error
	PinSlug(ctx context.Context, rec *domain.SlugRecord) error
	UnpinSlug(ctx context.Context, nodeID, locale string) error

	// Redirect operations
	ListRedirectsByNode(ctx context.Context, nodeID string) ([]domain.SlugRedirect, error)
	FindRedirect(ctx context.Context, siteID, text string) (*domain.SlugRedirect, error)

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Close() error
}
