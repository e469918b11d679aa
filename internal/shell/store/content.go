package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/artpar/dynroute/internal/core/domain"
	"github.com/jmoiron/sqlx"
)

// =============================================================================
// Site Operations
// =============================================================================

type siteRow struct {
	ID            string `db:"id"`
	Name          string `db:"name"`
	DefaultLocale string `db:"default_locale"`
	Locales       string `db:"locales"`
	ExcludedTypes string `db:"excluded_types"`
	Rules         string `db:"rules"`
	CreatedAt     string `db:"created_at"`
	UpdatedAt     string `db:"updated_at"`
}

func siteToRow(op string, site *domain.Site) (map[string]any, error) {
	locales, err := json.Marshal(site.Locales)
	if err != nil {
		return nil, NewStoreError(op, "site", site.ID, "failed to serialize locales", ErrInvalidData)
	}
	excluded := site.ExcludedTypes
	if excluded == nil {
		excluded = []string{}
	}
	excludedJSON, err := json.Marshal(excluded)
	if err != nil {
		return nil, NewStoreError(op, "site", site.ID, "failed to serialize excluded types", ErrInvalidData)
	}
	rules, err := json.Marshal(site.Rules)
	if err != nil {
		return nil, NewStoreError(op, "site", site.ID, "failed to serialize rules", ErrInvalidData)
	}
	now := formatTime(time.Now())
	return map[string]any{
		"id":             site.ID,
		"name":           site.Name,
		"default_locale": site.DefaultLocale,
		"locales":        string(locales),
		"excluded_types": string(excludedJSON),
		"rules":          string(rules),
		"created_at":     now,
		"updated_at":     now,
	}, nil
}

func rowToSite(row *siteRow) (*domain.Site, error) {
	site := &domain.Site{
		ID:            row.ID,
		Name:          row.Name,
		DefaultLocale: row.DefaultLocale,
	}
	if err := json.Unmarshal([]byte(row.Locales), &site.Locales); err != nil {
		return nil, NewStoreError("rowToSite", "site", row.ID, "failed to parse locales", ErrInvalidData)
	}
	if err := json.Unmarshal([]byte(row.ExcludedTypes), &site.ExcludedTypes); err != nil {
		return nil, NewStoreError("rowToSite", "site", row.ID, "failed to parse excluded types", ErrInvalidData)
	}
	if err := json.Unmarshal([]byte(row.Rules), &site.Rules); err != nil {
		return nil, NewStoreError("rowToSite", "site", row.ID, "failed to parse rules", ErrInvalidData)
	}
	return site, nil
}

func (q queries) CreateSite(ctx context.Context, site *domain.Site) error {
	row, err := siteToRow("CreateSite", site)
	if err != nil {
		return err
	}
	_, err = q.exec.NamedExecContext(ctx, `
		INSERT INTO sites (id, name, default_locale, locales, excluded_types, rules, created_at, updated_at)
		VALUES (:id, :name, :default_locale, :locales, :excluded_types, :rules, :created_at, :updated_at)`, row)
	if err != nil {
		if isUnique(err, "sites.id") {
			return NewStoreError("CreateSite", "site", site.ID, "site already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateSite", "site", site.ID, err.Error(), err)
	}
	return nil
}

func (q queries) GetSite(ctx context.Context, id string) (*domain.Site, error) {
	var row siteRow
	if err := q.exec.GetContext(ctx, &row, `SELECT * FROM sites WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetSite", "site", id, "site not found", ErrNotFound)
		}
		return nil, NewStoreError("GetSite", "site", id, err.Error(), err)
	}
	return rowToSite(&row)
}

func (q queries) UpdateSite(ctx context.Context, site *domain.Site) error {
	row, err := siteToRow("UpdateSite", site)
	if err != nil {
		return err
	}
	res, err := q.exec.NamedExecContext(ctx, `
		UPDATE sites SET name = :name, default_locale = :default_locale, locales = :locales,
			excluded_types = :excluded_types, rules = :rules, updated_at = :updated_at
		WHERE id = :id`, row)
	if err != nil {
		return NewStoreError("UpdateSite", "site", site.ID, err.Error(), err)
	}
	if rowsAffected(res) == 0 {
		return NewStoreError("UpdateSite", "site", site.ID, "site not found", ErrNotFound)
	}
	return nil
}

func (q queries) ListSites(ctx context.Context) ([]domain.Site, error) {
	var rows []siteRow
	if err := q.exec.SelectContext(ctx, &rows, `SELECT * FROM sites ORDER BY id`); err != nil {
		return nil, NewStoreError("ListSites", "site", "", err.Error(), err)
	}
	sites := make([]domain.Site, 0, len(rows))
	for i := range rows {
		site, err := rowToSite(&rows[i])
		if err != nil {
			return nil, err
		}
		sites = append(sites, *site)
	}
	return sites, nil
}

// =============================================================================
// Node Type Operations
// =============================================================================

type nodeTypeRow struct {
	Name         string `db:"name"`
	PathTemplate string `db:"path_template"`
	IsContainer  bool   `db:"is_container"`
}

func (q queries) UpsertNodeType(ctx context.Context, nt *domain.NodeType) error {
	_, err := q.exec.ExecContext(ctx, `
		INSERT INTO node_types (name, path_template, is_container) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET path_template = excluded.path_template, is_container = excluded.is_container`,
		nt.Name, nt.PathTemplate, nt.IsContainer)
	if err != nil {
		return NewStoreError("UpsertNodeType", "node_type", nt.Name, err.Error(), err)
	}
	return nil
}

func (q queries) GetNodeType(ctx context.Context, name string) (*domain.NodeType, error) {
	var row nodeTypeRow
	if err := q.exec.GetContext(ctx, &row, `SELECT * FROM node_types WHERE name = ?`, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetNodeType", "node_type", name, "node type not found", ErrNotFound)
		}
		return nil, NewStoreError("GetNodeType", "node_type", name, err.Error(), err)
	}
	return &domain.NodeType{Name: row.Name, PathTemplate: row.PathTemplate, IsContainer: row.IsContainer}, nil
}

func (q queries) ListNodeTypes(ctx context.Context) ([]domain.NodeType, error) {
	var rows []nodeTypeRow
	if err := q.exec.SelectContext(ctx, &rows, `SELECT * FROM node_types ORDER BY name`); err != nil {
		return nil, NewStoreError("ListNodeTypes", "node_type", "", err.Error(), err)
	}
	out := make([]domain.NodeType, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.NodeType{Name: r.Name, PathTemplate: r.PathTemplate, IsContainer: r.IsContainer})
	}
	return out, nil
}

// =============================================================================
// Node Operations
// =============================================================================

type nodeRow struct {
	ID        string         `db:"id"`
	SiteID    string         `db:"site_id"`
	ParentID  sql.NullString `db:"parent_id"`
	TypeName  string         `db:"type_name"`
	Name      string         `db:"name"`
	AliasPath string         `db:"alias_path"`
	SortOrder int            `db:"sort_order"`
	CreatedAt string         `db:"created_at"`
	UpdatedAt string         `db:"updated_at"`
}

func nodeToRow(n *domain.Node) map[string]any {
	var parent any
	if n.ParentID != "" {
		parent = n.ParentID
	}
	return map[string]any{
		"id":         n.ID,
		"site_id":    n.SiteID,
		"parent_id":  parent,
		"type_name":  n.TypeName,
		"name":       n.Name,
		"alias_path": n.AliasPath,
		"sort_order": n.Order,
		"created_at": formatTime(n.CreatedAt),
		"updated_at": formatTime(n.UpdatedAt),
	}
}

func rowToNode(r *nodeRow) domain.Node {
	return domain.Node{
		ID:        r.ID,
		SiteID:    r.SiteID,
		ParentID:  r.ParentID.String,
		TypeName:  r.TypeName,
		Name:      r.Name,
		AliasPath: r.AliasPath,
		Order:     r.SortOrder,
		CreatedAt: parseTime(r.CreatedAt),
		UpdatedAt: parseTime(r.UpdatedAt),
	}
}

func rowsToNodes(rows []nodeRow) []domain.Node {
	out := make([]domain.Node, 0, len(rows))
	for i := range rows {
		out = append(out, rowToNode(&rows[i]))
	}
	return out
}

func (q queries) CreateNode(ctx context.Context, node *domain.Node) error {
	_, err := q.exec.NamedExecContext(ctx, `
		INSERT INTO nodes (id, site_id, parent_id, type_name, name, alias_path, sort_order, created_at, updated_at)
		VALUES (:id, :site_id, :parent_id, :type_name, :name, :alias_path, :sort_order, :created_at, :updated_at)`,
		nodeToRow(node))
	if err != nil {
		if isUnique(err, "nodes.id") {
			return NewStoreError("CreateNode", "node", node.ID, "node already exists", ErrDuplicateID)
		}
		if isForeignKey(err) {
			return NewStoreError("CreateNode", "node", node.ID, "site, parent or type does not exist", ErrForeignKey)
		}
		return NewStoreError("CreateNode", "node", node.ID, err.Error(), err)
	}
	return nil
}

func (q queries) GetNode(ctx context.Context, id string) (*domain.Node, error) {
	var row nodeRow
	if err := q.exec.GetContext(ctx, &row, `SELECT * FROM nodes WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetNode", "node", id, "node not found", ErrNotFound)
		}
		return nil, NewStoreError("GetNode", "node", id, err.Error(), err)
	}
	n := rowToNode(&row)
	return &n, nil
}

func (q queries) UpdateNode(ctx context.Context, node *domain.Node) error {
	node.UpdatedAt = time.Now()
	res, err := q.exec.NamedExecContext(ctx, `
		UPDATE nodes SET parent_id = :parent_id, type_name = :type_name, name = :name,
			alias_path = :alias_path, sort_order = :sort_order, updated_at = :updated_at
		WHERE id = :id`, nodeToRow(node))
	if err != nil {
		if isForeignKey(err) {
			return NewStoreError("UpdateNode", "node", node.ID, "parent or type does not exist", ErrForeignKey)
		}
		return NewStoreError("UpdateNode", "node", node.ID, err.Error(), err)
	}
	if rowsAffected(res) == 0 {
		return NewStoreError("UpdateNode", "node", node.ID, "node not found", ErrNotFound)
	}
	return nil
}

// DeleteNode removes a node with its subtree, documents and slugs.
func (q queries) DeleteNode(ctx context.Context, id string) error {
	res, err := q.exec.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id)
	if err != nil {
		return NewStoreError("DeleteNode", "node", id, err.Error(), err)
	}
	if rowsAffected(res) == 0 {
		return NewStoreError("DeleteNode", "node", id, "node not found", ErrNotFound)
	}
	return nil
}

func (q queries) ListChildren(ctx context.Context, parentID string) ([]domain.Node, error) {
	var rows []nodeRow
	err := q.exec.SelectContext(ctx, &rows,
		`SELECT * FROM nodes WHERE parent_id = ? ORDER BY sort_order, id`, parentID)
	if err != nil {
		return nil, NewStoreError("ListChildren", "node", parentID, err.Error(), err)
	}
	return rowsToNodes(rows), nil
}

func (q queries) ListRootNodes(ctx context.Context, siteID string) ([]domain.Node, error) {
	var rows []nodeRow
	err := q.exec.SelectContext(ctx, &rows,
		`SELECT * FROM nodes WHERE site_id = ? AND parent_id IS NULL ORDER BY sort_order, id`, siteID)
	if err != nil {
		return nil, NewStoreError("ListRootNodes", "node", siteID, err.Error(), err)
	}
	return rowsToNodes(rows), nil
}

// ListNodesByType returns the site's nodes of the given types, shallowest
// first so parents are rebuilt before their descendants.
func (q queries) ListNodesByType(ctx context.Context, siteID string, typeNames []string) ([]domain.Node, error) {
	if len(typeNames) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`
		SELECT * FROM nodes WHERE site_id = ? AND type_name IN (?)
		ORDER BY length(alias_path) - length(replace(alias_path, '/', '')), sort_order, id`,
		siteID, typeNames)
	if err != nil {
		return nil, NewStoreError("ListNodesByType", "node", siteID, err.Error(), err)
	}
	var rows []nodeRow
	if err := q.exec.SelectContext(ctx, &rows, q.exec.Rebind(query), args...); err != nil {
		return nil, NewStoreError("ListNodesByType", "node", siteID, err.Error(), err)
	}
	return rowsToNodes(rows), nil
}

// =============================================================================
// Document Operations
// =============================================================================

type documentRow struct {
	NodeID    string `db:"node_id"`
	Locale    string `db:"locale"`
	Published bool   `db:"published"`
	Fields    string `db:"fields"`
	UpdatedAt string `db:"updated_at"`
}

// SaveDocument inserts or replaces the document version for its node,
// locale and published state.
func (q queries) SaveDocument(ctx context.Context, doc *domain.Document) error {
	fields := doc.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return NewStoreError("SaveDocument", "document", doc.NodeID, "failed to serialize fields", ErrInvalidData)
	}
	doc.UpdatedAt = time.Now()
	_, err = q.exec.ExecContext(ctx, `
		INSERT INTO documents (node_id, locale, published, fields, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (node_id, locale, published) DO UPDATE SET fields = excluded.fields, updated_at = excluded.updated_at`,
		doc.NodeID, doc.Locale, doc.Published, string(fieldsJSON), formatTime(doc.UpdatedAt))
	if err != nil {
		if isForeignKey(err) {
			return NewStoreError("SaveDocument", "document", doc.NodeID, "node does not exist", ErrForeignKey)
		}
		return NewStoreError("SaveDocument", "document", doc.NodeID, err.Error(), err)
	}
	return nil
}

// ListDocuments returns every version of every locale of a node, ordered
// by locale with published versions first.
func (q queries) ListDocuments(ctx context.Context, nodeID string) ([]domain.Document, error) {
	var rows []documentRow
	err := q.exec.SelectContext(ctx, &rows,
		`SELECT * FROM documents WHERE node_id = ? ORDER BY locale, published DESC`, nodeID)
	if err != nil {
		return nil, NewStoreError("ListDocuments", "document", nodeID, err.Error(), err)
	}
	docs := make([]domain.Document, 0, len(rows))
	for _, r := range rows {
		d := domain.Document{NodeID: r.NodeID, Locale: r.Locale, Published: r.Published, UpdatedAt: parseTime(r.UpdatedAt)}
		if err := json.Unmarshal([]byte(r.Fields), &d.Fields); err != nil {
			return nil, NewStoreError("ListDocuments", "document", nodeID, "failed to parse fields", ErrInvalidData)
		}
		docs = append(docs, d)
	}
	return docs, nil
}

func (q queries) DeleteDocument(ctx context.Context, nodeID, locale string, published bool) error {
	res, err := q.exec.ExecContext(ctx,
		`DELETE FROM documents WHERE node_id = ? AND locale = ? AND published = ?`, nodeID, locale, published)
	if err != nil {
		return NewStoreError("DeleteDocument", "document", nodeID, err.Error(), err)
	}
	if rowsAffected(res) == 0 {
		return NewStoreError("DeleteDocument", "document", nodeID, "document not found", ErrNotFound)
	}
	return nil
}
