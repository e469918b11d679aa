package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Node Errors
// =============================================================================

var (
	ErrNodeIDRequired   = errors.New("node id is required")
	ErrNodeSiteRequired = errors.New("node site is required")
	ErrNodeTypeRequired = errors.New("node type is required")
	ErrNodeAliasInvalid = errors.New("node alias path must start with /")
	ErrNodeSelfParent   = errors.New("node cannot be its own parent")

	ErrDocumentLocaleRequired = errors.New("document locale is required")
)

// =============================================================================
// Node
// =============================================================================

// Node is one position in a site's content tree. Nodes carry structure only;
// the localized content lives in Documents.
type Node struct {
	ID        string    `json:"id"`
	SiteID    string    `json:"site_id"`
	ParentID  string    `json:"parent_id,omitempty"`
	TypeName  string    `json:"type_name"`
	Name      string    `json:"name"`
	AliasPath string    `json:"alias_path"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GenerateNodeID generates a new node ID with "node_" prefix.
func GenerateNodeID() string {
	return "node_" + uuid.New().String()[:8]
}

// IsRoot reports whether the node has no parent.
func (n *Node) IsRoot() bool {
	return n.ParentID == ""
}

// ValidateNode checks the structural fields of a node.
func ValidateNode(n Node) error {
	if n.ID == "" {
		return ErrNodeIDRequired
	}
	if n.SiteID == "" {
		return ErrNodeSiteRequired
	}
	if n.TypeName == "" {
		return ErrNodeTypeRequired
	}
	if n.AliasPath != "" && !strings.HasPrefix(n.AliasPath, "/") {
		return ErrNodeAliasInvalid
	}
	if n.ParentID == n.ID {
		return ErrNodeSelfParent
	}
	return nil
}

// ChildAliasPath joins a parent alias path and a child name.
//
//	ChildAliasPath("/Home", "About Us") // "/Home/About Us"
//	ChildAliasPath("", "Home")          // "/Home"
func ChildAliasPath(parentAlias, name string) string {
	return strings.TrimSuffix(parentAlias, "/") + "/" + strings.Trim(name, "/")
}

// =============================================================================
// Document
// =============================================================================

// Document is one locale variant of a node. A node may hold a published
// version and a newer draft for the same locale.
type Document struct {
	NodeID    string            `json:"node_id"`
	Locale    string            `json:"locale"`
	Published bool              `json:"published"`
	Fields    map[string]string `json:"fields"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Field returns a document field with a case-insensitive fallback.
func (d *Document) Field(name string) (string, bool) {
	if v, ok := d.Fields[name]; ok {
		return v, true
	}
	for k, v := range d.Fields {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// PickDocument selects the version of the document for locale out of docs.
// Drafts win over published versions only when draft is true.
func PickDocument(docs []Document, locale string, draft bool) *Document {
	var published, latest *Document
	for i := range docs {
		d := &docs[i]
		if !strings.EqualFold(d.Locale, locale) {
			continue
		}
		if d.Published && published == nil {
			published = d
		}
		if !d.Published && latest == nil {
			latest = d
		}
	}
	if draft && latest != nil {
		return latest
	}
	return published
}

// ValidateDocument checks that a document is addressable.
func ValidateDocument(d Document) error {
	if d.NodeID == "" {
		return ErrNodeIDRequired
	}
	if d.Locale == "" {
		return ErrDocumentLocaleRequired
	}
	return nil
}
