// Package seed imports a content tree described in YAML into the store.
//
// A seed file names sites, node types and a nested node tree:
//
//	sites:
//	  - id: corp
//	    default_locale: en
//	    locales: [en, fr]
//	types:
//	  - name: page
//	    path_template: "{ParentUrl}/{Title}"
//	    container: true
//	nodes:
//	  - id: home
//	    site: corp
//	    type: page
//	    name: Home
//	    documents:
//	      - locale: en
//	        fields: {Title: Home}
//	    children:
//	      - name: About
//	        type: page
//
// Existing sites, types and nodes with the same id are updated in place.
// Slugs are not written; run a reconcile afterwards.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/artpar/dynroute/internal/core/domain"
	"github.com/artpar/dynroute/internal/shell/store"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// File Format
// =============================================================================

// File is the root of a seed document.
type File struct {
	Sites []Site     `yaml:"sites"`
	Types []NodeType `yaml:"types"`
	Nodes []Node     `yaml:"nodes"`
}

// Site is a site definition.
type Site struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	DefaultLocale string   `yaml:"default_locale"`
	Locales       []string `yaml:"locales"`
	ExcludedTypes []string `yaml:"excluded_types"`
	Rules         Rules    `yaml:"rules"`
}

// Rules mirrors domain.NormalizationRules.
type Rules struct {
	Replacement string `yaml:"replacement"`
	KeepCase    bool   `yaml:"keep_case"`
	KeepUnicode bool   `yaml:"keep_unicode"`
	MaxLength   int    `yaml:"max_length"`
}

// NodeType is a node type definition.
type NodeType struct {
	Name         string `yaml:"name"`
	PathTemplate string `yaml:"path_template"`
	Container    bool   `yaml:"container"`
}

// Node is a node with its documents and children. Children inherit the
// site of their parent.
type Node struct {
	ID        string     `yaml:"id"`
	Site      string     `yaml:"site"`
	Type      string     `yaml:"type"`
	Name      string     `yaml:"name"`
	AliasPath string     `yaml:"alias_path"`
	Documents []Document `yaml:"documents"`
	Children  []Node     `yaml:"children"`
}

// Document is one locale variant of a node. Published defaults to true.
type Document struct {
	Locale    string            `yaml:"locale"`
	Published *bool             `yaml:"published"`
	Fields    map[string]string `yaml:"fields"`
}

// =============================================================================
// Parsing
// =============================================================================

// ErrEmptySeed is returned when a seed file defines nothing.
var ErrEmptySeed = errors.New("seed file defines no sites, types or nodes")

// Parse decodes a seed document. Unknown keys are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptySeed
		}
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}
	if len(f.Sites) == 0 && len(f.Types) == 0 && len(f.Nodes) == 0 {
		return nil, ErrEmptySeed
	}
	return &f, nil
}

// ParseFile reads and decodes a seed file.
func ParseFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer fh.Close()
	return Parse(fh)
}

// =============================================================================
// Import
// =============================================================================

// Report counts what an import wrote.
type Report struct {
	Sites     int      `json:"sites"`
	Types     int      `json:"types"`
	Nodes     int      `json:"nodes"`
	Documents int      `json:"documents"`
	SiteIDs   []string `json:"site_ids"`
}

// Import writes f into s inside a single transaction.
func Import(ctx context.Context, s store.Store, f *File) (*Report, error) {
	report := &Report{}
	err := s.WithTx(ctx, func(tx store.Store) error {
		*report = Report{}
		touched := make(map[string]bool)

		for _, in := range f.Sites {
			site := in.toDomain()
			if err := domain.ValidateSite(site); err != nil {
				return fmt.Errorf("site %q: %w", in.ID, err)
			}
			if err := upsertSite(ctx, tx, &site); err != nil {
				return err
			}
			report.Sites++
			if !touched[site.ID] {
				touched[site.ID] = true
				report.SiteIDs = append(report.SiteIDs, site.ID)
			}
		}

		for _, in := range f.Types {
			nt := domain.NodeType{Name: in.Name, PathTemplate: in.PathTemplate, IsContainer: in.Container}
			if err := domain.ValidateNodeType(nt); err != nil {
				return fmt.Errorf("type %q: %w", in.Name, err)
			}
			if err := tx.UpsertNodeType(ctx, &nt); err != nil {
				return err
			}
			report.Types++
		}

		for i, in := range f.Nodes {
			site := in.Site
			if site == "" {
				return fmt.Errorf("root node %q has no site", in.label())
			}
			if err := importNode(ctx, tx, in, site, nil, i, report); err != nil {
				return err
			}
			if !touched[site] {
				touched[site] = true
				report.SiteIDs = append(report.SiteIDs, site)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func importNode(ctx context.Context, tx store.Store, in Node, siteID string, parent *domain.Node, order int, report *Report) error {
	if in.Site != "" && in.Site != siteID {
		return fmt.Errorf("node %q: site %q differs from its parent's site %q", in.label(), in.Site, siteID)
	}

	node := domain.Node{
		ID:        in.ID,
		SiteID:    siteID,
		TypeName:  in.Type,
		Name:      in.Name,
		AliasPath: in.AliasPath,
		Order:     order,
	}
	if node.ID == "" {
		node.ID = domain.GenerateNodeID()
	}
	parentAlias := ""
	if parent != nil {
		node.ParentID = parent.ID
		parentAlias = parent.AliasPath
	}
	if node.AliasPath == "" {
		node.AliasPath = domain.ChildAliasPath(parentAlias, node.Name)
	}
	if err := domain.ValidateNode(node); err != nil {
		return fmt.Errorf("node %q: %w", in.label(), err)
	}

	if err := tx.CreateNode(ctx, &node); err != nil {
		if !store.IsDuplicateID(err) {
			return err
		}
		if err := tx.UpdateNode(ctx, &node); err != nil {
			return err
		}
	}
	report.Nodes++

	for _, d := range in.Documents {
		doc := domain.Document{
			NodeID:    node.ID,
			Locale:    d.Locale,
			Published: d.Published == nil || *d.Published,
			Fields:    d.Fields,
		}
		if doc.Fields == nil {
			doc.Fields = map[string]string{}
		}
		if err := domain.ValidateDocument(doc); err != nil {
			return fmt.Errorf("node %q document: %w", in.label(), err)
		}
		if err := tx.SaveDocument(ctx, &doc); err != nil {
			return err
		}
		report.Documents++
	}

	for i, child := range in.Children {
		if err := importNode(ctx, tx, child, siteID, &node, i, report); err != nil {
			return err
		}
	}
	return nil
}

func upsertSite(ctx context.Context, tx store.Store, site *domain.Site) error {
	err := tx.CreateSite(ctx, site)
	if store.IsDuplicateID(err) {
		return tx.UpdateSite(ctx, site)
	}
	return err
}

func (s Site) toDomain() domain.Site {
	return domain.Site{
		ID:            s.ID,
		Name:          s.Name,
		DefaultLocale: s.DefaultLocale,
		Locales:       s.Locales,
		ExcludedTypes: s.ExcludedTypes,
		Rules: domain.NormalizationRules{
			Replacement: s.Rules.Replacement,
			KeepCase:    s.Rules.KeepCase,
			KeepUnicode: s.Rules.KeepUnicode,
			MaxLength:   s.Rules.MaxLength,
		},
	}
}

func (n Node) label() string {
	if n.ID != "" {
		return n.ID
	}
	return n.Name
}
