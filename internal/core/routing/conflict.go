package routing

import "fmt"

// ConflictReport names two nodes of one site that claim the same slug text.
type ConflictReport struct {
	SiteID            string `json:"site_id"`
	Text              string `json:"text"`
	NodeID            string `json:"node_id"`
	Locale            string `json:"locale"`
	ConflictingNodeID string `json:"conflicting_node_id"`
	ConflictingLocale string `json:"conflicting_locale"`
	// InTree is true when the other claim is a pending write of the same build.
	InTree bool `json:"in_tree"`
}

func (c ConflictReport) String() string {
	return fmt.Sprintf("slug %q of node %s (%s) conflicts with node %s (%s)",
		c.Text, c.NodeID, c.Locale, c.ConflictingNodeID, c.ConflictingLocale)
}

// Claims tracks slug texts already claimed by units of one build, so two
// pending units never resolve to the same text.
type Claims struct {
	byText map[string]claim
}

type claim struct {
	nodeID string
	locale string
}

// NewClaims creates an empty claim table.
func NewClaims() *Claims {
	return &Claims{byText: make(map[string]claim)}
}

// Claim records that nodeID takes text for locale. A node may claim the same
// text for several locales.
func (c *Claims) Claim(text, nodeID, locale string) {
	if _, ok := c.byText[text]; !ok {
		c.byText[text] = claim{nodeID: nodeID, locale: locale}
	}
}

// Owner returns the other node holding text, excluding nodeID itself.
func (c *Claims) Owner(text, nodeID string) (ownerNode, ownerLocale string, ok bool) {
	cl, found := c.byText[text]
	if !found || cl.nodeID == nodeID {
		return "", "", false
	}
	return cl.nodeID, cl.locale, true
}
