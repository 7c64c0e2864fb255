package variable

import (
	"fmt"
	"strings"

	"github.com/aescanero/dago-editor/internal/nodetype"
	"github.com/aescanero/dago-editor/pkg/domain"
)

// Candidate is one completion offered while typing a reference
type Candidate struct {
	NodeID      string             `json:"node_id"`
	NodeRef     string             `json:"node_ref"`
	Field       string             `json:"field"`
	FieldType   nodetype.FieldType `json:"field_type"`
	Label       string             `json:"label"`
	Description string             `json:"description"`
}

// Text returns the "{nodeRef}.{field}" form inserted into the text
func (c Candidate) Text() string {
	return c.NodeRef + "." + c.Field
}

// Resolver produces and validates variable references for a graph
type Resolver struct {
	registry *nodetype.Registry
}

// NewResolver creates a resolver; a nil registry uses the built-in catalog
func NewResolver(registry *nodetype.Registry) *Resolver {
	if registry == nil {
		registry = nodetype.Default()
	}
	return &Resolver{registry: registry}
}

// Registry returns the node kind registry in use
func (r *Resolver) Registry() *nodetype.Registry {
	return r.registry
}

// NodeRef returns the name a node is referenced by: its nodeName param, or
// an id normalized to "{type}_{suffix}".
func NodeRef(n domain.Node) string {
	if name, ok := n.Data.Params[domain.ParamNodeName].(string); ok && name != "" {
		return name
	}
	if strings.Contains(n.ID, "_") {
		return n.ID
	}
	return fmt.Sprintf("%s_%s", n.Type, strings.TrimPrefix(n.ID, n.Type+"-"))
}

// Candidates lists every (node, output field) pair in node order
func (r *Resolver) Candidates(nodes []domain.Node) []Candidate {
	var out []Candidate
	for _, n := range nodes {
		capability := r.registry.Resolve(n)
		ref := NodeRef(n)
		label := n.Data.Label
		if label == "" {
			label = ref
		}
		for _, f := range capability.OutputFields {
			out = append(out, Candidate{
				NodeID:      n.ID,
				NodeRef:     ref,
				Field:       f.Name,
				FieldType:   f.Type,
				Label:       fmt.Sprintf("%s (%s)", label, f.Name),
				Description: capability.Description,
			})
		}
	}
	return out
}

// Filter keeps candidates whose "{nodeRef}.{field}" contains filter,
// case-insensitively, preserving order. An empty filter keeps everything.
func Filter(cands []Candidate, filter string) []Candidate {
	if filter == "" {
		return cands
	}
	needle := strings.ToLower(filter)
	var out []Candidate
	for _, c := range cands {
		if strings.Contains(strings.ToLower(c.Text()), needle) {
			out = append(out, c)
		}
	}
	return out
}

// Suggest scans text at cursor and returns the token with its matching
// candidates. Inactive tokens yield no candidates.
func (r *Resolver) Suggest(text string, cursor int, nodes []domain.Node) (Token, []Candidate) {
	tok := Scan(text, cursor)
	if !tok.Active {
		return tok, nil
	}
	return tok, Filter(r.Candidates(nodes), tok.Filter)
}

// ConnectedNodes returns the distinct source nodes of edges into nodeID.
// Edges from missing nodes are skipped.
func ConnectedNodes(nodeID string, g domain.Graph) []domain.Node {
	byID := make(map[string]domain.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		byID[n.ID] = n
	}
	seen := make(map[string]bool)
	var out []domain.Node
	for _, e := range g.Edges {
		if e.Target != nodeID || seen[e.Source] {
			continue
		}
		if n, ok := byID[e.Source]; ok {
			seen[e.Source] = true
			out = append(out, n)
		}
	}
	return out
}

// AvailableNodes returns the nodes offered by the variable builder: the
// connected sources when there are any, otherwise every other node.
func AvailableNodes(nodeID string, g domain.Graph) []domain.Node {
	if connected := ConnectedNodes(nodeID, g); len(connected) > 0 {
		return connected
	}
	var out []domain.Node
	for _, n := range g.Nodes {
		if n.ID != nodeID {
			out = append(out, n)
		}
	}
	return out
}

// BuilderFields returns the fields of n an input of type inputType accepts
func (r *Resolver) BuilderFields(n domain.Node, inputType nodetype.FieldType) []nodetype.Field {
	return r.registry.Resolve(n).CompatibleFields(inputType)
}
