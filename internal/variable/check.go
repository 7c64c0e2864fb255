package variable

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aescanero/dago-editor/pkg/domain"
)

// ErrorKind classifies a reference problem
type ErrorKind string

const (
	InvalidVariable  ErrorKind = "Invalid variable"
	NodeNotConnected ErrorKind = "Node not connected"
)

// Error reports the first offending reference in a text
type Error struct {
	Kind     ErrorKind `json:"error"`
	Message  string    `json:"message"`
	Variable string    `json:"variable"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

var referencePattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Reference is a complete {{ref.field}} found in a text
type Reference struct {
	Raw     string `json:"raw"`
	NodeRef string `json:"node_ref"`
	Field   string `json:"field"`
}

// References returns every complete reference in text, in order. Whitespace
// around the node ref and field is ignored.
func References(text string) []Reference {
	matches := referencePattern.FindAllStringSubmatch(text, -1)
	refs := make([]Reference, 0, len(matches))
	for _, m := range matches {
		ref, field, _ := strings.Cut(m[1], ".")
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[:i]
		}
		refs = append(refs, Reference{
			Raw:     m[1],
			NodeRef: strings.TrimSpace(ref),
			Field:   strings.TrimSpace(field),
		})
	}
	return refs
}

// Check validates the references in text as used by currentNodeID. A ref
// must name an existing node (by nodeName or id) and that node must have an
// edge into currentNodeID. Only the first problem is reported.
func Check(text, currentNodeID string, g domain.Graph) *Error {
	for _, ref := range References(text) {
		source, ok := findNode(ref.NodeRef, g.Nodes)
		if !ok {
			return &Error{
				Kind:     InvalidVariable,
				Message:  fmt.Sprintf("Node %q doesn't exist in the workflow.", ref.NodeRef),
				Variable: ref.Raw,
			}
		}
		if !connected(source.ID, currentNodeID, g.Edges) {
			return &Error{
				Kind:     NodeNotConnected,
				Message:  fmt.Sprintf("Node %q is not connected to this node.", ref.NodeRef),
				Variable: ref.Raw,
			}
		}
	}
	return nil
}

// CheckNode validates each free-text param of node that may hold references
// and returns the first error per param.
func (r *Resolver) CheckNode(node domain.Node, g domain.Graph) map[string]*Error {
	out := make(map[string]*Error)
	for _, param := range r.registry.Resolve(node).TextParams {
		text := node.StringParam(param)
		if text == "" {
			continue
		}
		if err := Check(text, node.ID, g); err != nil {
			out[param] = err
		}
	}
	return out
}

func findNode(ref string, nodes []domain.Node) (domain.Node, bool) {
	for _, n := range nodes {
		if n.ID == ref || n.StringParam(domain.ParamNodeName) == ref {
			return n, true
		}
	}
	return domain.Node{}, false
}

func connected(sourceID, targetID string, edges []domain.Edge) bool {
	for _, e := range edges {
		if e.Source == sourceID && e.Target == targetID {
			return true
		}
	}
	return false
}
