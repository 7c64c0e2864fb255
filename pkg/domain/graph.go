package domain

import "time"

// Position is a node's canvas coordinate
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData is the editor payload of a node
type NodeData struct {
	Label        string         `json:"label"`
	Type         string         `json:"type"`
	Params       map[string]any `json:"params"`
	Results      any            `json:"results,omitempty"`
	OutputFields []string       `json:"outputFields,omitempty"`
}

// Node is a typed unit of work in the workflow graph
type Node struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// ParamNodeName is the params key carrying the user-facing node alias
const ParamNodeName = "nodeName"

// Name returns the name variable references resolve against: params.nodeName
// when set, otherwise the node id.
func (n Node) Name() string {
	if name, ok := n.Data.Params[ParamNodeName].(string); ok && name != "" {
		return name
	}
	return n.ID
}

// Param returns a single param value
func (n Node) Param(key string) (any, bool) {
	v, ok := n.Data.Params[key]
	return v, ok
}

// StringParam returns a param as string, or "" when absent or not a string
func (n Node) StringParam(key string) string {
	s, _ := n.Data.Params[key].(string)
	return s
}

// Clone returns a deep copy of the node
func (n Node) Clone() Node {
	out := n
	out.Data.Params = cloneMap(n.Data.Params)
	out.Data.Results = cloneValue(n.Data.Results)
	if n.Data.OutputFields != nil {
		out.Data.OutputFields = append([]string(nil), n.Data.OutputFields...)
	}
	return out
}

// MarkerType is the edge arrow style
type MarkerType string

const (
	MarkerArrow       MarkerType = "arrow"
	MarkerArrowClosed MarkerType = "arrowclosed"
)

// EdgeMarker describes an edge end marker
type EdgeMarker struct {
	Type MarkerType `json:"type"`
}

// EdgeTypeSmoothStep is the default edge rendering type
const EdgeTypeSmoothStep = "smoothstep"

// Edge is a directed data dependency: Source's output is available to Target
type Edge struct {
	ID           string         `json:"id"`
	Source       string         `json:"source"`
	Target       string         `json:"target"`
	SourceHandle string         `json:"sourceHandle,omitempty"`
	TargetHandle string         `json:"targetHandle,omitempty"`
	Type         string         `json:"type,omitempty"`
	Animated     bool           `json:"animated"`
	Data         map[string]any `json:"data,omitempty"`
	MarkerEnd    *EdgeMarker    `json:"markerEnd,omitempty"`
}

// Clone returns a deep copy of the edge
func (e Edge) Clone() Edge {
	out := e
	out.Data = cloneMap(e.Data)
	if e.MarkerEnd != nil {
		m := *e.MarkerEnd
		out.MarkerEnd = &m
	}
	return out
}

// Connection is the editor's request to link two node handles
type Connection struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// Graph is a set of nodes and edges
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// WorkflowStatus is the persisted lifecycle status of a workflow
type WorkflowStatus string

const (
	WorkflowStatusDraft     WorkflowStatus = "draft"
	WorkflowStatusPublished WorkflowStatus = "published"
)

// Workflow is the persisted form of a graph
type Workflow struct {
	ID          string         `json:"id,omitempty"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Nodes       []Node         `json:"nodes"`
	Edges       []Edge         `json:"edges"`
	Status      WorkflowStatus `json:"status,omitempty"`
	CreatedAt   *time.Time     `json:"created_at,omitempty"`
	UpdatedAt   *time.Time     `json:"updated_at,omitempty"`
}

// Clone returns a deep copy of the workflow
func (w Workflow) Clone() Workflow {
	out := w
	if w.Nodes != nil {
		out.Nodes = make([]Node, len(w.Nodes))
		for i, n := range w.Nodes {
			out.Nodes[i] = n.Clone()
		}
	}
	if w.Edges != nil {
		out.Edges = make([]Edge, len(w.Edges))
		for i, e := range w.Edges {
			out.Edges[i] = e.Clone()
		}
	}
	if w.CreatedAt != nil {
		t := *w.CreatedAt
		out.CreatedAt = &t
	}
	if w.UpdatedAt != nil {
		t := *w.UpdatedAt
		out.UpdatedAt = &t
	}
	return out
}

// Template is a prebuilt graph loaded into the editor
type Template struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
