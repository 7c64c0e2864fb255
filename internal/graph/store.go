package graph

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/aescanero/dago-editor/pkg/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNodeNotFound is returned when a node id is unknown
var ErrNodeNotFound = errors.New("graph: node not found")

// SaveStatus tracks whether the editor state matches the persisted workflow
type SaveStatus string

const (
	SaveStatusUnsaved SaveStatus = "unsaved"
	SaveStatusSaving  SaveStatus = "saving"
	SaveStatusSaved   SaveStatus = "saved"
)

// ChangeKind says what a committed mutation touched
type ChangeKind string

const (
	ChangeNodes    ChangeKind = "nodes"
	ChangeEdges    ChangeKind = "edges"
	ChangeIdentity ChangeKind = "identity"
	ChangeCleared  ChangeKind = "cleared"
	ChangeLoaded   ChangeKind = "loaded"
)

// Change is delivered to listeners after a mutation is committed
type Change struct {
	Kind   ChangeKind
	NodeID string
}

// Listener observes committed store changes
type Listener func(Change)

// Snapshot is a deep copy of the store's state
type Snapshot struct {
	WorkflowID     string         `json:"workflow_id,omitempty"`
	WorkflowName   string         `json:"workflow_name"`
	Nodes          []domain.Node  `json:"nodes"`
	Edges          []domain.Edge  `json:"edges"`
	NodeCounters   map[string]int `json:"node_counters"`
	SelectedNodeID string         `json:"selected_node_id,omitempty"`
	TemplateID     string         `json:"template_id,omitempty"`
	SaveStatus     SaveStatus     `json:"save_status"`
}

// Store holds one editor's workflow graph
type Store struct {
	mu           sync.RWMutex
	nodes        []domain.Node
	edges        []domain.Edge
	counters     map[string]int
	selected     string
	template     string
	workflowID   string
	workflowName string
	saveStatus   SaveStatus
	// generation moves on every clear, load and template load
	generation uint64

	listenerMu sync.Mutex
	listeners  map[int]Listener
	nextID     int

	newEdgeID func() string
	logger    *zap.Logger
}

// Option configures a Store
type Option func(*Store)

// WithEdgeIDs overrides edge id generation
func WithEdgeIDs(gen func() string) Option {
	return func(s *Store) { s.newEdgeID = gen }
}

// New creates an empty store
func New(logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		counters:   make(map[string]int),
		saveStatus: SaveStatusUnsaved,
		listeners:  make(map[int]Listener),
		newEdgeID:  func() string { return "edge-" + uuid.NewString() },
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers a listener and returns a function removing it
func (s *Store) Subscribe(l Listener) func() {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.listenerMu.Lock()
		defer s.listenerMu.Unlock()
		delete(s.listeners, id)
	}
}

// notify runs listeners outside the state lock
func (s *Store) notify(c Change) {
	s.listenerMu.Lock()
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.listenerMu.Unlock()
	for _, l := range ls {
		l(c)
	}
}

// NextNodeID allocates the next id for a node type. Counters start at 0 and
// are never reused.
func (s *Store) NextNodeID(nodeType string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextNodeIDLocked(nodeType)
}

func (s *Store) nextNodeIDLocked(nodeType string) string {
	n := s.counters[nodeType]
	s.counters[nodeType] = n + 1
	return fmt.Sprintf("%s_%d", nodeType, n)
}

// AddNode creates a node of the given type at pos and appends it
func (s *Store) AddNode(nodeType string, pos domain.Position) domain.Node {
	s.mu.Lock()
	id := s.nextNodeIDLocked(nodeType)
	node := domain.Node{
		ID:       id,
		Type:     nodeType,
		Position: pos,
		Data: domain.NodeData{
			Label:  nodeType,
			Type:   nodeType,
			Params: map[string]any{domain.ParamNodeName: id},
		},
	}
	s.nodes = append(s.nodes, node)
	s.saveStatus = SaveStatusUnsaved
	s.mu.Unlock()

	s.logger.Debug("node added",
		zap.String("node_id", id),
		zap.String("node_type", nodeType))
	s.notify(Change{Kind: ChangeNodes, NodeID: id})
	return node.Clone()
}

// Node returns a copy of the node with the given id
func (s *Store) Node(id string) (domain.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.nodes[i].Clone(), true
	}
	return domain.Node{}, false
}

// Nodes returns copies of all nodes in insertion order
func (s *Store) Nodes() []domain.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneNodes(s.nodes)
}

// NodesOfType returns copies of the nodes with the given type
func (s *Store) NodesOfType(nodeType string) []domain.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Node
	for _, n := range s.nodes {
		if n.Type == nodeType {
			out = append(out, n.Clone())
		}
	}
	return out
}

// Edges returns copies of all edges
func (s *Store) Edges() []domain.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneEdges(s.edges)
}

// Graph returns a consistent copy of nodes and edges
func (s *Store) Graph() domain.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.Graph{Nodes: cloneNodes(s.nodes), Edges: cloneEdges(s.edges)}
}

// Counters returns a copy of the per-type id counters
func (s *Store) Counters() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.counters))
	for k, v := range s.counters {
		out[k] = v
	}
	return out
}

// UpdateNodeParams shallow-merges params into the node's params. It reports
// whether the node exists; unknown ids are a no-op.
func (s *Store) UpdateNodeParams(id string, params map[string]any) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	updated := s.nodes[i].Clone()
	if updated.Data.Params == nil {
		updated.Data.Params = make(map[string]any, len(params))
	}
	for k, v := range params {
		updated.Data.Params[k] = v
	}
	s.nodes[i] = updated
	s.saveStatus = SaveStatusUnsaved
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeNodes, NodeID: id})
	return true
}

// UpdateNodeResults replaces the node's last results
func (s *Store) UpdateNodeResults(id string, results any) bool {
	return s.updateResults(id, results, func() bool { return true })
}

// UpdateNodeResultsAt replaces the node's last results only while the store
// is still at generation. It reports whether the write happened.
func (s *Store) UpdateNodeResultsAt(generation uint64, id string, results any) bool {
	return s.updateResults(id, results, func() bool { return s.generation == generation })
}

func (s *Store) updateResults(id string, results any, allowed func() bool) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 || !allowed() {
		s.mu.Unlock()
		return false
	}
	updated := s.nodes[i].Clone()
	updated.Data.Results = results
	s.nodes[i] = updated
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeNodes, NodeID: id})
	return true
}

// Generation identifies the loaded workflow instance. It changes whenever
// the graph is cleared or replaced wholesale.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// MoveNode updates a node's canvas position
func (s *Store) MoveNode(id string, pos domain.Position) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	updated := s.nodes[i].Clone()
	updated.Position = pos
	s.nodes[i] = updated
	s.saveStatus = SaveStatusUnsaved
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeNodes, NodeID: id})
	return true
}

// RemoveNode deletes the node and every edge touching it
func (s *Store) RemoveNode(id string) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	nodes := make([]domain.Node, 0, len(s.nodes)-1)
	nodes = append(nodes, s.nodes[:i]...)
	s.nodes = append(nodes, s.nodes[i+1:]...)

	edges := s.edges[:0:0]
	removed := 0
	for _, e := range s.edges {
		if e.Source == id || e.Target == id {
			removed++
			continue
		}
		edges = append(edges, e)
	}
	s.edges = edges
	if s.selected == id {
		s.selected = ""
	}
	s.saveStatus = SaveStatusUnsaved
	s.mu.Unlock()

	s.logger.Debug("node removed",
		zap.String("node_id", id),
		zap.Int("edges_removed", removed))
	s.notify(Change{Kind: ChangeNodes, NodeID: id})
	if removed > 0 {
		s.notify(Change{Kind: ChangeEdges})
	}
	return true
}

// OnConnect appends an edge for the connection. Duplicate pairs and self
// loops are accepted; callers filter them when undesired.
func (s *Store) OnConnect(c domain.Connection) domain.Edge {
	edge := domain.Edge{
		ID:           s.newEdgeID(),
		Source:       c.Source,
		Target:       c.Target,
		SourceHandle: c.SourceHandle,
		TargetHandle: c.TargetHandle,
		Type:         domain.EdgeTypeSmoothStep,
		Animated:     true,
		MarkerEnd:    &domain.EdgeMarker{Type: domain.MarkerArrowClosed},
	}

	s.mu.Lock()
	s.edges = append(s.edges, edge)
	s.saveStatus = SaveStatusUnsaved
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeEdges})
	return edge.Clone()
}

// RemoveEdge deletes a single edge
func (s *Store) RemoveEdge(id string) bool {
	s.mu.Lock()
	idx := -1
	for i, e := range s.edges {
		if e.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	edges := make([]domain.Edge, 0, len(s.edges)-1)
	edges = append(edges, s.edges[:idx]...)
	s.edges = append(edges, s.edges[idx+1:]...)
	s.saveStatus = SaveStatusUnsaved
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeEdges})
	return true
}

// SetNodes replaces every node. Counters only ever move forward to stay
// ahead of the ids in the new node set.
func (s *Store) SetNodes(nodes []domain.Node) {
	s.mu.Lock()
	s.nodes = cloneNodes(nodes)
	s.seedCountersLocked()
	s.edges = s.pruneLocked(s.edges)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeNodes})
}

// SetEdges replaces the edges with updater's result. Edges whose endpoints
// do not exist are dropped.
func (s *Store) SetEdges(updater func([]domain.Edge) []domain.Edge) {
	s.mu.Lock()
	s.edges = s.pruneLocked(cloneEdges(updater(cloneEdges(s.edges))))
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeEdges})
}

// LoadTemplate replaces the graph with a template's nodes and edges
func (s *Store) LoadTemplate(t domain.Template) {
	s.mu.Lock()
	s.nodes = cloneNodes(t.Nodes)
	s.seedCountersLocked()
	s.edges = s.pruneLocked(cloneEdges(t.Edges))
	s.template = t.ID
	s.saveStatus = SaveStatusUnsaved
	s.generation++
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeLoaded})
}

// SetSelectedNode selects a node; an empty id clears the selection
func (s *Store) SetSelectedNode(id string) error {
	s.mu.Lock()
	if id != "" && s.indexLocked(id) < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	s.selected = id
	s.mu.Unlock()
	return nil
}

// SelectedNode returns the selected node, if any
func (s *Store) SelectedNode() (domain.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == "" {
		return domain.Node{}, false
	}
	if i := s.indexLocked(s.selected); i >= 0 {
		return s.nodes[i].Clone(), true
	}
	return domain.Node{}, false
}

// SetWorkflowID sets the persisted workflow identity; "" means unsaved
func (s *Store) SetWorkflowID(id string) {
	s.mu.Lock()
	s.workflowID = id
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeIdentity})
}

// WorkflowID returns the persisted workflow identity, "" when unsaved
func (s *Store) WorkflowID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workflowID
}

// SetWorkflowName sets the workflow's display name
func (s *Store) SetWorkflowName(name string) {
	s.mu.Lock()
	s.workflowName = name
	s.saveStatus = SaveStatusUnsaved
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeIdentity})
}

// WorkflowName returns the workflow's display name
func (s *Store) WorkflowName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workflowName
}

// SetSaveStatus records the persistence status
func (s *Store) SetSaveStatus(status SaveStatus) {
	s.mu.Lock()
	s.saveStatus = status
	s.mu.Unlock()
}

// SaveStatus returns the persistence status
func (s *Store) SaveStatus() SaveStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveStatus
}

// ClearWorkflow resets nodes, edges, counters, selection, template, name and
// id in one step. It must run before loading another workflow and when the
// editor goes away.
func (s *Store) ClearWorkflow() {
	s.mu.Lock()
	before := []zap.Field{
		zap.Int("node_count", len(s.nodes)),
		zap.Int("edge_count", len(s.edges)),
		zap.Int("counter_count", len(s.counters)),
		zap.String("workflow_id", s.workflowID),
	}
	s.resetLocked()
	s.mu.Unlock()

	s.logger.Debug("workflow cleared", before...)
	s.notify(Change{Kind: ChangeCleared})
}

func (s *Store) resetLocked() {
	s.nodes = nil
	s.edges = nil
	s.counters = make(map[string]int)
	s.selected = ""
	s.template = ""
	s.workflowName = ""
	s.workflowID = ""
	s.saveStatus = SaveStatusUnsaved
	s.generation++
}

// LoadWorkflow switches the store to wf: the previous state is cleared and
// the new graph loaded under a single lock, so no reader sees a mix.
func (s *Store) LoadWorkflow(wf domain.Workflow) {
	s.mu.Lock()
	s.resetLocked()
	s.nodes = cloneNodes(wf.Nodes)
	s.seedCountersLocked()
	s.edges = s.pruneLocked(cloneEdges(wf.Edges))
	s.workflowID = wf.ID
	s.workflowName = wf.Name
	s.saveStatus = SaveStatusSaved
	nodeCount, edgeCount := len(s.nodes), len(s.edges)
	s.mu.Unlock()

	s.logger.Info("workflow loaded",
		zap.String("workflow_id", wf.ID),
		zap.Int("node_count", nodeCount),
		zap.Int("edge_count", edgeCount))
	s.notify(Change{Kind: ChangeCleared})
	s.notify(Change{Kind: ChangeLoaded})
}

// Workflow returns the store's state in persisted form
func (s *Store) Workflow() domain.Workflow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.Workflow{
		ID:    s.workflowID,
		Name:  s.workflowName,
		Nodes: cloneNodes(s.nodes),
		Edges: cloneEdges(s.edges),
	}
}

// Snapshot returns a deep copy of the whole store state
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counters := make(map[string]int, len(s.counters))
	for k, v := range s.counters {
		counters[k] = v
	}
	return Snapshot{
		WorkflowID:     s.workflowID,
		WorkflowName:   s.workflowName,
		Nodes:          cloneNodes(s.nodes),
		Edges:          cloneEdges(s.edges),
		NodeCounters:   counters,
		SelectedNodeID: s.selected,
		TemplateID:     s.template,
		SaveStatus:     s.saveStatus,
	}
}

// DanglingEdges returns edges whose source or target node is missing
func (s *Store) DanglingEdges() []domain.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Edge
	for _, e := range s.edges {
		if s.indexLocked(e.Source) < 0 || s.indexLocked(e.Target) < 0 {
			out = append(out, e.Clone())
		}
	}
	return out
}

// Close disposes the store: state is cleared and listeners dropped
func (s *Store) Close() {
	s.ClearWorkflow()
	s.listenerMu.Lock()
	s.listeners = make(map[int]Listener)
	s.listenerMu.Unlock()
}

func (s *Store) indexLocked(id string) int {
	for i, n := range s.nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// pruneLocked drops edges whose endpoints are missing
func (s *Store) pruneLocked(edges []domain.Edge) []domain.Edge {
	ids := make(map[string]struct{}, len(s.nodes))
	for _, n := range s.nodes {
		ids[n.ID] = struct{}{}
	}
	kept := edges[:0:0]
	for _, e := range edges {
		_, src := ids[e.Source]
		_, dst := ids[e.Target]
		if !src || !dst {
			s.logger.Warn("dropping dangling edge",
				zap.String("edge_id", e.ID),
				zap.String("source", e.Source),
				zap.String("target", e.Target))
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

// seedCountersLocked moves counters past ids shaped "{type}_{n}"
func (s *Store) seedCountersLocked() {
	for _, n := range s.nodes {
		prefix := n.Type + "_"
		if !strings.HasPrefix(n.ID, prefix) {
			continue
		}
		seq, err := strconv.Atoi(strings.TrimPrefix(n.ID, prefix))
		if err != nil || seq < 0 {
			continue
		}
		if seq+1 > s.counters[n.Type] {
			s.counters[n.Type] = seq + 1
		}
	}
}

func cloneNodes(nodes []domain.Node) []domain.Node {
	out := make([]domain.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

func cloneEdges(edges []domain.Edge) []domain.Edge {
	out := make([]domain.Edge, len(edges))
	for i, e := range edges {
		out[i] = e.Clone()
	}
	return out
}
