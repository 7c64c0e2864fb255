package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aescanero/dago-editor/internal/nodetype"
	"github.com/aescanero/dago-editor/internal/variable"
	"github.com/aescanero/dago-editor/pkg/domain"
)

// AddNodeRequest creates a node
type AddNodeRequest struct {
	Type     string          `json:"type" binding:"required"`
	Position domain.Position `json:"position"`
	Params   map[string]any  `json:"params"`
}

// UpdateNodeRequest merges params into a node and/or moves it
type UpdateNodeRequest struct {
	Params   map[string]any   `json:"params"`
	Position *domain.Position `json:"position"`
}

// NameRequest renames the workflow
type NameRequest struct {
	Name string `json:"name" binding:"required"`
}

// SelectionRequest selects a node; an empty id clears the selection
type SelectionRequest struct {
	NodeID string `json:"node_id"`
}

// VariableNode is a node offered by the variable builder
type VariableNode struct {
	NodeID  string           `json:"node_id"`
	NodeRef string           `json:"node_ref"`
	Label   string           `json:"label"`
	Fields  []nodetype.Field `json:"fields"`
}

// handleGetGraph returns the session's graph
func (s *Server) handleGetGraph(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.Store.Snapshot())
}

// handleClearGraph resets the session to an empty, unsaved workflow
func (s *Server) handleClearGraph(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	sess.Store.ClearWorkflow()
	c.Status(http.StatusNoContent)
}

// handleLoadTemplate replaces the graph with a template
func (s *Server) handleLoadTemplate(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var t domain.Template
	if err := c.ShouldBindJSON(&t); err != nil {
		badRequest(c, err)
		return
	}
	sess.Store.LoadTemplate(t)
	c.JSON(http.StatusOK, sess.Store.Snapshot())
}

// handleSetName renames the workflow
func (s *Server) handleSetName(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req NameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sess.Store.SetWorkflowName(req.Name)
	c.Status(http.StatusNoContent)
}

// handleSelectNode sets the selected node
func (s *Server) handleSelectNode(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req SelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := sess.Store.SetSelectedNode(req.NodeID); err != nil {
		s.respondError(c, err, http.StatusInternalServerError, "INTERNAL_ERROR")
		return
	}
	c.Status(http.StatusNoContent)
}

// handleAddNode creates a node of a registered kind
func (s *Server) handleAddNode(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req AddNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if _, known := sess.Resolver.Registry().Lookup(req.Type); !known {
		abortWithError(c, http.StatusBadRequest, "UNKNOWN_NODE_TYPE", "Unknown node type: "+req.Type, nil)
		return
	}

	node := sess.Store.AddNode(req.Type, req.Position)
	if len(req.Params) > 0 {
		sess.Store.UpdateNodeParams(node.ID, req.Params)
		node, _ = sess.Store.Node(node.ID)
	}
	c.JSON(http.StatusCreated, node)
}

// handleUpdateNode merges params and/or moves a node
func (s *Server) handleUpdateNode(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req UpdateNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Params == nil && req.Position == nil {
		badRequest(c, errors.New("params or position is required"))
		return
	}

	nodeID := c.Param("nodeId")
	found := true
	if req.Params != nil {
		found = sess.Store.UpdateNodeParams(nodeID, req.Params)
	}
	if found && req.Position != nil {
		found = sess.Store.MoveNode(nodeID, *req.Position)
	}
	node, exists := sess.Store.Node(nodeID)
	if !found || !exists {
		abortWithError(c, http.StatusNotFound, "NODE_NOT_FOUND", "Node not found: "+nodeID, nil)
		return
	}
	c.JSON(http.StatusOK, node)
}

// handleRemoveNode deletes a node and the edges touching it
func (s *Server) handleRemoveNode(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	nodeID := c.Param("nodeId")
	if !sess.Store.RemoveNode(nodeID) {
		abortWithError(c, http.StatusNotFound, "NODE_NOT_FOUND", "Node not found: "+nodeID, nil)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleCheckNode validates the variable references in a node's params
func (s *Server) handleCheckNode(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	nodeID := c.Param("nodeId")
	errs, err := sess.CheckNode(nodeID)
	if err != nil {
		s.respondError(c, err, http.StatusInternalServerError, "INTERNAL_ERROR")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"node_id": nodeID,
		"valid":   len(errs) == 0,
		"errors":  errs,
	})
}

// handleNodeVariables lists the nodes and fields a node's variable
// builder offers, filtered by the optional input_type query param
func (s *Server) handleNodeVariables(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	nodeID := c.Param("nodeId")
	if _, exists := sess.Store.Node(nodeID); !exists {
		abortWithError(c, http.StatusNotFound, "NODE_NOT_FOUND", "Node not found: "+nodeID, nil)
		return
	}
	inputType := nodetype.FieldType(c.DefaultQuery("input_type", string(nodetype.FieldAny)))

	available := variable.AvailableNodes(nodeID, sess.Store.Graph())
	out := make([]VariableNode, 0, len(available))
	for _, n := range available {
		label := n.Data.Label
		if label == "" {
			label = n.ID
		}
		out = append(out, VariableNode{
			NodeID:  n.ID,
			NodeRef: variable.NodeRef(n),
			Label:   label,
			Fields:  sess.Resolver.BuilderFields(n, inputType),
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

// handleConnect adds an edge between two existing nodes
func (s *Server) handleConnect(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var conn domain.Connection
	if err := c.ShouldBindJSON(&conn); err != nil {
		badRequest(c, err)
		return
	}
	for _, id := range []string{conn.Source, conn.Target} {
		if _, exists := sess.Store.Node(id); !exists {
			abortWithError(c, http.StatusNotFound, "NODE_NOT_FOUND", "Node not found: "+id, nil)
			return
		}
	}
	c.JSON(http.StatusCreated, sess.Store.OnConnect(conn))
}

// handleRemoveEdge deletes an edge
func (s *Server) handleRemoveEdge(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	edgeID := c.Param("edgeId")
	if !sess.Store.RemoveEdge(edgeID) {
		abortWithError(c, http.StatusNotFound, "EDGE_NOT_FOUND", "Edge not found: "+edgeID, nil)
		return
	}
	c.Status(http.StatusNoContent)
}
