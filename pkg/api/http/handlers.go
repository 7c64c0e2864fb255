package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aescanero/dago-editor/internal/application/orchestrator"
	"github.com/aescanero/dago-editor/internal/application/session"
	"github.com/aescanero/dago-editor/internal/graph"
	"github.com/aescanero/dago-editor/internal/nodetype"
	"github.com/aescanero/dago-editor/pkg/domain"
)

// CreateSessionRequest optionally seeds a new session
type CreateSessionRequest struct {
	WorkflowID string           `json:"workflow_id"`
	DraftKey   string           `json:"draft_key"`
	Template   *domain.Template `json:"template"`
}

// SessionSummary is a session in list responses
type SessionSummary struct {
	ID         string          `json:"id"`
	CreatedAt  time.Time       `json:"created_at"`
	LastSeen   time.Time       `json:"last_seen"`
	WorkflowID string          `json:"workflow_id,omitempty"`
	NodeCount  int             `json:"node_count"`
	RunState   domain.RunState `json:"run_state"`
}

// SessionResponse is the full view of one session
type SessionResponse struct {
	ID        string              `json:"id"`
	CreatedAt time.Time           `json:"created_at"`
	LastSeen  time.Time           `json:"last_seen"`
	Graph     graph.Snapshot      `json:"graph"`
	Run       orchestrator.Status `json:"run"`
}

// workflowExporter is implemented by repositories that can clone and
// export workflows server-side
type workflowExporter interface {
	Clone(ctx context.Context, id string) (*domain.Workflow, error)
	Export(ctx context.Context, id string) (json.RawMessage, error)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"checks": gin.H{
			"sessions": s.sessions.Len(),
		},
	})
}

// handleListNodeTypes returns the capability record of every node kind
func (s *Server) handleListNodeTypes(c *gin.Context) {
	registry := s.sessions.Registry()
	kinds := registry.Kinds()
	caps := make([]nodetype.Capability, 0, len(kinds))
	for _, k := range kinds {
		if capability, ok := registry.Lookup(string(k)); ok {
			caps = append(caps, capability)
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": caps})
}

// session resolves the :id path param, writing the error response when the
// session does not exist
func (s *Server) session(c *gin.Context) (*session.Session, bool) {
	sess, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		s.respondError(c, err, http.StatusNotFound, "SESSION_NOT_FOUND")
		return nil, false
	}
	return sess, true
}

func sessionResponse(sess *session.Session) SessionResponse {
	return SessionResponse{
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt(),
		LastSeen:  sess.LastSeen(),
		Graph:     sess.Store.Snapshot(),
		Run:       sess.Orchestrator.Status(),
	}
}

// handleCreateSession opens a session, optionally loading a saved
// workflow, a draft or a template into it
func (s *Server) handleCreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	ctx := c.Request.Context()
	sess := s.sessions.Create(ctx)

	var err error
	switch {
	case req.WorkflowID != "":
		_, err = sess.Load(ctx, s.workflows, req.WorkflowID)
	case req.DraftKey != "":
		var restored bool
		restored, err = sess.RestoreDraft(ctx, req.DraftKey)
		if err == nil && !restored {
			s.logger.Info("no draft to restore",
				zap.String("session_id", sess.ID),
				zap.String("draft_key", req.DraftKey))
		}
	case req.Template != nil:
		sess.Store.LoadTemplate(*req.Template)
	}
	if err != nil {
		_ = s.sessions.Dispose(sess.ID)
		s.respondError(c, err, http.StatusBadGateway, "LOAD_FAILED")
		return
	}

	c.JSON(http.StatusCreated, sessionResponse(sess))
}

// handleListSessions lists live sessions
func (s *Server) handleListSessions(c *gin.Context) {
	sessions := s.sessions.List()
	out := make([]SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, SessionSummary{
			ID:         sess.ID,
			CreatedAt:  sess.CreatedAt(),
			LastSeen:   sess.LastSeen(),
			WorkflowID: sess.Store.WorkflowID(),
			NodeCount:  len(sess.Store.Nodes()),
			RunState:   sess.Orchestrator.State(),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  out,
		"total": len(out),
	})
}

// handleGetSession returns a session's graph and run status
func (s *Server) handleGetSession(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sessionResponse(sess))
}

// handleDisposeSession closes a session
func (s *Server) handleDisposeSession(c *gin.Context) {
	if err := s.sessions.Dispose(c.Param("id")); err != nil {
		s.respondError(c, err, http.StatusInternalServerError, "DISPOSE_FAILED")
		return
	}
	c.Status(http.StatusNoContent)
}

// handleListWorkflows lists persisted workflows
func (s *Server) handleListWorkflows(c *gin.Context) {
	workflows, err := s.workflows.List(c.Request.Context())
	if err != nil {
		s.respondError(c, err, http.StatusBadGateway, "REPOSITORY_ERROR")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  workflows,
		"total": len(workflows),
	})
}

// handleGetWorkflow returns one persisted workflow
func (s *Server) handleGetWorkflow(c *gin.Context) {
	wf, err := s.workflows.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err, http.StatusBadGateway, "REPOSITORY_ERROR")
		return
	}
	c.JSON(http.StatusOK, wf)
}

// handleDeleteWorkflow deletes a persisted workflow
func (s *Server) handleDeleteWorkflow(c *gin.Context) {
	if err := s.workflows.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err, http.StatusBadGateway, "REPOSITORY_ERROR")
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) exporter(c *gin.Context) (workflowExporter, bool) {
	exp, ok := s.workflows.(workflowExporter)
	if !ok {
		abortWithError(c, http.StatusNotImplemented, "NOT_SUPPORTED",
			"The configured workflow repository does not support this operation", nil)
	}
	return exp, ok
}

// handleCloneWorkflow copies a persisted workflow
func (s *Server) handleCloneWorkflow(c *gin.Context) {
	exp, ok := s.exporter(c)
	if !ok {
		return
	}
	wf, err := exp.Clone(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err, http.StatusBadGateway, "REPOSITORY_ERROR")
		return
	}
	c.JSON(http.StatusCreated, wf)
}

// handleExportWorkflow returns the repository's export document
func (s *Server) handleExportWorkflow(c *gin.Context) {
	exp, ok := s.exporter(c)
	if !ok {
		return
	}
	doc, err := exp.Export(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err, http.StatusBadGateway, "REPOSITORY_ERROR")
		return
	}
	c.Data(http.StatusOK, "application/json", doc)
}
