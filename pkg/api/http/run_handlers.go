package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aescanero/dago-editor/internal/application/orchestrator"
	"github.com/aescanero/dago-editor/pkg/domain"
)

// maxUploadSize bounds file inputs
const maxUploadSize = 32 << 20

// SetInputRequest sets an input's value
type SetInputRequest struct {
	Value any `json:"value"`
}

// ModeRequest selects the execution mode
type ModeRequest struct {
	Mode domain.ExecutionMode `json:"mode" binding:"required"`
}

// LoadWorkflowRequest names the workflow to open
type LoadWorkflowRequest struct {
	WorkflowID string `json:"workflow_id" binding:"required"`
}

// RestoreDraftRequest names the draft to restore
type RestoreDraftRequest struct {
	Key string `json:"key" binding:"required"`
}

// handleGetInputs returns the session's input snapshot
func (s *Server) handleGetInputs(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"inputs": sess.Orchestrator.Inputs()})
}

// handleSetInput sets an input from a JSON value or an uploaded file
func (s *Server) handleSetInput(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}

	var value any
	if c.ContentType() == "multipart/form-data" {
		file, err := readUpload(c)
		if err != nil {
			badRequest(c, err)
			return
		}
		value = file
	} else {
		var req SetInputRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		value = req.Value
	}

	key := c.Param("key")
	if err := sess.Orchestrator.SetInput(key, value); err != nil {
		s.respondError(c, err, http.StatusInternalServerError, "INTERNAL_ERROR")
		return
	}
	c.JSON(http.StatusOK, gin.H{"inputs": sess.Orchestrator.Inputs()})
}

func readUpload(c *gin.Context) (domain.FileValue, error) {
	header, err := c.FormFile("file")
	if err != nil {
		return domain.FileValue{}, fmt.Errorf("missing file part: %w", err)
	}
	if header.Size > maxUploadSize {
		return domain.FileValue{}, fmt.Errorf("file %s exceeds %d bytes", header.Filename, maxUploadSize)
	}
	f, err := header.Open()
	if err != nil {
		return domain.FileValue{}, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return domain.FileValue{}, fmt.Errorf("failed to read upload: %w", err)
	}
	return domain.FileValue{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// handleSetMode selects the execution mode for the next run
func (s *Server) handleSetMode(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req ModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := sess.Orchestrator.SetMode(req.Mode); err != nil {
		badRequest(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleReadiness reports whether the workflow can run and why not
func (s *Server) handleReadiness(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	r := sess.Orchestrator.Readiness()
	c.JSON(http.StatusOK, gin.H{
		"ready":     r.Ready(),
		"readiness": r,
	})
}

// handleStartRun starts a run; progress is followed via the run status
// endpoint or the session's event stream
func (s *Server) handleStartRun(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	runID, err := sess.Orchestrator.Start(c.Request.Context())
	if errors.Is(err, orchestrator.ErrNotReady) {
		abortWithError(c, http.StatusUnprocessableEntity, "NOT_READY", err.Error(), sess.Orchestrator.Readiness())
		return
	}
	if err != nil {
		s.respondError(c, err, http.StatusInternalServerError, "RUN_FAILED")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"run_id": runID,
		"state":  sess.Orchestrator.State(),
	})
}

// handleRunStatus returns the current or last run. With wait=true it
// blocks until the run finishes or the request is cancelled.
func (s *Server) handleRunStatus(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if c.Query("wait") == "true" {
		if err := sess.Orchestrator.Wait(c.Request.Context()); err != nil {
			abortWithError(c, http.StatusRequestTimeout, "WAIT_CANCELLED", err.Error(), nil)
			return
		}
	}
	c.JSON(http.StatusOK, sess.Orchestrator.Status())
}

// handleLoadWorkflow opens a persisted workflow in the session
func (s *Server) handleLoadWorkflow(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req LoadWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if _, err := sess.Load(c.Request.Context(), s.workflows, req.WorkflowID); err != nil {
		s.respondError(c, err, http.StatusBadGateway, "LOAD_FAILED")
		return
	}
	c.JSON(http.StatusOK, sess.Store.Snapshot())
}

// handleSaveWorkflow creates or updates the session's workflow
func (s *Server) handleSaveWorkflow(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	wf, err := sess.Save(c.Request.Context(), s.workflows)
	if err != nil {
		s.respondError(c, err, http.StatusBadGateway, "SAVE_FAILED")
		return
	}
	c.JSON(http.StatusOK, wf)
}

// handleSaveDraft stores the session's unsaved state
func (s *Server) handleSaveDraft(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if err := sess.SaveDraft(c.Request.Context()); err != nil {
		s.respondError(c, err, http.StatusBadGateway, "DRAFT_FAILED")
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": sess.ID})
}

// handleRestoreDraft loads a draft into the session
func (s *Server) handleRestoreDraft(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req RestoreDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	restored, err := sess.RestoreDraft(c.Request.Context(), req.Key)
	if err != nil {
		s.respondError(c, err, http.StatusBadGateway, "DRAFT_FAILED")
		return
	}
	if !restored {
		abortWithError(c, http.StatusNotFound, "DRAFT_NOT_FOUND", "Draft not found: "+req.Key, nil)
		return
	}
	c.JSON(http.StatusOK, sess.Store.Snapshot())
}
