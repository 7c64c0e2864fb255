package http

import (
	"net/http"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/aescanero/dago-editor/internal/autocomplete"
	"github.com/aescanero/dago-editor/internal/variable"
	"github.com/aescanero/dago-editor/pkg/domain"
)

// SuggestRequest asks for suggestions at a cursor position. Cursor is a
// rune offset; NodeID limits candidates to what that node can reference.
type SuggestRequest struct {
	Text   string `json:"text"`
	Cursor *int   `json:"cursor"`
	NodeID string `json:"node_id"`
}

// FieldInputRequest reports an edit of a field's text
type FieldInputRequest struct {
	Value  string `json:"value"`
	Cursor *int   `json:"cursor"`
}

// FieldKeyRequest reports a key press
type FieldKeyRequest struct {
	Key autocomplete.Key `json:"key" binding:"required"`
}

// FieldPointerRequest reports where a pointer-down landed
type FieldPointerRequest struct {
	Target autocomplete.Target `json:"target" binding:"required"`
}

// FieldSelectRequest picks a suggestion by index
type FieldSelectRequest struct {
	Index int `json:"index"`
}

func cursorOr(cursor *int, text string) int {
	if cursor != nil {
		return *cursor
	}
	return utf8.RuneCountInString(text)
}

// handleSuggest returns the open reference at the cursor and the matching
// candidates
func (s *Server) handleSuggest(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req SuggestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var nodes []domain.Node
	if req.NodeID != "" {
		nodes = variable.AvailableNodes(req.NodeID, sess.Store.Graph())
	} else {
		nodes = sess.Store.Nodes()
	}
	tok, candidates := sess.Resolver.Suggest(req.Text, cursorOr(req.Cursor, req.Text), nodes)
	if !tok.Active {
		candidates = nil
	}
	c.JSON(http.StatusOK, gin.H{
		"active":      tok.Active,
		"filter":      tok.Filter,
		"suggestions": candidates,
	})
}

// editField applies fn to the field named by the path
func (s *Server) editField(c *gin.Context, fn func(f *autocomplete.Field)) (autocomplete.State, bool) {
	sess, ok := s.session(c)
	if !ok {
		return autocomplete.State{}, false
	}
	state, err := sess.EditField(c.Param("nodeId"), c.Param("param"), fn)
	if err != nil {
		s.respondError(c, err, http.StatusInternalServerError, "INTERNAL_ERROR")
		return autocomplete.State{}, false
	}
	return state, true
}

// handleFieldState returns a field's current state
func (s *Server) handleFieldState(c *gin.Context) {
	state, ok := s.editField(c, func(*autocomplete.Field) {})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, state)
}

// handleFieldInput applies a keystroke's resulting text and stores it in
// the node's param
func (s *Server) handleFieldInput(c *gin.Context) {
	var req FieldInputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	state, ok := s.editField(c, func(f *autocomplete.Field) {
		f.Input(req.Value, cursorOr(req.Cursor, req.Value))
	})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, state)
}

// handleFieldKeyDown applies a key press. consumed is false when the key
// should reach the underlying control.
func (s *Server) handleFieldKeyDown(c *gin.Context) {
	var req FieldKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	var consumed bool
	state, ok := s.editField(c, func(f *autocomplete.Field) {
		consumed = f.KeyDown(req.Key)
	})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"consumed": consumed,
		"state":    state,
	})
}

// handleFieldPointer applies a pointer-down
func (s *Server) handleFieldPointer(c *gin.Context) {
	var req FieldPointerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	state, ok := s.editField(c, func(f *autocomplete.Field) {
		f.PointerDown(req.Target)
	})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, state)
}

// handleFieldSelect commits the suggestion at an index
func (s *Server) handleFieldSelect(c *gin.Context) {
	var req FieldSelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	var committed bool
	state, ok := s.editField(c, func(f *autocomplete.Field) {
		committed = f.Select(req.Index)
	})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"committed": committed,
		"state":     state,
	})
}
