package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/aescanero/dago-editor/internal/application/orchestrator"
	"github.com/aescanero/dago-editor/internal/autocomplete"
	"github.com/aescanero/dago-editor/internal/graph"
	"github.com/aescanero/dago-editor/internal/variable"
	"github.com/aescanero/dago-editor/pkg/domain"
	"github.com/aescanero/dago-editor/pkg/ports"
)

// Session is one editor instance
type Session struct {
	ID           string
	Store        *graph.Store
	Orchestrator *orchestrator.Orchestrator
	Resolver     *variable.Resolver

	createdAt time.Time
	lastSeen  atomic.Int64

	logger      *zap.Logger
	drafts      ports.DraftStore
	metrics     ports.MetricsCollector
	unsubscribe func()

	fieldMu sync.Mutex

	mu        sync.Mutex
	fields    map[string]*autocomplete.Field
	autosave  *time.Timer
	saveDelay time.Duration
	disposed  bool
}

// CreatedAt returns when the session was opened
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// LastSeen returns the last time the session was used
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// Touch marks the session as used now
func (s *Session) Touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

// field returns the autocomplete field bound to a node param along with
// the param's current text in the store.
func (s *Session) field(nodeID, param string) (*autocomplete.Field, string, error) {
	node, ok := s.Store.Node(nodeID)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", graph.ErrNodeNotFound, nodeID)
	}
	value := node.StringParam(param)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil, "", fmt.Errorf("%w: %s", ErrSessionNotFound, s.ID)
	}
	key := nodeID + "/" + param
	if f, ok := s.fields[key]; ok {
		return f, value, nil
	}
	source := func() []domain.Node {
		return variable.AvailableNodes(nodeID, s.Store.Graph())
	}
	f := autocomplete.NewField(s.Resolver, source, s.logger, autocomplete.WithValue(value))
	s.fields[key] = f
	return f, value, nil
}

// dropFields forgets every field; the next edit rebuilds from the store
func (s *Session) dropFields() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.fields = make(map[string]*autocomplete.Field)
}

// EditField runs fn against the field bound to nodeID/param and returns the
// resulting state. The field is first brought in line with the param's
// text in the store, and any change fn makes is written back. Calls are
// serialized per session.
func (s *Session) EditField(nodeID, param string, fn func(f *autocomplete.Field)) (autocomplete.State, error) {
	s.fieldMu.Lock()
	defer s.fieldMu.Unlock()

	f, value, err := s.field(nodeID, param)
	if err != nil {
		return autocomplete.State{}, err
	}
	f.Sync(value)
	fn(f)
	state := f.State()
	if state.Value != value {
		s.Store.UpdateNodeParams(nodeID, map[string]any{param: state.Value})
	}
	return state, nil
}

// CheckNode validates the references held in a node's text params
func (s *Session) CheckNode(nodeID string) (map[string]*variable.Error, error) {
	node, ok := s.Store.Node(nodeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", graph.ErrNodeNotFound, nodeID)
	}
	errs := s.Resolver.CheckNode(node, s.Store.Graph())
	for _, e := range errs {
		s.metrics.RecordVariableError(string(e.Kind))
	}
	return errs, nil
}

// Load replaces the session's workflow with the one stored under id
func (s *Session) Load(ctx context.Context, repo ports.WorkflowRepository, id string) (*domain.Workflow, error) {
	wf, err := repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", id, err)
	}
	s.Store.LoadWorkflow(*wf)
	s.logger.Info("workflow loaded",
		zap.String("session_id", s.ID),
		zap.String("workflow_id", wf.ID),
		zap.Int("nodes", len(wf.Nodes)),
		zap.Int("edges", len(wf.Edges)))
	return wf, nil
}

// Save creates or updates the session's workflow in repo. A new workflow
// takes the id assigned by the repository.
func (s *Session) Save(ctx context.Context, repo ports.WorkflowRepository) (*domain.Workflow, error) {
	wf := s.Store.Workflow()
	s.Store.SetSaveStatus(graph.SaveStatusSaving)

	var saved *domain.Workflow
	var err error
	if wf.ID == "" {
		saved, err = repo.Create(ctx, &wf)
	} else {
		saved, err = repo.Update(ctx, wf.ID, &wf)
	}
	if err != nil {
		s.Store.SetSaveStatus(graph.SaveStatusUnsaved)
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	if wf.ID == "" {
		s.Store.SetWorkflowID(saved.ID)
	}
	s.Store.SetSaveStatus(graph.SaveStatusSaved)
	s.logger.Info("workflow saved",
		zap.String("session_id", s.ID),
		zap.String("workflow_id", saved.ID))
	return saved, nil
}

// SaveDraft stores the current workflow in the draft store under the
// session id
func (s *Session) SaveDraft(ctx context.Context) error {
	if s.drafts == nil {
		return nil
	}
	wf := s.Store.Workflow()
	if err := s.drafts.SaveDraft(ctx, s.ID, &wf); err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	s.logger.Debug("draft saved",
		zap.String("session_id", s.ID),
		zap.Int("nodes", len(wf.Nodes)))
	return nil
}

// RestoreDraft loads the draft stored under key into the store. It reports
// false when there is no such draft.
func (s *Session) RestoreDraft(ctx context.Context, key string) (bool, error) {
	if s.drafts == nil {
		return false, nil
	}
	wf, err := s.drafts.LoadDraft(ctx, key)
	if errors.Is(err, ports.ErrDraftNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to restore draft: %w", err)
	}
	s.Store.LoadWorkflow(*wf)
	s.Store.SetSaveStatus(graph.SaveStatusUnsaved)
	s.logger.Info("draft restored",
		zap.String("session_id", s.ID),
		zap.String("draft_key", key))
	return true, nil
}

// scheduleAutosave (re)arms the draft timer after a graph change
func (s *Session) scheduleAutosave() {
	if s.drafts == nil || s.saveDelay <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	if s.autosave != nil {
		s.autosave.Stop()
	}
	s.autosave = time.AfterFunc(s.saveDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.SaveDraft(ctx); err != nil {
			s.logger.Warn("autosave failed", zap.String("session_id", s.ID), zap.Error(err))
		}
	})
}

// dispose stops the orchestrator and clears the store
func (s *Session) dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	if s.autosave != nil {
		s.autosave.Stop()
	}
	s.fields = nil
	s.mu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.Orchestrator.Close()
	s.Store.Close()
}
