package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aescanero/dago-editor/pkg/domain"
	"github.com/aescanero/dago-editor/pkg/ports"
)

// Store implements WorkflowRepository and DraftStore using in-memory maps
type Store struct {
	workflows map[string]domain.Workflow
	drafts    map[string]domain.Workflow
	mu        sync.RWMutex
	now       func() time.Time
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		workflows: make(map[string]domain.Workflow),
		drafts:    make(map[string]domain.Workflow),
		now:       time.Now,
	}
}

// List returns all workflows ordered by creation time
func (s *Store) List(ctx context.Context) ([]domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		out = append(out, wf.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(*out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(*out[j].CreatedAt)
	})
	return out, nil
}

// Get returns the workflow with the given id
func (s *Store) Get(ctx context.Context, id string) (*domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrWorkflowNotFound, id)
	}
	out := wf.Clone()
	return &out, nil
}

// Create stores wf under a new id unless it already carries one
func (s *Store) Create(ctx context.Context, wf *domain.Workflow) (*domain.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := wf.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if _, exists := s.workflows[stored.ID]; exists {
		return nil, fmt.Errorf("workflow already exists: %s", stored.ID)
	}
	if stored.Status == "" {
		stored.Status = domain.WorkflowStatusDraft
	}
	now := s.now()
	stored.CreatedAt = &now
	stored.UpdatedAt = &now
	s.workflows[stored.ID] = stored

	out := stored.Clone()
	return &out, nil
}

// Update replaces the workflow with the given id
func (s *Store) Update(ctx context.Context, id string, wf *domain.Workflow) (*domain.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrWorkflowNotFound, id)
	}
	stored := wf.Clone()
	stored.ID = id
	stored.CreatedAt = existing.CreatedAt
	if stored.Status == "" {
		stored.Status = existing.Status
	}
	now := s.now()
	stored.UpdatedAt = &now
	s.workflows[id] = stored

	out := stored.Clone()
	return &out, nil
}

// Delete removes the workflow with the given id
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[id]; !ok {
		return fmt.Errorf("%w: %s", ports.ErrWorkflowNotFound, id)
	}
	delete(s.workflows, id)
	return nil
}

// SaveDraft stores wf under key, replacing any previous draft
func (s *Store) SaveDraft(ctx context.Context, key string, wf *domain.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drafts[key] = wf.Clone()
	return nil
}

// LoadDraft returns the draft stored under key
func (s *Store) LoadDraft(ctx context.Context, key string) (*domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, ok := s.drafts[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrDraftNotFound, key)
	}
	out := wf.Clone()
	return &out, nil
}

// DeleteDraft removes the draft stored under key
// Note: deleting a missing draft is not an error
func (s *Store) DeleteDraft(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.drafts, key)
	return nil
}
