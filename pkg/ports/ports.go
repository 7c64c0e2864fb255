// Package ports defines the collaborator contracts the editor engine consumes.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/aescanero/dago-editor/pkg/domain"
)

var (
	// ErrWorkflowNotFound is returned by repositories for unknown workflow ids
	ErrWorkflowNotFound = errors.New("workflow not found")
	// ErrDraftNotFound is returned by draft stores for unknown keys
	ErrDraftNotFound = errors.New("draft not found")
)

// ExecutionBackend runs a saved workflow remotely
type ExecutionBackend interface {
	Execute(ctx context.Context, req *domain.ExecuteRequest) (*domain.ExecuteResponse, error)
}

// WorkflowRepository persists workflows
type WorkflowRepository interface {
	List(ctx context.Context) ([]domain.Workflow, error)
	Get(ctx context.Context, id string) (*domain.Workflow, error)
	Create(ctx context.Context, wf *domain.Workflow) (*domain.Workflow, error)
	Update(ctx context.Context, id string, wf *domain.Workflow) (*domain.Workflow, error)
	Delete(ctx context.Context, id string) error
}

// DraftStore keeps unsaved editor state keyed by session
type DraftStore interface {
	SaveDraft(ctx context.Context, key string, wf *domain.Workflow) error
	LoadDraft(ctx context.Context, key string) (*domain.Workflow, error)
	DeleteDraft(ctx context.Context, key string) error
}

// EventHandler processes an event
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus publishes run and graph events
type EventBus interface {
	Publish(ctx context.Context, topic string, event domain.Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Close() error
}

// Event bus topics
const (
	TopicRunEvents   = "run.events"
	TopicGraphEvents = "graph.events"
)

// MetricsCollector records editor engine metrics
type MetricsCollector interface {
	RecordRunStarted(mode string)
	RecordRunFinished(state string, duration time.Duration)
	RecordRunRejected(reason string)
	RecordNodeTransition(status string)
	RecordVariableError(kind string)
	SetActiveSessions(count int)
}

// NopMetrics discards all metrics
type NopMetrics struct{}

func (NopMetrics) RecordRunStarted(string)                 {}
func (NopMetrics) RecordRunFinished(string, time.Duration) {}
func (NopMetrics) RecordRunRejected(string)                {}
func (NopMetrics) RecordNodeTransition(string)             {}
func (NopMetrics) RecordVariableError(string)              {}
func (NopMetrics) SetActiveSessions(int)                   {}
