package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aescanero/dago-editor/internal/application/orchestrator"
	"github.com/aescanero/dago-editor/internal/application/playback"
	"github.com/aescanero/dago-editor/internal/autocomplete"
	"github.com/aescanero/dago-editor/internal/graph"
	"github.com/aescanero/dago-editor/internal/nodetype"
	"github.com/aescanero/dago-editor/internal/variable"
	"github.com/aescanero/dago-editor/pkg/domain"
	"github.com/aescanero/dago-editor/pkg/ports"
)

// ErrSessionNotFound is returned for unknown or disposed sessions
var ErrSessionNotFound = errors.New("session not found")

// Manager creates, tracks and disposes sessions
type Manager struct {
	backend  ports.ExecutionBackend
	drafts   ports.DraftStore
	eventBus ports.EventBus
	metrics  ports.MetricsCollector
	registry *nodetype.Registry
	pacer    playback.Pacer
	logger   *zap.Logger

	runConfig     orchestrator.Config
	autosaveDelay time.Duration

	sessions sync.Map // map[string]*Session
	mu       sync.Mutex
	count    int
}

// Option configures a Manager
type Option func(*Manager)

// WithDrafts enables draft autosave to store after delay of inactivity.
// A zero delay keeps drafts manual.
func WithDrafts(store ports.DraftStore, delay time.Duration) Option {
	return func(m *Manager) {
		m.drafts = store
		m.autosaveDelay = delay
	}
}

// WithEventBus publishes session events to bus
func WithEventBus(bus ports.EventBus) Option {
	return func(m *Manager) { m.eventBus = bus }
}

// WithMetrics records session and run metrics
func WithMetrics(mc ports.MetricsCollector) Option {
	return func(m *Manager) { m.metrics = mc }
}

// WithRegistry overrides the node kind registry
func WithRegistry(r *nodetype.Registry) Option {
	return func(m *Manager) { m.registry = r }
}

// WithRunConfig overrides the run timeout and playback pacing
func WithRunConfig(c orchestrator.Config) Option {
	return func(m *Manager) { m.runConfig = c }
}

// WithPacer overrides the playback pacer of new sessions
func WithPacer(p playback.Pacer) Option {
	return func(m *Manager) { m.pacer = p }
}

// NewManager creates an empty session manager
func NewManager(backend ports.ExecutionBackend, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		backend:   backend,
		metrics:   ports.NopMetrics{},
		registry:  nodetype.Default(),
		logger:    logger,
		runConfig: orchestrator.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create opens a new session with an empty workflow
func (m *Manager) Create(ctx context.Context) *Session {
	id := uuid.NewString()
	logger := m.logger.With(zap.String("session_id", id))

	store := graph.New(logger)
	orchOpts := []orchestrator.Option{
		orchestrator.WithConfig(m.runConfig),
		orchestrator.WithMetrics(m.metrics),
		orchestrator.WithSessionID(id),
	}
	if m.eventBus != nil {
		orchOpts = append(orchOpts, orchestrator.WithEventBus(m.eventBus))
	}
	if m.pacer != nil {
		orchOpts = append(orchOpts, orchestrator.WithPacer(m.pacer))
	}

	now := time.Now()
	s := &Session{
		ID:           id,
		Store:        store,
		Orchestrator: orchestrator.New(store, m.backend, logger, orchOpts...),
		Resolver:     variable.NewResolver(m.registry),
		createdAt:    now,
		logger:       logger,
		drafts:       m.drafts,
		metrics:      m.metrics,
		fields:       make(map[string]*autocomplete.Field),
		saveDelay:    m.autosaveDelay,
	}
	s.Touch()
	s.unsubscribe = store.Subscribe(func(c graph.Change) {
		m.onChange(s, c)
	})

	m.sessions.Store(id, s)
	m.adjust(1)
	logger.Info("session created")
	return s
}

// Registry returns the node kind registry shared by sessions
func (m *Manager) Registry() *nodetype.Registry {
	return m.registry
}

// Get returns a live session and marks it used
func (m *Manager) Get(id string) (*Session, error) {
	v, ok := m.sessions.Load(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s := v.(*Session)
	s.Touch()
	return s, nil
}

// List returns live sessions ordered by creation time
func (m *Manager) List() []*Session {
	var out []*Session
	m.sessions.Range(func(_, v any) bool {
		out = append(out, v.(*Session))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].createdAt.Before(out[j].createdAt) })
	return out
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Dispose closes a session: its store is cleared and playback cancelled.
// An in-flight backend call is left to finish and its result discarded.
func (m *Manager) Dispose(id string) error {
	v, ok := m.sessions.LoadAndDelete(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	v.(*Session).dispose()
	m.adjust(-1)
	m.logger.Info("session disposed", zap.String("session_id", id))
	return nil
}

// ReapIdle disposes sessions unused for longer than ttl and returns how
// many were removed
func (m *Manager) ReapIdle(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	var reaped int
	for _, s := range m.List() {
		if !s.LastSeen().Before(cutoff) {
			continue
		}
		if s.Orchestrator.Active() {
			continue
		}
		if err := m.Dispose(s.ID); err == nil {
			reaped++
		}
	}
	return reaped
}

// Close disposes every session
func (m *Manager) Close() {
	for _, s := range m.List() {
		_ = m.Dispose(s.ID)
	}
}

func (m *Manager) adjust(delta int) {
	m.mu.Lock()
	m.count += delta
	n := m.count
	m.mu.Unlock()
	m.metrics.SetActiveSessions(n)
}

func (m *Manager) onChange(s *Session, c graph.Change) {
	if c.Kind == graph.ChangeCleared || c.Kind == graph.ChangeLoaded {
		s.dropFields()
	}
	if c.Kind != graph.ChangeIdentity {
		s.scheduleAutosave()
	}
	if m.eventBus == nil {
		return
	}
	typ := domain.EventTypeGraphChanged
	if c.Kind == graph.ChangeCleared {
		typ = domain.EventTypeGraphCleared
	}
	event := domain.Event{
		ID:        uuid.NewString(),
		Type:      typ,
		SessionID: s.ID,
		NodeID:    c.NodeID,
		Timestamp: time.Now(),
		Data:      map[string]any{"kind": c.Kind},
	}
	if err := m.eventBus.Publish(context.Background(), ports.TopicGraphEvents, event); err != nil {
		m.logger.Warn("failed to publish graph event",
			zap.String("session_id", s.ID),
			zap.Error(err))
	}
}
