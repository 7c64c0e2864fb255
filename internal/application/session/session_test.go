package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aescanero/dago-editor/internal/application/playback"
	"github.com/aescanero/dago-editor/internal/autocomplete"
	"github.com/aescanero/dago-editor/internal/graph"
	"github.com/aescanero/dago-editor/internal/variable"
	"github.com/aescanero/dago-editor/pkg/adapters/storage/memory"
	"github.com/aescanero/dago-editor/pkg/domain"
	"github.com/aescanero/dago-editor/pkg/ports"
)

type stubBackend struct{}

func (stubBackend) Execute(context.Context, *domain.ExecuteRequest) (*domain.ExecuteResponse, error) {
	return &domain.ExecuteResponse{Status: domain.ResponseStatusOK}, nil
}

// blockingBackend holds Execute until release is closed
type blockingBackend struct {
	called  chan struct{}
	release chan struct{}
}

func newBlockingBackend() *blockingBackend {
	return &blockingBackend{called: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingBackend) Execute(context.Context, *domain.ExecuteRequest) (*domain.ExecuteResponse, error) {
	close(b.called)
	<-b.release
	return &domain.ExecuteResponse{
		Status:        domain.ResponseStatusOK,
		ExecutionPath: []string{"input_0", "output_0"},
		Outputs: map[string]domain.OutputResult{
			"output_0": {Output: "HELLO", Type: "Text", NodeID: "output_0"},
		},
	}, nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, topic string, event domain.Event) error {
	if topic != ports.TopicGraphEvents {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string, ports.EventHandler) error { return nil }
func (b *recordingBus) Close() error                                                { return nil }

func (b *recordingBus) types() []domain.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.EventType, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingMetrics struct {
	ports.NopMetrics
	mu       sync.Mutex
	active   int
	varKinds []string
}

func (m *recordingMetrics) SetActiveSessions(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = n
}

func (m *recordingMetrics) RecordVariableError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.varKinds = append(m.varKinds, kind)
}

func TestManagerLifecycle(t *testing.T) {
	metrics := &recordingMetrics{}
	m := NewManager(stubBackend{}, nil, WithMetrics(metrics))

	a := m.Create(context.Background())
	b := m.Create(context.Background())
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, 2, metrics.active)

	got, err := m.Get(a.ID)
	require.NoError(t, err)
	assert.Same(t, a, got)

	list := m.List()
	require.Len(t, list, 2)

	a.Store.AddNode("input", domain.Position{})
	require.NoError(t, m.Dispose(a.ID))
	assert.Empty(t, a.Store.Nodes())
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 1, metrics.active)

	_, err = m.Get(a.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, m.Dispose(a.ID), ErrSessionNotFound)

	m.Close()
	assert.Equal(t, 0, m.Len())
}

func TestReapIdle(t *testing.T) {
	m := NewManager(stubBackend{}, nil)
	idle := m.Create(context.Background())
	fresh := m.Create(context.Background())
	idle.lastSeen.Store(time.Now().Add(-time.Hour).UnixNano())

	assert.Equal(t, 1, m.ReapIdle(time.Minute))

	_, err := m.Get(idle.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m.Get(fresh.ID)
	assert.NoError(t, err)
}

func TestReaper(t *testing.T) {
	m := NewManager(stubBackend{}, nil)
	s := m.Create(context.Background())
	s.lastSeen.Store(time.Now().Add(-time.Hour).UnixNano())

	r := NewReaper(m, 5*time.Millisecond, time.Minute, nil)
	r.Start()
	r.Start()
	defer r.Stop()

	assert.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 5*time.Millisecond)
	r.Stop()
	r.Stop()
}

type countingPurger struct {
	mu     sync.Mutex
	calls  int
	maxAge time.Duration
}

func (p *countingPurger) PurgeDrafts(_ context.Context, maxAge time.Duration) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.maxAge = maxAge
	return 1, nil
}

func (p *countingPurger) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestReaperPurgesDrafts(t *testing.T) {
	m := NewManager(stubBackend{}, nil)
	purger := &countingPurger{}

	r := NewReaper(m, 5*time.Millisecond, time.Minute, nil)
	r.PurgeDrafts(purger, 24*time.Hour)
	r.Start()
	defer r.Stop()

	assert.Eventually(t, func() bool { return purger.count() > 0 }, time.Second, 5*time.Millisecond)
	purger.mu.Lock()
	assert.Equal(t, 24*time.Hour, purger.maxAge)
	purger.mu.Unlock()
}

func connectedPair(t *testing.T, s *Session) {
	t.Helper()
	in := s.Store.AddNode("input", domain.Position{})
	ai := s.Store.AddNode("openai", domain.Position{X: 200})
	require.Equal(t, "input_0", in.ID)
	require.Equal(t, "openai_0", ai.ID)
	s.Store.OnConnect(domain.Connection{Source: in.ID, Target: ai.ID})
}

func TestEditFieldCommitsToStore(t *testing.T) {
	m := NewManager(stubBackend{}, nil)
	s := m.Create(context.Background())
	connectedPair(t, s)

	state, err := s.EditField("openai_0", "prompt", func(f *autocomplete.Field) {
		f.Input("Say {{inp", 9)
	})
	require.NoError(t, err)
	assert.True(t, state.Open)
	require.Len(t, state.Suggestions, 1)
	assert.Equal(t, "input_0.output", state.Suggestions[0].Text())

	state, err = s.EditField("openai_0", "prompt", func(f *autocomplete.Field) {
		assert.True(t, f.KeyDown(autocomplete.KeyEnter))
	})
	require.NoError(t, err)
	assert.False(t, state.Open)
	assert.Equal(t, "Say {{ input_0.output}", state.Value)

	node, ok := s.Store.Node("openai_0")
	require.True(t, ok)
	assert.Equal(t, "Say {{ input_0.output}", node.StringParam("prompt"))

	_, err = s.EditField("missing", "prompt", func(*autocomplete.Field) {})
	assert.ErrorIs(t, err, graph.ErrNodeNotFound)
}

func TestCheckNodeRecordsMetrics(t *testing.T) {
	metrics := &recordingMetrics{}
	m := NewManager(stubBackend{}, nil, WithMetrics(metrics))
	s := m.Create(context.Background())
	connectedPair(t, s)

	s.Store.UpdateNodeParams("openai_0", map[string]any{
		"prompt": "{{input_0.output}}",
		"system": "{{ghost.output}}",
	})

	errs, err := s.CheckNode("openai_0")
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, variable.InvalidVariable, errs["system"].Kind)
	assert.Equal(t, []string{string(variable.InvalidVariable)}, metrics.varKinds)

	_, err = s.CheckNode("missing")
	assert.ErrorIs(t, err, graph.ErrNodeNotFound)
}

func TestSaveAndLoad(t *testing.T) {
	repo := memory.NewStore()
	m := NewManager(stubBackend{}, nil)
	ctx := context.Background()

	s := m.Create(ctx)
	connectedPair(t, s)
	s.Store.SetWorkflowName("Greeter")

	saved, err := s.Save(ctx, repo)
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)
	assert.Equal(t, saved.ID, s.Store.WorkflowID())
	assert.Equal(t, graph.SaveStatusSaved, s.Store.SaveStatus())

	s.Store.AddNode("output", domain.Position{})
	again, err := s.Save(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, again.ID)
	assert.Len(t, again.Nodes, 3)

	other := m.Create(ctx)
	wf, err := other.Load(ctx, repo, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "Greeter", wf.Name)
	assert.Len(t, other.Store.Nodes(), 3)
	assert.Len(t, other.Store.Edges(), 1)
	assert.Equal(t, saved.ID, other.Store.WorkflowID())

	_, err = other.Load(ctx, repo, "missing")
	assert.ErrorIs(t, err, ports.ErrWorkflowNotFound)
}

func TestDrafts(t *testing.T) {
	drafts := memory.NewStore()
	m := NewManager(stubBackend{}, nil, WithDrafts(drafts, 0))
	ctx := context.Background()

	s := m.Create(ctx)
	connectedPair(t, s)
	require.NoError(t, s.SaveDraft(ctx))

	other := m.Create(ctx)
	ok, err := other.RestoreDraft(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, other.Store.Nodes(), 2)
	assert.Equal(t, graph.SaveStatusUnsaved, other.Store.SaveStatus())

	ok, err = other.RestoreDraft(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAutosave(t *testing.T) {
	drafts := memory.NewStore()
	m := NewManager(stubBackend{}, nil, WithDrafts(drafts, 10*time.Millisecond))
	s := m.Create(context.Background())

	s.Store.AddNode("input", domain.Position{})

	assert.Eventually(t, func() bool {
		wf, err := drafts.LoadDraft(context.Background(), s.ID)
		return err == nil && len(wf.Nodes) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestGraphEvents(t *testing.T) {
	bus := &recordingBus{}
	m := NewManager(stubBackend{}, nil, WithEventBus(bus))
	s := m.Create(context.Background())

	s.Store.AddNode("input", domain.Position{})
	s.Store.ClearWorkflow()

	assert.Equal(t, []domain.EventType{domain.EventTypeGraphChanged, domain.EventTypeGraphCleared}, bus.types())
	bus.mu.Lock()
	defer bus.mu.Unlock()
	assert.Equal(t, s.ID, bus.events[0].SessionID)
	assert.Equal(t, "input_0", bus.events[0].NodeID)
}

func secondWorkflow(prompt string) *domain.Workflow {
	return &domain.Workflow{
		ID:   "wf-2",
		Name: "Second",
		Nodes: []domain.Node{
			{ID: "input_0", Type: "input", Data: domain.NodeData{Params: map[string]any{"nodeName": "input_0"}}},
			{ID: "openai_0", Type: "openai", Data: domain.NodeData{Params: map[string]any{"nodeName": "openai_0", "prompt": prompt}}},
			{ID: "output_0", Type: "output", Data: domain.NodeData{Params: map[string]any{"nodeName": "output_0"}}},
		},
		Edges: []domain.Edge{{ID: "e1", Source: "input_0", Target: "openai_0"}},
	}
}

func TestEditFieldAfterWorkflowSwitch(t *testing.T) {
	m := NewManager(stubBackend{}, nil)
	s := m.Create(context.Background())
	connectedPair(t, s)

	state, err := s.EditField("openai_0", "prompt", func(f *autocomplete.Field) {
		f.Input("OLD workflow {{in", 17)
	})
	require.NoError(t, err)
	require.True(t, state.Open)

	s.Store.LoadWorkflow(*secondWorkflow("fresh prompt"))

	var consumed bool
	state, err = s.EditField("openai_0", "prompt", func(f *autocomplete.Field) {
		consumed = f.KeyDown(autocomplete.KeyEnter)
	})
	require.NoError(t, err)
	assert.False(t, consumed)
	assert.False(t, state.Open)
	assert.Equal(t, "fresh prompt", state.Value)

	node, ok := s.Store.Node("openai_0")
	require.True(t, ok)
	assert.Equal(t, "fresh prompt", node.StringParam("prompt"))
}

func TestEditFieldFollowsOutsideEdits(t *testing.T) {
	m := NewManager(stubBackend{}, nil)
	s := m.Create(context.Background())
	connectedPair(t, s)

	_, err := s.EditField("openai_0", "prompt", func(f *autocomplete.Field) {
		f.Input("Say {{in", 8)
	})
	require.NoError(t, err)

	s.Store.UpdateNodeParams("openai_0", map[string]any{"prompt": "edited elsewhere"})

	state, err := s.EditField("openai_0", "prompt", func(f *autocomplete.Field) {
		assert.False(t, f.KeyDown(autocomplete.KeyEnter))
	})
	require.NoError(t, err)
	assert.Equal(t, "edited elsewhere", state.Value)

	node, _ := s.Store.Node("openai_0")
	assert.Equal(t, "edited elsewhere", node.StringParam("prompt"))
}

func TestEditFieldAfterDispose(t *testing.T) {
	m := NewManager(stubBackend{}, nil)
	s := m.Create(context.Background())
	connectedPair(t, s)
	s.dispose()

	s.Store.AddNode("input", domain.Position{})
	_, err := s.EditField("input_0", "prompt", func(*autocomplete.Field) {})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestLoadDuringRunDiscardsResults(t *testing.T) {
	backend := newBlockingBackend()
	repo := memory.NewStore()
	ctx := context.Background()
	m := NewManager(backend, nil, WithPacer(playback.Immediate))
	s := m.Create(ctx)
	connectedPair(t, s)
	s.Store.AddNode("output", domain.Position{X: 400})
	s.Store.SetWorkflowID("wf-1")

	_, err := repo.Create(ctx, secondWorkflow(""))
	require.NoError(t, err)

	_, err = s.Orchestrator.Start(ctx)
	require.NoError(t, err)
	<-backend.called

	_, err = s.Load(ctx, repo, "wf-2")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStateIdle, s.Orchestrator.State())
	close(backend.release)

	assert.Never(t, func() bool {
		node, _ := s.Store.Node("output_0")
		return node.Data.Results != nil || s.Orchestrator.State() != domain.RunStateIdle
	}, 100*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, "wf-2", s.Store.WorkflowID())
}

func TestReapIdleSkipsActiveRun(t *testing.T) {
	backend := newBlockingBackend()
	defer close(backend.release)
	m := NewManager(backend, nil, WithPacer(playback.Immediate))
	s := m.Create(context.Background())
	connectedPair(t, s)
	s.Store.AddNode("output", domain.Position{X: 400})
	s.Store.SetWorkflowID("wf-1")

	_, err := s.Orchestrator.Start(context.Background())
	require.NoError(t, err)
	<-backend.called
	require.True(t, s.Orchestrator.Active())

	s.lastSeen.Store(time.Now().Add(-time.Hour).UnixNano())
	assert.Equal(t, 0, m.ReapIdle(time.Minute))
	_, err = m.Get(s.ID)
	assert.NoError(t, err)
}
