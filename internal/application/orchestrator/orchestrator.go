package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aescanero/dago-editor/internal/application/playback"
	"github.com/aescanero/dago-editor/internal/graph"
	"github.com/aescanero/dago-editor/pkg/domain"
	"github.com/aescanero/dago-editor/pkg/ports"
)

// DefaultRunTimeout bounds the wait for the execution backend
const DefaultRunTimeout = 60 * time.Second

// Config tunes a run
type Config struct {
	RunTimeout time.Duration
	Playback   playback.Config
}

// DefaultConfig returns a 60s run timeout and default playback pacing
func DefaultConfig() Config {
	return Config{RunTimeout: DefaultRunTimeout, Playback: playback.DefaultConfig()}
}

// Status is a point-in-time view of the current or last run
type Status struct {
	RunID         string                         `json:"run_id,omitempty"`
	State         domain.RunState                `json:"state"`
	Mode          domain.ExecutionMode           `json:"mode"`
	CurrentStep   int                            `json:"current_step"`
	TotalSteps    int                            `json:"total_steps"`
	NodeStats     []domain.NodeStat              `json:"node_stats"`
	Results       map[string]domain.OutputResult `json:"results,omitempty"`
	ExecutionTime *float64                       `json:"execution_time,omitempty"`
	Error         string                         `json:"error,omitempty"`
	ErrorTitle    string                         `json:"error_title,omitempty"`
	Category      Category                       `json:"category,omitempty"`
	Hint          string                         `json:"hint,omitempty"`
	StartedAt     *time.Time                     `json:"started_at,omitempty"`
	FinishedAt    *time.Time                     `json:"finished_at,omitempty"`
}

// Orchestrator runs the workflow held by one graph store
type Orchestrator struct {
	store     *graph.Store
	backend   ports.ExecutionBackend
	eventBus  ports.EventBus
	metrics   ports.MetricsCollector
	pacer     playback.Pacer
	logger    *zap.Logger
	config    Config
	sessionID string

	// lifetime of the orchestrator; cancelled by Close
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()

	mu          sync.RWMutex
	closed      bool
	state       domain.RunState
	mode        domain.ExecutionMode
	runID       string
	runGen      uint64
	runCancel   context.CancelFunc
	inputs      map[string]domain.InputValue
	stats       []domain.NodeStat
	results     map[string]domain.OutputResult
	execTime    *float64
	execErr     *ExecutionError
	currentStep int
	totalSteps  int
	startedAt   *time.Time
	finishedAt  *time.Time
	done        chan struct{}
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithEventBus publishes run events to bus
func WithEventBus(bus ports.EventBus) Option {
	return func(o *Orchestrator) { o.eventBus = bus }
}

// WithMetrics records run metrics
func WithMetrics(m ports.MetricsCollector) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithPacer overrides the playback pacer
func WithPacer(p playback.Pacer) Option {
	return func(o *Orchestrator) { o.pacer = p }
}

// WithConfig overrides the run configuration
func WithConfig(c Config) Option {
	return func(o *Orchestrator) { o.config = c }
}

// WithSessionID tags published events with the owning session
func WithSessionID(id string) Option {
	return func(o *Orchestrator) { o.sessionID = id }
}

// New creates an idle orchestrator bound to store. Inputs and node stats
// follow the store's nodes until Close. Clearing or replacing the store's
// workflow abandons the current run and resets inputs.
func New(store *graph.Store, backend ports.ExecutionBackend, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		store:   store,
		backend: backend,
		metrics: ports.NopMetrics{},
		logger:  logger,
		config:  DefaultConfig(),
		ctx:     ctx,
		cancel:  cancel,
		state:   domain.RunStateIdle,
		mode:    domain.ModeStandard,
		inputs:  make(map[string]domain.InputValue),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.config.RunTimeout <= 0 {
		o.config.RunTimeout = DefaultRunTimeout
	}

	o.SyncInputs()
	o.unsubscribe = store.Subscribe(func(c graph.Change) {
		switch c.Kind {
		case graph.ChangeLoaded, graph.ChangeCleared:
			o.reset()
			o.SyncInputs()
		case graph.ChangeNodes:
			o.SyncInputs()
		}
	})
	return o
}

// SyncInputs rebuilds inputs from the store's input nodes and aligns node
// stats with the current nodes. New nodes start pending.
func (o *Orchestrator) SyncInputs() map[string]domain.InputValue {
	nodes := o.store.Nodes()

	o.mu.Lock()
	defer o.mu.Unlock()
	o.inputs = SyncInputs(nodes, o.inputs, o.logger)
	o.stats = reconcileStats(nodes, o.stats)
	return copyInputs(o.inputs)
}

// Inputs returns a copy of the current input snapshot
func (o *Orchestrator) Inputs() map[string]domain.InputValue {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return copyInputs(o.inputs)
}

// SetInput stores value for an existing input key
func (o *Orchestrator) SetInput(key string, value any) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	in, ok := o.inputs[key]
	if !ok {
		o.logger.Warn("attempted to update non-existent input", zap.String("input_id", key))
		return fmt.Errorf("%w: %s", ErrUnknownInput, key)
	}
	in.Value = value
	o.inputs[key] = in
	return nil
}

// SetMode selects the execution mode for the next run
func (o *Orchestrator) SetMode(mode domain.ExecutionMode) error {
	if !mode.IsValid() {
		return fmt.Errorf("invalid execution mode %q", mode)
	}
	o.mu.Lock()
	o.mode = mode
	o.mu.Unlock()
	return nil
}

// Readiness evaluates the run preconditions against the store
func (o *Orchestrator) Readiness() Readiness {
	nodes := o.store.Nodes()
	workflowID := o.store.WorkflowID()
	o.mu.RLock()
	defer o.mu.RUnlock()
	return CheckReadiness(nodes, workflowID, o.inputs)
}

// Ready reports whether a run may start
func (o *Orchestrator) Ready() bool {
	return o.Readiness().Ready()
}

// Start validates and launches a run, returning its id. The backend call
// and playback continue in the background; use Wait or Status to follow.
func (o *Orchestrator) Start(ctx context.Context) (string, error) {
	generation := o.store.Generation()
	nodes := o.store.Nodes()
	workflowID := o.store.WorkflowID()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return "", ErrClosed
	}
	if o.activeLocked() {
		o.mu.Unlock()
		o.metrics.RecordRunRejected("in_progress")
		return "", ErrRunInProgress
	}
	if !CheckReadiness(nodes, workflowID, o.inputs).Ready() {
		o.mu.Unlock()
		o.metrics.RecordRunRejected("not_ready")
		o.logger.Info("workflow not ready to run", zap.String("workflow_id", workflowID))
		return "", ErrNotReady
	}

	previous := o.state
	o.state = domain.RunStateValidating
	if violations := ValidateInputs(o.inputs); len(violations) > 0 {
		o.state = previous
		o.mu.Unlock()
		o.metrics.RecordRunRejected("validation")
		o.logger.Info("run inputs invalid",
			zap.String("workflow_id", workflowID),
			zap.Strings("violations", violations))
		return "", &ValidationError{Violations: violations}
	}

	now := time.Now()
	runID := uuid.NewString()
	runCtx, runCancel := context.WithCancel(o.ctx)
	o.runID = runID
	o.runGen = generation
	o.runCancel = runCancel
	o.state = domain.RunStateRunning
	o.stats = pendingStats(nodes)
	o.results = nil
	o.execTime = nil
	o.execErr = nil
	o.currentStep = 0
	o.totalSteps = 0
	o.startedAt = &now
	o.finishedAt = nil
	o.done = make(chan struct{})
	done := o.done
	req := &domain.ExecuteRequest{
		WorkflowID: workflowID,
		Inputs:     executionInputs(o.inputs),
		Mode:       o.mode,
	}
	o.mu.Unlock()

	o.metrics.RecordRunStarted(string(req.Mode))
	o.logger.Info("run started",
		zap.String("run_id", runID),
		zap.String("workflow_id", workflowID),
		zap.String("mode", string(req.Mode)),
		zap.Int("inputs", len(req.Inputs)))
	o.publish(ctx, domain.EventTypeRunStarted, runID, "", map[string]any{
		"workflow_id": workflowID,
		"mode":        req.Mode,
	})

	// the remote call outlives the caller's request
	callCtx := context.WithoutCancel(ctx)
	go func() {
		defer close(done)
		defer runCancel()
		o.execute(runCtx, callCtx, runID, req, now)
	}()
	return runID, nil
}

// Wait blocks until the current run finishes or ctx is done
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.RLock()
	done := o.done
	o.mu.RUnlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts a run and waits for it. The returned error is the start
// error or the run's ExecutionError.
func (o *Orchestrator) Run(ctx context.Context) (Status, error) {
	if _, err := o.Start(ctx); err != nil {
		return o.Status(), err
	}
	if err := o.Wait(ctx); err != nil {
		return o.Status(), err
	}
	status := o.Status()
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.execErr != nil {
		return status, o.execErr
	}
	return status, nil
}

// Status returns a copy of the run state
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()

	s := Status{
		RunID:         o.runID,
		State:         o.state,
		Mode:          o.mode,
		CurrentStep:   o.currentStep,
		TotalSteps:    o.totalSteps,
		NodeStats:     make([]domain.NodeStat, len(o.stats)),
		ExecutionTime: o.execTime,
		StartedAt:     o.startedAt,
		FinishedAt:    o.finishedAt,
	}
	copy(s.NodeStats, o.stats)
	if o.results != nil {
		s.Results = make(map[string]domain.OutputResult, len(o.results))
		for k, v := range o.results {
			s.Results[k] = v
		}
	}
	if o.execErr != nil {
		s.Error = o.execErr.Error()
		s.Category = o.execErr.Category
		s.ErrorTitle = o.execErr.Category.Title()
		s.Hint = o.execErr.Hint()
	}
	return s
}

// State returns the current run state
func (o *Orchestrator) State() domain.RunState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Active reports whether a run is validating or running
func (o *Orchestrator) Active() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.activeLocked()
}

// Close stops following the store and cancels any playback in progress.
// An in-flight backend call is not aborted; its result is discarded.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.cancel()
	if o.unsubscribe != nil {
		o.unsubscribe()
	}
}

// reset abandons the current run and returns to idle with empty inputs.
// The abandoned run's backend call and playback write nothing further.
func (o *Orchestrator) reset() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	runID, active, started := o.runID, o.activeLocked(), o.startedAt
	if o.runCancel != nil {
		o.runCancel()
	}
	o.runID = ""
	o.runCancel = nil
	o.state = domain.RunStateIdle
	o.inputs = make(map[string]domain.InputValue)
	o.stats = nil
	o.results = nil
	o.execTime = nil
	o.execErr = nil
	o.currentStep = 0
	o.totalSteps = 0
	o.startedAt = nil
	o.finishedAt = nil
	o.done = nil
	o.mu.Unlock()

	if active && started != nil {
		o.metrics.RecordRunFinished("abandoned", time.Since(*started))
		o.logger.Info("run abandoned on workflow change", zap.String("run_id", runID))
	}
}

// currentLocked reports whether runID is still the orchestrator's run
func (o *Orchestrator) currentLocked(runID string) bool {
	return o.runID == runID && !o.closed
}

func (o *Orchestrator) execute(runCtx, ctx context.Context, runID string, req *domain.ExecuteRequest, started time.Time) {
	resp, err := o.call(runCtx, ctx, req)
	if err == nil && resp.Status == domain.ResponseStatusError {
		msg := resp.Error
		if msg == "" {
			msg = "unknown error during workflow execution"
		}
		err = errors.New(msg)
	}
	if err != nil {
		o.fail(ctx, runID, started, err)
		return
	}

	o.mu.Lock()
	if !o.currentLocked(runID) {
		o.mu.Unlock()
		o.logger.Debug("discarding result of abandoned run", zap.String("run_id", runID))
		return
	}
	o.totalSteps = len(resp.ExecutionPath)
	o.mu.Unlock()

	if len(resp.ExecutionPath) == 0 {
		o.logger.Warn("no execution path returned from backend", zap.String("run_id", runID))
	}

	driver := playback.NewDriver(o.config.Playback, o.pacer, o.logger)
	obs := &runObserver{o: o, ctx: ctx, runID: runID, results: resp.NodeResults}
	if err := driver.Play(runCtx, resp.ExecutionPath, resp.NodeResults, obs); err != nil {
		o.logger.Debug("playback stopped", zap.String("run_id", runID), zap.Error(err))
		return
	}

	o.complete(ctx, runID, started, resp)
}

// call races the backend against the run timeout. On timeout the call is
// left running and its result dropped.
func (o *Orchestrator) call(runCtx, ctx context.Context, req *domain.ExecuteRequest) (*domain.ExecuteResponse, error) {
	type result struct {
		resp *domain.ExecuteResponse
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		resp, err := o.backend.Execute(ctx, req)
		if err == nil && resp == nil {
			err = errors.New("empty response from execution backend")
		}
		ch <- result{resp: resp, err: err}
	}()

	timer := time.NewTimer(o.config.RunTimeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r.resp, r.err
	case <-timer.C:
		return nil, &timeoutError{after: o.config.RunTimeout}
	case <-runCtx.Done():
		return nil, runCtx.Err()
	}
}

func (o *Orchestrator) complete(ctx context.Context, runID string, started time.Time, resp *domain.ExecuteResponse) {
	now := time.Now()
	elapsed := now.Sub(started)
	execTime := resp.ExecutionTime
	if execTime <= 0 {
		execTime = elapsed.Seconds()
	}

	o.mu.Lock()
	if !o.currentLocked(runID) {
		o.mu.Unlock()
		return
	}
	generation := o.runGen
	o.results = resp.Outputs
	if o.results == nil {
		o.results = make(map[string]domain.OutputResult)
	}
	o.execTime = &execTime
	o.state = domain.RunStateCompleted
	o.finishedAt = &now
	o.mu.Unlock()

	for _, out := range resp.Outputs {
		if out.NodeID != "" {
			o.store.UpdateNodeResultsAt(generation, out.NodeID, out.Output)
		}
	}

	o.metrics.RecordRunFinished(string(domain.RunStateCompleted), elapsed)
	o.logger.Info("run completed",
		zap.String("run_id", runID),
		zap.String("execution_id", resp.ExecutionID),
		zap.Float64("execution_time", execTime),
		zap.Int("outputs", len(resp.Outputs)))
	o.publish(ctx, domain.EventTypeRunCompleted, runID, "", map[string]any{
		"execution_time": execTime,
		"outputs":        len(resp.Outputs),
	})
}

// fail marks still-running nodes as error and records the categorized error.
// Completed nodes keep their status.
func (o *Orchestrator) fail(ctx context.Context, runID string, started time.Time, err error) {
	execErr := NewExecutionError(err)
	now := time.Now()

	o.mu.Lock()
	if !o.currentLocked(runID) {
		o.mu.Unlock()
		return
	}
	var relabeled int
	for i := range o.stats {
		if o.stats[i].Status == domain.NodeStatusRunning {
			o.stats[i].Status = domain.NodeStatusError
			relabeled++
		}
	}
	o.execErr = execErr
	o.state = domain.RunStateError
	o.finishedAt = &now
	o.mu.Unlock()

	for i := 0; i < relabeled; i++ {
		o.metrics.RecordNodeTransition(string(domain.NodeStatusError))
	}
	o.metrics.RecordRunFinished(string(domain.RunStateError), now.Sub(started))
	o.logger.Error("run failed",
		zap.String("run_id", runID),
		zap.String("category", string(execErr.Category)),
		zap.Error(err))
	o.publish(ctx, domain.EventTypeRunFailed, runID, "", map[string]any{
		"error":    execErr.Error(),
		"category": execErr.Category,
		"title":    execErr.Category.Title(),
		"hint":     execErr.Hint(),
	})
}

func (o *Orchestrator) publish(ctx context.Context, typ domain.EventType, runID, nodeID string, data map[string]any) {
	if o.eventBus == nil {
		return
	}
	event := domain.Event{
		ID:        uuid.NewString(),
		Type:      typ,
		SessionID: o.sessionID,
		RunID:     runID,
		NodeID:    nodeID,
		Timestamp: time.Now(),
		Data:      data,
	}
	if err := o.eventBus.Publish(ctx, ports.TopicRunEvents, event); err != nil {
		o.logger.Error("failed to publish run event",
			zap.String("run_id", runID),
			zap.String("event_type", string(typ)),
			zap.Error(err))
	}
}

func (o *Orchestrator) activeLocked() bool {
	return o.state == domain.RunStateValidating || o.state == domain.RunStateRunning
}

// runObserver applies playback steps to the node stats
type runObserver struct {
	o       *Orchestrator
	ctx     context.Context
	runID   string
	results map[string]domain.NodeResult
}

func (r *runObserver) StepStarted(index int, nodeID string, at time.Time) {
	o := r.o
	o.mu.Lock()
	if !o.currentLocked(r.runID) {
		o.mu.Unlock()
		return
	}
	o.currentStep = index + 1
	if i := statIndex(o.stats, nodeID); i >= 0 {
		start := at
		o.stats[i].Status = domain.NodeStatusRunning
		o.stats[i].StartTime = &start
	} else {
		o.logger.Debug("execution path names unknown node", zap.String("node_id", nodeID))
	}
	o.mu.Unlock()

	o.metrics.RecordNodeTransition(string(domain.NodeStatusRunning))
	o.publish(r.ctx, domain.EventTypeNodeStatus, r.runID, nodeID, map[string]any{
		"status": domain.NodeStatusRunning,
		"step":   index + 1,
	})
}

func (r *runObserver) StepFinished(index int, nodeID string, status domain.NodeStatus, elapsed time.Duration) {
	o := r.o
	secs := elapsed.Seconds()
	o.mu.Lock()
	if !o.currentLocked(r.runID) {
		o.mu.Unlock()
		return
	}
	if i := statIndex(o.stats, nodeID); i >= 0 {
		o.stats[i].Status = status
		o.stats[i].ExecutionTime = &secs
	}
	o.mu.Unlock()

	o.metrics.RecordNodeTransition(string(status))
	o.publish(r.ctx, domain.EventTypeNodeStatus, r.runID, nodeID, map[string]any{
		"status":         status,
		"step":           index + 1,
		"execution_time": secs,
	})

	result := r.results[nodeID]
	if status != domain.NodeStatusError || result.Error == "" {
		return
	}
	name := nodeID
	if n, ok := o.store.Node(nodeID); ok {
		name = n.Name()
	}
	o.logger.Warn("node failed",
		zap.String("run_id", r.runID),
		zap.String("node_id", nodeID),
		zap.String("error", result.Error))
	o.publish(r.ctx, domain.EventTypeNodeError, r.runID, nodeID, map[string]any{
		"node_name": name,
		"error":     result.Error,
		"message":   fmt.Sprintf("Error in node %q: %s", name, result.Error),
	})
}

func pendingStats(nodes []domain.Node) []domain.NodeStat {
	stats := make([]domain.NodeStat, len(nodes))
	for i, n := range nodes {
		stats[i] = domain.NodeStat{NodeID: n.ID, Status: domain.NodeStatusPending}
	}
	return stats
}

func reconcileStats(nodes []domain.Node, prev []domain.NodeStat) []domain.NodeStat {
	stats := pendingStats(nodes)
	for i := range stats {
		if j := statIndex(prev, stats[i].NodeID); j >= 0 {
			stats[i] = prev[j]
		}
	}
	return stats
}

func statIndex(stats []domain.NodeStat, nodeID string) int {
	for i := range stats {
		if stats[i].NodeID == nodeID {
			return i
		}
	}
	return -1
}

func executionInputs(inputs map[string]domain.InputValue) map[string]domain.ExecutionInput {
	out := make(map[string]domain.ExecutionInput, len(inputs))
	for k, v := range inputs {
		out[k] = domain.ExecutionInput{Value: v.Value, Type: v.Type}
	}
	return out
}

func copyInputs(in map[string]domain.InputValue) map[string]domain.InputValue {
	out := make(map[string]domain.InputValue, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func describeTimeout(d time.Duration) string {
	if d >= time.Second && d%time.Second == 0 {
		return fmt.Sprintf("%d seconds", int(d/time.Second))
	}
	return d.String()
}
