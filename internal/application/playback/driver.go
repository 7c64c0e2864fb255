package playback

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aescanero/dago-editor/pkg/domain"
)

// Default pacing bounds
const (
	DefaultBudget   = time.Second
	DefaultMinDelay = 50 * time.Millisecond
	DefaultMaxDelay = 300 * time.Millisecond
)

// Pacer waits between steps
type Pacer interface {
	Wait(ctx context.Context, d time.Duration) error
}

// PacerFunc adapts a function to Pacer
type PacerFunc func(ctx context.Context, d time.Duration) error

// Wait calls f
func (f PacerFunc) Wait(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// RealTime sleeps for the full delay unless ctx is done first
var RealTime Pacer = PacerFunc(func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
})

// Immediate never waits; it only honours cancellation
var Immediate Pacer = PacerFunc(func(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
})

// Observer receives node transitions in path order
type Observer interface {
	StepStarted(index int, nodeID string, at time.Time)
	StepFinished(index int, nodeID string, status domain.NodeStatus, elapsed time.Duration)
}

// Config bounds the per-step delay
type Config struct {
	Budget   time.Duration
	MinDelay time.Duration
	MaxDelay time.Duration
}

// DefaultConfig spreads one second over the path, 50ms to 300ms per step
func DefaultConfig() Config {
	return Config{Budget: DefaultBudget, MinDelay: DefaultMinDelay, MaxDelay: DefaultMaxDelay}
}

// StepDelay returns clamp(Budget/pathLen, MinDelay, MaxDelay)
func (c Config) StepDelay(pathLen int) time.Duration {
	if pathLen <= 0 {
		return c.MaxDelay
	}
	d := c.Budget / time.Duration(pathLen)
	if d < c.MinDelay {
		return c.MinDelay
	}
	if d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}

// Driver replays an execution path
type Driver struct {
	config Config
	pacer  Pacer
	now    func() time.Time
	logger *zap.Logger
}

// NewDriver creates a driver; a nil pacer waits in real time
func NewDriver(config Config, pacer Pacer, logger *zap.Logger) *Driver {
	if pacer == nil {
		pacer = RealTime
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{config: config, pacer: pacer, now: time.Now, logger: logger}
}

// Play walks path sequentially. Each node is started, held for the step
// delay and then finished as completed, or error when its result failed.
// A cancelled ctx stops the walk and leaves the current node started.
func (d *Driver) Play(ctx context.Context, path []string, results map[string]domain.NodeResult, obs Observer) error {
	delay := d.config.StepDelay(len(path))
	d.logger.Debug("playback started",
		zap.Int("steps", len(path)),
		zap.Duration("step_delay", delay))

	for i, nodeID := range path {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := d.now()
		obs.StepStarted(i, nodeID, start)

		if err := d.pacer.Wait(ctx, delay); err != nil {
			d.logger.Debug("playback interrupted",
				zap.String("node_id", nodeID),
				zap.Int("step", i))
			return err
		}

		status := domain.NodeStatusCompleted
		if results[nodeID].Failed() {
			status = domain.NodeStatusError
		}
		obs.StepFinished(i, nodeID, status, d.now().Sub(start))
	}
	return nil
}
