package playback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aescanero/dago-editor/pkg/domain"
)

type step struct {
	event  string
	index  int
	nodeID string
	status domain.NodeStatus
}

type recorder struct {
	steps  []step
	onStep func(index int)
}

func (r *recorder) StepStarted(index int, nodeID string, _ time.Time) {
	r.steps = append(r.steps, step{event: "start", index: index, nodeID: nodeID})
	if r.onStep != nil {
		r.onStep(index)
	}
}

func (r *recorder) StepFinished(index int, nodeID string, status domain.NodeStatus, _ time.Duration) {
	r.steps = append(r.steps, step{event: "finish", index: index, nodeID: nodeID, status: status})
}

func TestStepDelay(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, 300*time.Millisecond, c.StepDelay(1))
	assert.Equal(t, 300*time.Millisecond, c.StepDelay(3))
	assert.Equal(t, 250*time.Millisecond, c.StepDelay(4))
	assert.Equal(t, 100*time.Millisecond, c.StepDelay(10))
	assert.Equal(t, 50*time.Millisecond, c.StepDelay(20))
	assert.Equal(t, 50*time.Millisecond, c.StepDelay(500))
	assert.Equal(t, 300*time.Millisecond, c.StepDelay(0))
}

func TestPlayIsSequential(t *testing.T) {
	var waits []time.Duration
	pacer := PacerFunc(func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	})
	d := NewDriver(DefaultConfig(), pacer, nil)
	rec := &recorder{}

	results := map[string]domain.NodeResult{
		"b": {Status: domain.ResponseStatusError, Error: "boom"},
	}
	err := d.Play(context.Background(), []string{"a", "b", "c", "d"}, results, rec)
	require.NoError(t, err)

	assert.Equal(t, []step{
		{event: "start", index: 0, nodeID: "a"},
		{event: "finish", index: 0, nodeID: "a", status: domain.NodeStatusCompleted},
		{event: "start", index: 1, nodeID: "b"},
		{event: "finish", index: 1, nodeID: "b", status: domain.NodeStatusError},
		{event: "start", index: 2, nodeID: "c"},
		{event: "finish", index: 2, nodeID: "c", status: domain.NodeStatusCompleted},
		{event: "start", index: 3, nodeID: "d"},
		{event: "finish", index: 3, nodeID: "d", status: domain.NodeStatusCompleted},
	}, rec.steps)
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond, 250 * time.Millisecond, 250 * time.Millisecond}, waits)
}

func TestPlayStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{onStep: func(index int) {
		if index == 1 {
			cancel()
		}
	}}
	d := NewDriver(DefaultConfig(), Immediate, nil)

	err := d.Play(ctx, []string{"a", "b", "c"}, nil, rec)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, rec.steps, 3)
	assert.Equal(t, "start", rec.steps[2].event)
	assert.Equal(t, "b", rec.steps[2].nodeID)
}

func TestRealTimePacerHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := RealTime.Wait(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, RealTime.Wait(context.Background(), time.Millisecond))
}
