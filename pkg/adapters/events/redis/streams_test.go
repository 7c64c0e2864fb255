package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aescanero/dago-editor/pkg/domain"
)

func TestDecodeMessage(t *testing.T) {
	event, err := decodeMessage(redis.XMessage{ID: "1-0", Values: map[string]interface{}{
		"data": `{"id":"e1","type":"node.status","run_id":"r1","node_id":"input_0","timestamp":"2024-01-01T00:00:00Z"}`,
	}})
	require.NoError(t, err)
	assert.Equal(t, "e1", event.ID)
	assert.Equal(t, domain.EventTypeNodeStatus, event.Type)
	assert.Equal(t, "input_0", event.NodeID)

	_, err = decodeMessage(redis.XMessage{ID: "2-0", Values: map[string]interface{}{}})
	assert.Error(t, err)

	_, err = decodeMessage(redis.XMessage{ID: "3-0", Values: map[string]interface{}{"data": "{"}})
	assert.Error(t, err)
}

func TestStreamKey(t *testing.T) {
	assert.Equal(t, "dago-editor:events:run.events", getStreamKey("run.events"))
}

func TestBroadcastRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	bus := NewStreamsEventBus(client, "", "", nil)
	topic := "test." + uuid.NewString()
	defer client.Del(context.Background(), getStreamKey(topic))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan domain.Event, 1)
	require.NoError(t, bus.Subscribe(ctx, topic, func(_ context.Context, e domain.Event) error {
		got <- e
		return nil
	}))

	// XREAD from "$" only sees entries added after the read starts
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, bus.Publish(ctx, topic, domain.Event{ID: "e1", Type: domain.EventTypeRunStarted}))

	select {
	case e := <-got:
		assert.Equal(t, "e1", e.ID)
	case <-time.After(3 * time.Second):
		t.Fatal("event not received")
	}
}
