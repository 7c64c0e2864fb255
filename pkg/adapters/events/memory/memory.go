package memory

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/aescanero/dago-editor/pkg/domain"
	"github.com/aescanero/dago-editor/pkg/ports"
)

// DefaultBuffer is the per-subscriber queue length
const DefaultBuffer = 256

type subscriber struct {
	id      int
	handler ports.EventHandler
	queue   chan domain.Event
	done    chan struct{}
}

// EventBus implements EventBus with in-process subscribers. Each subscriber
// receives events in publish order on its own goroutine; a full queue drops
// the event for that subscriber.
type EventBus struct {
	subscribers map[string]map[int]*subscriber
	nextID      int
	buffer      int
	closed      bool
	mu          sync.RWMutex
	logger      *zap.Logger
}

// NewEventBus creates an in-memory event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{
		subscribers: make(map[string]map[int]*subscriber),
		buffer:      DefaultBuffer,
		logger:      logger,
	}
}

// Publish queues event for every subscriber of topic
func (e *EventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, sub := range e.subscribers[topic] {
		select {
		case sub.queue <- event:
		default:
			e.logger.Warn("subscriber queue full, event dropped",
				zap.String("topic", topic),
				zap.String("event_type", string(event.Type)),
				zap.Int("subscriber", sub.id))
		}
	}
	return nil
}

// Subscribe delivers topic events to handler until ctx is done
func (e *EventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	sub := &subscriber{
		id:      e.nextID,
		handler: handler,
		queue:   make(chan domain.Event, e.buffer),
		done:    make(chan struct{}),
	}
	e.nextID++
	if e.subscribers[topic] == nil {
		e.subscribers[topic] = make(map[int]*subscriber)
	}
	e.subscribers[topic][sub.id] = sub

	go e.deliver(ctx, topic, sub)
	go func() {
		select {
		case <-ctx.Done():
			e.unsubscribe(topic, sub.id)
		case <-sub.done:
		}
	}()
	return nil
}

// Close drops every subscription
func (e *EventBus) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for topic, subs := range e.subscribers {
		for id, sub := range subs {
			close(sub.done)
			delete(subs, id)
		}
		delete(e.subscribers, topic)
	}
	e.closed = true
	return nil
}

func (e *EventBus) deliver(ctx context.Context, topic string, sub *subscriber) {
	for {
		select {
		case <-sub.done:
			return
		case event := <-sub.queue:
			if err := sub.handler(ctx, event); err != nil {
				e.logger.Debug("event handler error",
					zap.String("topic", topic),
					zap.String("event_id", event.ID),
					zap.Error(err))
			}
		}
	}
}

// unsubscribe removes a subscriber from a topic
func (e *EventBus) unsubscribe(topic string, id int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	subs := e.subscribers[topic]
	if sub, ok := subs[id]; ok {
		close(sub.done)
		delete(subs, id)
	}
	if len(subs) == 0 {
		delete(e.subscribers, topic)
	}
}
