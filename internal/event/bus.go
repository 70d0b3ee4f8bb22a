package event

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is an internal notification published by the executor, scheduler or
// activity log.
type Event struct {
	Type      string         `json:"type"`
	RunID     string         `json:"run_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// Subscriber receives events. Callbacks run on the publisher's goroutine and
// must not block.
type Subscriber func(event *Event)

// RunChannel names the per-run channel for a run id.
func RunChannel(runID string) string {
	return "run:" + runID
}

// Bus is an in-memory fan-out of events to channel subscribers. The wildcard
// channel "*" receives everything.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]map[uint64]Subscriber
	nextID      uint64
	logger      *zap.SugaredLogger
}

// NewBus creates an empty bus.
func NewBus(logger *zap.SugaredLogger) *Bus {
	return &Bus{
		subscribers: make(map[string]map[uint64]Subscriber),
		logger:      logger,
	}
}

// Subscribe registers a subscriber on a channel and returns its cancel func.
// Several subscribers may share one channel; cancelling one leaves the
// others attached.
func (b *Bus) Subscribe(channel string, sub Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(map[uint64]Subscriber)
	}
	b.subscribers[channel][id] = sub

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers[channel], id)
		if len(b.subscribers[channel]) == 0 {
			delete(b.subscribers, channel)
		}
	}
}

// Publish delivers an event to the wildcard subscribers and, when the event
// carries a run id, to that run's channel.
func (b *Bus) Publish(evt *Event) {
	if evt.Timestamp == 0 {
		evt.Timestamp = time.Now().UnixMilli()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	b.logger.Debugw("Publishing event",
		"type", evt.Type,
		"run_id", evt.RunID,
	)

	for _, sub := range b.subscribers["*"] {
		sub(evt)
	}
	if evt.RunID != "" {
		for _, sub := range b.subscribers[RunChannel(evt.RunID)] {
			sub(evt)
		}
	}
}
