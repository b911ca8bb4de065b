package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ritzau/update-engine/pkg/logging"
)

// TopicConfig configures buffering behavior for a topic
type TopicConfig struct {
	BufferSize int  // Number of events to buffer (0 = no buffering)
	ReplayAll  bool // If true, replay all buffered events; if false, only replay last event
}

// Bus is the in-process Publisher implementation. Per-topic version counters
// give subscribers an ordering handle, and per-topic ring buffers let late
// subscribers catch up on recent events.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string]map[*busSubscription]bool // topic -> set of subscriptions
	version       map[string]int                       // topic -> version counter
	eventBuffer   map[string][]Event                   // topic -> ring buffer of events
	topicConfig   map[string]TopicConfig               // topic -> configuration
	closed        bool
}

// NewBus creates a new in-process publisher
func NewBus() *Bus {
	return &Bus{
		subscriptions: make(map[string]map[*busSubscription]bool),
		version:       make(map[string]int),
		eventBuffer:   make(map[string][]Event),
		topicConfig:   make(map[string]TopicConfig),
	}
}

// ConfigureTopic sets buffering configuration for a topic
func (b *Bus) ConfigureTopic(topic string, config TopicConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topicConfig[topic] = config
}

// Subscribe creates a new subscription to a topic
func (b *Bus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	b.mu.Lock()

	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("publisher is closed")
	}

	sub := &busSubscription{
		topic:     topic,
		events:    make(chan Event, 100), // Buffered to prevent blocking publishers
		publisher: b,
	}

	if b.subscriptions[topic] == nil {
		b.subscriptions[topic] = make(map[*busSubscription]bool)
	}
	b.subscriptions[topic][sub] = true

	// Copy buffered events while holding the lock
	config := b.topicConfig[topic]
	buffered := make([]Event, len(b.eventBuffer[topic]))
	copy(buffered, b.eventBuffer[topic])

	b.mu.Unlock()

	// Replay buffered events to the new subscriber
	if len(buffered) > 0 {
		replay := buffered
		if !config.ReplayAll {
			replay = buffered[len(buffered)-1:]
		}
		for _, event := range replay {
			select {
			case sub.events <- event:
			default:
				logging.Warn("could not replay event to new subscriber", "topic", topic)
			}
		}
		logging.Debug("replayed events to new subscriber", "topic", topic, "count", len(replay))
	}

	// Context cancellation closes the subscription
	go func() {
		<-ctx.Done()
		sub.Close()
	}()

	return sub, nil
}

// Publish sends an event to all subscribers of a topic
func (b *Bus) Publish(topic string, eventType string, data interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("publisher is closed")
	}

	b.version[topic]++
	version := b.version[topic]

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	event := Event{
		Topic:   topic,
		Type:    eventType,
		Data:    jsonData,
		Version: version,
	}

	// Ring-buffer the event if the topic is configured for replay
	config := b.topicConfig[topic]
	if config.BufferSize > 0 {
		buffer := append(b.eventBuffer[topic], event)
		if len(buffer) > config.BufferSize {
			buffer = buffer[len(buffer)-config.BufferSize:]
		}
		b.eventBuffer[topic] = buffer
	}

	// Non-blocking fan-out: a slow subscriber drops events rather than
	// stalling the publishing mutation
	for sub := range b.subscriptions[topic] {
		select {
		case sub.events <- event:
		default:
			logging.Warn("subscription channel full, dropping event", "topic", topic, "type", eventType)
		}
	}

	return nil
}

// Close shuts down the publisher and all subscriptions
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, subs := range b.subscriptions {
		for sub := range subs {
			close(sub.events)
		}
	}
	b.subscriptions = make(map[string]map[*busSubscription]bool)

	return nil
}

// unsubscribe removes a subscription (called by subscription.Close())
func (b *Bus) unsubscribe(sub *busSubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs := b.subscriptions[sub.topic]; subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.subscriptions, sub.topic)
		}
	}
}

// busSubscription implements Subscription
type busSubscription struct {
	topic     string
	events    chan Event
	publisher *Bus
	closed    bool
	mu        sync.Mutex
}

// Topic returns the subscription topic
func (s *busSubscription) Topic() string {
	return s.topic
}

// Events returns a channel for receiving events
func (s *busSubscription) Events() <-chan Event {
	return s.events
}

// Close closes the subscription
func (s *busSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.publisher.unsubscribe(s)

	return nil
}
