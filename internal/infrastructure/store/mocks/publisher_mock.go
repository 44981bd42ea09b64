package mocks

import (
	"context"
	"sync"
)

// MockPublisher records published events instead of sending them.
type MockPublisher struct {
	mu sync.Mutex

	PublishCalls []PublishCall
	PublishErr   error
}

// PublishCall records parameters passed to Publish
type PublishCall struct {
	Topic string
	Key   string
	Event any
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{PublishCalls: make([]PublishCall, 0)}
}

func (m *MockPublisher) Publish(ctx context.Context, topic, key string, event any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PublishCalls = append(m.PublishCalls, PublishCall{Topic: topic, Key: key, Event: event})
	return m.PublishErr
}

// OnTopic returns the events published to topic, in order.
func (m *MockPublisher) OnTopic(topic string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()

	var events []any
	for _, c := range m.PublishCalls {
		if c.Topic == topic {
			events = append(events, c.Event)
		}
	}
	return events
}

func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublishCalls = make([]PublishCall, 0)
	m.PublishErr = nil
}
