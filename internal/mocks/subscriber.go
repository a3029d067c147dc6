package mocks

import (
	"context"
	"encoding/json"
	"sync"
)

// MockSubscriber implements notify.Subscriber for testing
type MockSubscriber struct {
	// Custom behavior functions
	AcceptFn func(ctx context.Context) error
	SendFn   func(ctx context.Context, payload []byte) error

	mu          sync.Mutex
	accepted    bool
	messages    [][]byte
	closed      bool
	closeCode   int
	closeReason string
}

// NewMockSubscriber creates a MockSubscriber that accepts and records everything
func NewMockSubscriber() *MockSubscriber {
	return &MockSubscriber{}
}

// Accept implements notify.Subscriber
func (m *MockSubscriber) Accept(ctx context.Context) error {
	if m.AcceptFn != nil {
		if err := m.AcceptFn(ctx); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.accepted = true
	m.mu.Unlock()
	return nil
}

// Send implements notify.Subscriber
func (m *MockSubscriber) Send(ctx context.Context, payload []byte) error {
	if m.SendFn != nil {
		if err := m.SendFn(ctx, payload); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.messages = append(m.messages, append([]byte(nil), payload...))
	m.mu.Unlock()
	return nil
}

// Close implements notify.Subscriber
func (m *MockSubscriber) Close(code int, reason string) error {
	m.mu.Lock()
	m.closed = true
	m.closeCode = code
	m.closeReason = reason
	m.mu.Unlock()
	return nil
}

// Accepted reports whether Accept succeeded
func (m *MockSubscriber) Accepted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accepted
}

// Messages returns the decoded JSON objects received so far
func (m *MockSubscriber) Messages() []map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]map[string]interface{}, 0, len(m.messages))
	for _, raw := range m.messages {
		var msg map[string]interface{}
		if err := json.Unmarshal(raw, &msg); err == nil {
			out = append(out, msg)
		}
	}
	return out
}

// Closed returns the close code and reason, and whether Close was called
func (m *MockSubscriber) Closed() (int, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCode, m.closeReason, m.closed
}
