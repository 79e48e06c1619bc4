package testutils

import (
	"sync"

	"github.com/pricewatch/crypto-notify/cmd/gateway/internal/hub"
)

// MockClient simulates a connected websocket client
type MockClient struct {
	IDVal     string
	Envelopes []hub.Envelope
	Closed    bool
	Mu        sync.Mutex
}

func NewMockClient(id string) *MockClient {
	return &MockClient{IDVal: id}
}

func (m *MockClient) ID() string { return m.IDVal }

func (m *MockClient) Close() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
}

func (m *MockClient) SendJSON(v interface{}) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if env, ok := v.(hub.Envelope); ok {
		m.Envelopes = append(m.Envelopes, env)
	}
}

// Events lists the event names received, in order
func (m *MockClient) Events() []string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	var out []string
	for _, env := range m.Envelopes {
		out = append(out, env.Event)
	}
	return out
}
