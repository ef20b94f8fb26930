// mock_llm.go - Scripted language model client for testing
package testutil

import (
	"context"
	"errors"
	"sync"
)

// MockLLM implements agent.LLMClient with scripted responses. Responses are
// returned in order; the last one repeats once the script runs out.
type MockLLM struct {
	mu         sync.Mutex
	responses  []string
	callIndex  int
	err        error
	LastSystem string
	LastUser   string
	CallCount  int
}

// NewMockLLM creates a mock that replies with the given responses in order.
func NewMockLLM(responses ...string) *MockLLM {
	return &MockLLM{responses: responses}
}

// NewFailingLLM creates a mock whose calls fail with the given message.
func NewFailingLLM(msg string) *MockLLM {
	return &MockLLM{err: errors.New(msg)}
}

func (m *MockLLM) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastSystem = system
	m.LastUser = user
	m.CallCount++

	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return "", errors.New("mock llm has no responses")
	}

	resp := m.responses[m.callIndex]
	if m.callIndex < len(m.responses)-1 {
		m.callIndex++
	}
	return resp, nil
}
