package generate

import (
	"context"
	"strings"
)

// MockBackend is a deterministic Backend for tests. It echoes a canned
// response, or a response derived from the prompt when none is set.
type MockBackend struct {
	Response string
	Err      error
	// Calls records every prompt passed to Generate or Stream.
	Calls []string
}

// NewMockBackend returns a mock that answers with the given response.
func NewMockBackend(response string) *MockBackend {
	return &MockBackend{Response: response}
}

func (m *MockBackend) response(prompt string) string {
	if m.Response != "" {
		return m.Response
	}
	return "mock response to: " + firstLine(prompt)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Generate returns the canned response.
func (m *MockBackend) Generate(ctx context.Context, prompt string, _ Sampling) (string, error) {
	m.Calls = append(m.Calls, prompt)
	if m.Err != nil {
		return "", m.Err
	}
	return m.response(prompt), nil
}

// Stream splits the canned response into word fragments.
func (m *MockBackend) Stream(ctx context.Context, prompt string, _ Sampling) (<-chan Fragment, error) {
	m.Calls = append(m.Calls, prompt)
	if m.Err != nil {
		return nil, m.Err
	}

	words := strings.SplitAfter(m.response(prompt), " ")
	out := make(chan Fragment)
	go func() {
		defer close(out)
		for _, w := range words {
			select {
			case out <- Fragment{Text: w}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close is a no-op.
func (m *MockBackend) Close() error { return nil }
