package inference

import (
	"context"
	"strings"
)

// MockGenerator is a deterministic Generator for tests and local
// development without a model backend.
type MockGenerator struct {
	// Response overrides the canned reply when non-empty.
	Response string
	// Err, when set, fails every call.
	Err error
	// Prompts records every prompt received, in order.
	Prompts []string

	model string
}

// NewMockGenerator creates a mock with the default canned response.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{model: "mock-model"}
}

func (m *MockGenerator) reply(prompt string) string {
	if m.Response != "" {
		return m.Response
	}
	if strings.Contains(prompt, "Summarize this conversation") {
		return "The user and assistant exchanged greetings and discussed a few topics."
	}
	return "This is a mock response."
}

func (m *MockGenerator) Generate(ctx context.Context, prompt string, _ Params) (*Result, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.Prompts = append(m.Prompts, prompt)
	text := m.reply(prompt)
	return &Result{Text: text, Tokens: estimateTokens(text)}, nil
}

// GenerateStream emits the canned response in small chunks, honouring
// ctx cancellation between chunks.
func (m *MockGenerator) GenerateStream(ctx context.Context, prompt string, _ Params, callback StreamCallback) (*Result, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.Prompts = append(m.Prompts, prompt)
	text := m.reply(prompt)

	const chunkSize = 10
	runes := []rune(text)
	for i := 0; i < len(runes); i += chunkSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		if err := callback(string(runes[i:end])); err != nil {
			return nil, err
		}
	}
	return &Result{Text: text, Tokens: estimateTokens(text)}, nil
}

func (m *MockGenerator) CountTokens(text string) int { return estimateTokens(text) }

func (m *MockGenerator) Model() string { return m.model }
