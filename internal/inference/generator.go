// Package inference abstracts the text-generation backend: a blocking
// and a token-streaming generate call against a single loaded model,
// plus the bounded worker pool that serializes access to it.
package inference

import (
	"context"
	"unicode/utf8"
)

// Params are the sampling parameters for one generation call.
type Params struct {
	MaxTokens         int
	Temperature       float64
	TopP              float64
	RepetitionPenalty float64
}

// Result is the outcome of a completed generation.
type Result struct {
	Text string
	// Tokens is the completion token count reported by the backend,
	// or an estimate when the backend does not report usage.
	Tokens int
}

// StreamCallback receives each incremental text delta during a
// streaming generation. Returning an error aborts the stream.
type StreamCallback func(delta string) error

// Generator is the inference backend collaborator.
type Generator interface {
	// Generate runs a blocking completion for prompt.
	Generate(ctx context.Context, prompt string, p Params) (*Result, error)

	// GenerateStream runs a streaming completion, invoking callback
	// per delta. The returned Result carries the full accumulated
	// text and final token usage.
	GenerateStream(ctx context.Context, prompt string, p Params, callback StreamCallback) (*Result, error)

	// CountTokens estimates the token count of text.
	CountTokens(text string) int

	// Model returns the short model label exposed in API responses.
	Model() string
}

// estimateTokens is the shared fallback when the backend reports no
// usage: roughly four characters per token.
func estimateTokens(text string) int {
	n := utf8.RuneCountInString(text) / 4
	if n < 1 && text != "" {
		return 1
	}
	return n
}
