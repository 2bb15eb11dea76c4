package chat

import "errors"

var (
	// ErrInferenceFailed re-signals any backend generation failure.
	// The underlying cause is logged, never surfaced to callers.
	ErrInferenceFailed = errors.New("model failed to generate a response")

	// ErrInferenceTimeout marks a generation that exceeded its deadline.
	ErrInferenceTimeout = errors.New("model inference timed out")
)
