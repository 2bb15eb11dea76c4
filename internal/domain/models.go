// Package domain defines the core domain models for the gateway.
package domain

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in a conversation. Messages are immutable
// once created; ordering within a session is significant.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Session is the persisted unit of conversational state. The first
// message is always a system message; the session manager's write path
// enforces that invariant.
type Session struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// TurnCount is the number of completed user+assistant exchange
	// pairs since the last summarization reset.
	TurnCount int       `json:"turn_count"`
	Messages  []Message `json:"messages"`
}

// ChatRequest is the payload for POST /v1/chat and POST /v1/chat/stream.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
	Stream    bool   `json:"stream,omitempty"`
}

// ChatResponse is the successful response from POST /v1/chat.
type ChatResponse struct {
	SessionID      string    `json:"session_id"`
	Message        string    `json:"message"`
	Model          string    `json:"model"`
	TokensUsed     int       `json:"tokens_used"`
	ResponseTimeMs float64   `json:"response_time_ms"`
	Timestamp      time.Time `json:"timestamp"`
}

// StreamEvent is a single chunk in a streaming chat response. The final
// event has Finished set; Error is non-empty only on terminal failures.
type StreamEvent struct {
	SessionID string `json:"session_id"`
	Delta     string `json:"delta"`
	Finished  bool   `json:"finished"`
	Error     string `json:"error,omitempty"`
}

// DeleteSessionRequest is the payload for DELETE /v1/chat/session.
type DeleteSessionRequest struct {
	SessionID string `json:"session_id"`
}

// DeleteSessionResponse confirms a session deletion.
type DeleteSessionResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// ErrorBody is the uniform error response for all 4xx/5xx results.
// Error is a stable machine-readable code; Detail is safe to show to
// the caller and never carries internal state.
type ErrorBody struct {
	Error     string    `json:"error"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse is the GET /health liveness payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadinessResponse is the GET /ready payload reporting dependency health.
type ReadinessResponse struct {
	Status         string    `json:"status"`
	StoreConnected bool      `json:"store_connected"`
	ModelReachable bool      `json:"model_reachable"`
	Timestamp      time.Time `json:"timestamp"`
}
