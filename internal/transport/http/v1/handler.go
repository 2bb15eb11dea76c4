// Package v1 implements the public chat API handlers.
package v1

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/xiaot623/converse/internal/chat"
	"github.com/xiaot623/converse/internal/domain"
	"github.com/xiaot623/converse/internal/kv"
	"github.com/xiaot623/converse/internal/safety"
	"github.com/xiaot623/converse/internal/session"
)

var uuidV4Re = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// BackendHealth is implemented by inference clients that can report
// reachability of the model backend.
type BackendHealth interface {
	Healthy(ctx context.Context) bool
}

// Handler handles the /v1 chat API plus the health endpoints.
type Handler struct {
	svc     *chat.Service
	store   kv.Store
	backend BackendHealth
}

// NewHandler creates a handler. backend may be nil when the generator
// has no reachability probe (e.g. the mock).
func NewHandler(svc *chat.Service, store kv.Store, backend BackendHealth) *Handler {
	return &Handler{svc: svc, store: store, backend: backend}
}

// RegisterRoutes registers the chat API routes.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/chat", h.Chat)
	e.POST("/v1/chat/stream", h.StreamChat)
	e.GET("/v1/chat/ws", h.ChatWS)
	e.DELETE("/v1/chat/session", h.DeleteSession)
	e.GET("/health", h.Health)
	e.GET("/ready", h.Ready)
}

// Chat handles the standard chat request. stream:true in the body falls
// through to the SSE path.
// POST /v1/chat
func (h *Handler) Chat(c echo.Context) error {
	req, sessionID, err := h.bindChatRequest(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	if req.Stream {
		return h.streamTo(c, sessionID, req.Message)
	}

	resp, svcErr := h.svc.Chat(c.Request().Context(), sessionID, req.Message)
	if svcErr != nil {
		return h.writeError(c, svcErr)
	}
	return c.JSON(http.StatusOK, resp)
}

// DeleteSession clears a session's conversation history.
// DELETE /v1/chat/session
func (h *Handler) DeleteSession(c echo.Context) error {
	var req domain.DeleteSessionRequest
	if err := c.Bind(&req); err != nil || req.SessionID == "" {
		return badRequest(c, "session_id is required.")
	}

	if err := h.svc.DeleteSession(c.Request().Context(), req.SessionID); err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, domain.DeleteSessionResponse{
		Message:   "Session deleted successfully.",
		SessionID: req.SessionID,
	})
}

// Health is the liveness check.
// GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, domain.HealthResponse{
		Status:    "ok",
		Service:   "converse",
		Timestamp: time.Now().UTC(),
	})
}

// Ready reports readiness of the session store and inference backend.
// GET /ready
func (h *Handler) Ready(c echo.Context) error {
	ctx := c.Request().Context()

	storeOK := h.store.Ping(ctx) == nil
	modelOK := h.backend == nil || h.backend.Healthy(ctx)

	resp := domain.ReadinessResponse{
		Status:         "ready",
		StoreConnected: storeOK,
		ModelReachable: modelOK,
		Timestamp:      time.Now().UTC(),
	}
	if !storeOK || !modelOK {
		resp.Status = "not_ready"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

// bindChatRequest binds and validates the shared chat request shape,
// resolving the session id: validated when provided, generated when
// absent.
func (h *Handler) bindChatRequest(c echo.Context) (*domain.ChatRequest, string, error) {
	var req domain.ChatRequest
	if err := c.Bind(&req); err != nil {
		return nil, "", errors.New("Invalid request body.")
	}
	if req.Message == "" {
		return nil, "", errors.New("message is required.")
	}
	if req.SessionID != "" && !uuidV4Re.MatchString(req.SessionID) {
		return nil, "", errors.New("session_id must be a valid UUID v4 string.")
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = h.svc.NewSessionID()
	}
	return &req, sessionID, nil
}

// writeError maps domain errors to structured error bodies with stable
// machine-readable codes. Operational failures are logged with their
// cause and surface only a generic detail.
func (h *Handler) writeError(c echo.Context, err error) error {
	var violation *safety.Violation
	switch {
	case errors.As(err, &violation):
		return writeBody(c, http.StatusUnprocessableEntity, "INPUT_SAFETY_VIOLATION", violation.Reason)
	case errors.Is(err, session.ErrSessionNotFound):
		return writeBody(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found.")
	case errors.Is(err, session.ErrStoreUnavailable):
		log.WithError(err).Error("session store unavailable")
		return writeBody(c, http.StatusServiceUnavailable, "CACHE_ERROR", "Service temporarily unavailable. Please try again.")
	case errors.Is(err, session.ErrCorruptState):
		log.WithError(err).Error("corrupt session state")
		return writeBody(c, http.StatusInternalServerError, "CORRUPT_SESSION_STATE", "Internal server error.")
	case errors.Is(err, chat.ErrInferenceTimeout):
		return writeBody(c, http.StatusGatewayTimeout, "INFERENCE_TIMEOUT", "Model timed out. Please try again.")
	case errors.Is(err, chat.ErrInferenceFailed):
		return writeBody(c, http.StatusInternalServerError, "INFERENCE_FAILED", "Model error. Please try again.")
	default:
		log.WithError(err).Error("unexpected error")
		return writeBody(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error.")
	}
}

func badRequest(c echo.Context, detail string) error {
	return writeBody(c, http.StatusBadRequest, "INVALID_REQUEST", detail)
}

func writeBody(c echo.Context, status int, code, detail string) error {
	return c.JSON(status, domain.ErrorBody{
		Error:     code,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	})
}
