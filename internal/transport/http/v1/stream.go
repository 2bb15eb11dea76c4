package v1

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// StreamChat handles token-streamed chat over Server-Sent Events.
// POST /v1/chat/stream
func (h *Handler) StreamChat(c echo.Context) error {
	req, sessionID, err := h.bindChatRequest(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	return h.streamTo(c, sessionID, req.Message)
}

// streamTo writes one SSE data frame per stream event. Once streaming
// has started, errors arrive in-band as terminal events; the channel is
// always drained so generation and persistence complete even when the
// client is gone.
func (h *Handler) streamTo(c echo.Context, sessionID, message string) error {
	events := h.svc.StreamChat(c.Request().Context(), sessionID, message)

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	writeFailed := false
	for event := range events {
		if writeFailed {
			continue
		}
		payload, err := json.Marshal(event)
		if err != nil {
			log.WithError(err).Error("failed to marshal stream event")
			continue
		}
		if _, err := fmt.Fprintf(res, "data: %s\n\n", payload); err != nil {
			// Client disconnected. Keep draining so the producer can
			// finish and persist the assistant reply.
			log.WithField("session_id", sessionID).Debug("stream client disconnected")
			writeFailed = true
			continue
		}
		res.Flush()
	}
	return nil
}
