package v1

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/xiaot623/converse/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const wsWriteTimeout = 10 * time.Second

// ChatWS serves chat over a websocket. Each text frame from the client
// is a chat request; the reply is streamed back as one JSON frame per
// event, terminal event included. The connection stays open for
// follow-up turns on the same or other sessions.
// GET /v1/chat/ws
func (h *Handler) ChatWS(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return badRequest(c, "websocket upgrade failed.")
	}
	defer conn.Close()

	for {
		var req domain.ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Debug("websocket closed unexpectedly")
			}
			return nil
		}

		if req.Message == "" {
			h.wsError(conn, req.SessionID, "message is required.")
			continue
		}
		if req.SessionID != "" && !uuidV4Re.MatchString(req.SessionID) {
			h.wsError(conn, req.SessionID, "session_id must be a valid UUID v4 string.")
			continue
		}

		sessionID := req.SessionID
		if sessionID == "" {
			sessionID = h.svc.NewSessionID()
		}

		events := h.svc.StreamChat(c.Request().Context(), sessionID, req.Message)
		for event := range events {
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				log.WithError(err).WithField("session_id", sessionID).Debug("websocket write failed")
				// Drain so the stream producer completes.
				for range events {
				}
				return nil
			}
		}
	}
}

func (h *Handler) wsError(conn *websocket.Conn, sessionID, detail string) {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(domain.StreamEvent{SessionID: sessionID, Error: detail, Finished: true}); err != nil {
		log.WithError(err).Debug("websocket error write failed")
	}
}
