package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

const (
	streamBuffer = 16
	pingInterval = 25 * time.Second
)

// stream serves board updates and the caller's notifications as server-sent events.
func (h *handler) stream(c echo.Context) error {
	userID := currentUser(c)
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	flusher, ok := res.Writer.(http.Flusher)
	if !ok {
		return c.String(http.StatusInternalServerError, "stream unsupported")
	}

	sessionID := uuid.NewString()
	h.sessions.OnConnect(sessionID, userID)
	ch := h.hub.Add(userID, streamBuffer)
	h.logger.WithFields(log.Fields{"session": sessionID, "user": userID, "active": h.sessions.ActiveCount()}).Info("stream connected")
	defer func() {
		h.hub.Remove(userID, ch)
		who := h.sessions.OnDisconnect(sessionID)
		h.logger.WithFields(log.Fields{"session": sessionID, "user": who, "active": h.sessions.ActiveCount()}).Info("stream disconnected")
	}()

	res.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprintf(res, "event: ready\ndata: {\"sessionId\":%q}\n\n", sessionID); err != nil {
		return nil
	}
	flusher.Flush()

	ctx := c.Request().Context()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-ch:
			if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", msg.Event, msg.Data); err != nil {
				return nil
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := res.Write([]byte(": ping\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}
