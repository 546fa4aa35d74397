package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/nextlevelbuilder/hamdam/internal/bus"
)

const (
	eventBuffer  = 64
	writeTimeout = 5 * time.Second
)

// handleEvents streams bus events over a websocket: the hub backlog as of
// connect time, then live events. A subscriber that falls behind loses events rather than
// blocking the router.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Events == nil {
		writeError(w, http.StatusServiceUnavailable, "event feed unavailable")
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("event feed upgrade failed", "error", err)
		return
	}
	defer conn.CloseNow()

	// The dashboard never sends; CloseRead handles control frames and
	// cancels ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	backlog := s.deps.Events.Recent()
	id := uuid.NewString()
	events := make(chan bus.Event, eventBuffer)
	s.deps.Events.Subscribe(id, func(e bus.Event) {
		select {
		case events <- e:
		default:
			slog.Debug("event feed subscriber too slow, dropping event", "subscriber", id)
		}
	})
	defer s.deps.Events.Unsubscribe(id)
	slog.Info("dashboard connected to event feed", "subscriber", id)

	for _, e := range backlog {
		if err := writeEvent(ctx, conn, e); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case e := <-events:
			if err := writeEvent(ctx, conn, e); err != nil {
				slog.Debug("event feed write failed", "subscriber", id, "error", err)
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, e bus.Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, e)
}
