package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nextlevelbuilder/hamdam/internal/bus"
)

type broadcastRequest struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chatId" validate:"required"`
	Message string `json:"message" validate:"required"`
}

type replyRequest struct {
	Channel   string `json:"channel"`
	ChatID    string `json:"chatId" validate:"required"`
	MessageID string `json:"messageId" validate:"required"`
	Message   string `json:"message" validate:"required"`
}

// handleBroadcast posts an HTML message into a chat.
func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if !s.decode(w, r, &req) {
		return
	}
	msg := bus.OutboundMessage{
		Channel: s.channelOr(req.Channel),
		ChatID:  req.ChatID,
		Content: req.Message,
		HTML:    true,
	}
	if err := s.deps.Sender.Send(r.Context(), msg); err != nil {
		slog.Error("broadcast failed", "chat", req.ChatID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to send message: "+err.Error())
		return
	}
	s.adminEvent(fmt.Sprintf("Sent broadcast to Chat ID: %s", req.ChatID))
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleReply answers a specific message, typically one surfaced by an
// "Unanswered" event on the live feed.
func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	var req replyRequest
	if !s.decode(w, r, &req) {
		return
	}
	msg := bus.OutboundMessage{
		Channel: s.channelOr(req.Channel),
		ChatID:  req.ChatID,
		Content: req.Message,
		ReplyTo: req.MessageID,
		HTML:    true,
	}
	if err := s.deps.Sender.Send(r.Context(), msg); err != nil {
		slog.Error("reply failed", "chat", req.ChatID, "message", req.MessageID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to send reply: "+err.Error())
		return
	}
	s.adminEvent(fmt.Sprintf("Sent reply to Message ID: %s in Chat ID: %s", req.MessageID, req.ChatID))
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) channelOr(name string) string {
	if name == "" {
		return s.cfg.DefaultChannel
	}
	return name
}
