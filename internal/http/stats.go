package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/nextlevelbuilder/hamdam/internal/store"
	"github.com/nextlevelbuilder/hamdam/internal/usage"
)

const (
	defaultStatsDays = 7
	maxStatsDays     = 90
)

type statsResponse struct {
	Today usage.Snapshot     `json:"today"`
	Days  []store.DailyStats `json:"days"`
}

// handleStats returns the live counters and the most recent flushed days.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	days := defaultStatsDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxStatsDays {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("days must be between 1 and %d", maxStatsDays))
			return
		}
		days = n
	}

	resp := statsResponse{Days: []store.DailyStats{}}
	if s.deps.Stats != nil {
		resp.Today = s.deps.Stats.Snapshot()
	}
	if s.deps.Days != nil {
		list, err := s.deps.Days.ListDays(r.Context(), days)
		if err != nil {
			slog.Error("stats.list", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to read stats")
			return
		}
		if list != nil {
			resp.Days = list
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type ignoreRequest struct {
	Text string `json:"text" validate:"required"`
}

// handleIgnore stops a question from being logged as unanswered again.
func (s *Server) handleIgnore(w http.ResponseWriter, r *http.Request) {
	if s.deps.Triage == nil {
		writeError(w, http.StatusServiceUnavailable, "triage log unavailable")
		return
	}
	var req ignoreRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.deps.Triage.Ignore(req.Text); err != nil {
		slog.Error("triage.ignore", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update ignore list")
		return
	}
	s.adminEvent(fmt.Sprintf("Ignored question: %q", req.Text))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "ignored": s.deps.Triage.Ignored()})
}
