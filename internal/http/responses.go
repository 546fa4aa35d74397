package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/nextlevelbuilder/hamdam/internal/store"
)

const reloadTimeout = 10 * time.Second

// responseForm is the dashboard's "add response" form. Multi-value fields
// are newline separated.
type responseForm struct {
	Trigger         string `json:"trigger" validate:"required"`
	Response        string `json:"response" validate:"required"`
	Type            string `json:"type" validate:"required"`
	MatchType       string `json:"matchType" validate:"required,oneof=exact smart"`
	ExcludeWords    string `json:"excludeWords"`
	RequiredContext string `json:"requiredContext"`
	SetsContext     string `json:"setsContext"`
}

func (f responseForm) rule() store.Rule {
	return store.Rule{
		Triggers:        splitLines(f.Trigger),
		Responses:       splitLines(f.Response),
		Kind:            f.Type,
		MatchType:       f.MatchType,
		ExcludeWords:    splitLines(f.ExcludeWords),
		RequiredContext: strings.TrimSpace(f.RequiredContext),
		SetsContext:     strings.TrimSpace(f.SetsContext),
	}
}

// splitLines trims each line and drops blanks.
func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// handleListResponses returns the catalog, newest first.
func (s *Server) handleListResponses(w http.ResponseWriter, r *http.Request) {
	rules, err := s.deps.Rules.ListRules(r.Context())
	if err != nil {
		slog.Error("responses.list", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list responses")
		return
	}
	slices.Reverse(rules)
	if rules == nil {
		rules = []store.Rule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handleCreateResponse(w http.ResponseWriter, r *http.Request) {
	var form responseForm
	if !s.decode(w, r, &form) {
		return
	}
	rule := form.rule()
	if err := rule.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Rules.CreateRule(r.Context(), &rule); err != nil {
		slog.Error("responses.create", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save response")
		return
	}
	slog.Info("response added", "id", rule.ID)

	s.adminEvent(fmt.Sprintf("Added response for trigger: %q", rule.Triggers[0]))
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"id":       rule.ID,
		"reloaded": s.reload(r.Context(), "response added"),
	})
}

// handleImport accepts a JSON array of rules and stores all or none.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var rules []store.Rule
	if !decodeJSON(w, r, &rules) {
		return
	}
	if len(rules) == 0 {
		writeError(w, http.StatusBadRequest, "no rules provided")
		return
	}
	for i := range rules {
		if err := rules[i].Validate(); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("rule %d: %v", i, err))
			return
		}
	}

	n, err := s.deps.Rules.ImportRules(r.Context(), rules)
	if err != nil {
		slog.Error("responses.import", "error", err)
		writeError(w, http.StatusInternalServerError, "import failed")
		return
	}

	s.adminEvent(fmt.Sprintf("Imported %d responses", n))
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"imported": n,
		"reloaded": s.reload(r.Context(), "bulk import"),
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reloader == nil {
		writeError(w, http.StatusServiceUnavailable, "reload unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), reloadTimeout)
	defer cancel()
	if err := s.deps.Reloader.RequestAndWait(ctx, "admin request"); err != nil {
		writeError(w, http.StatusInternalServerError, "reload failed: "+err.Error())
		return
	}
	s.adminEvent("Reloaded responses")
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// reload rebuilds the index after a catalog write; failures keep the old index.
func (s *Server) reload(ctx context.Context, reason string) bool {
	if s.deps.Reloader == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, reloadTimeout)
	defer cancel()
	if err := s.deps.Reloader.RequestAndWait(ctx, reason); err != nil {
		slog.Warn("catalog reload after write failed", "reason", reason, "error", err)
		return false
	}
	return true
}
