// Package http serves the admin dashboard API: catalog management, manual
// messaging, triage, usage stats, the live event feed and Prometheus metrics.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nextlevelbuilder/hamdam/internal/bus"
	"github.com/nextlevelbuilder/hamdam/internal/store"
	"github.com/nextlevelbuilder/hamdam/internal/triage"
	"github.com/nextlevelbuilder/hamdam/internal/usage"
	"github.com/nextlevelbuilder/hamdam/pkg/protocol"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Sender delivers admin-initiated messages. channels.Manager satisfies it.
type Sender interface {
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// Reloader rebuilds the trigger index. catalog.Reloader satisfies it.
type Reloader interface {
	RequestAndWait(ctx context.Context, reason string) error
}

// Events is the telemetry hub the dashboard listens to.
type Events interface {
	bus.EventPublisher
	Recent() []bus.Event
}

// Config holds listener and credential settings.
type Config struct {
	Addr           string
	User           string
	Password       string
	DefaultChannel string // used when a broadcast names no channel
}

// Deps are the collaborators. Triage and Metrics may be nil.
type Deps struct {
	Rules    store.RuleStore
	Days     store.StatsStore
	Reloader Reloader
	Sender   Sender
	Events   Events
	Triage   *triage.Log
	Stats    *usage.Stats
	Metrics  *usage.Metrics
}

// Server is the admin HTTP server.
type Server struct {
	cfg      Config
	deps     Deps
	auth     *authGuard
	validate *validator.Validate
}

func New(cfg Config, deps Deps) *Server {
	if cfg.DefaultChannel == "" {
		cfg.DefaultChannel = "telegram"
	}
	if cfg.User == "" || cfg.Password == "" {
		slog.Warn("dashboard credentials are not set; admin API will refuse requests")
	}
	return &Server{
		cfg:      cfg,
		deps:     deps,
		auth:     newAuthGuard(cfg.User, cfg.Password),
		validate: newValidator(),
	}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.auth.middleware)

		if s.deps.Metrics != nil {
			r.Handle("/metrics", promhttp.HandlerFor(s.deps.Metrics.Registry, promhttp.HandlerOpts{}))
		}

		r.Route("/api", func(r chi.Router) {
			r.Get("/responses", s.handleListResponses)
			r.Post("/responses", s.handleCreateResponse)
			r.Post("/import", s.handleImport)
			r.Post("/reload", s.handleReload)
			r.Post("/broadcast", s.handleBroadcast)
			r.Post("/reply", s.handleReply)
			r.Post("/triage/ignore", s.handleIgnore)
			r.Get("/stats", s.handleStats)
			r.Get("/events", s.handleEvents)
		})
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("admin api listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// adminEvent records a dashboard mutation on the live feed.
func (s *Server) adminEvent(trigger string) {
	if s.deps.Events == nil {
		return
	}
	s.deps.Events.Broadcast(bus.Event{
		EventType: protocol.EventAdminAction,
		User:      protocol.UserAdmin,
		ChatInfo:  protocol.ChatInfoDashboard,
		Trigger:   trigger,
	})
}

// decode reads a JSON body into a struct and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !decodeJSON(w, r, dst) {
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs[0].Field() + " is " + verrs[0].Tag()
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
