// Package ai composes prompts and calls AI providers with retry and usage accounting.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nextlevelbuilder/hamdam/internal/providers"
	"github.com/nextlevelbuilder/hamdam/internal/store"
)

// Canned replies.
const (
	TechnicalErrorReply = "یک مشکل فنی در بخش هوش مصنوعی بوجود آمده است."
	UnavailableReply    = "متاسفانه در حال حاضر نمیتونم به این سوال جواب بدم. شاید بعدا بتونم."
)

// Usage receives token and failure accounting.
type Usage interface {
	AddTokens(n int)
	IncAIFailures()
}

// Config holds the persona texts and call policy.
type Config struct {
	Provider        string
	Model           string
	Persona         string
	PersonaSummary  string
	GroundedPersona string // fmt template: source text, then question
	Retry           providers.RetryConfig
	HistoryTurns    int
}

// Options override per-call defaults.
type Options struct {
	Provider string
	Model    string
	History  []providers.Message
}

// Orchestrator is the provider-agnostic generation layer.
type Orchestrator struct {
	reg     *providers.Registry
	cfg     Config
	usage   Usage
	history store.HistoryStore
}

// New creates an orchestrator. usage and history may be nil.
func New(reg *providers.Registry, cfg Config, usage Usage, history store.HistoryStore) *Orchestrator {
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry = providers.DefaultRetryConfig()
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = 2
	}
	return &Orchestrator{reg: reg, cfg: cfg, usage: usage, history: history}
}

type outcome int

const (
	outcomeOK outcome = iota
	outcomeConfigFault
	outcomeExhausted
	outcomeCancelled
)

// Generate returns a reply for userMessage. It never fails: configuration
// faults yield TechnicalErrorReply and exhausted retries yield UnavailableReply.
// A call abandoned because ctx ended is not counted as an AI failure.
func (o *Orchestrator) Generate(ctx context.Context, userMessage, persona string, opts Options) string {
	reply, _ := o.generate(ctx, userMessage, persona, opts)
	return reply
}

func (o *Orchestrator) generate(ctx context.Context, userMessage, persona string, opts Options) (string, outcome) {
	name := opts.Provider
	if name == "" {
		name = o.cfg.Provider
	}
	// The configured model belongs to the default provider; any other
	// provider falls back to its own default.
	model := opts.Model
	if model == "" && name == o.cfg.Provider {
		model = o.cfg.Model
	}

	ctx, span := otel.Tracer("hamdam/ai").Start(ctx, "ai.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("ai.provider", name),
		attribute.Int("ai.history_len", len(opts.History)),
	)

	p, err := o.reg.Get(name)
	if err != nil {
		slog.Error("ai provider not configured", "provider", name, "error", err)
		span.SetStatus(codes.Error, "unknown provider")
		return TechnicalErrorReply, outcomeConfigFault
	}

	req := providers.ChatRequest{
		Messages: composeMessages(userMessage, persona, o.cfg.PersonaSummary, opts.History),
		Model:    model,
	}

	resp, err := providers.RetryDo(ctx, o.cfg.Retry, func(attempt int) (*providers.ChatResponse, error) {
		slog.Debug("ai request", "provider", name, "attempt", attempt)
		r, err := p.Chat(ctx, req)
		if err != nil {
			slog.Error("ai request failed",
				"provider", name, "model", model, "attempt", attempt,
				"max_attempts", o.cfg.Retry.Attempts, "error", err)
			return nil, err
		}
		if strings.TrimSpace(r.Content) == "" {
			return nil, errors.New("empty completion")
		}
		return r, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if providers.IsAuthError(err) {
			slog.Error("ai provider rejected credentials, check the api key", "provider", name)
			return TechnicalErrorReply, outcomeConfigFault
		}
		if ctx.Err() != nil {
			slog.Info("ai request abandoned", "provider", name, "error", ctx.Err())
			return UnavailableReply, outcomeCancelled
		}
		slog.Error("all ai attempts failed", "provider", name, "error", err)
		if o.usage != nil {
			o.usage.IncAIFailures()
		}
		return UnavailableReply, outcomeExhausted
	}

	if resp.Usage != nil && o.usage != nil {
		o.usage.AddTokens(resp.Usage.TotalTokens)
		span.SetAttributes(attribute.Int("ai.total_tokens", resp.Usage.TotalTokens))
	}
	return resp.Content, outcomeOK
}

// composeMessages uses the short persona summary once a conversation has history.
func composeMessages(userMessage, persona, summary string, history []providers.Message) []providers.Message {
	system := persona
	if len(history) > 0 && summary != "" {
		system = summary
	}
	msgs := make([]providers.Message, 0, len(history)+2)
	msgs = append(msgs, providers.Message{Role: providers.RoleSystem, Content: system})
	msgs = append(msgs, history...)
	msgs = append(msgs, providers.Message{Role: providers.RoleUser, Content: userMessage})
	return msgs
}

// Conversation answers with the user's stored history and records the new turn.
// History persistence problems are logged; the reply is still returned.
func (o *Orchestrator) Conversation(ctx context.Context, userID, text string) string {
	var history []providers.Message
	if o.history != nil {
		h, err := o.history.GetHistory(ctx, userID)
		if err != nil {
			slog.Warn("load conversation history failed", "user", userID, "error", err)
		} else {
			history = h
		}
	}

	reply, res := o.generate(ctx, text, o.cfg.Persona, Options{History: history})
	if res != outcomeOK || o.history == nil {
		return reply
	}

	history = append(history,
		providers.Message{Role: providers.RoleUser, Content: text},
		providers.Message{Role: providers.RoleAssistant, Content: reply},
	)
	if limit := 2 * o.cfg.HistoryTurns; len(history) > limit {
		history = history[len(history)-limit:]
	}
	if err := o.history.SaveHistory(ctx, userID, history); err != nil {
		slog.Warn("save conversation history failed", "user", userID, "error", err)
	}
	return reply
}

// Stateless answers without history and without recording anything.
func (o *Orchestrator) Stateless(ctx context.Context, text string) string {
	return o.Generate(ctx, text, o.cfg.Persona, Options{})
}

// Grounded answers from a retrieved snippet only. History is neither read nor written.
func (o *Orchestrator) Grounded(ctx context.Context, text, snippet string) string {
	return o.Generate(ctx, text, renderGrounded(o.cfg.GroundedPersona, snippet, text), Options{})
}

func renderGrounded(tmpl, snippet, question string) string {
	if strings.Count(tmpl, "%s") != 2 {
		return fmt.Sprintf("**Source Text:** %q\n**User's Question:** %q\n\nAnswer using only the Source Text.", snippet, question)
	}
	return fmt.Sprintf(tmpl, snippet, question)
}
