// Package router decides which tier answers each inbound chat message.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/hamdam/internal/antispam"
	"github.com/nextlevelbuilder/hamdam/internal/bus"
	"github.com/nextlevelbuilder/hamdam/internal/catalog"
	"github.com/nextlevelbuilder/hamdam/internal/state"
	"github.com/nextlevelbuilder/hamdam/internal/store"
	"github.com/nextlevelbuilder/hamdam/internal/triage"
	"github.com/nextlevelbuilder/hamdam/internal/usage"
	"github.com/nextlevelbuilder/hamdam/pkg/protocol"
)

var tracer = otel.Tracer("hamdam/router")

// Canned replies.
const (
	DefaultGreeting     = "سلام! من اینجام و آماده‌ام، هر چی دوست داری بپرس."
	ContextRestartReply = "بنظر میرسه که ممکنه پیامت رو نفهمیده باشم، بیا از اول شروع کنیم ( پیامت برای قرارگیری در آپدیت بعدی برای سازنده ارسال شد )."
	PipelineErrorReply  = "متاسفانه مشکلی پیش آمده، لطفا دوباره تلاش کنید."
	DeliveryFailedReply = "متاسفانه مشکلی در ارسال پاسخ پیش آمد."
)

const previewWidth = 100

// Sender delivers replies and chat actions through the owning channel.
type Sender interface {
	Send(ctx context.Context, msg bus.OutboundMessage) error
	SendTyping(ctx context.Context, channel, chatID string) error
}

// Responder is the AI tier.
type Responder interface {
	Conversation(ctx context.Context, userID, text string) string
	Stateless(ctx context.Context, text string) string
	Grounded(ctx context.Context, text, snippet string) string
}

// Searcher fetches a grounding snippet.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// MemoryPicker supplies /memory replies.
type MemoryPicker interface {
	Random() string
}

// Config is the routing policy.
type Config struct {
	EnabledInGroups bool
	GroupWhitelist  []string
	SearchTriggers  []string
	Greeting        string
}

// Deps are the collaborators. Triage, Search, Memories, Chats, Gate and Metrics may be nil.
type Deps struct {
	Sender   Sender
	Events   bus.EventPublisher
	Catalog  *catalog.Holder
	Rules    store.RuleStore
	States   *state.Machine
	Chats    store.ChatStore
	AI       Responder
	Search   Searcher
	Triage   *triage.Log
	Memories MemoryPicker
	Gate     *antispam.Gate
	Stats    *usage.Stats
	Metrics  *usage.Metrics
}

// Router runs the resolution pipeline. Messages from different users run
// concurrently; one user's messages are processed one at a time.
type Router struct {
	cfg   Config
	deps  Deps
	locks *userLocks
	wg    sync.WaitGroup
}

func New(cfg Config, deps Deps) *Router {
	if cfg.Greeting == "" {
		cfg.Greeting = DefaultGreeting
	}
	if deps.Stats == nil {
		deps.Stats = usage.NewStats(0, nil)
	}
	return &Router{cfg: cfg, deps: deps, locks: newUserLocks()}
}

// UserKey identifies a user across channels.
func UserKey(msg bus.InboundMessage) string {
	return msg.Channel + ":" + msg.SenderID
}

// Dispatch processes msg on its own goroutine. Use Wait to drain on shutdown.
func (r *Router) Dispatch(ctx context.Context, msg bus.InboundMessage) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.Process(ctx, msg)
	}()
}

// Wait blocks until every dispatched message has finished.
func (r *Router) Wait() {
	r.wg.Wait()
}

// Process runs the anti-spam gate and, if allowed, the pipeline, holding the
// user's lock throughout.
func (r *Router) Process(ctx context.Context, msg bus.InboundMessage) Result {
	unlock := r.locks.lock(UserKey(msg))
	defer unlock()

	if r.deps.Gate != nil {
		d := r.deps.Gate.Check(antispam.Message{
			UserID:         UserKey(msg),
			Text:           msg.Content,
			Timestamp:      msg.Timestamp,
			IsReplyToOther: msg.ReplyToOther,
		})
		if !d.Allow {
			slog.Debug("message suppressed", "reason", d.Reason, "user", msg.UserName, "chat", msg.ChatID)
			return Result{Tier: TierSuppressed, Suppressed: d.Reason}
		}
	}
	return r.Handle(ctx, msg)
}

// Handle runs commands and the pipeline for an already admitted message.
// It never panics and never returns an error: internal faults are answered
// with a generic apology.
func (r *Router) Handle(ctx context.Context, msg bus.InboundMessage) (res Result) {
	ctx, span := tracer.Start(ctx, "router.handle", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.String("chat.channel", msg.Channel),
		attribute.String("chat.kind", msg.PeerKind),
	)

	r.deps.Stats.IncMessages()
	r.recordChat(ctx, msg)

	defer func() {
		if p := recover(); p != nil {
			slog.Error("router panic", "panic", p, "user", UserKey(msg), "stack", string(debug.Stack()))
			res = r.fail(ctx, msg, fmt.Errorf("panic: %v", p))
		}
		span.SetAttributes(attribute.String("router.tier", string(res.Tier)))
		r.deps.Metrics.ObserveReply(string(res.Tier))
	}()

	if cmd, ok := parseCommand(msg.Content); ok {
		if res, handled := r.handleCommand(ctx, msg, cmd); handled {
			return res
		}
	}

	res, err := r.resolve(ctx, msg)
	if err != nil {
		return r.fail(ctx, msg, err)
	}
	return res
}

// fail logs err and sends the generic apology as a plain message.
func (r *Router) fail(ctx context.Context, msg bus.InboundMessage, err error) Result {
	slog.Error("pipeline failed", "error", err, "user", UserKey(msg), "chat", msg.ChatID)
	r.emit(msg, protocol.EventPipelineError, err.Error())
	if sendErr := r.sendPlain(ctx, msg, PipelineErrorReply); sendErr != nil {
		slog.Warn("failed to send error reply", "chat", msg.ChatID, "error", sendErr)
	}
	return Result{Tier: TierError, Reply: PipelineErrorReply}
}

func (r *Router) recordChat(ctx context.Context, msg bus.InboundMessage) {
	if !msg.IsGroup() || r.deps.Chats == nil {
		return
	}
	inserted, err := r.deps.Chats.RecordChat(ctx, msg.Channel, msg.ChatID, msg.ChatTitle)
	if err != nil {
		slog.Warn("record chat failed", "chat", msg.ChatID, "error", err)
		return
	}
	if inserted {
		slog.Info("new group chat saved", "channel", msg.Channel, "chat", msg.ChatID, "title", msg.ChatTitle)
	}
}
