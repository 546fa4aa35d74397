package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/nextlevelbuilder/hamdam/internal/bus"
	"github.com/nextlevelbuilder/hamdam/internal/catalog"
	"github.com/nextlevelbuilder/hamdam/internal/logging"
	"github.com/nextlevelbuilder/hamdam/internal/search"
	"github.com/nextlevelbuilder/hamdam/internal/state"
	"github.com/nextlevelbuilder/hamdam/internal/triage"
	"github.com/nextlevelbuilder/hamdam/pkg/protocol"
)

// resolve walks CHECK_CONTEXT, CHECK_CATALOG and CHECK_AI_ELIGIBLE, then the AI tier.
// Only errors from the first three tiers are returned.
func (r *Router) resolve(ctx context.Context, msg bus.InboundMessage) (Result, error) {
	if res, done, err := r.checkContext(ctx, msg); err != nil || done {
		return res, err
	}
	if res, done, err := r.checkCatalog(ctx, msg); err != nil || done {
		return res, err
	}
	if !r.aiEligible(msg) {
		return Result{Tier: TierNone}, nil
	}
	return r.answerWithAI(ctx, msg), nil
}

// checkContext answers a user who is awaiting a follow-up. The pending context
// is consumed whatever the outcome.
func (r *Router) checkContext(ctx context.Context, msg bus.InboundMessage) (Result, bool, error) {
	ctx, span := tracer.Start(ctx, "router.check_context")
	defer span.End()

	userKey := UserKey(msg)
	st, err := r.deps.States.Current(ctx, userKey)
	if err != nil {
		return Result{}, false, err
	}
	if st.Kind != state.Awaiting {
		return Result{}, false, nil
	}
	slog.Info("processing answer for pending context", "user", userKey, "context", st.Context)

	rules, listErr := r.deps.Rules.ListRulesByContext(ctx, st.Context)
	if err := r.deps.States.Consume(ctx, userKey); err != nil {
		return Result{}, true, err
	}
	if listErr != nil {
		return Result{}, true, fmt.Errorf("list rules for context %q: %w", st.Context, listErr)
	}

	rule, wildcard := catalog.MatchContext(rules, msg.Content)
	if rule == nil {
		r.emit(msg, protocol.EventContextFallback, st.Context)
		r.sendReply(ctx, msg, ContextRestartReply)
		return Result{Tier: TierContext, Reply: ContextRestartReply}, true, nil
	}
	if wildcard {
		slog.Info("no specific contextual match, using wildcard", "context", st.Context)
	}

	reply := pick(rule.Responses)
	r.emit(msg, protocol.EventContextualResponse, strings.Join(rule.Triggers, ", "))
	r.sendReply(ctx, msg, reply)
	return Result{Tier: TierContext, Reply: reply, RuleID: rule.ID}, true, nil
}

// checkCatalog tries the exact map, then smart scoring.
func (r *Router) checkCatalog(ctx context.Context, msg bus.InboundMessage) (Result, bool, error) {
	ctx, span := tracer.Start(ctx, "router.check_catalog")
	defer span.End()

	idx := r.deps.Catalog.Index()

	var (
		rule    *catalog.Rule
		trigger string
	)
	if rr, ok := idx.MatchExact(msg.Content); ok {
		rule = rr
		trigger = strings.Join(rr.Triggers, ", ")
	} else if m, ok := idx.MatchSmart(msg.Content); ok {
		rule = m.Rule
		trigger = m.Trigger
		if !m.Perfect() {
			r.logFalsePositive(msg, m)
		}
	}
	if rule == nil {
		return Result{}, false, nil
	}

	if rule.SetsContext != "" {
		if err := r.deps.States.Await(ctx, UserKey(msg), rule.SetsContext); err != nil {
			return Result{}, true, err
		}
		slog.Info("context set", "user", UserKey(msg), "context", rule.SetsContext)
	}

	reply := pick(rule.Responses)
	r.emit(msg, protocol.EventTriggeredResponse, trigger)
	r.sendReply(ctx, msg, reply)
	return Result{Tier: TierCatalog, Reply: reply, RuleID: rule.ID}, true, nil
}

func (r *Router) logFalsePositive(msg bus.InboundMessage, m catalog.Match) {
	if r.deps.Triage == nil {
		return
	}
	err := r.deps.Triage.FalsePositive(triage.FalsePositive{
		UserInput:      msg.Content,
		MatchedTrigger: m.Trigger,
		Score:          m.Score,
		ExtraWords:     m.ExtraWords,
		User:           msg.UserName,
	})
	if err != nil {
		slog.Warn("log false positive failed", "error", err)
	}
}

// aiEligible: private chats always; groups only for replies to the bot in an
// AI-enabled or whitelisted chat.
func (r *Router) aiEligible(msg bus.InboundMessage) bool {
	if !msg.IsGroup() {
		return true
	}
	if !msg.ReplyToBot {
		return false
	}
	if r.cfg.EnabledInGroups || slices.Contains(r.cfg.GroupWhitelist, msg.ChatID) {
		return true
	}
	slog.Info("ai blocked in group, not whitelisted", "chat", msg.ChatID)
	return false
}

// answerWithAI is the last tier. AI failures come back as canned text, so
// only delivery can fail here.
func (r *Router) answerWithAI(ctx context.Context, msg bus.InboundMessage) Result {
	ctx, span := tracer.Start(ctx, "router.ai")
	defer span.End()

	r.logUnanswered(msg)
	if msg.IsGroup() {
		r.emit(msg, protocol.EventUnansweredReply, msg.Content)
	} else {
		r.emit(msg, protocol.EventUnansweredDM, msg.Content)
	}

	if err := r.deps.Sender.SendTyping(ctx, msg.Channel, msg.ChatID); err != nil {
		slog.Debug("typing action failed", "chat", msg.ChatID, "error", err)
	}

	if r.deps.Search != nil && search.NeedsSearch(msg.Content, r.cfg.SearchTriggers) {
		if res, ok := r.answerWithSearch(ctx, msg); ok {
			return res
		}
	}

	var reply string
	if msg.IsGroup() {
		reply = r.deps.AI.Stateless(ctx, msg.Content)
	} else {
		reply = r.deps.AI.Conversation(ctx, UserKey(msg), msg.Content)
	}
	return r.deliverAI(ctx, msg, reply, TierAI, protocol.EventAIResponse)
}

// answerWithSearch reports false when no snippet was found, leaving the
// caller to fall back to the plain AI path.
func (r *Router) answerWithSearch(ctx context.Context, msg bus.InboundMessage) (Result, bool) {
	r.deps.Stats.IncSearchCalls()
	slog.Info("message triggered a web search", "user", UserKey(msg))

	snippet, err := r.deps.Search.Search(ctx, msg.Content)
	if err != nil {
		if errors.Is(err, search.ErrNoAnswer) {
			slog.Info("search found no context, using plain ai")
		} else {
			slog.Warn("search failed, using plain ai", "error", err)
		}
		return Result{}, false
	}
	slog.Info("search context found", "preview", logging.Preview(snippet, previewWidth))

	reply := r.deps.AI.Grounded(ctx, msg.Content, snippet)
	return r.deliverAI(ctx, msg, reply, TierSearchAI, protocol.EventAISearchResponse), true
}

// deliverAI sends an AI reply; on failure a plain notice is attempted and its
// own failure is only logged. A reply produced after ctx ended (shutdown) is
// dropped uncounted.
func (r *Router) deliverAI(ctx context.Context, msg bus.InboundMessage, reply string, tier Tier, event string) Result {
	if err := ctx.Err(); err != nil {
		slog.Info("dropping ai reply, processing cancelled", "user", UserKey(msg), "error", err)
		return Result{Tier: TierCancelled}
	}
	r.deps.Stats.IncAIResponses()
	if err := r.deps.Sender.Send(ctx, bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: reply,
		ReplyTo: msg.MessageID,
	}); err != nil {
		slog.Warn("failed to send ai reply", "chat", msg.ChatID, "error", err)
		if err := r.sendPlain(ctx, msg, DeliveryFailedReply); err != nil {
			slog.Error("failed even to send a plain notice", "chat", msg.ChatID, "error", err)
		}
		return Result{Tier: tier, Reply: DeliveryFailedReply}
	}
	r.emit(msg, event, logging.Preview(msg.Content, previewWidth))
	return Result{Tier: tier, Reply: reply}
}

func (r *Router) logUnanswered(msg bus.InboundMessage) {
	if r.deps.Triage == nil {
		return
	}
	chatType := "private"
	if msg.IsGroup() {
		chatType = "group"
	}
	_, err := r.deps.Triage.Unanswered(triage.Question{
		Channel:   msg.Channel,
		UserID:    msg.SenderID,
		User:      msg.UserName,
		ChatID:    msg.ChatID,
		MessageID: msg.MessageID,
		ChatType:  chatType,
		Text:      msg.Content,
	})
	if err != nil {
		slog.Warn("log unanswered question failed", "error", err)
	}
}

// sendReply answers msg as a reply; failures are logged only.
func (r *Router) sendReply(ctx context.Context, msg bus.InboundMessage, text string) {
	err := r.deps.Sender.Send(ctx, bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: text,
		ReplyTo: msg.MessageID,
	})
	if err != nil {
		r.logSendFailure(msg, err)
	}
}

func (r *Router) sendPlain(ctx context.Context, msg bus.InboundMessage, text string) error {
	return r.deps.Sender.Send(ctx, bus.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID, Content: text})
}

func (r *Router) emit(msg bus.InboundMessage, eventType, trigger string) {
	if r.deps.Events == nil {
		return
	}
	if trigger == "" {
		trigger = msg.Content
	}
	r.deps.Events.Broadcast(bus.Event{
		EventType: eventType,
		User:      msg.UserName,
		UserID:    msg.SenderID,
		ChatInfo:  msg.ChatInfo(),
		ChatID:    msg.ChatID,
		MessageID: msg.MessageID,
		Trigger:   trigger,
	})
}

func pick(responses []string) string {
	if len(responses) == 0 {
		return ""
	}
	return responses[rand.IntN(len(responses))]
}

func (r *Router) logSendFailure(msg bus.InboundMessage, err error) {
	slog.Warn("failed to send reply", "chat", msg.ChatID, "error", err)
}
