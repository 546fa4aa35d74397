package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/hamdam/internal/antispam"
	"github.com/nextlevelbuilder/hamdam/internal/bus"
	"github.com/nextlevelbuilder/hamdam/internal/catalog"
	"github.com/nextlevelbuilder/hamdam/internal/search"
	"github.com/nextlevelbuilder/hamdam/internal/state"
	"github.com/nextlevelbuilder/hamdam/internal/store"
	"github.com/nextlevelbuilder/hamdam/internal/store/sqlite"
	"github.com/nextlevelbuilder/hamdam/internal/triage"
	"github.com/nextlevelbuilder/hamdam/internal/usage"
	"github.com/nextlevelbuilder/hamdam/pkg/protocol"
)

type fakeSender struct {
	mu      sync.Mutex
	sent    []bus.OutboundMessage
	typing  int
	failFor map[string]bool // content -> fail
}

func (f *fakeSender) Send(_ context.Context, m bus.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[m.Content] {
		return errors.New("send failed")
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeSender) SendTyping(context.Context, string, string) error {
	f.mu.Lock()
	f.typing++
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) messages() []bus.OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bus.OutboundMessage(nil), f.sent...)
}

type fakeAI struct {
	mu            sync.Mutex
	onCall        func() // runs before each reply, e.g. to cancel the caller
	conversations []string
	stateless     []string
	grounded      []string // snippets
}

func (f *fakeAI) Conversation(_ context.Context, userID, text string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onCall != nil {
		f.onCall()
	}
	f.conversations = append(f.conversations, userID+"|"+text)
	return "ai:" + text
}

func (f *fakeAI) Stateless(_ context.Context, text string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stateless = append(f.stateless, text)
	return "ai-group:" + text
}

func (f *fakeAI) Grounded(_ context.Context, text, snippet string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grounded = append(f.grounded, snippet)
	return "grounded:" + snippet
}

func (f *fakeAI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conversations) + len(f.stateless) + len(f.grounded)
}

type fakeSearch struct {
	answer string
	err    error
	calls  int
}

func (f *fakeSearch) Search(context.Context, string) (string, error) {
	f.calls++
	return f.answer, f.err
}

type fixture struct {
	router *Router
	db     *sqlite.DB
	sender *fakeSender
	ai     *fakeAI
	search *fakeSearch
	hub    *bus.Hub
	stats  *usage.Stats
	states *state.Machine
	triage *triage.Log
}

func newFixture(t *testing.T, rules []store.Rule) *fixture {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if len(rules) > 0 {
		_, err := db.ImportRules(ctx, rules)
		require.NoError(t, err)
	}
	holder := catalog.NewHolder(db, catalog.DefaultOptions())
	require.NoError(t, holder.Reload(ctx))

	tl, err := triage.Open(t.TempDir(), "")
	require.NoError(t, err)

	f := &fixture{
		db:     db,
		sender: &fakeSender{},
		ai:     &fakeAI{},
		search: &fakeSearch{err: search.ErrNoAnswer},
		hub:    bus.NewHub(50),
		stats:  usage.NewStats(0, nil),
		states: state.NewMachine(db),
		triage: tl,
	}
	f.router = New(Config{
		EnabledInGroups: false,
		GroupWhitelist:  []string{"-100whitelisted"},
		SearchTriggers:  search.DefaultTriggers,
	}, Deps{
		Sender:  f.sender,
		Events:  f.hub,
		Catalog: holder,
		Rules:   db,
		States:  f.states,
		Chats:   db,
		AI:      f.ai,
		Search:  f.search,
		Triage:  tl,
		Stats:   f.stats,
	})
	return f
}

func direct(text string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel: "telegram", SenderID: "42", UserName: "@fan", ChatID: "42",
		MessageID: "7", PeerKind: bus.PeerDirect, Content: text, Timestamp: time.Now(),
	}
}

func group(text, chatID string, replyToBot bool) bus.InboundMessage {
	m := direct(text)
	m.PeerKind = bus.PeerGroup
	m.ChatID = chatID
	m.ChatTitle = "Fans"
	m.ReplyToBot = replyToBot
	return m
}

func eventTypes(h *bus.Hub) []string {
	var out []string
	for _, e := range h.Recent() {
		out = append(out, e.EventType)
	}
	return out
}

// Scenario 1: an exact rule with no context replies directly and sets no state.
func TestExactMatchRepliesWithoutState(t *testing.T) {
	f := newFixture(t, []store.Rule{
		{Triggers: []string{"سلام"}, Responses: []string{"سلام عزیزم"}, MatchType: store.MatchExact},
	})
	ctx := context.Background()

	res := f.router.Handle(ctx, direct("سلام!"))
	assert.Equal(t, TierCatalog, res.Tier)
	assert.Equal(t, "سلام عزیزم", res.Reply)

	sent := f.sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "7", sent[0].ReplyTo)

	st, err := f.states.Current(ctx, "telegram:42")
	require.NoError(t, err)
	assert.Equal(t, state.Idle, st.Kind)
	assert.Equal(t, []string{protocol.EventTriggeredResponse}, eventTypes(f.hub))
	assert.Zero(t, f.ai.calls())
	assert.Equal(t, int64(1), f.stats.Snapshot().MessagesProcessed)
}

// Scenario 2: 3 of 4 trigger words match at threshold 0.75; 2 of 4 fall through to AI.
func TestSmartMatchThresholdEndToEnd(t *testing.T) {
	f := newFixture(t, []store.Rule{
		{Triggers: []string{"کنسرت بعدی کی هست"}, Responses: []string{"بزودی!"}, MatchType: store.MatchSmart},
	})
	ctx := context.Background()

	res := f.router.Handle(ctx, direct("کنسرت بعدی کی"))
	assert.Equal(t, TierCatalog, res.Tier)
	assert.Equal(t, "بزودی!", res.Reply)

	res = f.router.Handle(ctx, direct("کنسرت بعدی"))
	assert.Equal(t, TierAI, res.Tier)
	assert.Equal(t, 1, f.ai.calls())
}

// Scenario 3: a search-worthy DM is answered from the snippet and history is not touched.
func TestSearchGroundedReplySkipsHistory(t *testing.T) {
	f := newFixture(t, nil)
	f.search.answer = "ابی خواننده ایرانی است"
	f.search.err = nil

	res := f.router.Handle(context.Background(), direct("ابی کیه؟"))
	assert.Equal(t, TierSearchAI, res.Tier)
	assert.Equal(t, "grounded:ابی خواننده ایرانی است", res.Reply)
	assert.Empty(t, f.ai.conversations, "grounded answers never use the conversation path")

	snap := f.stats.Snapshot()
	assert.Equal(t, int64(1), snap.SearchCalls)
	assert.Equal(t, int64(1), snap.AIResponses)
	assert.Contains(t, eventTypes(f.hub), protocol.EventAISearchResponse)
	assert.Equal(t, 1, f.sender.typing)
}

func TestSearchFailureFallsBackToConversation(t *testing.T) {
	f := newFixture(t, nil)
	f.search.err = search.ErrPoolExhausted

	res := f.router.Handle(context.Background(), direct("قیمت بلیط چقدره"))
	assert.Equal(t, TierAI, res.Tier)
	assert.Equal(t, 1, f.search.calls)
	assert.Len(t, f.ai.conversations, 1)
	assert.Equal(t, "telegram:42|قیمت بلیط چقدره", f.ai.conversations[0])
}

// Scenario 4: unmatched group chatter that is not a reply to the bot gets silence.
func TestGroupWithoutReplyIsSilent(t *testing.T) {
	f := newFixture(t, nil)

	res := f.router.Handle(context.Background(), group("یه چیزی", "-100other", false))
	assert.Equal(t, TierNone, res.Tier)
	assert.False(t, res.Handled())
	assert.Empty(t, f.sender.messages())
	assert.Zero(t, f.ai.calls())
	assert.Zero(t, f.sender.typing)
}

func TestGroupReplyNeedsWhitelist(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res := f.router.Handle(ctx, group("جواب بده", "-100other", true))
	assert.Equal(t, TierNone, res.Tier)
	assert.Zero(t, f.ai.calls())

	res = f.router.Handle(ctx, group("جواب بده", "-100whitelisted", true))
	assert.Equal(t, TierAI, res.Tier)
	assert.Equal(t, []string{"جواب بده"}, f.ai.stateless, "group AI calls are stateless")
	assert.Contains(t, eventTypes(f.hub), protocol.EventUnansweredReply)

	chats, err := f.db.ListChats(ctx, "telegram")
	require.NoError(t, err)
	assert.Len(t, chats, 2)
}

// TestContextFlow covers set -> specific answer, set -> wildcard and set -> restart.
func TestContextFlow(t *testing.T) {
	f := newFixture(t, []store.Rule{
		{Triggers: []string{"حالت چطوره"}, Responses: []string{"خوبم، تو چطوری؟"}, MatchType: store.MatchSmart, SetsContext: "mood"},
		{Triggers: []string{"خوبم", "عالی"}, Responses: []string{"خداروشکر"}, MatchType: store.MatchSmart, RequiredContext: "mood"},
		{Triggers: []string{store.Wildcard}, Responses: []string{"امیدوارم بهتر بشی"}, MatchType: store.MatchSmart, RequiredContext: "mood"},
		{Triggers: []string{"آهنگ"}, Responses: []string{"کدوم آهنگ؟"}, MatchType: store.MatchExact, SetsContext: "song"},
	})
	ctx := context.Background()

	res := f.router.Handle(ctx, direct("حالت چطوره"))
	require.Equal(t, TierCatalog, res.Tier)
	st, _ := f.states.Current(ctx, "telegram:42")
	require.Equal(t, "awaiting:mood", st.String())

	res = f.router.Handle(ctx, direct("من خوبم مرسی"))
	assert.Equal(t, TierContext, res.Tier)
	assert.Equal(t, "خداروشکر", res.Reply)
	st, _ = f.states.Current(ctx, "telegram:42")
	assert.Equal(t, state.Idle, st.Kind)

	f.router.Handle(ctx, direct("حالت چطوره"))
	res = f.router.Handle(ctx, direct("نمیدونم"))
	assert.Equal(t, "امیدوارم بهتر بشی", res.Reply)

	// "song" has no contextual rules: restart apology, state still cleared.
	f.router.Handle(ctx, direct("آهنگ"))
	res = f.router.Handle(ctx, direct("هر چی"))
	assert.Equal(t, ContextRestartReply, res.Reply)
	st, _ = f.states.Current(ctx, "telegram:42")
	assert.Equal(t, state.Idle, st.Kind)
	assert.Contains(t, eventTypes(f.hub), protocol.EventContextFallback)
}

type failingStates struct{ store.StateStore }

func (failingStates) GetState(context.Context, string) (string, error) {
	return "", errors.New("db locked")
}

func TestInternalFaultSendsApology(t *testing.T) {
	f := newFixture(t, nil)
	f.router.deps.States = state.NewMachine(failingStates{})

	res := f.router.Handle(context.Background(), direct("سلام"))
	assert.Equal(t, TierError, res.Tier)
	sent := f.sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, PipelineErrorReply, sent[0].Content)
	assert.Empty(t, sent[0].ReplyTo)
	assert.Zero(t, f.ai.calls())
}

type panickingAI struct{ fakeAI }

func (*panickingAI) Conversation(context.Context, string, string) string { panic("boom") }

func TestPanicIsRecovered(t *testing.T) {
	f := newFixture(t, nil)
	f.router.deps.AI = &panickingAI{}

	var res Result
	assert.NotPanics(t, func() { res = f.router.Handle(context.Background(), direct("یه سوال")) })
	assert.Equal(t, TierError, res.Tier)
}

func TestAIDeliveryFailureSendsNotice(t *testing.T) {
	f := newFixture(t, nil)
	f.sender.failFor = map[string]bool{"ai:سوال": true}

	res := f.router.Handle(context.Background(), direct("سوال"))
	assert.Equal(t, DeliveryFailedReply, res.Reply)
	sent := f.sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, DeliveryFailedReply, sent[0].Content)
	assert.Empty(t, sent[0].ReplyTo)
}

// TestShutdownDropsInFlightAIReply: the AI call outlives the context, so the
// reply is neither sent nor counted.
func TestShutdownDropsInFlightAIReply(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.ai.onCall = cancel

	res := f.router.Handle(ctx, direct("سوال"))
	assert.Equal(t, TierCancelled, res.Tier)
	assert.False(t, res.Handled())
	assert.Empty(t, f.sender.messages())
	assert.Zero(t, f.stats.Snapshot().AIResponses)
	assert.Len(t, f.ai.conversations, 1)
}

func TestIgnoredQuestionStillAnswered(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.triage.Ignore("سوال تکراری"))

	res := f.router.Handle(context.Background(), direct("سوال تکراری"))
	assert.Equal(t, TierAI, res.Tier)
	assert.Equal(t, 1, f.ai.calls())
}

func TestCommands(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res := f.router.Handle(ctx, direct("/start"))
	assert.Equal(t, TierCommand, res.Tier)
	assert.Equal(t, DefaultGreeting, res.Reply)

	res = f.router.Handle(ctx, direct("/memory@hamdam_bot"))
	assert.Equal(t, TierCommand, res.Tier)
	assert.NotEmpty(t, res.Reply)

	assert.Equal(t, []string{protocol.EventNewUser, protocol.EventTriggeredResponse}, eventTypes(f.hub))

	res = f.router.Handle(ctx, direct("/unknown"))
	assert.Equal(t, TierAI, res.Tier, "unknown commands fall through")
}

func TestProcessAppliesAntiSpam(t *testing.T) {
	f := newFixture(t, []store.Rule{
		{Triggers: []string{"سلام"}, Responses: []string{"درود"}, MatchType: store.MatchExact},
	})
	f.router.deps.Gate = antispam.New(antispam.Config{
		GeneralCooldown:     time.Second,
		DuplicateCooldown:   10 * time.Second,
		OldMessageThreshold: 15 * time.Second,
	})
	ctx := context.Background()

	assert.Equal(t, TierCatalog, f.router.Process(ctx, direct("سلام")).Tier)
	res := f.router.Process(ctx, direct("سلام"))
	assert.Equal(t, TierSuppressed, res.Tier)
	assert.Equal(t, antispam.Cooldown, res.Suppressed)

	stale := direct("سلام")
	stale.SenderID = "99"
	stale.Timestamp = time.Now().Add(-time.Minute)
	assert.Equal(t, antispam.Stale, f.router.Process(ctx, stale).Suppressed)
	assert.Equal(t, int64(1), f.stats.Snapshot().MessagesProcessed)
}

func TestDispatchSerializesPerUser(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for range 20 {
		f.router.Dispatch(ctx, direct("سوال"))
	}
	f.router.Wait()
	assert.Len(t, f.ai.conversations, 20)
	assert.Zero(t, f.router.locks.size(), "idle user locks are released")
}

func TestParseCommand(t *testing.T) {
	cases := map[string]string{
		"/start":            "start",
		"/Memory@bot extra": "memory",
		" /start ":          "start",
	}
	for in, want := range cases {
		got, ok := parseCommand(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"start", "/", "/@bot", ""} {
		_, ok := parseCommand(in)
		assert.False(t, ok, in)
	}
}
