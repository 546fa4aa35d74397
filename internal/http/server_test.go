package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/hamdam/internal/bus"
	"github.com/nextlevelbuilder/hamdam/internal/catalog"
	"github.com/nextlevelbuilder/hamdam/internal/store"
	"github.com/nextlevelbuilder/hamdam/internal/store/sqlite"
	"github.com/nextlevelbuilder/hamdam/internal/triage"
	"github.com/nextlevelbuilder/hamdam/internal/usage"
	"github.com/nextlevelbuilder/hamdam/pkg/protocol"
)

const (
	testUser = "admin"
	testPass = "secret"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []bus.OutboundMessage
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg bus.OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

type testEnv struct {
	srv    *httptest.Server
	db     *sqlite.DB
	holder *catalog.Holder
	sender *recordingSender
	hub    *bus.Hub
	stats  *usage.Stats
	triage *triage.Log
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	holder := catalog.NewHolder(db, catalog.DefaultOptions())
	reloader := catalog.NewReloader(holder)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go reloader.Run(ctx)

	tl, err := triage.Open(t.TempDir(), "")
	require.NoError(t, err)

	metrics := usage.NewMetrics()
	env := &testEnv{
		db:     db,
		holder: holder,
		sender: &recordingSender{},
		hub:    bus.NewHub(10),
		stats:  usage.NewStats(0, metrics),
		triage: tl,
	}
	s := New(Config{User: testUser, Password: testPass}, Deps{
		Rules:    db,
		Days:     db,
		Reloader: reloader,
		Sender:   env.sender,
		Events:   env.hub,
		Triage:   tl,
		Stats:    env.stats,
		Metrics:  metrics,
	})
	env.srv = httptest.NewServer(s.Handler())
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	require.NoError(t, err)
	req.SetBasicAuth(testUser, testPass)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func (e *testEnv) adminEvents() []string {
	var out []string
	for _, ev := range e.hub.Recent() {
		if ev.EventType == protocol.EventAdminAction {
			out = append(out, ev.Trigger)
		}
	}
	return out
}

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthLockout(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/api/responses")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))

	bad := func() int {
		req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/api/responses", nil)
		req.SetBasicAuth(testUser, "wrong")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	for i := 0; i < maxLoginAttempts; i++ {
		assert.Equal(t, http.StatusUnauthorized, bad(), "attempt %d", i+1)
	}
	assert.Equal(t, http.StatusForbidden, bad())

	// Correct credentials are refused too while locked.
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/responses", nil).StatusCode)
}

func TestAuthNotConfigured(t *testing.T) {
	s := New(Config{}, Deps{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/stats")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestCreateResponseSplitsLinesAndReloads(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/responses", map[string]string{
		"trigger":      "سلام\n  درود \n\n",
		"response":     "سلام عزیزم",
		"type":         "greeting",
		"matchType":    "exact",
		"excludeWords": "",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var body map[string]any
	decodeBody(t, resp, &body)
	assert.Equal(t, true, body["reloaded"])

	rules, err := env.db.ListRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, []string{"سلام", "درود"}, rules[0].Triggers)
	assert.Empty(t, rules[0].ExcludeWords)

	_, ok := env.holder.Index().MatchExact("درود")
	assert.True(t, ok, "index rebuilt after create")
	assert.Len(t, env.adminEvents(), 1)
}

func TestCreateResponseValidation(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/responses", map[string]string{
		"trigger": "x", "response": "y", "type": "t", "matchType": "fuzzy",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body map[string]any
	decodeBody(t, resp, &body)
	assert.Contains(t, body["error"], "matchType")

	resp = env.do(t, http.MethodPost, "/api/responses", map[string]string{
		"trigger": "\n \n", "response": "y", "type": "t", "matchType": "exact",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "blank lines leave no trigger")
	assert.Empty(t, env.adminEvents())
}

func TestListResponsesNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, trig := range []string{"a", "b"} {
		require.NoError(t, env.db.CreateRule(ctx, &store.Rule{
			Triggers: []string{trig}, Responses: []string{"r"}, MatchType: store.MatchExact,
		}))
	}

	resp := env.do(t, http.MethodGet, "/api/responses", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rules []store.Rule
	decodeBody(t, resp, &rules)
	require.Len(t, rules, 2)
	assert.Equal(t, []string{"b"}, rules[0].Triggers)
}

func TestImport(t *testing.T) {
	env := newTestEnv(t)

	good := []store.Rule{
		{Triggers: []string{"a"}, Responses: []string{"1"}, MatchType: store.MatchExact},
		{Triggers: []string{"b c"}, Responses: []string{"2"}, MatchType: store.MatchSmart, SetsContext: "x"},
	}
	resp := env.do(t, http.MethodPost, "/api/import", good)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var body map[string]any
	decodeBody(t, resp, &body)
	assert.EqualValues(t, 2, body["imported"])
	assert.Equal(t, 2, env.holder.Index().Len())

	bad := []store.Rule{
		{Triggers: []string{"d"}, Responses: []string{"3"}, MatchType: store.MatchExact},
		{Triggers: []string{"e"}, MatchType: store.MatchExact},
	}
	resp = env.do(t, http.MethodPost, "/api/import", bad)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	rules, _ := env.db.ListRules(context.Background())
	assert.Len(t, rules, 2, "invalid batch stores nothing")
}

func TestReload(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.CreateRule(context.Background(), &store.Rule{
		Triggers: []string{"hi"}, Responses: []string{"r"}, MatchType: store.MatchExact,
	}))
	assert.Equal(t, 0, env.holder.Index().Len())

	resp := env.do(t, http.MethodPost, "/api/reload", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, env.holder.Index().Len())
}

func TestBroadcastAndReply(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/broadcast", map[string]string{"chatId": "-100", "message": "<b>hi</b>"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = env.do(t, http.MethodPost, "/api/reply", map[string]string{
		"channel": "discord", "chatId": "c1", "messageId": "m9", "message": "ok",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, env.sender.sent, 2)
	assert.Equal(t, bus.OutboundMessage{Channel: "telegram", ChatID: "-100", Content: "<b>hi</b>", HTML: true}, env.sender.sent[0])
	assert.Equal(t, "discord", env.sender.sent[1].Channel)
	assert.Equal(t, "m9", env.sender.sent[1].ReplyTo)
	assert.Len(t, env.adminEvents(), 2)

	resp = env.do(t, http.MethodPost, "/api/reply", map[string]string{"chatId": "c1", "message": "ok"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "messageId is required")

	env.sender.mu.Lock()
	env.sender.err = errors.New("chat not found")
	env.sender.mu.Unlock()
	resp = env.do(t, http.MethodPost, "/api/broadcast", map[string]string{"chatId": "1", "message": "x"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Len(t, env.adminEvents(), 2, "failed sends emit nothing")
}

func TestTriageIgnore(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/triage/ignore", map[string]string{"text": "سوال تکراری"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.triage.IsIgnored("سوال تکراری"))

	resp = env.do(t, http.MethodPost, "/api/triage/ignore", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	env.stats.IncMessages()
	env.stats.IncMessages()
	require.NoError(t, env.db.UpsertDay(context.Background(), store.DailyStats{Date: "2026-01-01", MessagesProcessed: 5}))

	resp := env.do(t, http.MethodGet, "/api/stats?days=3", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body statsResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, int64(2), body.Today.MessagesProcessed)
	require.Len(t, body.Days, 1)
	assert.Equal(t, "2026-01-01", body.Days[0].Date)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/stats?days=0", nil).StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.stats.IncMessages()

	resp := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	buf := new(bytes.Buffer)
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "hamdam_messages_processed_total 1")
}

func TestEventFeed(t *testing.T) {
	env := newTestEnv(t)
	env.hub.Broadcast(bus.Event{EventType: protocol.EventNewUser, User: "@early"})

	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/events"
	header := http.Header{}
	req, _ := http.NewRequest(http.MethodGet, env.srv.URL, nil)
	req.SetBasicAuth(testUser, testPass)
	header.Set("Authorization", req.Header.Get("Authorization"))

	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first bus.Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "@early", first.User, "backlog is replayed")

	require.Eventually(t, func() bool { return env.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	env.hub.Broadcast(bus.Event{EventType: protocol.EventAIResponse, User: "@live"})

	var live bus.Event
	require.NoError(t, conn.ReadJSON(&live))
	assert.Equal(t, "@live", live.User)
	assert.NotEmpty(t, live.ID)

	conn.Close()
	assert.Eventually(t, func() bool { return env.hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}
