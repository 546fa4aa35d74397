package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

const (
	geminiPro   = "gemini-pro-test"
	geminiFlash = "gemini-flash-test"
)

const geminiOK = `{"candidates":[{"content":{"role":"model","parts":[{"text":"سلام از فلش"}]},"finishReason":"STOP"}],` +
	`"usageMetadata":{"promptTokenCount":7,"candidatesTokenCount":3,"totalTokenCount":10}}`

// geminiServer answers generateContent calls per model and records the order
// in which models were tried.
type geminiServer struct {
	mu    sync.Mutex
	tried []string
	reply map[string]func(w http.ResponseWriter)
}

func (g *geminiServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	model := ""
	for _, m := range []string{geminiPro, geminiFlash} {
		if strings.Contains(r.URL.Path, m) {
			model = m
		}
	}
	g.mu.Lock()
	g.tried = append(g.tried, model)
	g.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if fn, ok := g.reply[model]; ok {
		fn(w)
		return
	}
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"error":{"code":404,"message":"no such model","status":"NOT_FOUND"}}`))
}

func (g *geminiServer) models() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.tried...)
}

func respond(status int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

func newTestGemini(t *testing.T, gs *geminiServer) *GeminiProvider {
	t.Helper()
	srv := httptest.NewServer(gs)
	t.Cleanup(srv.Close)
	p, err := NewGeminiProvider(context.Background(), "gemini", "test-key", srv.URL, geminiPro, []string{geminiFlash})
	if err != nil {
		t.Fatalf("NewGeminiProvider: %v", err)
	}
	return p
}

var geminiRequest = ChatRequest{Messages: []Message{
	{Role: RoleSystem, Content: "persona"},
	{Role: RoleUser, Content: "سلام"},
}}

func TestGeminiFallsBackToNextTier(t *testing.T) {
	gs := &geminiServer{reply: map[string]func(http.ResponseWriter){
		geminiPro:   respond(http.StatusServiceUnavailable, `{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`),
		geminiFlash: respond(http.StatusOK, geminiOK),
	}}
	p := newTestGemini(t, gs)

	resp, err := p.Chat(context.Background(), geminiRequest)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "سلام از فلش" || resp.Model != geminiFlash {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 10 {
		t.Errorf("usage = %+v", resp.Usage)
	}
	if got := gs.models(); len(got) != 2 || got[0] != geminiPro || got[1] != geminiFlash {
		t.Errorf("tiers tried = %v, want pro then flash", got)
	}
}

func TestGeminiSkipsEmptyResponse(t *testing.T) {
	gs := &geminiServer{reply: map[string]func(http.ResponseWriter){
		geminiPro:   respond(http.StatusOK, `{"candidates":[{"content":{"role":"model","parts":[]},"finishReason":"SAFETY"}]}`),
		geminiFlash: respond(http.StatusOK, geminiOK),
	}}
	p := newTestGemini(t, gs)

	resp, err := p.Chat(context.Background(), geminiRequest)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Model != geminiFlash {
		t.Errorf("model = %q, want %q", resp.Model, geminiFlash)
	}
}

func TestGeminiAllTiersFail(t *testing.T) {
	gs := &geminiServer{reply: map[string]func(http.ResponseWriter){
		geminiPro:   respond(http.StatusServiceUnavailable, `{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`),
		geminiFlash: respond(http.StatusInternalServerError, `{"error":{"code":500,"message":"boom","status":"INTERNAL"}}`),
	}}
	p := newTestGemini(t, gs)

	_, err := p.Chat(context.Background(), geminiRequest)
	var he *HTTPError
	if !errors.As(err, &he) || he.Status != http.StatusInternalServerError {
		t.Fatalf("err = %v, want the last tier's 500", err)
	}
	if IsAuthError(err) {
		t.Error("server errors are not auth failures")
	}
}

func TestGeminiAuthFailureStopsWalk(t *testing.T) {
	tests := []struct {
		name string
		resp func(http.ResponseWriter)
	}{
		{"unauthorized", respond(http.StatusUnauthorized, `{"error":{"code":401,"message":"bad key","status":"UNAUTHENTICATED"}}`)},
		{"invalid key", respond(http.StatusBadRequest, `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT",`+
			`"details":[{"@type":"type.googleapis.com/google.rpc.ErrorInfo","reason":"API_KEY_INVALID","domain":"googleapis.com"}]}}`)},
		{"permission denied", respond(http.StatusForbidden, `{"error":{"code":403,"message":"denied","status":"PERMISSION_DENIED"}}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gs := &geminiServer{reply: map[string]func(http.ResponseWriter){
				geminiPro:   tt.resp,
				geminiFlash: respond(http.StatusOK, geminiOK),
			}}
			p := newTestGemini(t, gs)

			_, err := p.Chat(context.Background(), geminiRequest)
			if !IsAuthError(err) {
				t.Fatalf("err = %v, want auth error", err)
			}
			if got := gs.models(); len(got) != 1 {
				t.Errorf("tiers tried = %v, want the walk to stop at the first", got)
			}
		})
	}
}

func TestGeminiBadRequestIsNotAuth(t *testing.T) {
	err := wrapGeminiError("gemini", errors.New("dial tcp: refused"))
	if IsAuthError(err) {
		t.Error("transport errors are not auth failures")
	}
	gs := &geminiServer{reply: map[string]func(http.ResponseWriter){
		geminiPro:   respond(http.StatusBadRequest, `{"error":{"code":400,"message":"contents is empty","status":"INVALID_ARGUMENT"}}`),
		geminiFlash: respond(http.StatusOK, geminiOK),
	}}
	p := newTestGemini(t, gs)
	if _, err := p.Chat(context.Background(), geminiRequest); err != nil {
		t.Fatalf("a plain 400 on one tier should fall through: %v", err)
	}
}

func TestGeminiModelOverrideLeadsTiers(t *testing.T) {
	gs := &geminiServer{reply: map[string]func(http.ResponseWriter){
		geminiFlash: respond(http.StatusOK, geminiOK),
	}}
	p := newTestGemini(t, gs)

	req := geminiRequest
	req.Model = geminiFlash
	if _, err := p.Chat(context.Background(), req); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got := gs.models(); len(got) != 1 || got[0] != geminiFlash {
		t.Errorf("tiers tried = %v, want only flash", got)
	}
}

func TestToGeminiContents(t *testing.T) {
	system, contents := toGeminiContents([]Message{
		{Role: RoleSystem, Content: "persona"},
		{Role: RoleUser, Content: "q1"},
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleUser, Content: "q2"},
	})
	if system != "persona" {
		t.Errorf("system = %q", system)
	}
	if len(contents) != 3 {
		t.Fatalf("contents len = %d", len(contents))
	}
	if contents[1].Role != "model" {
		t.Errorf("assistant turn role = %q, want model", contents[1].Role)
	}
}
