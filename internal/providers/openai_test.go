package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIProviderChat(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"deepseek/deepseek-chat","choices":[{"message":{"role":"assistant","content":"سلام عزیزم"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openrouter", "sk-test", srv.URL+"/", "deepseek/deepseek-chat")
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleSystem, Content: "persona"}, {Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "سلام عزیزم" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 15 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if gotBody["model"] != "deepseek/deepseek-chat" {
		t.Errorf("model sent = %v", gotBody["model"])
	}
	if msgs, _ := gotBody["messages"].([]interface{}); len(msgs) != 2 {
		t.Errorf("messages sent = %v", gotBody["messages"])
	}
}

// TestOpenAIProviderUnprefixedModel verifies OpenRouter ignores a model override without a vendor prefix.
func TestOpenAIProviderUnprefixedModel(t *testing.T) {
	p := NewOpenAIProvider("openrouter", "k", "", "deepseek/deepseek-chat")
	if got := p.resolveModel("gpt-4o"); got != "deepseek/deepseek-chat" {
		t.Errorf("resolveModel = %q", got)
	}
	if got := p.resolveModel("openai/gpt-4o"); got != "openai/gpt-4o" {
		t.Errorf("resolveModel = %q", got)
	}
	avalai := NewOpenAIProvider("avalai", "k", "", "deepseek-chat")
	if got := avalai.resolveModel("gpt-4o-mini"); got != "gpt-4o-mini" {
		t.Errorf("avalai resolveModel = %q", got)
	}
}

func TestOpenAIProviderHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("avalai", "bad", srv.URL, "deepseek-chat")
	_, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	if err == nil {
		t.Fatal("expected error")
	}
	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *HTTPError, got %T", err)
	}
	if he.Status != http.StatusUnauthorized || he.RetryAfter.Seconds() != 2 {
		t.Errorf("HTTPError = %+v", he)
	}
	if !IsAuthError(err) {
		t.Error("IsAuthError = false for 401")
	}
}

func TestOpenAIProviderEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("local", "", srv.URL, "m")
	if _, err := p.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(NewOpenAIProvider("openrouter", "", "", "m"))
	r.Register(NewOpenAIProvider("avalai", "", "", "m"))

	if _, err := r.Get("openrouter"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := r.Get("nope"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("Get(nope) err = %v, want ErrUnknownProvider", err)
	}
	if names := r.Names(); len(names) != 2 || names[0] != "avalai" {
		t.Errorf("Names = %v", names)
	}
}
