package providers

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provider is the interface all LLM providers must implement.
type Provider interface {
	// Chat sends messages to the LLM and returns a response.
	// req.Model overrides the default model when non-empty.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// DefaultModel returns the provider's default model name.
	DefaultModel() string

	// Name returns the provider identifier (e.g. "openrouter", "gemini").
	Name() string
}

// ChatRequest contains the input for a Chat call.
type ChatRequest struct {
	Messages []Message              `json:"messages"`
	Model    string                 `json:"model,omitempty"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// Option keys understood by the providers.
const (
	OptMaxTokens   = "max_tokens"
	OptTemperature = "temperature"
)

// ChatResponse is the result from an LLM call.
type ChatResponse struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"` // "stop", "length"
	Model        string `json:"model,omitempty"`
	Usage        *Usage `json:"usage,omitempty"`
}

// Message represents a conversation message.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
