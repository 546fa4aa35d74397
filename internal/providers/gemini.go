package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider talks to the Gemini API through the native SDK.
// A call walks the model tiers in order (e.g. Pro, then Flash) and returns the
// first success; an auth failure stops the walk.
type GeminiProvider struct {
	name   string
	client *genai.Client
	models []string
}

// NewGeminiProvider creates a provider whose first tier is defaultModel.
// baseURL is optional and only used to point the SDK at a proxy or test server.
func NewGeminiProvider(ctx context.Context, name, apiKey, baseURL, defaultModel string, fallbacks []string) (*GeminiProvider, error) {
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimRight(baseURL, "/") + "/"}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("%s: create genai client: %w", name, err)
	}

	models := append([]string{defaultModel}, fallbacks...)
	return &GeminiProvider{name: name, client: client, models: models}, nil
}

func (p *GeminiProvider) Name() string         { return p.name }
func (p *GeminiProvider) DefaultModel() string { return p.models[0] }

func (p *GeminiProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	system, contents := toGeminiContents(req.Messages)
	gc := &genai.GenerateContentConfig{}
	if system != "" {
		gc.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if v, ok := req.Options[OptTemperature].(float64); ok {
		t := float32(v)
		gc.Temperature = &t
	}
	if v, ok := req.Options[OptMaxTokens].(int); ok {
		gc.MaxOutputTokens = int32(v)
	}

	tiers := p.models
	if req.Model != "" {
		tiers = append([]string{req.Model}, p.fallbacksExcept(req.Model)...)
	}

	var lastErr error
	for i, model := range tiers {
		resp, err := p.client.Models.GenerateContent(ctx, model, contents, gc)
		if err == nil {
			text := resp.Text()
			if text == "" {
				lastErr = fmt.Errorf("%s: empty response from %s", p.name, model)
				continue
			}
			out := &ChatResponse{Content: text, FinishReason: "stop", Model: model}
			if um := resp.UsageMetadata; um != nil {
				out.Usage = &Usage{
					PromptTokens:     int(um.PromptTokenCount),
					CompletionTokens: int(um.CandidatesTokenCount),
					TotalTokens:      int(um.TotalTokenCount),
				}
			}
			return out, nil
		}

		lastErr = wrapGeminiError(p.name, err)
		if IsAuthError(lastErr) || ctx.Err() != nil {
			return nil, lastErr
		}
		if i < len(tiers)-1 {
			slog.Warn("gemini tier failed, falling back", "model", model, "next", tiers[i+1], "error", err)
		}
	}
	return nil, lastErr
}

func (p *GeminiProvider) fallbacksExcept(model string) []string {
	var out []string
	for _, m := range p.models[1:] {
		if m != model {
			out = append(out, m)
		}
	}
	return out
}

// toGeminiContents splits out the system prompt and maps the remaining turns
// onto Gemini roles ("assistant" becomes "model").
func toGeminiContents(msgs []Message) (string, []*genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return strings.Join(system, "\n\n"), contents
}

// wrapGeminiError maps SDK API errors onto HTTPError so retry classification
// is shared. Gemini reports a bad key as 400 API_KEY_INVALID or 403
// PERMISSION_DENIED; both are flagged as auth failures.
func wrapGeminiError(name string, err error) error {
	var apiErr genai.APIError
	var ptr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &ptr) && ptr != nil:
		apiErr = *ptr
	default:
		return fmt.Errorf("%s: %w", name, err)
	}
	return &HTTPError{
		Status: apiErr.Code,
		Body:   fmt.Sprintf("%s: %s", name, apiErr.Message),
		Auth:   isGeminiAuthFailure(apiErr),
	}
}

func isGeminiAuthFailure(e genai.APIError) bool {
	switch {
	case e.Code == http.StatusUnauthorized, e.Code == http.StatusForbidden:
		return true
	case e.Status == "UNAUTHENTICATED", e.Status == "PERMISSION_DENIED":
		return true
	}
	for _, d := range e.Details {
		if reason, _ := d["reason"].(string); reason == "API_KEY_INVALID" {
			return true
		}
	}
	return strings.Contains(e.Message, "API_KEY_INVALID")
}
