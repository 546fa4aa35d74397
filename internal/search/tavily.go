package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/hamdam/internal/providers"
)

var (
	// ErrPoolExhausted means every key in the pool was rate limited or out of credit.
	ErrPoolExhausted = errors.New("search key pool exhausted")
	// ErrNoAnswer means the search succeeded but carried no synthesized answer.
	ErrNoAnswer = errors.New("search returned no answer")
	// ErrNoKeys means no keys are configured.
	ErrNoKeys = errors.New("no search api keys configured")
)

// DefaultAPIURL is Tavily's search endpoint.
const DefaultAPIURL = "https://api.tavily.com/search"

// FailureCounter receives one increment per failed search.
type FailureCounter interface {
	IncSearchFailures()
}

// Config configures a Tavily client.
type Config struct {
	APIURL      string
	APIKeys     []string
	MaxResults  int
	SearchDepth string
	Timeout     time.Duration
}

// Tavily queries the Tavily API, rotating through a key pool. The cursor only
// moves forward: a key that hit 429 or 402 is not tried again until restart.
type Tavily struct {
	cfg      Config
	client   *http.Client
	failures FailureCounter

	mu     sync.Mutex
	cursor int
}

// NewTavily creates a client. failures may be nil.
func NewTavily(cfg Config, failures FailureCounter) *Tavily {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 3
	}
	if cfg.SearchDepth == "" {
		cfg.SearchDepth = "basic"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Tavily{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}, failures: failures}
}

type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
	MaxResults    int    `json:"max_results"`
}

type tavilyResponse struct {
	Answer string `json:"answer"`
}

// Cursor returns the index of the key the next search will use.
func (t *Tavily) Cursor() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursor
}

// Search returns Tavily's synthesized answer for query.
func (t *Tavily) Search(ctx context.Context, query string) (string, error) {
	ctx, span := otel.Tracer("hamdam/search").Start(ctx, "search.tavily", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	answer, err := t.search(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if countsAsFailure(err) && t.failures != nil {
			t.failures.IncSearchFailures()
		}
		return "", err
	}
	span.SetAttributes(attribute.Int("search.answer_len", len(answer)))
	return answer, nil
}

func (t *Tavily) search(ctx context.Context, query string) (string, error) {
	if len(t.cfg.APIKeys) == 0 {
		return "", ErrNoKeys
	}
	for {
		t.mu.Lock()
		idx := t.cursor
		t.mu.Unlock()
		if idx >= len(t.cfg.APIKeys) {
			slog.Error("all search api keys exhausted", "keys", len(t.cfg.APIKeys))
			return "", ErrPoolExhausted
		}

		slog.Info("performing web search", "key_index", idx)
		answer, err := t.do(ctx, t.cfg.APIKeys[idx], query)

		var he *providers.HTTPError
		if errors.As(err, &he) && (he.Status == http.StatusTooManyRequests || he.Status == http.StatusPaymentRequired) {
			slog.Warn("search api key exhausted, rotating", "key_index", idx, "status", he.Status)
			t.advance(idx)
			continue
		}
		if err != nil {
			slog.Error("web search failed", "error", err)
			return "", err
		}
		if answer == "" {
			return "", ErrNoAnswer
		}
		return answer, nil
	}
}

func countsAsFailure(err error) bool {
	return !errors.Is(err, ErrNoAnswer) && !errors.Is(err, ErrNoKeys)
}

// advance moves the cursor past idx unless a concurrent search already did.
func (t *Tavily) advance(idx int) {
	t.mu.Lock()
	if t.cursor == idx {
		t.cursor++
	}
	t.mu.Unlock()
}

func (t *Tavily) do(ctx context.Context, key, query string) (string, error) {
	body, err := json.Marshal(tavilyRequest{
		APIKey:        key,
		Query:         query,
		SearchDepth:   t.cfg.SearchDepth,
		IncludeAnswer: true,
		MaxResults:    t.cfg.MaxResults,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("tavily request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &providers.HTTPError{Status: resp.StatusCode, Body: string(b)}
	}

	var out tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode tavily response: %w", err)
	}
	return out.Answer, nil
}
