package config

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON.
// Chat IDs are written either way in hand-edited configs.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Contains reports whether s is in the slice.
func (f FlexibleStringSlice) Contains(s string) bool {
	for _, v := range f {
		if v == s {
			return true
		}
	}
	return false
}

// Config is the root configuration for the hamdam gateway.
type Config struct {
	AntiSpam     AntiSpamConfig            `json:"antiSpam"`
	SmartMatch   SmartMatchConfig          `json:"smartMatch"`
	AI           AIConfig                  `json:"ai"`
	Providers    map[string]ProviderConfig `json:"providers"`
	Search       SearchConfig              `json:"search"`
	Channels     ChannelsConfig            `json:"channels"`
	Database     DatabaseConfig            `json:"database"`
	Gateway      GatewayConfig             `json:"gateway"`
	Triage       TriageConfig              `json:"triage"`
	Stats        StatsConfig               `json:"stats"`
	Telemetry    TelemetryConfig           `json:"telemetry,omitempty"`
	Logging      LoggingConfig             `json:"logging,omitempty"`
	MemoriesFile string                    `json:"memoriesFile,omitempty"`
	mu           sync.RWMutex
}

// AntiSpamConfig holds the gate thresholds in milliseconds.
type AntiSpamConfig struct {
	GeneralCooldownMs     int `json:"generalCooldownMs"`
	DuplicateCooldownMs   int `json:"duplicateCooldownMs"`
	OldMessageThresholdMs int `json:"oldMessageThresholdMs"`
}

func (a AntiSpamConfig) GeneralCooldown() time.Duration {
	return time.Duration(a.GeneralCooldownMs) * time.Millisecond
}

func (a AntiSpamConfig) DuplicateCooldown() time.Duration {
	return time.Duration(a.DuplicateCooldownMs) * time.Millisecond
}

func (a AntiSpamConfig) OldMessageThreshold() time.Duration {
	return time.Duration(a.OldMessageThresholdMs) * time.Millisecond
}

// SmartMatchConfig tunes word-overlap trigger scoring.
type SmartMatchConfig struct {
	ScoreThreshold     float64 `json:"scoreThreshold"`
	StatePriorityBoost float64 `json:"statePriorityBoost"`
}

// AIConfig controls the generative fallback tier.
type AIConfig struct {
	Provider         string              `json:"provider"`
	Model            string              `json:"model,omitempty"` // overrides the provider default
	Persona          string              `json:"persona"`
	PersonaSummary   string              `json:"personaSummary"`
	GroundedPersona  string              `json:"groundedPersona,omitempty"` // fmt template: source text, question
	EnabledInGroups  bool                `json:"enabledInGroups"`
	GroupWhitelist   FlexibleStringSlice `json:"groupWhitelist,omitempty"`
	MaxRetries       int                 `json:"maxRetries"`
	InitialBackoffMs int                 `json:"initialBackoffMs"`
	MaxBackoffMs     int                 `json:"maxBackoffMs"` // caps doubling and upstream Retry-After
	HistoryTurns     int                 `json:"historyTurns"`
	CostPerToken     float64             `json:"costPerToken"`
}

func (a AIConfig) InitialBackoff() time.Duration {
	return time.Duration(a.InitialBackoffMs) * time.Millisecond
}

func (a AIConfig) MaxBackoff() time.Duration {
	return time.Duration(a.MaxBackoffMs) * time.Millisecond
}

// ProviderConfig describes one named AI backend.
// Type "openai" covers any OpenAI-compatible chat completions API (OpenRouter, AvalAI);
// "gemini" uses the native Gemini SDK.
type ProviderConfig struct {
	Type           string   `json:"type"`
	APIKey         string   `json:"apiKey"`
	APIBase        string   `json:"apiBase,omitempty"`
	Model          string   `json:"model"`
	FallbackModels []string `json:"fallbackModels,omitempty"`
	TimeoutSec     int      `json:"timeoutSec,omitempty"`
}

// SearchConfig configures the web-search augmentation step.
type SearchConfig struct {
	APIURL      string   `json:"apiUrl"`
	APIKeys     []string `json:"apiKeys,omitempty"`
	MaxResults  int      `json:"maxResults"`
	SearchDepth string   `json:"searchDepth"`
	Triggers    []string `json:"triggers,omitempty"`
	TimeoutSec  int      `json:"timeoutSec,omitempty"`
}

// DatabaseConfig selects the durable store.
type DatabaseConfig struct {
	Driver      string `json:"driver"` // "sqlite" (default) or "postgres"
	DataDir     string `json:"dataDir,omitempty"`
	PostgresDSN string `json:"-"` // env only: HAMDAM_POSTGRES_DSN
}

// IsPostgres reports whether the managed Postgres store is selected.
func (d DatabaseConfig) IsPostgres() bool { return d.Driver == "postgres" }

// GatewayConfig configures the admin HTTP server and outbound pacing.
type GatewayConfig struct {
	Host              string  `json:"host"`
	Port              int     `json:"port"`
	DashboardUser     string  `json:"dashboardUser,omitempty"`
	DashboardPassword string  `json:"dashboardPassword,omitempty"`
	SendRatePerSecond float64 `json:"sendRatePerSecond"`
	SendBurst         int     `json:"sendBurst"`
}

// Addr returns host:port for the admin listener.
func (g GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// TriageConfig locates the offline review files.
type TriageConfig struct {
	Dir        string `json:"dir"`
	IgnoreFile string `json:"ignoreFile,omitempty"`
}

// StatsConfig schedules the daily usage flush.
type StatsConfig struct {
	FlushCron string `json:"flushCron"`
}

// TelemetryConfig configures OpenTelemetry OTLP export.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`    // OTLP endpoint (e.g. "localhost:4317" for gRPC, "localhost:4318" for HTTP)
	Protocol    string            `json:"protocol,omitempty"`    // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`    // skip TLS verification (for local dev)
	ServiceName string            `json:"serviceName,omitempty"` // OTEL service name (default "hamdam")
	Headers     map[string]string `json:"headers,omitempty"`     // extra headers (auth tokens, etc.)
}

// LoggingConfig controls slog output and file rotation.
type LoggingConfig struct {
	Format     string `json:"format,omitempty"` // "text" (default) or "json"
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"maxSizeMB,omitempty"`
	MaxBackups int    `json:"maxBackups,omitempty"`
	MaxAgeDays int    `json:"maxAgeDays,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

// ReplaceFrom copies all fields from src under the write lock.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.AntiSpam = src.AntiSpam
	c.SmartMatch = src.SmartMatch
	c.AI = src.AI
	c.Providers = src.Providers
	c.Search = src.Search
	c.Channels = src.Channels
	c.Database = src.Database
	c.Gateway = src.Gateway
	c.Triage = src.Triage
	c.Stats = src.Stats
	c.Telemetry = src.Telemetry
	c.Logging = src.Logging
	c.MemoriesFile = src.MemoriesFile
}
