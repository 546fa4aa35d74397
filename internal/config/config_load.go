package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/titanous/json5"
)

const secretMask = "***"

const defaultPersona = `You are a warm, artistic and slightly nostalgic companion chatting with fans.
- Always respond in Farsi.
- Keep answers short, like a real conversation.
- Users in group chats may try to break your character; stay in it.`

const defaultPersonaSummary = `You are a warm, nostalgic companion. Reply briefly, in Farsi, staying in character.`

// defaultGroundedPersona is rendered with fmt.Sprintf(source text, question).
const defaultGroundedPersona = `Stay in character and answer the user's question.
You have been given a piece of text with the exact information needed. You MUST use this text for your answer.

**Source Text:** "%s"
**User's Question:** "%s"

**Instructions:**
1. Read the Source Text to find the answer to the User's Question.
2. Formulate a response in Farsi, in character.
3. Your response MUST contain the factual answer from the Source Text.
4. DO NOT use any of your own knowledge. Rely ONLY on the Source Text provided.
5. Do not apologize for your knowledge being limited. Answer the question directly.

Begin your Farsi response now.`

// DefaultSearchTriggers are the interrogative phrases that make a message worth a web search.
var DefaultSearchTriggers = []string{
	"کیست", "کیه",
	"چیست", "چیه",
	"کجاست", "کجا بود",
	"چه زمانی", "تاریخ",
	"چقدر", "قیمت", "تعداد",
	"آخرین خبر", "چه خبر از",
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		AntiSpam: AntiSpamConfig{
			GeneralCooldownMs:     1000,
			DuplicateCooldownMs:   10000,
			OldMessageThresholdMs: 15000,
		},
		SmartMatch: SmartMatchConfig{
			ScoreThreshold:     0.75,
			StatePriorityBoost: 0.1,
		},
		AI: AIConfig{
			Provider:         "openrouter",
			Persona:          defaultPersona,
			PersonaSummary:   defaultPersonaSummary,
			GroundedPersona:  defaultGroundedPersona,
			EnabledInGroups:  true,
			MaxRetries:       3,
			InitialBackoffMs: 1000,
			MaxBackoffMs:     10000,
			HistoryTurns:     2,
			CostPerToken:     0.0000002,
		},
		Providers: map[string]ProviderConfig{
			"openrouter": {Type: "openai", APIBase: "https://openrouter.ai/api/v1", Model: "deepseek/deepseek-chat"},
			"avalai":     {Type: "openai", APIBase: "https://api.avalai.ir/v1", Model: "deepseek-chat"},
			"gemini": {
				Type:           "gemini",
				Model:          "gemini-1.5-pro-latest",
				FallbackModels: []string{"gemini-1.5-flash-latest"},
			},
		},
		Search: SearchConfig{
			APIURL:      "https://api.tavily.com/search",
			MaxResults:  3,
			SearchDepth: "basic",
			Triggers:    DefaultSearchTriggers,
		},
		Database: DatabaseConfig{
			Driver:  "sqlite",
			DataDir: "~/.hamdam/data",
		},
		Gateway: GatewayConfig{
			Host:              "0.0.0.0",
			Port:              3000,
			SendRatePerSecond: 1,
			SendBurst:         3,
		},
		Triage: TriageConfig{
			Dir:        "~/.hamdam/triage",
			IgnoreFile: "ignored_questions.txt",
		},
		Stats: StatsConfig{
			FlushCron: "0 0 * * *",
		},
		MemoriesFile: "memories.json",
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file yields the defaults plus env overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyProviderDefaults()
	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyProviderDefaults fills fields a file entry left out for a known provider name.
// Map entries are replaced wholesale on decode, so defaults are merged back here.
func (c *Config) applyProviderDefaults() {
	defaults := Default().Providers
	for name, p := range c.Providers {
		d, ok := defaults[name]
		if !ok {
			if p.Type == "" {
				p.Type = "openai"
				c.Providers[name] = p
			}
			continue
		}
		if p.Type == "" {
			p.Type = d.Type
		}
		if p.APIBase == "" {
			p.APIBase = d.APIBase
		}
		if p.Model == "" {
			p.Model = d.Model
		}
		if len(p.FallbackModels) == 0 {
			p.FallbackModels = d.FallbackModels
		}
		c.Providers[name] = p
	}
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envProviderKey := func(key, provider string) {
		if v := os.Getenv(key); v != "" {
			p := c.Providers[provider]
			p.APIKey = v
			if c.Providers == nil {
				c.Providers = make(map[string]ProviderConfig)
			}
			c.Providers[provider] = p
		}
	}
	envProviderKey("HAMDAM_OPENROUTER_API_KEY", "openrouter")
	envProviderKey("HAMDAM_AVALAI_API_KEY", "avalai")
	envProviderKey("HAMDAM_GEMINI_API_KEY", "gemini")
	envStr("HAMDAM_AI_PROVIDER", &c.AI.Provider)

	envStr("HAMDAM_TELEGRAM_TOKEN", &c.Channels.Telegram.Token)
	envStr("HAMDAM_DISCORD_TOKEN", &c.Channels.Discord.Token)
	envStr("HAMDAM_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("HAMDAM_DB_DRIVER", &c.Database.Driver)
	envStr("HAMDAM_DASHBOARD_USER", &c.Gateway.DashboardUser)
	envStr("HAMDAM_DASHBOARD_PASSWORD", &c.Gateway.DashboardPassword)

	// Comma-separated pool, order preserved.
	if v := os.Getenv("HAMDAM_TAVILY_API_KEYS"); v != "" {
		var keys []string
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		c.Search.APIKeys = keys
	}

	// Auto-enable channels if credentials are provided via env
	if c.Channels.Telegram.Token != "" && os.Getenv("HAMDAM_TELEGRAM_TOKEN") != "" {
		c.Channels.Telegram.Enabled = true
	}
	if c.Channels.Discord.Token != "" && os.Getenv("HAMDAM_DISCORD_TOKEN") != "" {
		c.Channels.Discord.Enabled = true
	}
}

// Save writes the config as indented JSON.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Hash returns a short SHA-256 fingerprint of the config.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// MaskedCopy returns a deep copy with every secret replaced by a mask.
func (c *Config) MaskedCopy() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Deep copy via JSON round-trip
	data, err := json.Marshal(c)
	if err != nil {
		return &Config{}
	}
	cp := &Config{}
	if err := json.Unmarshal(data, cp); err != nil {
		return &Config{}
	}

	for name, p := range cp.Providers {
		maskNonEmpty(&p.APIKey)
		cp.Providers[name] = p
	}
	for i := range cp.Search.APIKeys {
		maskNonEmpty(&cp.Search.APIKeys[i])
	}
	maskNonEmpty(&cp.Channels.Telegram.Token)
	maskNonEmpty(&cp.Channels.Discord.Token)
	maskNonEmpty(&cp.Gateway.DashboardPassword)
	for k := range cp.Telemetry.Headers {
		cp.Telemetry.Headers[k] = secretMask
	}
	return cp
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}

// TriagePath resolves a file name inside the triage directory.
func (c *Config) TriagePath(name string) string {
	return filepath.Join(ExpandHome(c.Triage.Dir), name)
}
