package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/nextlevelbuilder/hamdam/internal/config"
	"github.com/nextlevelbuilder/hamdam/internal/providers"
)

// registerProviders builds one provider per configured entry that has an API key.
// Entries without a key are skipped so the defaults can stay in the config.
func registerProviders(ctx context.Context, registry *providers.Registry, cfg *config.Config) error {
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pc := cfg.Providers[name]
		if pc.APIKey == "" {
			continue
		}
		p, err := newProvider(ctx, name, pc)
		if err != nil {
			return fmt.Errorf("provider %s: %w", name, err)
		}
		registry.Register(p)
		slog.Info("registered provider", "name", name, "type", pc.Type, "model", p.DefaultModel())
	}

	if _, err := registry.Get(cfg.AI.Provider); err != nil {
		slog.Warn("configured AI provider is not available; AI replies will fail", "provider", cfg.AI.Provider)
	}
	return nil
}

func newProvider(ctx context.Context, name string, pc config.ProviderConfig) (providers.Provider, error) {
	switch pc.Type {
	case "gemini":
		p, err := providers.NewGeminiProvider(ctx, name, pc.APIKey, pc.APIBase, pc.Model, pc.FallbackModels)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "openai", "":
		p := providers.NewOpenAIProvider(name, pc.APIKey, pc.APIBase, pc.Model)
		if pc.TimeoutSec > 0 {
			p = p.WithTimeout(time.Duration(pc.TimeoutSec) * time.Second)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", pc.Type)
	}
}
