package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/hamdam/internal/config"
	"github.com/nextlevelbuilder/hamdam/pkg/protocol"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	badColor  = color.New(color.FgRed)
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, credentials and database health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("hamdam doctor")
	fmt.Printf("  Version:  %s (feed %d)\n", Version, protocol.FeedVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s ", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		warnColor.Println("(NOT FOUND, using defaults)")
	} else {
		okColor.Println("(OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		badColor.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Database:")
	fmt.Printf("    %-12s %s\n", "Driver:", cfg.Database.Driver)
	checkDatabase(cfg)

	fmt.Println()
	fmt.Println("  Providers:")
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		checkProvider(name, cfg.Providers[name].APIKey)
	}
	if _, ok := cfg.Providers[cfg.AI.Provider]; !ok {
		badColor.Printf("    active provider %q is not defined\n", cfg.AI.Provider)
	} else {
		fmt.Printf("    %-12s %s\n", "Active:", cfg.AI.Provider)
	}

	fmt.Println()
	fmt.Println("  Search:")
	if n := len(cfg.Search.APIKeys); n > 0 {
		okColor.Printf("    %d key(s) in pool\n", n)
	} else {
		warnColor.Println("    no keys (search augmentation disabled)")
	}

	fmt.Println()
	fmt.Println("  Channels:")
	checkChannel("Telegram", cfg.Channels.Telegram.Enabled, cfg.Channels.Telegram.Token != "")
	checkChannel("Discord", cfg.Channels.Discord.Enabled, cfg.Channels.Discord.Token != "")

	fmt.Println()
	fmt.Println("  Dashboard:")
	if cfg.Gateway.DashboardUser != "" && cfg.Gateway.DashboardPassword != "" {
		okColor.Printf("    %s (credentials set)\n", cfg.Gateway.Addr())
	} else {
		warnColor.Printf("    %s (credentials missing, admin API disabled)\n", cfg.Gateway.Addr())
	}

	fmt.Println()
	checkPath("Triage", config.ExpandHome(cfg.Triage.Dir))
	checkPath("Memories", config.ExpandHome(cfg.MemoriesFile))

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkDatabase(cfg *config.Config) {
	stores, err := openStores(cfg)
	if err != nil {
		badColor.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}
	defer stores.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rules, err := stores.Rules.ListRules(ctx)
	if err != nil {
		badColor.Printf("    %-12s QUERY FAILED (%s)\n", "Status:", err)
		return
	}
	okColor.Printf("    %-12s OK (%d rules)\n", "Status:", len(rules))
}

func checkProvider(name, apiKey string) {
	if apiKey == "" {
		fmt.Printf("    %-12s (not configured)\n", name+":")
		return
	}
	fmt.Printf("    %-12s ", name+":")
	okColor.Println(maskKey(apiKey))
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

func checkChannel(name string, enabled, hasCredentials bool) {
	fmt.Printf("    %-12s ", name+":")
	switch {
	case enabled && hasCredentials:
		okColor.Println("enabled")
	case enabled:
		badColor.Println("enabled (missing credentials)")
	default:
		fmt.Println("disabled")
	}
}

func checkPath(label, path string) {
	fmt.Printf("  %-9s %s ", label+":", path)
	if _, err := os.Stat(path); err != nil {
		warnColor.Println("(NOT FOUND)")
	} else {
		okColor.Println("(OK)")
	}
}
