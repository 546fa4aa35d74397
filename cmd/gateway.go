package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/hamdam/internal/ai"
	"github.com/nextlevelbuilder/hamdam/internal/antispam"
	"github.com/nextlevelbuilder/hamdam/internal/bus"
	"github.com/nextlevelbuilder/hamdam/internal/catalog"
	"github.com/nextlevelbuilder/hamdam/internal/channels"
	"github.com/nextlevelbuilder/hamdam/internal/channels/discord"
	"github.com/nextlevelbuilder/hamdam/internal/channels/telegram"
	"github.com/nextlevelbuilder/hamdam/internal/config"
	httpapi "github.com/nextlevelbuilder/hamdam/internal/http"
	"github.com/nextlevelbuilder/hamdam/internal/logging"
	"github.com/nextlevelbuilder/hamdam/internal/persona"
	"github.com/nextlevelbuilder/hamdam/internal/providers"
	"github.com/nextlevelbuilder/hamdam/internal/router"
	"github.com/nextlevelbuilder/hamdam/internal/search"
	"github.com/nextlevelbuilder/hamdam/internal/state"
	"github.com/nextlevelbuilder/hamdam/internal/store"
	"github.com/nextlevelbuilder/hamdam/internal/store/pg"
	"github.com/nextlevelbuilder/hamdam/internal/store/sqlite"
	"github.com/nextlevelbuilder/hamdam/internal/tracing"
	"github.com/nextlevelbuilder/hamdam/internal/triage"
	"github.com/nextlevelbuilder/hamdam/internal/usage"
	"github.com/nextlevelbuilder/hamdam/pkg/protocol"
)

// eventBacklog is how many recent events a new dashboard subscriber replays.
const eventBacklog = 100

type gatewayOptions struct {
	announce bool
}

func gatewayCmd() *cobra.Command {
	var opts gatewayOptions
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Run the bot and the admin API (default command)",
		Run: func(cmd *cobra.Command, args []string) {
			runGateway(opts)
		},
	}
	cmd.Flags().BoolVar(&opts.announce, "announce", false, "prompt for startup and shutdown announcements to known groups")
	return cmd
}

func runGateway(opts gatewayOptions) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %s\n", err)
		os.Exit(1)
	}

	logCloser := logging.Setup(cfg.Logging, verbose)
	err = serveGateway(cfg, opts)
	logCloser.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gateway error: %s\n", err)
		os.Exit(1)
	}
}

// openStores selects the backend from the database driver.
func openStores(cfg *config.Config) (*store.Stores, error) {
	sc := store.StoreConfig{
		Driver:      cfg.Database.Driver,
		DataDir:     config.ExpandHome(cfg.Database.DataDir),
		PostgresDSN: cfg.Database.PostgresDSN,
	}
	if cfg.Database.IsPostgres() {
		return pg.NewPGStores(sc)
	}
	db, err := sqlite.Open(sc.DataDir)
	if err != nil {
		return nil, err
	}
	return store.NewStores(db), nil
}

func serveGateway(cfg *config.Config, opts gatewayOptions) error {
	var ann announcement
	if opts.announce {
		var err error
		if ann, err = promptAnnouncement(); err != nil {
			return fmt.Errorf("announcement prompt: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("tracing unavailable", "error", err)
	}
	defer func() {
		tctx, tcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer tcancel()
		if err := shutdownTracing(tctx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	stores, err := openStores(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer stores.Close()

	registry := providers.NewRegistry()
	if err := registerProviders(ctx, registry, cfg); err != nil {
		return err
	}

	metrics := usage.NewMetrics()
	stats := usage.NewStats(cfg.AI.CostPerToken, metrics)
	sched, err := usage.NewScheduler(stats, stores.Stats, cfg.Stats.FlushCron)
	if err != nil {
		return err
	}
	if err := sched.LoadToday(ctx); err != nil {
		slog.Warn("could not load today's stats", "error", err)
	}

	holder := catalog.NewHolder(stores.Rules, catalog.Options{
		ScoreThreshold:     cfg.SmartMatch.ScoreThreshold,
		StatePriorityBoost: cfg.SmartMatch.StatePriorityBoost,
	})
	if err := holder.Reload(ctx); err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	reloader := catalog.NewReloader(holder)

	triageLog, err := triage.Open(config.ExpandHome(cfg.Triage.Dir), cfg.Triage.IgnoreFile)
	if err != nil {
		return fmt.Errorf("open triage log: %w", err)
	}

	memories := persona.NewMemories(config.ExpandHome(cfg.MemoriesFile))
	if err := memories.Load(); err != nil {
		slog.Warn("memories not loaded", "path", cfg.MemoriesFile, "error", err)
	}

	hub := bus.NewHub(eventBacklog)
	manager := channels.NewManager(channels.NewSendLimiter(0, cfg.Gateway.SendRatePerSecond, cfg.Gateway.SendBurst))

	deps := router.Deps{
		Sender:   manager,
		Events:   hub,
		Catalog:  holder,
		Rules:    stores.Rules,
		States:   state.NewMachine(stores.States),
		Chats:    stores.Chats,
		Triage:   triageLog,
		Memories: memories,
		Stats:    stats,
		Metrics:  metrics,
		Gate: antispam.New(antispam.Config{
			GeneralCooldown:     cfg.AntiSpam.GeneralCooldown(),
			DuplicateCooldown:   cfg.AntiSpam.DuplicateCooldown(),
			OldMessageThreshold: cfg.AntiSpam.OldMessageThreshold(),
		}),
		AI: ai.New(registry, ai.Config{
			Provider:        cfg.AI.Provider,
			Model:           cfg.AI.Model,
			Persona:         cfg.AI.Persona,
			PersonaSummary:  cfg.AI.PersonaSummary,
			GroundedPersona: cfg.AI.GroundedPersona,
			Retry: providers.RetryConfig{
				Attempts:       cfg.AI.MaxRetries,
				InitialBackoff: cfg.AI.InitialBackoff(),
				MaxBackoff:     cfg.AI.MaxBackoff(),
			},
			HistoryTurns: cfg.AI.HistoryTurns,
		}, stats, stores.History),
	}
	if len(cfg.Search.APIKeys) > 0 {
		deps.Search = search.NewTavily(search.Config{
			APIURL:      cfg.Search.APIURL,
			APIKeys:     cfg.Search.APIKeys,
			MaxResults:  cfg.Search.MaxResults,
			SearchDepth: cfg.Search.SearchDepth,
			Timeout:     time.Duration(cfg.Search.TimeoutSec) * time.Second,
		}, stats)
	} else {
		slog.Info("no search keys configured; search augmentation disabled")
	}

	r := router.New(router.Config{
		EnabledInGroups: cfg.AI.EnabledInGroups,
		GroupWhitelist:  cfg.AI.GroupWhitelist,
		SearchTriggers:  cfg.Search.Triggers,
	}, deps)

	registerChannels(cfg, manager, r.Dispatch)

	server := httpapi.New(httpapi.Config{
		Addr:     cfg.Gateway.Addr(),
		User:     cfg.Gateway.DashboardUser,
		Password: cfg.Gateway.DashboardPassword,
	}, httpapi.Deps{
		Rules:    stores.Rules,
		Days:     stores.Stats,
		Reloader: reloader,
		Sender:   manager,
		Events:   hub,
		Triage:   triageLog,
		Stats:    stats,
		Metrics:  metrics,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reloader.Run(gctx)
		return nil
	})
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error {
		if err := memories.Watch(gctx); err != nil {
			slog.Warn("memories watcher stopped", "error", err)
		}
		return nil
	})
	g.Go(func() error { return server.Run(gctx) })

	if err := manager.StartAll(gctx); err != nil {
		cancel()
		_ = g.Wait()
		return err
	}

	slog.Info("hamdam gateway starting",
		"version", Version,
		"feed", protocol.FeedVersion,
		"channels", manager.EnabledChannels(),
		"providers", registry.Names(),
		"rules", holder.Index().Len(),
		"store", cfg.Database.Driver,
	)

	if ann.enabled {
		broadcastToKnownGroups(ctx, stores.Chats, manager, ann.startupMessage())
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	go func() {
		for {
			select {
			case sig := <-sigCh:
				if sig == syscall.SIGHUP {
					reloader.Request("sighup")
					continue
				}
				slog.Info("graceful shutdown initiated", "signal", sig)
				if ann.enabled {
					actx, acancel := context.WithTimeout(context.Background(), 15*time.Second)
					broadcastToKnownGroups(actx, stores.Chats, manager, offlineMessage)
					acancel()
				}
			case <-gctx.Done():
			}
			cancel()
			return
		}
	}()

	runErr := g.Wait()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	manager.StopAll(stopCtx)
	r.Wait()

	if err := sched.Flush(stopCtx); err != nil {
		slog.Error("final stats flush failed", "error", err)
	}
	slog.Info("shutdown complete")
	return runErr
}

// registerChannels adds every enabled transport with credentials. A transport
// that fails to initialize is logged and skipped.
func registerChannels(cfg *config.Config, manager *channels.Manager, handler channels.InboundHandler) {
	if tc := cfg.Channels.Telegram; tc.Enabled && tc.Token != "" {
		ch, err := telegram.New(tc, handler)
		if err != nil {
			slog.Error("telegram channel init failed", "error", err)
		} else {
			manager.RegisterChannel(ch)
		}
	}
	if dc := cfg.Channels.Discord; dc.Enabled && dc.Token != "" {
		ch, err := discord.New(dc, handler)
		if err != nil {
			slog.Error("discord channel init failed", "error", err)
		} else {
			manager.RegisterChannel(ch)
		}
	}
}
