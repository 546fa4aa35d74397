package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/hamdam/pkg/protocol"
)

// Version is set at build time via -ldflags "-X github.com/nextlevelbuilder/hamdam/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "hamdam",
	Short: "Hamdam: conversational Telegram and Discord bot",
	Long:  "Hamdam answers chat messages from a trigger catalog, falls back to an AI persona with optional web-search grounding, and serves an admin dashboard API.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadDotEnv()
	},
	Run: func(cmd *cobra.Command, args []string) {
		runGateway(gatewayOptions{})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.json or $HAMDAM_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(gatewayCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(migrateCmd())
}

// loadDotEnv reads .env from the working directory. A missing file is fine.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env", "error", err)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hamdam %s (feed %d)\n", Version, protocol.FeedVersion)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("HAMDAM_CONFIG"); v != "" {
		return v
	}
	return "config.json"
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
