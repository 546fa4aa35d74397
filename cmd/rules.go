package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/hamdam/internal/config"
	"github.com/nextlevelbuilder/hamdam/internal/logging"
	"github.com/nextlevelbuilder/hamdam/internal/store"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and seed the response catalog",
	}
	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesImportCmd())
	return cmd
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalog rules in match order",
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, err := openConfiguredStores()
			if err != nil {
				return err
			}
			defer stores.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			rules, err := stores.Rules.ListRules(ctx)
			if err != nil {
				return fmt.Errorf("list rules: %w", err)
			}
			printRules(os.Stdout, rules)
			return nil
		},
	}
}

func rulesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Append rules from a JSON array (all or nothing)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			rules, err := parseRules(data)
			if err != nil {
				return err
			}

			stores, err := openConfiguredStores()
			if err != nil {
				return err
			}
			defer stores.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			n, err := stores.Rules.ImportRules(ctx, rules)
			if err != nil {
				return fmt.Errorf("import rules: %w", err)
			}
			fmt.Printf("imported %d rules; send SIGHUP to a running gateway to reload the catalog\n", n)
			return nil
		},
	}
}

func openConfiguredStores() (*store.Stores, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return openStores(cfg)
}

// parseRules decodes a JSON array of rules and validates every entry before
// any is written.
func parseRules(data []byte) ([]store.Rule, error) {
	var rules []store.Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("no rules in file")
	}
	for i := range rules {
		if err := rules[i].Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
	}
	return rules, nil
}

const triggerPreviewWidth = 60

func printRules(w io.Writer, rules []store.Rule) {
	if len(rules) == 0 {
		fmt.Fprintln(w, "catalog is empty")
		return
	}
	for _, r := range rules {
		ctx := ""
		if r.RequiredContext != "" {
			ctx = " requires=" + r.RequiredContext
		}
		if r.SetsContext != "" {
			ctx += " sets=" + r.SetsContext
		}
		fmt.Fprintf(w, "%5d  %-5s %d responses%s\n      %s\n",
			r.ID, r.MatchType, len(r.Responses), ctx,
			logging.Preview(strings.Join(r.Triggers, " | "), triggerPreviewWidth))
	}
	fmt.Fprintf(w, "%d rules\n", len(rules))
}
