package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/hamdam/internal/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(cfg.MaskedCopy())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to the config path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath()
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.Save(path, config.Default()); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	})
	return cmd
}
