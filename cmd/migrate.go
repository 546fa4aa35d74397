package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/hamdam/internal/config"
	"github.com/nextlevelbuilder/hamdam/internal/store/sqlite"
)

var migrationsDir string

// errSQLiteSelf means the configured store migrates itself on open.
var errSQLiteSelf = errors.New("sqlite store applies its embedded migrations on open")

func resolveMigrationsDir() string {
	if migrationsDir != "" {
		return migrationsDir
	}
	if v := os.Getenv("HAMDAM_MIGRATIONS_DIR"); v != "" {
		return v
	}
	exe, err := os.Executable()
	if err != nil {
		return "migrations"
	}
	return filepath.Join(filepath.Dir(exe), "migrations")
}

// migrateURL rewrites a postgres:// DSN to the pgx5:// scheme the migrate driver registers.
func migrateURL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

// withMigrator loads the config, opens a migrator on the Postgres schema and
// runs fn. A sqlite configuration yields errSQLiteSelf.
func withMigrator(fn func(m *migrate.Migrate) error) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.Database.IsPostgres() {
		return errSQLiteSelf
	}
	// The DSN is env only: HAMDAM_POSTGRES_DSN.
	if cfg.Database.PostgresDSN == "" {
		return errors.New("HAMDAM_POSTGRES_DSN environment variable is not set")
	}

	m, err := migrate.New("file://"+resolveMigrationsDir(), migrateURL(cfg.Database.PostgresDSN))
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()
	return fn(m)
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

func logVersion(m *migrate.Migrate, msg string) {
	v, dirty, _ := m.Version()
	slog.Info(msg, "version", v, "dirty", dirty)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}
	cmd.PersistentFlags().StringVar(&migrationsDir, "migrations-dir", "", "path to migrations directory (default: <exe dir>/migrations)")

	cmd.AddCommand(
		migrateUpCmd(),
		migrateDownCmd(),
		migrateVersionCmd(),
		migrateForceCmd(),
		migrateGotoCmd(),
		migrateDropCmd(),
	)
	return cmd
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withMigrator(func(m *migrate.Migrate) error {
				if err := ignoreNoChange(m.Up()); err != nil {
					return fmt.Errorf("migrate up: %w", err)
				}
				logVersion(m, "migration complete")
				return nil
			})
			if errors.Is(err, errSQLiteSelf) {
				return openSQLite()
			}
			return err
		},
	}
}

// openSQLite brings the standalone database up to date by opening it.
func openSQLite() error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := sqlite.Open(config.ExpandHome(cfg.Database.DataDir))
	if err != nil {
		return err
	}
	slog.Info("sqlite schema up to date", "dir", cfg.Database.DataDir)
	return db.Close()
}

func migrateDownCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (default: 1 step)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *migrate.Migrate) error {
				if err := ignoreNoChange(m.Steps(-max(steps, 1))); err != nil {
					return fmt.Errorf("migrate down: %w", err)
				}
				logVersion(m, "rollback complete")
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "number of steps to roll back")
	return cmd
}

func migrateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show current migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *migrate.Migrate) error {
				v, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					fmt.Println("no migrations applied")
					return nil
				}
				if err != nil {
					return fmt.Errorf("get version: %w", err)
				}
				fmt.Printf("version: %d, dirty: %v\n", v, dirty)
				return nil
			})
		},
	}
}

func migrateForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Set the recorded version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version: %w", err)
			}
			return withMigrator(func(m *migrate.Migrate) error {
				if err := m.Force(version); err != nil {
					return fmt.Errorf("force version: %w", err)
				}
				slog.Info("forced version", "version", version)
				return nil
			})
		},
	}
}

func migrateGotoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "goto <version>",
		Short: "Migrate up or down to a specific version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid version: %w", err)
			}
			return withMigrator(func(m *migrate.Migrate) error {
				if err := ignoreNoChange(m.Migrate(uint(version))); err != nil {
					return fmt.Errorf("migrate goto: %w", err)
				}
				logVersion(m, "migrated")
				return nil
			})
		},
	}
}

func migrateDropCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Drop every table in the schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to drop without --yes")
			}
			return withMigrator(func(m *migrate.Migrate) error {
				if err := m.Drop(); err != nil {
					return fmt.Errorf("drop: %w", err)
				}
				slog.Info("all tables dropped")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm dropping all tables")
	return cmd
}
