package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ddx-dashboard/backend/internal/storage/sqlite"
	"github.com/ddx-dashboard/backend/pkg/config"
	"github.com/ddx-dashboard/backend/pkg/logger"
)

// version is set via -ldflags at build time.
var version = "(devel)"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ddxctl",
		Short:         "Operate the differential-diagnosis dashboard",
		Long:          "ddxctl seeds case bundles into a local SQLite store, prints cohort analytics reports and flushes the report cache.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, _ := cmd.Flags().GetString("log-level")
			return logger.Init(level, "console", "stderr")
		},
	}

	root.PersistentFlags().String("db", "", "Path to SQLite database file (overrides sqlite.path from config)")
	root.PersistentFlags().String("config", "", "Path to config file")
	root.PersistentFlags().String("log-level", "warn", "Log level for diagnostics on stderr")

	root.AddCommand(newSeedCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newDecodeNoteCmd())
	root.AddCommand(newFlushCacheCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "ddxctl", version)
		},
	})
	return root
}

// loadConfig reads --config when given, otherwise the usual search paths and
// DDX_* environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// openStore opens the SQLite store named by --db, falling back to config.
func openStore(ctx context.Context, cmd *cobra.Command, cfg *config.Config) (*sqlite.Client, error) {
	path, _ := cmd.Flags().GetString("db")
	if path == "" {
		path = cfg.SQLite.Path
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := sqlite.NewClient(path)
	if err != nil {
		return nil, err
	}
	if err := store.InitSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
