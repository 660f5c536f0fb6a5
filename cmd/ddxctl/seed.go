package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ddx-dashboard/backend/internal/fixtures"
)

func newSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a case bundle into the local store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")

			bundle, err := fixtures.LoadFile(file)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cmd, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := fixtures.Seed(cmd.Context(), store, bundle)
			if err != nil {
				return fmt.Errorf("seed failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"seeded case %s: %d profiles, %d submissions, %d notes, %d sentiments, %d session captures\n",
				bundle.CaseID(), stats.Profiles, stats.Submissions, stats.Notes, stats.Sentiments, stats.SessionCaptures)
			return nil
		},
	}
	cmd.Flags().StringP("file", "f", "", "Case bundle YAML file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
