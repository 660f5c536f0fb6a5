package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ddx-dashboard/backend/internal/dashboard"
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the analytics report for a case",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rawID, _ := cmd.Flags().GetString("case")
			pretty, _ := cmd.Flags().GetBool("pretty")

			caseID, err := dashboard.ParseCaseID(rawID)
			if err != nil {
				return fmt.Errorf("bad request: %w", err)
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

			report, err := dashboard.NewService(store, nil, cfg.Analytics).Report(cmd.Context(), caseID)
			if errors.Is(err, dashboard.ErrCaseNotFound) {
				return fmt.Errorf("not found: %w", err)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if pretty {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(report)
		},
	}
	cmd.Flags().String("case", "", "Case id (UUID)")
	cmd.Flags().Bool("pretty", false, "Indent JSON output")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}
