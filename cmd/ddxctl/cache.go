package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ddx-dashboard/backend/internal/cache/redis"
	"github.com/ddx-dashboard/backend/internal/dashboard"
)

func newFlushCacheCmd() *cobra.Command {
	var caseID string

	cmd := &cobra.Command{
		Use:   "flush-cache",
		Short: "Drop cached analytics reports from Redis",
		Long:  "flush-cache removes the cached report for one case, or every cached report when --case is omitted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			client, err := redis.NewClient(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx := cmd.Context()
			if caseID == "" {
				if err := client.InvalidateAll(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "flushed all cached reports")
				return nil
			}

			id, err := dashboard.ParseCaseID(caseID)
			if err != nil {
				return fmt.Errorf("bad request: %w", err)
			}
			if err := client.Invalidate(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "flushed cached report for case %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&caseID, "case", "", "Case id to flush (default: all cases)")
	return cmd
}
