package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"mimic-ai/backend/pkg/config"
)

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show graph totals and participants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			store, closeStore, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			stats, err := store.DatabaseStats(ctx)
			if err != nil {
				return err
			}
			names, err := store.ListParticipants(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Participants:  %d\n", stats.Participants)
			fmt.Fprintf(out, "Messages:      %d\n", stats.Messages)
			fmt.Fprintf(out, "Topics:        %d\n", stats.Topics)
			fmt.Fprintf(out, "Relationships: %d\n", stats.Relationships)
			for _, name := range names {
				fmt.Fprintf(out, "  - %s\n", name)
			}
			return nil
		},
	}
}
