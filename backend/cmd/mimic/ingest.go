package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mimic-ai/backend/internal/graph"
	"mimic-ai/backend/internal/ingest"
	"mimic-ai/backend/pkg/config"
)

func ingestCmd() *cobra.Command {
	var dryRun, reset bool

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Parse a chat export and write it to the graph",
		Long: `Parse a chat export and write participants, messages and topics to Neo4j.
With --dry-run the graph is built in memory and only the statistics are printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read transcript: %w", err)
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			var store graph.Store
			if dryRun {
				store = graph.NewMemoryStore()
			} else {
				neo, closeStore, err := openStore(ctx, cfg)
				if err != nil {
					return err
				}
				defer closeStore()
				if reset {
					fmt.Fprintln(cmd.ErrOrStderr(), "Clearing existing graph data...")
					if err := neo.Reset(ctx); err != nil {
						return fmt.Errorf("reset: %w", err)
					}
				}
				store = neo
			}

			coordinator := ingest.NewCoordinator(store, ingest.OptionsFromConfig(cfg)...)
			result, err := coordinator.ParseAndIngest(ctx, string(raw))
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "ingest into an in-memory graph instead of Neo4j")
	cmd.Flags().BoolVar(&reset, "reset", false, "delete all graph data before ingesting")
	cmd.MarkFlagsMutuallyExclusive("dry-run", "reset")
	return cmd
}

// openStore connects to Neo4j and makes sure the schema exists.
func openStore(ctx context.Context, cfg *config.Config) (*graph.Neo4jStore, func(), error) {
	driver, err := graph.Connect(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		return nil, nil, err
	}
	store := graph.NewNeo4jStore(driver, cfg.Neo4jDatabase)
	closeStore := func() { _ = store.Close(context.Background()) }

	if err := store.EnsureSchema(ctx); err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, closeStore, nil
}
