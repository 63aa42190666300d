package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mimic-ai/backend/pkg/logger"
)

var version = "dev"

func rootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "mimic",
		Short:         "Parse chat exports and load them into the conversation graph",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init("development", logLevel)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Sync()
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(parseCmd())
	root.AddCommand(ingestCmd())
	root.AddCommand(statsCmd())
	return root
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
