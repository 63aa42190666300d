package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mimic-ai/backend/internal/transcript"
)

func parseCmd() *cobra.Command {
	var timezone string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse a chat export and print what was recognised",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := time.LoadLocation(timezone)
			if err != nil {
				return fmt.Errorf("timezone: %w", err)
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open transcript: %w", err)
			}
			defer f.Close()

			messages, report, err := transcript.NewParser(loc).ParseReader(f)
			if err != nil {
				return err
			}
			summary := transcript.Summarize(messages)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{
					"summary":  summary,
					"report":   report,
					"messages": messages,
				})
			}
			printSummary(out, summary, report)
			return nil
		},
	}

	cmd.Flags().StringVar(&timezone, "timezone", "UTC", "timezone the export's clock times are in")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print messages and statistics as JSON")
	return cmd
}

func printSummary(out io.Writer, summary transcript.Summary, report transcript.ParseReport) {
	fmt.Fprintf(out, "Messages:       %d (%d text, %d media)\n", summary.TotalMessages, summary.TextMessages, summary.MediaMessages)
	fmt.Fprintf(out, "Participants:   %d\n", summary.UniqueSenders)
	for _, s := range summary.Senders {
		fmt.Fprintf(out, "  - %s\n", s)
	}
	if summary.Start != nil {
		fmt.Fprintf(out, "Range:          %s .. %s\n", summary.Start.Format(time.RFC3339), summary.End.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "Lines:          %d (%d headers, %d continuations, %d system, %d orphan, %d blank)\n",
		report.Lines, report.Headers, report.Continuations, report.SystemLines, report.OrphanLines, report.BlankLines)
	if report.TimestampFailures > 0 {
		fmt.Fprintf(out, "Bad timestamps: %d\n", report.TimestampFailures)
	}
}
