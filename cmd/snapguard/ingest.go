package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vaibhaw-/snapguard/internal/snapguard/query"
	"github.com/vaibhaw-/snapguard/internal/snapguard/runner"
)

var (
	ingestFlagInput  string
	ingestFlagOutput string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Replay NDJSON domain events through the firewall and audit trail",
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = os.Stdin
		name := "stdin"
		if ingestFlagInput != "" {
			f, err := os.Open(ingestFlagInput)
			if err != nil {
				return fmt.Errorf("open input: %w", err)
			}
			defer f.Close()
			in, name = f, ingestFlagInput
		}
		out, err := query.OpenOutput(ingestFlagOutput)
		if err != nil {
			return err
		}
		defer out.Close()

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		sum, err := runner.RunIngest(ctx, a.Gate, in, out, name, cfg)
		if sum != nil {
			fmt.Fprintf(os.Stderr, "processed %d lines: %d accepted, %d denied, %d rejected\n",
				sum.RawCount, sum.AcceptedCount, sum.DeniedCount, sum.RejectedCount)
		}
		return err
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFlagInput, "input", "", "input NDJSON file (default stdin)")
	ingestCmd.Flags().StringVar(&ingestFlagOutput, "output", "", "outcome NDJSON file (default stdout)")
}
