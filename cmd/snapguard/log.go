package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaibhaw-/snapguard/internal/snapguard/models"
	"github.com/vaibhaw-/snapguard/internal/snapguard/query"
)

var (
	logFlagRisk      []string
	logFlagMinRisk   string
	logFlagUser      string
	logFlagEvents    []string
	logFlagAnomalies bool
	logFlagTxHash    string
	logFlagSince     string
	logFlagLast      string
	logFlagSummary   bool
	logFlagLimit     int
	logFlagOutput    string
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Query the security log",
	Example: `  snapguard log --anomalies --last 7d
  snapguard log --user alice --since "Oct 1 2025" --summary
  snapguard log --event ip_blocked --output blocked.ndjson`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := query.Options{
			OutputFile: logFlagOutput,
			Risk:       logFlagRisk,
			User:       logFlagUser,
			Events:     logFlagEvents,
			Anomalies:  logFlagAnomalies,
			TxHash:     logFlagTxHash,
			Summary:    logFlagSummary,
			Limit:      logFlagLimit,
		}
		if logFlagMinRisk != "" {
			r, err := models.ParseRiskLevel(logFlagMinRisk)
			if err != nil {
				return err
			}
			opts.MinRisk = r
		}
		if logFlagSince != "" {
			t, err := query.ParseSince(logFlagSince)
			if err != nil {
				return fmt.Errorf("--since: %w", err)
			}
			opts.Since = t
		}
		if logFlagLast != "" {
			d, err := query.ParseDuration(logFlagLast)
			if err != nil {
				return fmt.Errorf("--last: %w", err)
			}
			opts.LastDuration = d
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		rows, err := a.Audit.Logs(ctx)
		if err != nil {
			return err
		}
		out, err := query.OpenOutput(opts.OutputFile)
		if err != nil {
			return err
		}
		defer out.Close()

		_, err = query.Run(rows, opts, out, os.Stderr, time.Now().UTC())
		return err
	},
}

func init() {
	f := logCmd.Flags()
	f.StringSliceVar(&logFlagRisk, "risk", nil, "risk levels to include (comma-separated)")
	f.StringVar(&logFlagMinRisk, "min-risk", "", "include rows at or above this risk level")
	f.StringVar(&logFlagUser, "user", "", "filter by user id")
	f.StringSliceVar(&logFlagEvents, "event", nil, "event types to include (comma-separated)")
	f.BoolVar(&logFlagAnomalies, "anomalies", false, "only rows flagged as anomalies")
	f.StringVar(&logFlagTxHash, "tx", "", "only rows linked to this ledger entry")
	f.StringVar(&logFlagSince, "since", "", "include rows on or after this time (most date formats)")
	f.StringVar(&logFlagLast, "last", "", "include rows from the last duration (e.g. 24h, 7d)")
	f.BoolVar(&logFlagSummary, "summary", false, "print summary counts to stderr")
	f.IntVar(&logFlagLimit, "limit", 0, "stop after N matches")
	f.StringVar(&logFlagOutput, "output", "", "write rows to this file instead of stdout")
}
