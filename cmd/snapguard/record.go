package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vaibhaw-/snapguard/internal/snapguard/models"
)

var (
	recordFlagUser        string
	recordFlagEvent       string
	recordFlagDescription string
	recordFlagRisk        string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Append a security audit event to the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		if recordFlagEvent == "" {
			return fmt.Errorf("--event is required")
		}
		risk, err := models.ParseRiskLevel(recordFlagRisk)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		h, err := a.Audit.Record(ctx, recordFlagUser, recordFlagEvent, recordFlagDescription, risk)
		if h != "" {
			fmt.Println(h)
		}
		return err
	},
}

func init() {
	recordCmd.Flags().StringVar(&recordFlagUser, "user", "", "user id the event concerns")
	recordCmd.Flags().StringVar(&recordFlagEvent, "event", "", "event type (required)")
	recordCmd.Flags().StringVar(&recordFlagDescription, "description", "", "human-readable description")
	recordCmd.Flags().StringVar(&recordFlagRisk, "risk", "low", "risk level: low, medium, high, critical")
}
