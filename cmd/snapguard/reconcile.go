package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Rebuild missing security log rows from the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Audit.Reconcile(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("repaired %d log rows\n", n)
		return nil
	},
}
