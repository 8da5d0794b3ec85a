package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	verifyFlagHash string
	verifyFlagJSON bool
)

var errCompromised = errors.New("ledger integrity compromised")

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Recompute ledger hashes and report corruption",
	Long: "Without --hash, scans the whole chain (hashes, links and block gaps).\n" +
		"Exits non-zero when any entry fails verification.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if verifyFlagHash != "" {
			ok, err := a.Audit.Verify(ctx, verifyFlagHash)
			if err != nil {
				return err
			}
			if verifyFlagJSON {
				return json.NewEncoder(os.Stdout).Encode(map[string]any{"tx_hash": verifyFlagHash, "valid": ok})
			}
			fmt.Printf("%s: valid=%v\n", verifyFlagHash, ok)
			if !ok {
				return errCompromised
			}
			return nil
		}

		report, err := a.Gate.IntegrityCheck(ctx)
		if report == nil {
			return err
		}
		if verifyFlagJSON {
			if err := json.NewEncoder(os.Stdout).Encode(report); err != nil {
				return err
			}
		} else {
			fmt.Printf("Checked: %d\nValid: %v\n", report.Checked, report.Valid)
			for _, h := range report.CorruptedHashes {
				fmt.Printf("  corrupted:   %s\n", h)
			}
			for _, h := range report.BrokenLinks {
				fmt.Printf("  broken link: %s\n", h)
			}
			for _, b := range report.MissingBlocks {
				fmt.Printf("  missing block: %d\n", b)
			}
		}
		if err != nil {
			return err
		}
		if !report.Valid {
			return errCompromised
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyFlagHash, "hash", "", "verify a single entry by tx hash")
	verifyCmd.Flags().BoolVar(&verifyFlagJSON, "json", false, "print the result as JSON")
}
