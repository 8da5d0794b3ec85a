package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statsFlagJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show chain statistics and integrity status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.Gate.Stats(ctx)
		if err != nil {
			return err
		}
		if statsFlagJSON {
			return json.NewEncoder(os.Stdout).Encode(st)
		}
		fmt.Printf("Entries:          %s\n", humanize.Comma(int64(st.Chain.TotalEntries)))
		fmt.Printf("Current block:    %s\n", humanize.Comma(st.Chain.CurrentBlockNumber))
		fmt.Printf("Head hash:        %s\n", st.Chain.HeadHash)
		fmt.Printf("Integrity status: %s\n", st.Chain.IntegrityStatus)
		fmt.Printf("Blocked IPs:      %d\n", len(st.Firewall.BlockedIPs))
		if st.Firewall.Lockdown {
			fmt.Printf("Lockdown:         %s\n", st.Firewall.LockdownReason)
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsFlagJSON, "json", false, "print as JSON")
}
