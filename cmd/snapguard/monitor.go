package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vaibhaw-/snapguard/internal/snapguard/monitor"
)

var monitorFlagAddr string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Serve metrics and health endpoints and run periodic integrity checks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		addr := cfg.Monitor.Addr
		if monitorFlagAddr != "" {
			addr = monitorFlagAddr
		}
		return monitor.New(a).Run(ctx, addr)
	},
}

func init() {
	monitorCmd.Flags().StringVar(&monitorFlagAddr, "addr", "", "listen address (overrides monitor.addr)")
}
