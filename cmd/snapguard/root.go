package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vaibhaw-/snapguard/internal/snapguard/app"
	"github.com/vaibhaw-/snapguard/internal/snapguard/config"
	"github.com/vaibhaw-/snapguard/internal/snapguard/logger"
)

var (
	cfgFile string
	cfg     *config.Config
	Version = "v0.1"
	rootCmd = &cobra.Command{
		Use:           "snapguard",
		Short:         "snapguard - tamper-evident audit trail and firewall core",
		Long:          "snapguard: record, query and verify a hash-sealed security audit ledger.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// ENCRYPTION_KEY and MASTER_ENCRYPTION_KEY may live in a local .env.
			_ = godotenv.Load()

			v := viper.GetViper()
			if cfgFile != "" {
				v.SetConfigFile(cfgFile)
			} else {
				v.SetConfigFile("config.yaml")
			}
			if err := v.ReadInConfig(); err != nil {
				// Keys and DSN can come from the environment alone.
				fmt.Fprintf(os.Stderr, "Warning: could not read config (%v). Using defaults and environment.\n", err)
			}
			c, err := config.Load(v)
			if err != nil {
				return err
			}
			cfg = c

			if err := logger.InitLogger(logger.LogConfig{
				Level:       cfg.Logging.Level,
				Development: cfg.Logging.Development,
				OutputFile:  cfg.Logging.File,
			}); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Sync()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.AddCommand(versionCmd, verifyCmd, statsCmd, recordCmd, logCmd, ingestCmd, reconcileCmd, keygenCmd, monitorCmd)
}

// openApp builds the process components; callers must Close the result.
func openApp(ctx context.Context) (*app.App, error) {
	return app.New(ctx, cfg)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
