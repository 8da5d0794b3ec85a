package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	loadr "github.com/vaibhaw-/snapguard/internal/loadr"
	"github.com/vaibhaw-/snapguard/internal/snapguard/app"
	"github.com/vaibhaw-/snapguard/internal/snapguard/config"
	"github.com/vaibhaw-/snapguard/internal/snapguard/logger"
)

var workloadPath string

var rootCmd = &cobra.Command{
	Use:           "loadr",
	Short:         "loadr - synthetic traffic for snapguard",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write a workload as NDJSON events for snapguard ingest",
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := loadr.ReadWorkload(workloadPath)
		if err != nil {
			return err
		}
		out := os.Stdout
		if w.Output != "" {
			f, err := os.Create(w.Output)
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			defer f.Close()
			out = f
		}
		n, err := loadr.WriteNDJSON(out, loadr.Generate(w, time.Now().UTC()))
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %d events\n", n)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive a workload directly against the gate",
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := loadr.ReadWorkload(workloadPath)
		if err != nil {
			return err
		}

		_ = godotenv.Load()
		v := viper.New()
		if w.Snapguard != "" {
			v.SetConfigFile(w.Snapguard)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("read %s: %w", w.Snapguard, err)
			}
		}
		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		if err := logger.InitLogger(logger.LogConfig{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
			OutputFile:  cfg.Logging.File,
		}); err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := loadr.Drive(ctx, a.Gate, loadr.Generate(w, time.Now().UTC()), w.Concurrency)
		if stats != nil {
			_ = json.NewEncoder(os.Stdout).Encode(stats)
		}
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&workloadPath, "config", "", "workload file (required)")
	_ = rootCmd.MarkPersistentFlagRequired("config")
	rootCmd.AddCommand(generateCmd, runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
