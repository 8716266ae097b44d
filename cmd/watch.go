package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agentmc/amc/internal/monitor"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the alert monitor in the foreground",
	Long: `Run the alert rule evaluator on a fixed interval, raising alerts for
idle agents and long-running sessions. Press Ctrl-C to stop.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return watchRun(cmd)
	},
}

func init() {
	watchCmd.Flags().Duration("interval", 0, "Evaluation interval (default from config, 30s)")
	rootCmd.AddCommand(watchCmd)
}

func watchRun(cmd *cobra.Command) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	defer s.Close()

	interval := viper.GetDuration("watch.interval")
	if flagInterval, _ := cmd.Flags().GetDuration("interval"); flagInterval > 0 {
		interval = flagInterval
	}
	if interval <= 0 {
		interval = monitor.DefaultInterval
	}
	if interval < time.Second {
		return fmt.Errorf("interval too short: %s (minimum 1s)", interval)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	defer stop()

	ui.Info("Watching %d agents every %s (Ctrl-C to stop)", len(s.Agents()), interval)
	if err := monitor.New(s, interval, logger).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
