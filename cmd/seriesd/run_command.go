package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"seriesd/internal/config"
	"seriesd/internal/daemon"
	"seriesd/internal/logging"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var walk bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the source directory and process series until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonProcess(cmd, ctx, walk)
		},
	}
	cmd.Flags().BoolVar(&walk, "walk", false, "Walk the source tree once instead of watching it")
	return cmd
}

func newWalkCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "walk",
		Short: "Process every file already in the source directory, then exit",
		Long: "Walk the source tree once, dispatch every file to its series, wait for\n" +
			"all series to finish (bounded by series.drain_timeout) and exit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonProcess(cmd, ctx, true)
		},
	}
}

func runDaemonProcess(cmd *cobra.Command, ctx *commandContext, walk bool) error {
	if ctx == nil {
		return fmt.Errorf("command context is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if walk {
		cfg.Source.Mode = config.ModeWalk
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	d, err := daemon.New(daemon.Options{Config: cfg, Logger: logger})
	if err != nil {
		logger.Error("daemon setup failed", logging.Error(err))
		return err
	}
	defer d.Close()

	if err := d.Run(signalCtx); err != nil {
		logger.Error("daemon exited with error", logging.Error(err))
		return err
	}

	status := d.Status()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d files ingested, %d skipped, %d failed; %d series finished\n",
		titleCase(cfg.Source.Mode), status.Ingested, status.Skipped, status.Failed, status.Metrics.FinishedSeries)
	return nil
}
