package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	ctx := newCommandContext(flags)

	rootCmd := &cobra.Command{
		Use:           "seriesd",
		Short:         "Group incoming files into series and hand each finished series to a pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "Configuration file path")
	pf.StringVar(&flags.source, "source", "", "Override paths.source_dir")
	pf.StringVar(&flags.dest, "dest", "", "Override paths.dest_dir")
	pf.StringVar(&flags.pipeline, "pipeline", "", "Override pipeline.kind (log, copy, sort, ftp)")
	pf.Float64Var(&flags.timeout, "timeout", 0, "Override series.idle_timeout in seconds")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newWalkCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newSeriesCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
