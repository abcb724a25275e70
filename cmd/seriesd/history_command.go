package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"seriesd/internal/api"
	"seriesd/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		limit  int
		key    string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finished series from the history ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.History.Enabled {
				return errors.New("history is disabled (history.enabled = false)")
			}
			if _, err := os.Stat(cfg.History.Path); errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintln(cmd.OutOrStdout(), "No series recorded yet")
				return nil
			}

			store, err := history.Open(cfg.History.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			var runs []history.Run
			if key = strings.TrimSpace(key); key != "" {
				runs, err = store.ListKey(cmd.Context(), key)
			} else {
				runs, err = store.List(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			converted := api.FromRuns(runs)
			if asJSON {
				return writeJSON(cmd, converted)
			}
			out := cmd.OutOrStdout()
			if len(converted) == 0 {
				fmt.Fprintln(out, "No series recorded yet")
				return nil
			}
			fmt.Fprintln(out, renderHistory(converted))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show (0 for all)")
	cmd.Flags().StringVar(&key, "key", "", "Show every run of one series key")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderHistory(runs []api.HistoryRun) string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			formatTimestamp(run.FinishedAt),
			run.Key,
			titleCase(run.Pipeline),
			titleCase(run.Outcome),
			formatCount(run.Items, run.Failures),
			formatSeconds(run.DurationSeconds),
			truncate(run.ErrorMessage, 60),
		})
	}
	return renderTable(
		[]string{"Finished", "Series", "Pipeline", "Outcome", "Items", "Duration", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}
