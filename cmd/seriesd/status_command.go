package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"seriesd/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return wrapAPIError(err, cfg)
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStatus(status))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderStatus(status api.DaemonStatus) string {
	fields := [][2]string{
		{"Running", yesNo(status.Running)},
		{"PID", strconv.Itoa(status.PID)},
		{"Mode", titleCase(status.Mode)},
		{"Pipeline", titleCase(status.Pipeline)},
		{"Source", status.SourceDir},
	}
	if status.DestDir != "" {
		fields = append(fields, [2]string{"Destination", status.DestDir})
	}
	fields = append(fields,
		[2]string{"Key format", status.KeyFormat},
		[2]string{"Idle timeout", formatSeconds(status.IdleTimeout)},
		[2]string{"Started", formatTimestamp(status.StartedAt)},
		[2]string{"Uptime", formatSeconds(status.UptimeSeconds)},
		[2]string{"Open series", strconv.Itoa(status.ActiveSeries)},
		[2]string{"Settling files", strconv.Itoa(status.PendingFiles)},
		[2]string{"Files ingested", strconv.FormatInt(status.Counters.Ingested, 10)},
		[2]string{"Files skipped", strconv.FormatInt(status.Counters.Skipped, 10)},
		[2]string{"Files failed", strconv.FormatInt(status.Counters.Failed, 10)},
		[2]string{"Series finished", strconv.FormatInt(status.Counters.FinishedSeries, 10)},
		[2]string{"Series failed", strconv.FormatInt(status.Counters.FailedSeries+status.Counters.SetupFailures, 10)},
	)
	if status.HistoryPath != "" {
		fields = append(fields, [2]string{"History", status.HistoryPath})
	}
	fields = append(fields, [2]string{"Lock file", status.LockFilePath})
	out := renderFields(fields)

	if len(status.Preflight) > 0 {
		rows := make([][]string, 0, len(status.Preflight))
		for _, check := range status.Preflight {
			state := "ok"
			if !check.Passed {
				state = "FAILED"
			}
			rows = append(rows, []string{check.Name, state, check.Detail})
		}
		out += "\n" + renderTable([]string{"Check", "State", "Detail"}, rows, nil)
	}
	return out
}

func newSeriesCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "series",
		Short: "List open series",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			open, err := client.Series(cmd.Context())
			if err != nil {
				return wrapAPIError(err, cfg)
			}
			if asJSON {
				return writeJSON(cmd, open)
			}
			out := cmd.OutOrStdout()
			if len(open) == 0 {
				fmt.Fprintln(out, "No open series")
				return nil
			}
			fmt.Fprintln(out, renderSeries(open))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderSeries(open []api.Series) string {
	rows := make([][]string, 0, len(open))
	for _, s := range open {
		rows = append(rows, []string{
			s.Key,
			titleCase(s.State),
			formatCount(s.Items, s.Failures),
			formatSeconds(s.IdleSeconds),
			formatSeconds(s.TimeoutSeconds),
			formatTimestamp(s.StartedAt),
		})
	}
	return renderTable(
		[]string{"Series", "State", "Items", "Idle", "Timeout", "Started"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	)
}
