package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"seriesd/internal/api"
	"seriesd/internal/config"
	"seriesd/internal/daemon"
	"seriesd/internal/logging"
	"seriesd/internal/testsupport"
)

func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func writeTestConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	path := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func isolateHome(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	isolateHome(t)
	target := filepath.Join(t.TempDir(), "seriesd", "config.toml")

	out, err := runCLI(t, "", "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, err := runCLI(t, "", "config", "init", "--path", target); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}

	out, err = runCLI(t, target, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
}

func TestConfigShowAppliesFlags(t *testing.T) {
	isolateHome(t)
	cfg := testsupport.NewConfig(t)
	path := writeTestConfig(t, cfg)

	out, err := runCLI(t, path, "--pipeline", "copy", "--timeout", "2.5", "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "copy")
	requireContains(t, out, "idle_timeout = 2.5")
	requireContains(t, out, cfg.Paths.SourceDir)
}

func TestConfigRejectsBadFlag(t *testing.T) {
	isolateHome(t)
	cfg := testsupport.NewConfig(t)
	path := writeTestConfig(t, cfg)

	if _, err := runCLI(t, path, "--pipeline", "carrier-pigeon", "config", "show"); err == nil {
		t.Fatal("expected unsupported pipeline to fail")
	}
}

func TestWalkCommandRecordsHistory(t *testing.T) {
	isolateHome(t)
	cfg := testsupport.NewConfig(t)
	testsupport.WriteSeries(t, cfg.Paths.SourceDir, "study/s1", 3, 128)
	path := writeTestConfig(t, cfg)

	out, err := runCLI(t, path, "walk")
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	requireContains(t, out, "Walk: 3 files ingested, 0 skipped, 0 failed; 1 series finished")

	out, err = runCLI(t, path, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "study/s1")
	requireContains(t, out, "Completed")

	out, err = runCLI(t, path, "history", "--json", "--key", "study/s1")
	if err != nil {
		t.Fatalf("history --json: %v", err)
	}
	var runs []api.HistoryRun
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("decode history json: %v\n%s", err, out)
	}
	if len(runs) != 1 || runs[0].Items != 3 || runs[0].Outcome != "completed" {
		t.Fatalf("unexpected runs %+v", runs)
	}
}

func TestHistoryBeforeAnyRun(t *testing.T) {
	isolateHome(t)
	cfg := testsupport.NewConfig(t)
	path := writeTestConfig(t, cfg)

	out, err := runCLI(t, path, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No series recorded yet")
}

func TestStatusAndSeriesQueryDaemon(t *testing.T) {
	isolateHome(t)
	cfg := testsupport.NewConfig(t, testsupport.WithAPI(""), testsupport.WithMode(config.ModeWatch))
	d, err := daemon.New(daemon.Options{Config: cfg, Logger: logging.NewNop()})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.Now().Add(5 * time.Second)
	for d.APIAddress() == "" {
		if time.Now().After(deadline) {
			t.Fatal("api server never started")
		}
		time.Sleep(10 * time.Millisecond)
	}

	clientCfg := *cfg
	clientCfg.API.Bind = d.APIAddress()
	path := writeTestConfig(t, &clientCfg)

	out, err := runCLI(t, path, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Running")
	requireContains(t, out, "Watch")
	requireContains(t, out, "Source directory")

	out, err = runCLI(t, path, "status", "--json")
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var status api.DaemonStatus
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running || status.Pipeline != config.PipelineLog {
		t.Fatalf("unexpected status %+v", status)
	}

	out, err = runCLI(t, path, "series")
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	requireContains(t, out, "No open series")
}

func TestStatusWithoutAPI(t *testing.T) {
	isolateHome(t)
	cfg := testsupport.NewConfig(t)
	path := writeTestConfig(t, cfg)

	_, err := runCLI(t, path, "status")
	if err == nil || !strings.Contains(err.Error(), "api.bind") {
		t.Fatalf("expected api.bind error, got %v", err)
	}
}

func TestFormatting(t *testing.T) {
	cases := map[string]string{
		"setup_failed": "Setup Failed",
		"copy":         "Copy",
		"":             "",
	}
	for in, want := range cases {
		if got := titleCase(in); got != want {
			t.Fatalf("titleCase(%q) = %q, want %q", in, got, want)
		}
	}
	if got := formatSeconds(0); got != "-" {
		t.Fatalf("formatSeconds(0) = %q", got)
	}
	if got := formatSeconds(90); got != "1m30s" {
		t.Fatalf("formatSeconds(90) = %q", got)
	}
	if got := formatCount(4, 1); got != "4 (1 failed)" {
		t.Fatalf("formatCount = %q", got)
	}
	if got := truncate("abcdefghij", 6); got != "abc..." {
		t.Fatalf("truncate = %q", got)
	}
}
