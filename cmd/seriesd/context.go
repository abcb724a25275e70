package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"seriesd/internal/api"
	"seriesd/internal/config"
)

type globalFlags struct {
	config   string
	source   string
	dest     string
	pipeline string
	timeout  float64
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

// ensureConfig loads the config file once and applies command-line overrides.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		c.configPath = path
		if c.applyOverrides(cfg) {
			if err := cfg.Finalize(); err != nil {
				c.configErr = fmt.Errorf("apply flags: %w", err)
				return
			}
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) applyOverrides(cfg *config.Config) bool {
	changed := false
	set := func(dst *string, value string) {
		if value = strings.TrimSpace(value); value != "" {
			*dst = value
			changed = true
		}
	}
	set(&cfg.Paths.SourceDir, c.flags.source)
	set(&cfg.Paths.DestDir, c.flags.dest)
	set(&cfg.Pipeline.Kind, c.flags.pipeline)
	if c.flags.timeout != 0 {
		cfg.Series.IdleTimeout = c.flags.timeout
		changed = true
	}
	return changed
}

func (c *commandContext) apiClient() (*api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	client, err := api.NewClient(cfg.API.Bind, cfg.API.Token)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w (set api.bind)", err)
	}
	return client, nil
}

func wrapAPIError(err error, cfg *config.Config) error {
	return fmt.Errorf("query daemon at %s: %w; verify `seriesd run` is active", cfg.API.Bind, err)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
