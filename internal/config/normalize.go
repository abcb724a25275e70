package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSeries()
	c.normalizeSource()
	c.normalizePipeline()
	c.normalizeFTP()
	if err := c.normalizeHistory(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	c.API.Token = strings.TrimSpace(c.API.Token)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.SourceDir, err = expandPath(strings.TrimSpace(c.Paths.SourceDir)); err != nil {
		return fmt.Errorf("paths.source_dir: %w", err)
	}
	if c.Paths.DestDir, err = expandPath(strings.TrimSpace(c.Paths.DestDir)); err != nil {
		return fmt.Errorf("paths.dest_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSeries() {
	c.Series.Decoder = strings.ToLower(strings.TrimSpace(c.Series.Decoder))
	if c.Series.Decoder == "" {
		c.Series.Decoder = DecoderDICOM
	}
	c.Series.KeyFormat = strings.TrimSpace(c.Series.KeyFormat)
	if c.Series.KeyFormat == "" {
		if c.Series.Decoder == DecoderDirectory {
			c.Series.KeyFormat = defaultDirKeyFormat
		} else {
			c.Series.KeyFormat = defaultDICOMKeyFormat
		}
	}
}

func (c *Config) normalizeSource() {
	c.Source.Mode = strings.ToLower(strings.TrimSpace(c.Source.Mode))
	if c.Source.Mode == "" {
		c.Source.Mode = ModeWatch
	}
	c.Source.Include = trimList(c.Source.Include)
	c.Source.Exclude = trimList(c.Source.Exclude)
}

func (c *Config) normalizePipeline() {
	c.Pipeline.Kind = strings.ToLower(strings.TrimSpace(c.Pipeline.Kind))
	if c.Pipeline.Kind == "" {
		c.Pipeline.Kind = PipelineLog
	}
}

func (c *Config) normalizeFTP() {
	c.FTP.Host = strings.TrimSpace(c.FTP.Host)
	c.FTP.User = strings.TrimSpace(c.FTP.User)
	if c.FTP.User == "" {
		c.FTP.User = defaultFTPUser
	}
	c.FTP.RemoteDir = strings.TrimSpace(c.FTP.RemoteDir)
	if c.FTP.Port == 0 {
		c.FTP.Port = defaultFTPPort
	}
}

func (c *Config) normalizeHistory() error {
	if strings.TrimSpace(c.History.Path) == "" {
		c.History.Path = defaultHistoryPath
	}
	var err error
	if c.History.Path, err = expandPath(c.History.Path); err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = defaultLogFormat
	}
	c.Logging.Format = format

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}

func trimList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
