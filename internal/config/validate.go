package config

import (
	"errors"
	"fmt"
	"strings"
	"text/template"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateSeries(); err != nil {
		return err
	}
	if err := c.validateSource(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.SourceDir == "" {
		return errors.New("paths.source_dir must be set")
	}
	if c.WritesLocally() {
		if c.Paths.DestDir == "" {
			return fmt.Errorf("paths.dest_dir must be set for the %s pipeline", c.Pipeline.Kind)
		}
		if c.Paths.DestDir == c.Paths.SourceDir {
			return errors.New("paths.dest_dir must differ from paths.source_dir")
		}
	}
	return nil
}

func (c *Config) validateSeries() error {
	if c.Series.IdleTimeout <= 0 {
		return errors.New("series.idle_timeout must be positive (seconds)")
	}
	if c.Series.DrainTimeout <= 0 {
		return errors.New("series.drain_timeout must be positive (seconds)")
	}
	switch c.Series.Decoder {
	case DecoderDICOM, DecoderDirectory:
	default:
		return fmt.Errorf("series.decoder: unsupported value %q (want dicom or directory)", c.Series.Decoder)
	}
	if _, err := template.New("key_format").Option("missingkey=error").Parse(c.Series.KeyFormat); err != nil {
		return fmt.Errorf("series.key_format: %w", err)
	}
	return nil
}

func (c *Config) validateSource() error {
	switch c.Source.Mode {
	case ModeWatch, ModeWalk:
	default:
		return fmt.Errorf("source.mode: unsupported value %q (want watch or walk)", c.Source.Mode)
	}
	if c.Source.SettleSeconds < 0 {
		return errors.New("source.settle_seconds must not be negative")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	switch c.Pipeline.Kind {
	case PipelineLog, PipelineCopy, PipelineSort:
		return nil
	case PipelineFTP:
		return c.validateFTP()
	default:
		return fmt.Errorf("pipeline.kind: unsupported value %q (want log, copy, sort or ftp)", c.Pipeline.Kind)
	}
}

func (c *Config) validateFTP() error {
	if c.FTP.Host == "" {
		return errors.New("ftp.host must be set when pipeline.kind is ftp")
	}
	if c.FTP.Port <= 0 || c.FTP.Port > 65535 {
		return fmt.Errorf("ftp.port out of range: %d", c.FTP.Port)
	}
	if c.FTP.TimeoutSeconds <= 0 {
		return errors.New("ftp.timeout_seconds must be positive")
	}
	if c.FTP.UploadsPerSecond < 0 {
		return errors.New("ftp.uploads_per_second must not be negative (0 disables limiting)")
	}
	if c.FTP.UploadsPerSecond > 0 && c.FTP.Burst <= 0 {
		return errors.New("ftp.burst must be positive when uploads are rate limited")
	}
	if strings.ContainsAny(c.FTP.RemoteDir, "\r\n") {
		return errors.New("ftp.remote_dir must not contain line breaks")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (want auto, console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
