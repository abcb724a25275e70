package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	SourceDir string `toml:"source_dir"`
	DestDir   string `toml:"dest_dir"`
	StateDir  string `toml:"state_dir"`
	LogDir    string `toml:"log_dir"`
}

// Series controls how items are grouped and when a series is considered complete.
type Series struct {
	// IdleTimeout is the quiet period, in seconds, after which a series is finalized.
	IdleTimeout float64 `toml:"idle_timeout"`
	// KeyFormat is a text/template rendered against item metadata.
	KeyFormat string `toml:"key_format"`
	// Decoder selects how files are turned into items: "dicom" or "directory".
	Decoder string `toml:"decoder"`
	// DrainTimeout bounds how long walk mode waits for series to finish, in seconds.
	DrainTimeout int `toml:"drain_timeout"`
}

// Source configures where items come from.
type Source struct {
	Mode           string   `toml:"mode"`
	Include        []string `toml:"include"`
	Exclude        []string `toml:"exclude"`
	SettleSeconds  float64  `toml:"settle_seconds"`
	FollowSymlinks bool     `toml:"follow_symlinks"`
}

// Pipeline selects the series consumer.
type Pipeline struct {
	Kind string `toml:"kind"`
}

// FTP configures the ftp pipeline.
type FTP struct {
	Host             string  `toml:"host"`
	Port             int     `toml:"port"`
	User             string  `toml:"user"`
	Password         string  `toml:"password"`
	RemoteDir        string  `toml:"remote_dir"`
	TimeoutSeconds   int     `toml:"timeout_seconds"`
	UploadsPerSecond float64 `toml:"uploads_per_second"`
	Burst            int     `toml:"burst"`
}

// History configures the finished-series ledger.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// API configures the status HTTP endpoint.
type API struct {
	Bind  string `toml:"bind"`
	// Token, when set, is required as a bearer token on every request.
	Token string `toml:"token"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for seriesd.
//
// Configuration sections by subsystem:
//   - Paths: source, destination, state and log directories
//   - Series: idle timeout, key format and item decoder
//   - Source: watch or walk mode and path filters
//   - Pipeline: which consumer handles finished items
//   - FTP: remote upload settings for the ftp pipeline
//   - History: sqlite ledger of finished series
//   - API: status endpoint bind address
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Series   Series   `toml:"series"`
	Source   Source   `toml:"source"`
	Pipeline Pipeline `toml:"pipeline"`
	FTP      FTP      `toml:"ftp"`
	History  History  `toml:"history"`
	API      API      `toml:"api"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and environment overrides applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// Finalize normalizes and validates a config that was built or modified in code,
// such as one adjusted by command-line flags after Load.
func (c *Config) Finalize() error {
	if err := c.normalize(); err != nil {
		return err
	}
	return c.Validate()
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("seriesd.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// The destination is only created for pipelines that write locally.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.WritesLocally() {
		if err := os.MkdirAll(c.Paths.DestDir, 0o755); err != nil {
			return fmt.Errorf("create destination directory %q: %w", c.Paths.DestDir, err)
		}
	}
	return nil
}

// WritesLocally reports whether the configured pipeline writes into dest_dir.
func (c *Config) WritesLocally() bool {
	return c.Pipeline.Kind == PipelineCopy || c.Pipeline.Kind == PipelineSort
}

// IdleTimeout returns series.idle_timeout as a duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Series.IdleTimeout * float64(time.Second))
}

// DrainTimeout returns series.drain_timeout as a duration.
func (c *Config) DrainTimeout() time.Duration {
	return time.Duration(c.Series.DrainTimeout) * time.Second
}

// SettleDelay returns source.settle_seconds as a duration.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Source.SettleSeconds * float64(time.Second))
}

// FTPTimeout returns ftp.timeout_seconds as a duration.
func (c *Config) FTPTimeout() time.Duration {
	return time.Duration(c.FTP.TimeoutSeconds) * time.Second
}

// FTPAddress returns host:port for the ftp pipeline.
func (c *Config) FTPAddress() string {
	return fmt.Sprintf("%s:%d", c.FTP.Host, c.FTP.Port)
}

// LockPath returns the single-instance lock location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "seriesd.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the config as TOML.
func (c *Config) Encode() ([]byte, error) {
	redacted := *c
	if redacted.FTP.Password != "" {
		redacted.FTP.Password = "********"
	}
	if redacted.API.Token != "" {
		redacted.API.Token = "********"
	}
	data, err := toml.Marshal(redacted)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
