package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"seriesd/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a normalized config seeded with unique temp directories
// per test. The source and destination directories exist, the status API is
// disabled, and the directory decoder keys series by parent directory with
// short timeouts.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.SourceDir = filepath.Join(base, "incoming")
	cfgVal.Paths.DestDir = filepath.Join(base, "series")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.History.Path = filepath.Join(base, "state", "history.db")
	cfgVal.Series.Decoder = config.DecoderDirectory
	cfgVal.Series.KeyFormat = ""
	cfgVal.Series.IdleTimeout = 0.1
	cfgVal.Series.DrainTimeout = 10
	cfgVal.Source.SettleSeconds = 0.05
	cfgVal.API.Bind = ""
	cfgVal.Logging.Format = "json"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	for _, dir := range []string{cfgVal.Paths.SourceDir, cfgVal.Paths.DestDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	if err := builder.cfg.Finalize(); err != nil {
		t.Fatalf("finalize test config: %v", err)
	}
	return builder.cfg
}

// WithPipeline selects the pipeline kind.
func WithPipeline(kind string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.Kind = kind
	}
}

// WithMode selects watch or walk mode.
func WithMode(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Source.Mode = mode
	}
}

// WithAPI enables the status API on an ephemeral loopback port.
func WithAPI(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.Bind = "127.0.0.1:0"
		b.cfg.API.Token = token
	}
}

// WithIdleTimeout overrides the series idle timeout in seconds.
func WithIdleTimeout(seconds float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Series.IdleTimeout = seconds
	}
}

// WithoutHistory disables the sqlite ledger.
func WithoutHistory() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.History.Enabled = false
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.SourceDir)
}
