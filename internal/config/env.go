package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// envPrefix namespaces every environment override, e.g. SERIESD_FTP_PASSWORD.
const envPrefix = "seriesd"

// envOverrides lists the settings that may be supplied through the environment.
// Empty values leave the file or default value in place.
type envOverrides struct {
	SourceDir   string `envconfig:"SOURCE_DIR"`
	DestDir     string `envconfig:"DEST_DIR"`
	Pipeline    string `envconfig:"PIPELINE"`
	FTPHost     string `envconfig:"FTP_HOST"`
	FTPUser     string `envconfig:"FTP_USER"`
	FTPPassword string `envconfig:"FTP_PASSWORD"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
	LogFormat   string `envconfig:"LOG_FORMAT"`
	APIBind     string `envconfig:"API_BIND"`
	APIToken    string `envconfig:"API_TOKEN"`
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return fmt.Errorf("read environment overrides: %w", err)
	}
	override(&c.Paths.SourceDir, env.SourceDir)
	override(&c.Paths.DestDir, env.DestDir)
	override(&c.Pipeline.Kind, env.Pipeline)
	override(&c.FTP.Host, env.FTPHost)
	override(&c.FTP.User, env.FTPUser)
	override(&c.FTP.Password, env.FTPPassword)
	override(&c.Logging.Level, env.LogLevel)
	override(&c.Logging.Format, env.LogFormat)
	override(&c.API.Bind, env.APIBind)
	override(&c.API.Token, env.APIToken)
	return nil
}

func override(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
