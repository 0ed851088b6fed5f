package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/tuc/internal/auth"
	"github.com/loykin/tuc/internal/logger"
	itls "github.com/loykin/tuc/internal/tls"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding file settings,
// e.g. TUC_SERVER_LISTEN or TUC_LOG_LEVEL.
const EnvPrefix = "TUC"

// Config represents the top-level TOML structure.
type Config struct {
	ScriptsFile        string          `mapstructure:"scripts_file"`
	TaskPrefix         string          `mapstructure:"task_prefix"`
	Extensions         []string        `mapstructure:"extensions"`
	StartOffset        time.Duration   `mapstructure:"start_offset"`
	CommandTimeout     time.Duration   `mapstructure:"command_timeout"`
	RunAs              string          `mapstructure:"run_as"`
	SchtasksBinary     string          `mapstructure:"schtasks_binary"`
	ReconcileOnRestore bool            `mapstructure:"reconcile_on_restore"`
	Autostart          AutostartConfig `mapstructure:"autostart"`
	Log                LogConfig       `mapstructure:"log"`
	Metrics            MetricsConfig   `mapstructure:"metrics"`
	History            HistoryConfig   `mapstructure:"history"`
	Server             ServerConfig    `mapstructure:"server"`
}

type AutostartConfig struct {
	// Registry selects the backend: "registry" (reg.exe Run key) or "none".
	Registry   string `mapstructure:"registry"`
	Name       string `mapstructure:"name"`
	Key        string `mapstructure:"key"`
	Executable string `mapstructure:"executable"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Color      bool   `mapstructure:"color"`
	TimeStamps bool   `mapstructure:"timestamps"`
	Source     bool   `mapstructure:"source"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// HistoryConfig lists event sinks by DSN (sqlite://, postgres://, clickhouse://, opensearch://).
type HistoryConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	DSN     []string `mapstructure:"dsn"`
}

type ServerConfig struct {
	Listen   string      `mapstructure:"listen"`
	BasePath string      `mapstructure:"base_path"`
	TLS      itls.Config `mapstructure:"tls"`
	Auth     auth.Config `mapstructure:"auth"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scripts_file", "config.properties")
	v.SetDefault("task_prefix", "TUC_")
	v.SetDefault("extensions", []string{".cmd"})
	v.SetDefault("start_offset", "1m")
	v.SetDefault("command_timeout", "30s")
	v.SetDefault("run_as", "SYSTEM")
	v.SetDefault("schtasks_binary", "schtasks")
	v.SetDefault("reconcile_on_restore", false)

	v.SetDefault("autostart.registry", "registry")
	v.SetDefault("autostart.name", "TryUCmd")
	v.SetDefault("autostart.key", `HKCU\Software\Microsoft\Windows\CurrentVersion\Run`)
	v.SetDefault("autostart.executable", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.color", true)
	v.SetDefault("log.timestamps", true)
	v.SetDefault("log.source", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9765")

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.dsn", []string{})

	v.SetDefault("server.listen", "127.0.0.1:8765")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")
	v.SetDefault("server.tls.dir", "")
	v.SetDefault("server.tls.auto_generate", false)
	v.SetDefault("server.tls.min_version", "")
	v.SetDefault("server.tls.max_version", "")
	v.SetDefault("server.auth.enabled", false)
	v.SetDefault("server.auth.secret", "")
	v.SetDefault("server.auth.token_ttl", auth.DefaultTokenTTL)
	v.SetDefault("server.auth.issuer", auth.DefaultIssuer)
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg, _ := Load("")
	return cfg
}

// Load reads the TOML file at path (optional) over the defaults and applies
// TUC_* environment overrides. Relative file paths (scripts_file and the
// [server.tls] files) are resolved against the directory of the config file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	// Environment overrides, e.g. TUC_SERVER_LISTEN
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// Resolve relative paths against the config file's directory
	if path != "" {
		dir := filepath.Dir(path)
		cfg.ScriptsFile = resolve(dir, cfg.ScriptsFile)
		cfg.Server.TLS.Dir = resolve(dir, cfg.Server.TLS.Dir)
		cfg.Server.TLS.CertFile = resolve(dir, cfg.Server.TLS.CertFile)
		cfg.Server.TLS.KeyFile = resolve(dir, cfg.Server.TLS.KeyFile)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Validate rejects settings the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.TaskPrefix) == "" {
		errs = append(errs, errors.New("task_prefix must not be empty"))
	}
	if strings.ContainsAny(c.TaskPrefix, `\/:*?"<>|`) {
		errs = append(errs, fmt.Errorf("task_prefix %q contains characters invalid in task names", c.TaskPrefix))
	}
	if c.ScriptsFile == "" {
		errs = append(errs, errors.New("scripts_file must not be empty"))
	}
	if len(c.Extensions) == 0 {
		errs = append(errs, errors.New("extensions must list at least one file extension"))
	}
	// schtasks slots have minute resolution
	if c.StartOffset < time.Minute {
		errs = append(errs, fmt.Errorf("start_offset %s must be at least 1m", c.StartOffset))
	}
	if c.CommandTimeout <= 0 {
		errs = append(errs, fmt.Errorf("command_timeout %s must be positive", c.CommandTimeout))
	}
	// Logging
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	switch c.Autostart.Registry {
	case "registry", "none":
	default:
		errs = append(errs, fmt.Errorf("autostart.registry %q must be registry or none", c.Autostart.Registry))
	}
	// Server
	if c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen must not be empty"))
	}
	if err := c.Server.TLS.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server.tls: %w", err))
	}
	if err := c.Server.Auth.Validate(); err != nil {
		errs = append(errs, err)
	}
	// Metrics and history
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, errors.New("metrics.listen must be set when metrics are enabled"))
	}
	if c.History.Enabled && len(c.History.DSN) == 0 {
		errs = append(errs, errors.New("history.dsn must be set when history is enabled"))
	}
	return errors.Join(errs...)
}

// LoggerConfig converts the [log] section for the logger package.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Slog: logger.SlogConfig{
			Level:      c.Log.Level,
			Format:     c.Log.Format,
			Color:      c.Log.Color,
			TimeStamps: c.Log.TimeStamps,
			Source:     c.Log.Source,
		},
		File: logger.FileConfig{
			Path:       c.Log.File,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAgeDays: c.Log.MaxAgeDays,
			Compress:   c.Log.Compress,
		},
	}
}
