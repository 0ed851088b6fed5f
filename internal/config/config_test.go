package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTOML(t *testing.T, data string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "tuc.toml")
	if err := os.WriteFile(file, []byte(data), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	return file
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg == nil {
		t.Fatalf("expected default config")
	}
	if cfg.TaskPrefix != "TUC_" || cfg.ScriptsFile != "config.properties" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.StartOffset != time.Minute || cfg.CommandTimeout != 30*time.Second {
		t.Fatalf("unexpected durations: %s %s", cfg.StartOffset, cfg.CommandTimeout)
	}
	if len(cfg.Extensions) != 1 || cfg.Extensions[0] != ".cmd" {
		t.Fatalf("unexpected extensions: %v", cfg.Extensions)
	}
	if cfg.Server.Listen != "127.0.0.1:8765" || cfg.Server.BasePath != "/api" {
		t.Fatalf("unexpected server: %+v", cfg.Server)
	}
	if cfg.Autostart.Name != "TryUCmd" || cfg.RunAs != "SYSTEM" {
		t.Fatalf("unexpected autostart/run_as: %+v %s", cfg.Autostart, cfg.RunAs)
	}
}

func TestLoadFile(t *testing.T) {
	file := writeTOML(t, `
scripts_file = "state/scripts.properties"
task_prefix = "JOB_"
extensions = [".cmd", ".bat"]
start_offset = "2m"
command_timeout = "5s"
reconcile_on_restore = true

[log]
level = "debug"
format = "json"
file = "/var/log/tuc.log"

[history]
enabled = true
dsn = "sqlite://history.db"

[server]
listen = ":9000"
base_path = "/v1"
`)
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ScriptsFile != filepath.Join(filepath.Dir(file), "state", "scripts.properties") {
		t.Fatalf("scripts_file not resolved: %s", cfg.ScriptsFile)
	}
	if cfg.TaskPrefix != "JOB_" || !cfg.ReconcileOnRestore {
		t.Fatalf("unexpected: %+v", cfg)
	}
	if len(cfg.Extensions) != 2 || cfg.Extensions[1] != ".bat" {
		t.Fatalf("extensions: %v", cfg.Extensions)
	}
	if cfg.StartOffset != 2*time.Minute || cfg.CommandTimeout != 5*time.Second {
		t.Fatalf("durations: %s %s", cfg.StartOffset, cfg.CommandTimeout)
	}
	if len(cfg.History.DSN) != 1 || cfg.History.DSN[0] != "sqlite://history.db" {
		t.Fatalf("history dsn: %v", cfg.History.DSN)
	}
	lc := cfg.LoggerConfig()
	if lc.Slog.Level != "debug" || lc.Slog.Format != "json" || lc.File.Path != "/var/log/tuc.log" {
		t.Fatalf("logger config: %+v", lc)
	}
	if lc.File.MaxSizeMB != 10 || lc.File.MaxBackups != 3 || lc.File.MaxAgeDays != 7 {
		t.Fatalf("rotation defaults lost: %+v", lc.File)
	}
	if cfg.Server.Listen != ":9000" || cfg.Server.BasePath != "/v1" {
		t.Fatalf("server: %+v", cfg.Server)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TUC_SERVER_LISTEN", "127.0.0.1:7000")
	t.Setenv("TUC_LOG_LEVEL", "warn")
	cfg, err := Load(writeTOML(t, "task_prefix = \"X_\"\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:7000" || cfg.Log.Level != "warn" {
		t.Fatalf("env not applied: %+v %+v", cfg.Server, cfg.Log)
	}
	if cfg.TaskPrefix != "X_" {
		t.Fatalf("file value lost: %s", cfg.TaskPrefix)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"empty prefix":   `task_prefix = ""`,
		"bad prefix":     `task_prefix = "a/b"`,
		"short offset":   `start_offset = "10s"`,
		"zero timeout":   `command_timeout = "0s"`,
		"bad level":      "[log]\nlevel = \"loud\"",
		"bad format":     "[log]\nformat = \"xml\"",
		"bad registry":   "[autostart]\nregistry = \"plist\"",
		"history no dsn": "[history]\nenabled = true",
		"no extensions":  `extensions = []`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeTOML(t, data))
			if err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.TaskPrefix = ""
	cfg.CommandTimeout = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "task_prefix") || !strings.Contains(err.Error(), "command_timeout") {
		t.Fatalf("expected both problems reported: %v", err)
	}
}

func TestLoadServerSecurity(t *testing.T) {
	path := writeTOML(t, `
[server.tls]
enabled = true
dir = "certs"
auto_generate = true
min_version = "1.2"

[server.auth]
enabled = true
secret = "0123456789abcdef0123"
token_ttl = "2h"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Server.TLS.Enabled || !cfg.Server.TLS.AutoGenerate || cfg.Server.TLS.MinVersion != "1.2" {
		t.Fatalf("unexpected tls config: %+v", cfg.Server.TLS)
	}
	if cfg.Server.TLS.Dir != filepath.Join(filepath.Dir(path), "certs") {
		t.Fatalf("tls dir not resolved against config dir: %s", cfg.Server.TLS.Dir)
	}
	if !cfg.Server.Auth.Enabled || cfg.Server.Auth.TokenTTL != 2*time.Hour || cfg.Server.Auth.Issuer != "tuc" {
		t.Fatalf("unexpected auth config: %+v", cfg.Server.Auth)
	}

	bad := writeTOML(t, `
[server.auth]
enabled = true
secret = "short"
`)
	if _, err := Load(bad); err == nil || !strings.Contains(err.Error(), "server.auth.secret") {
		t.Fatalf("expected short secret error, got %v", err)
	}
}
