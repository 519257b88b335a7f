package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTOML(t *testing.T, data string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "daemonctl.toml")
	if err := os.WriteFile(file, []byte(data), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	return file
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Client.APIURL != "http://localhost:8080/api" || cfg.Client.Timeout != 10*time.Second {
		t.Fatalf("unexpected client defaults: %+v", cfg.Client)
	}
	if cfg.Monitor.Schedule != "@every 10s" || cfg.Monitor.Listen != ":9100" {
		t.Fatalf("unexpected monitor defaults: %+v", cfg.Monitor)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Fatalf("unexpected log defaults: %+v", cfg.Log)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoad_Full(t *testing.T) {
	file := writeTOML(t, `
[client]
api_url = "https://supervisor:9443/api"
pid_file = "/run/daemon.pid"
timeout = "2500ms"
  [client.tls]
  enabled = true
  ca_cert = "/etc/ca.pem"
  server_name = "supervisor"

[history]
dsn = "sqlite:///var/lib/daemonctl/state.db"

[monitor]
schedule = "*/30 * * * * *"
listen = "127.0.0.1:9200"
base_path = "/relay"
poll_timeout = "5s"

[log]
level = "debug"
format = "json"
file = "/var/log/daemonctl.log"
max_backups = 9
`)
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Client.APIURL != "https://supervisor:9443/api" || cfg.Client.Timeout != 2500*time.Millisecond {
		t.Fatalf("unexpected client: %+v", cfg.Client)
	}
	if !cfg.Client.TLS.Enabled || cfg.Client.TLS.CACert != "/etc/ca.pem" {
		t.Fatalf("unexpected tls: %+v", cfg.Client.TLS)
	}
	if cfg.History.DSN != "sqlite:///var/lib/daemonctl/state.db" {
		t.Fatalf("unexpected dsn: %q", cfg.History.DSN)
	}
	if cfg.Monitor.Schedule != "*/30 * * * * *" || cfg.Monitor.BasePath != "/relay" || cfg.Monitor.PollTimeout != 5*time.Second {
		t.Fatalf("unexpected monitor: %+v", cfg.Monitor)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	cc := cfg.ClientConfig()
	if cc.BaseURL != cfg.Client.APIURL || cc.PIDFile != "/run/daemon.pid" || cc.TLS == nil || cc.TLS.ServerName != "supervisor" {
		t.Fatalf("unexpected client config: %+v", cc)
	}
	lc := cfg.LoggerConfig()
	if lc.Level != "debug" || lc.Format != "json" || lc.File.Path != "/var/log/daemonctl.log" || lc.File.MaxBackups != 9 {
		t.Fatalf("unexpected logger config: %+v", lc)
	}
	// unset keys keep their defaults
	if lc.File.MaxSizeMB != 10 {
		t.Fatalf("expected default max size, got %d", lc.File.MaxSizeMB)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	file := writeTOML(t, `
[client]
api_url = "http://from-file/api"
`)
	t.Setenv("DAEMONCTL_CLIENT_API_URL", "http://from-env/api")
	t.Setenv("DAEMONCTL_MONITOR_SCHEDULE", "@every 1m")
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Client.APIURL != "http://from-env/api" {
		t.Fatalf("expected env override, got %q", cfg.Client.APIURL)
	}
	if cfg.Monitor.Schedule != "@every 1m" {
		t.Fatalf("expected env schedule, got %q", cfg.Monitor.Schedule)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	file := writeTOML(t, "[client\napi_url = ")
	if _, err := Load(file); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestValidate_Errors(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatal(err)
		}
		return cfg
	}

	cases := map[string]func(*Config){
		"timeout":  func(c *Config) { c.Client.Timeout = 0 },
		"endpoint": func(c *Config) { c.Client.APIURL = ""; c.Client.Socket = "" },
		"schedule": func(c *Config) { c.Monitor.Schedule = "sometimes" },
		"dsn":      func(c *Config) { c.History.DSN = "mongodb://localhost" },
		"level":    func(c *Config) { c.Log.Level = "chatty" },
		"format":   func(c *Config) { c.Log.Format = "xml" },
		"tls":      func(c *Config) { c.Monitor.TLS.Enabled = true },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidateDSN(t *testing.T) {
	for _, dsn := range []string{"", "/var/lib/state.db", "memory://", "sqlite://:memory:", "postgres://u@h/db", "postgresql://u@h/db", "clickhouse://h:9000"} {
		if err := validateDSN(dsn); err != nil {
			t.Fatalf("validateDSN(%q): %v", dsn, err)
		}
	}
	if err := validateDSN("redis://h"); err == nil {
		t.Fatalf("expected error for redis scheme")
	}
}

func TestLoad_MonitorTLS(t *testing.T) {
	file := writeTOML(t, `
[monitor.tls]
enabled = true
dir = "/var/lib/daemonctl/tls"
auto_generate = true
min_version = "1.2"
dns_names = ["relay.local", "localhost"]
`)
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	tc := cfg.Monitor.TLS
	if !tc.Enabled || !tc.AutoGenerate || tc.Dir != "/var/lib/daemonctl/tls" || len(tc.DNSNames) != 2 {
		t.Fatalf("unexpected tls config: %+v", tc)
	}
}
