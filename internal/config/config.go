package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/daemonctl/internal/logger"
	"github.com/loykin/daemonctl/internal/monitor"
	"github.com/loykin/daemonctl/internal/tls"
	"github.com/loykin/daemonctl/pkg/client"
)

// EnvPrefix prefixes environment overrides, e.g. DAEMONCTL_CLIENT_API_URL.
const EnvPrefix = "DAEMONCTL"

// Config represents the top-level TOML structure.
//
//	[client]
//	api_url = "http://localhost:8080/api"
//	socket = "/run/daemon/control.sock"
//	pid_file = "/run/daemon/daemon.pid"
//	timeout = "10s"
//
//	[history]
//	dsn = "sqlite:///var/lib/daemonctl/state.db"
//
//	[monitor]
//	schedule = "@every 10s"
//	listen = ":9100"
//	base_path = "/api"
//
//	[monitor.tls]
//	enabled = true
//	dir = "/var/lib/daemonctl/tls"
//	auto_generate = true
//
//	[log]
//	level = "info"
//	format = "text"
type Config struct {
	Client  ClientConfig  `toml:"client" mapstructure:"client"`
	History HistoryConfig `toml:"history" mapstructure:"history"`
	Monitor MonitorConfig `toml:"monitor" mapstructure:"monitor"`
	Log     LogConfig     `toml:"log" mapstructure:"log"`
}

type ClientConfig struct {
	APIURL   string        `toml:"api_url" mapstructure:"api_url"`
	Socket   string        `toml:"socket" mapstructure:"socket"`
	PIDFile  string        `toml:"pid_file" mapstructure:"pid_file"`
	Timeout  time.Duration `toml:"timeout" mapstructure:"timeout"`
	Insecure bool          `toml:"insecure" mapstructure:"insecure"`
	TLS      TLSConfig     `toml:"tls" mapstructure:"tls"`
}

type TLSConfig struct {
	Enabled    bool   `toml:"enabled" mapstructure:"enabled"`
	CACert     string `toml:"ca_cert" mapstructure:"ca_cert"`
	ClientCert string `toml:"client_cert" mapstructure:"client_cert"`
	ClientKey  string `toml:"client_key" mapstructure:"client_key"`
	ServerName string `toml:"server_name" mapstructure:"server_name"`
	SkipVerify bool   `toml:"skip_verify" mapstructure:"skip_verify"`
}

type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type MonitorConfig struct {
	Schedule    string           `toml:"schedule" mapstructure:"schedule"`
	Listen      string           `toml:"listen" mapstructure:"listen"`
	BasePath    string           `toml:"base_path" mapstructure:"base_path"`
	PollTimeout time.Duration    `toml:"poll_timeout" mapstructure:"poll_timeout"`
	TLS         tls.ServerConfig `toml:"tls" mapstructure:"tls"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Format     string `toml:"format" mapstructure:"format"`
	File       string `toml:"file" mapstructure:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("client.api_url", client.DefaultBaseURL)
	v.SetDefault("client.socket", "")
	v.SetDefault("client.pid_file", "")
	v.SetDefault("client.timeout", client.DefaultTimeout)
	v.SetDefault("client.insecure", false)
	v.SetDefault("client.tls.enabled", false)
	v.SetDefault("client.tls.ca_cert", "")
	v.SetDefault("client.tls.client_cert", "")
	v.SetDefault("client.tls.client_key", "")
	v.SetDefault("client.tls.server_name", "")
	v.SetDefault("client.tls.skip_verify", false)
	v.SetDefault("history.dsn", "")
	v.SetDefault("monitor.schedule", monitor.DefaultSchedule)
	v.SetDefault("monitor.listen", ":9100")
	v.SetDefault("monitor.base_path", "/api")
	v.SetDefault("monitor.poll_timeout", 30*time.Second)
	v.SetDefault("monitor.tls.enabled", false)
	v.SetDefault("monitor.tls.cert_file", "")
	v.SetDefault("monitor.tls.key_file", "")
	v.SetDefault("monitor.tls.dir", "")
	v.SetDefault("monitor.tls.auto_generate", false)
	v.SetDefault("monitor.tls.min_version", "")
	v.SetDefault("monitor.tls.max_version", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logger.FormatText)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)
}

// Load reads the TOML file at path on top of the defaults and applies
// DAEMONCTL_* environment overrides. An empty path loads defaults only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
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
	return &cfg, nil
}

// Validate checks values that would only fail later at runtime.
func (c *Config) Validate() error {
	var errs []error
	if c.Client.Timeout <= 0 {
		errs = append(errs, errors.New("client.timeout must be > 0"))
	}
	if c.Client.APIURL == "" && c.Client.Socket == "" {
		errs = append(errs, errors.New("client.api_url or client.socket required"))
	}
	if err := monitor.ValidateSchedule(c.Monitor.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("monitor.schedule: %w", err))
	}
	if c.Monitor.PollTimeout < 0 {
		errs = append(errs, errors.New("monitor.poll_timeout must be >= 0"))
	}
	if err := c.Monitor.TLS.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("monitor.tls: %w", err))
	}
	if err := validateDSN(c.History.DSN); err != nil {
		errs = append(errs, fmt.Errorf("history.dsn: %w", err))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", logger.FormatText, logger.FormatJSON, logger.FormatColor:
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

var dsnSchemes = []string{"memory", "sqlite", "postgres", "postgresql", "clickhouse"}

func validateDSN(dsn string) error {
	dsn = strings.TrimSpace(dsn)
	i := strings.Index(dsn, "://")
	if dsn == "" || i < 0 {
		return nil // empty disables the store; a bare path is SQLite
	}
	scheme := strings.ToLower(dsn[:i])
	for _, s := range dsnSchemes {
		if scheme == s {
			return nil
		}
	}
	return fmt.Errorf("unsupported scheme %q", scheme)
}

// ClientConfig converts the [client] section for pkg/client.
func (c *Config) ClientConfig() client.Config {
	cc := client.Config{
		BaseURL:  c.Client.APIURL,
		Socket:   c.Client.Socket,
		PIDFile:  c.Client.PIDFile,
		Timeout:  c.Client.Timeout,
		Insecure: c.Client.Insecure,
	}
	if t := c.Client.TLS; t.Enabled {
		cc.TLS = &client.TLSClientConfig{
			Enabled:    true,
			CACert:     t.CACert,
			ClientCert: t.ClientCert,
			ClientKey:  t.ClientKey,
			ServerName: t.ServerName,
			SkipVerify: t.SkipVerify,
		}
	}
	return cc
}

// LoggerConfig converts the [log] section.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:  c.Log.Level,
		Format: c.Log.Format,
		File: logger.FileConfig{
			Path:       c.Log.File,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAgeDays: c.Log.MaxAgeDays,
			Compress:   c.Log.Compress,
		},
	}
}
