package main

import (
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/loykin/daemonctl/internal/config"
	"github.com/loykin/daemonctl/internal/daemon"
	"github.com/loykin/daemonctl/internal/history"
	"github.com/loykin/daemonctl/internal/history/factory"
	"github.com/loykin/daemonctl/internal/logger"
	"github.com/loykin/daemonctl/internal/render"
	"github.com/loykin/daemonctl/pkg/client"
)

// env is everything a command needs, built from config plus flag overrides.
type env struct {
	cfg       *config.Config
	log       *slog.Logger
	logCloser io.Closer
	transport *client.Client
	daemon    *daemon.Client
	render    *render.Renderer
}

func (c *command) setup(out io.Writer) (*env, error) {
	cfg, err := config.Load(c.global.ConfigPath)
	if err != nil {
		return nil, err
	}
	c.applyOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, closer, err := logger.New(cfg.LoggerConfig(), os.Stderr)
	if err != nil {
		return nil, err
	}

	cc := cfg.ClientConfig()
	cc.Logger = log
	transport := client.New(cc)

	color := render.ColorMode(c.global.Color)
	return &env{
		cfg:       cfg,
		log:       log,
		logCloser: closer,
		transport: transport,
		daemon:    daemon.NewClient(transport, log),
		render:    render.New(!c.global.JSON && render.ColorEnabled(out, color)),
	}, nil
}

func (c *command) applyOverrides(cfg *config.Config) {
	g := c.global
	if g.APIUrl != "" {
		cfg.Client.APIURL = g.APIUrl
	}
	if g.Socket != "" {
		cfg.Client.Socket = g.Socket
	}
	if g.PIDFile != "" {
		cfg.Client.PIDFile = g.PIDFile
	}
	if g.APITimeout > 0 {
		cfg.Client.Timeout = g.APITimeout
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
}

// openStore opens the configured process-state store.
func (e *env) openStore() (history.Store, error) {
	if e.cfg.History.DSN == "" {
		return nil, errors.New("no process-state store configured: set [history] dsn")
	}
	return factory.NewStoreFromDSN(e.cfg.History.DSN)
}

func (e *env) close() {
	if e.logCloser != nil {
		_ = e.logCloser.Close()
	}
}
