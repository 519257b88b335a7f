package daemonctl

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/daemonctl/internal/config"
	"github.com/loykin/daemonctl/internal/daemon"
	"github.com/loykin/daemonctl/internal/history"
	"github.com/loykin/daemonctl/internal/history/factory"
	"github.com/loykin/daemonctl/internal/metrics"
	"github.com/loykin/daemonctl/internal/monitor"
	iapi "github.com/loykin/daemonctl/internal/server"
	"github.com/loykin/daemonctl/internal/statechange"
	"github.com/loykin/daemonctl/internal/status"
	"github.com/loykin/daemonctl/pkg/client"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type StatusReport = daemon.StatusReport

type WorkerRecord = daemon.WorkerRecord

type DaemonInfo = daemon.Info

type Status = status.Status

type StatusKind = status.Kind

type Command = daemon.Command

type ClientConfig = client.Config

type Config = cfg.Config

type ProcessKind = statechange.ProcessKind

type LastChangeReport = statechange.Report

type StateChange = history.Change

type StateStore = history.Store

type Snapshot = monitor.Snapshot

const (
	Calculation = statechange.Calculation
	Work        = statechange.Work
)

var ErrInvalidProcessKind = statechange.ErrInvalidProcessKind

// Client is a thin facade over the status protocol and its HTTP transport.
type Client struct {
	transport *client.Client
	inner     *daemon.Client
}

func DefaultClientConfig() ClientConfig { return client.DefaultConfig() }

func NewClient(c ClientConfig) *Client {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	t := client.New(c)
	return &Client{transport: t, inner: daemon.NewClient(t, c.Logger)}
}

func (c *Client) IsDaemonRunning(ctx context.Context) bool { return c.transport.IsDaemonRunning(ctx) }
func (c *Client) GetStatus(ctx context.Context) (StatusReport, error) {
	return c.inner.GetStatus(ctx)
}
func (c *Client) Control(ctx context.Context, cmd Command) (Status, bool, error) {
	return c.inner.Control(ctx, cmd)
}
func (c *Client) Pause(ctx context.Context) (Status, bool, error) {
	return c.inner.Control(ctx, Command{Action: daemon.ActionPause})
}
func (c *Client) Resume(ctx context.Context) (Status, bool, error) {
	return c.inner.Control(ctx, Command{Action: daemon.ActionResume})
}
func (c *Client) IncreaseWorkers(ctx context.Context, n int) (Status, bool, error) {
	return c.inner.Control(ctx, Command{Action: daemon.ActionIncrease, Workers: n})
}
func (c *Client) DecreaseWorkers(ctx context.Context, n int) (Status, bool, error) {
	return c.inner.Control(ctx, Command{Action: daemon.ActionDecrease, Workers: n})
}

// LastStateChange reports the last state change of kind recorded in store,
// with an independent liveness check of the daemon.
func (c *Client) LastStateChange(ctx context.Context, store StateStore, kind ProcessKind) (LastChangeReport, error) {
	return statechange.NewReporter(store, c.transport).LastStateChange(ctx, kind)
}

// OpenStateStore opens a process-state store from a DSN
// (memory://, sqlite://, postgres://, clickhouse://, or a file path).
func OpenStateStore(dsn string) (StateStore, error) { return factory.NewStoreFromDSN(dsn) }

func ParseProcessKind(s string) (ProcessKind, error) { return statechange.ParseProcessKind(s) }

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// Monitor facade
type Monitor struct{ inner *monitor.Monitor }

// NewMonitor polls c on schedule (cron expression, empty means every 10s).
func NewMonitor(c *Client, schedule string, logger *slog.Logger) (*Monitor, error) {
	m, err := monitor.New(c.inner, monitor.Config{Schedule: schedule}, logger)
	if err != nil {
		return nil, err
	}
	return &Monitor{inner: m}, nil
}

func (m *Monitor) Start() error                      { return m.inner.Start() }
func (m *Monitor) Stop(ctx context.Context)          { m.inner.Stop(ctx) }
func (m *Monitor) Poll(ctx context.Context) Snapshot { return m.inner.Poll(ctx) }
func (m *Monitor) Latest() (Snapshot, bool)          { return m.inner.Latest() }
func (m *Monitor) NextRun() time.Time                { return m.inner.NextRun() }

// NewRelayHandler returns the relay API (report, healthz, metrics) for m.
// When store is non-nil the last-change endpoint is served too.
func NewRelayHandler(m *Monitor, c *Client, store StateStore, basePath string) http.Handler {
	var reporter *statechange.Reporter
	if store != nil {
		reporter = statechange.NewReporter(store, c.transport)
	}
	return iapi.NewRouter(m.inner, reporter, basePath).Handler()
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
