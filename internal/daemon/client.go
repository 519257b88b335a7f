package daemon

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loykin/daemonctl/internal/status"
)

// Client runs the status protocol against a supervisor transport.
// It holds no state between calls.
type Client struct {
	transport Transport
	logger    *slog.Logger
}

// NewClient creates a client over the given transport. A nil logger falls back
// to slog.Default().
func NewClient(t Transport, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{transport: t, logger: logger}
}

// IsDaemonRunning forwards the liveness probe of the transport.
func (c *Client) IsDaemonRunning(ctx context.Context) bool {
	return c.transport.IsDaemonRunning(ctx)
}

// GetStatus performs one poll: liveness, aggregate status, then worker and
// daemon info. Unreachable daemons and controller timeouts are reported in
// the returned status; transport failures, schema violations and the end of
// ctx are returned as errors.
func (c *Client) GetStatus(ctx context.Context) (StatusReport, error) {
	if !c.transport.IsDaemonRunning(ctx) {
		if err := ctx.Err(); err != nil {
			return StatusReport{}, fmt.Errorf("liveness check: %w", err)
		}
		c.logger.Debug("Daemon not running")
		return StatusReport{Status: status.Of(status.NotRunning)}, nil
	}

	resp, err := c.transport.GetStatus(ctx)
	if err != nil {
		return StatusReport{}, fmt.Errorf("get status: %w", err)
	}
	st, ok := status.Normalize(resp)
	if !ok {
		// no status field: keep polling details, the code stays unknown
		c.logger.Debug("Status response without status field")
		st = status.Status{Kind: status.Unknown}
	}
	if st.Kind.Terminal() {
		c.logger.Debug("Daemon status is terminal for this poll", "status", st.String())
		return StatusReport{Status: st}, nil
	}

	workers, err := c.transport.GetWorkerInfo(ctx)
	if err != nil {
		return StatusReport{}, fmt.Errorf("get worker info: %w", err)
	}
	info, err := c.transport.GetDaemonInfo(ctx)
	if err != nil {
		return StatusReport{}, fmt.Errorf("get daemon info: %w", err)
	}

	records, wok := workers.Get()
	di, dok := info.Get()
	if !wok || !dok {
		c.logger.Debug("Controller call timed out", "workers_timeout", !wok, "info_timeout", !dok)
		return StatusReport{Status: status.Of(status.Timeout)}, nil
	}

	if st.Kind == status.Unknown {
		// the supervisor answered every detail call, so the daemon is serving
		c.logger.Warn("Unrecognized daemon status code", "code", st.Raw)
		st = status.Of(status.Active)
	}
	report := StatusReport{Status: st, DaemonInfo: &di}
	if len(records) > 0 {
		report.Workers = append([]WorkerRecord(nil), records...)
	}
	return report, nil
}

// Control sends a command and normalizes the reply. When the daemon is not
// running the command is not sent. The boolean is false when the reply
// carries no status.
func (c *Client) Control(ctx context.Context, cmd Command) (status.Status, bool, error) {
	if !c.transport.IsDaemonRunning(ctx) {
		if err := ctx.Err(); err != nil {
			return status.Status{}, false, fmt.Errorf("liveness check: %w", err)
		}
		return status.Of(status.NotRunning), true, nil
	}
	c.logger.Debug("Sending control command", "action", cmd.Action, "workers", cmd.Workers)
	resp, err := c.transport.Control(ctx, cmd)
	if err != nil {
		return status.Status{}, false, fmt.Errorf("control %s: %w", cmd.Action, err)
	}
	st, ok := status.Normalize(resp)
	return st, ok, nil
}
