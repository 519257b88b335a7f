package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/daemonctl/internal/daemon"
	"github.com/loykin/daemonctl/internal/history"
	"github.com/loykin/daemonctl/internal/metrics"
	"github.com/loykin/daemonctl/internal/monitor"
	"github.com/loykin/daemonctl/internal/server"
	"github.com/loykin/daemonctl/internal/statechange"
	"github.com/loykin/daemonctl/internal/tls"
)

// command binds the CLI handlers to the global flags.
type command struct {
	global *GlobalFlags
}

// Status polls the daemon once and prints the report.
func (c *command) Status(ctx context.Context, out io.Writer) error {
	e, err := c.setup(out)
	if err != nil {
		return err
	}
	defer e.close()

	rep, err := e.daemon.GetStatus(ctx)
	if err != nil {
		return err
	}
	if c.global.JSON {
		return printJSON(out, rep)
	}
	_, err = fmt.Fprintln(out, e.render.Status(rep))
	return err
}

// LastChange prints when a process of the given kind last changed state.
func (c *command) LastChange(ctx context.Context, out io.Writer, f LastChangeFlags) error {
	kind, err := statechange.ParseProcessKind(f.Kind)
	if err != nil {
		return err
	}
	e, err := c.setup(out)
	if err != nil {
		return err
	}
	defer e.close()

	store, err := e.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	rep, err := statechange.NewReporter(store, e.transport).LastStateChange(ctx, kind)
	if err != nil {
		return err
	}
	if c.global.JSON {
		return printJSON(out, rep)
	}
	_, err = fmt.Fprintln(out, e.render.LastStateChange(rep))
	return err
}

// Control sends a command to the supervisor and prints the reply.
func (c *command) Control(ctx context.Context, out io.Writer, cmd daemon.Command) error {
	e, err := c.setup(out)
	if err != nil {
		return err
	}
	defer e.close()

	st, ok, err := e.daemon.Control(ctx, cmd)
	if err != nil {
		return err
	}
	if c.global.JSON {
		if !ok {
			return printJSON(out, map[string]any{})
		}
		return printJSON(out, st)
	}
	if text := e.render.CommandResponse(st, ok); text != "" {
		_, err = fmt.Fprintln(out, text)
	}
	return err
}

// RecordState appends a state change to the process-state store.
func (c *command) RecordState(ctx context.Context, out io.Writer, f RecordStateFlags) error {
	kind, err := statechange.ParseProcessKind(f.Kind)
	if err != nil {
		return err
	}
	if f.State == "" {
		return errors.New("state is required")
	}
	e, err := c.setup(out)
	if err != nil {
		return err
	}
	defer e.close()

	store, err := e.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	at := f.At
	if at.IsZero() {
		at = time.Now()
	}
	change := history.Change{Kind: string(kind), Name: f.Name, PID: f.PID, State: f.State, OccurredAt: at}
	if err := store.Record(ctx, change); err != nil {
		return fmt.Errorf("record state change: %w", err)
	}
	e.log.Debug("State change recorded", "kind", kind, "name", f.Name, "state", f.State)
	if c.global.JSON {
		return printJSON(out, change)
	}
	return nil
}

// Monitor polls on a schedule and serves the relay API until ctx ends.
func (c *command) Monitor(ctx context.Context, out io.Writer, f MonitorFlags) error {
	e, err := c.setup(out)
	if err != nil {
		return err
	}
	defer e.close()

	mc := e.cfg.Monitor
	if f.Schedule != "" {
		mc.Schedule = f.Schedule
	}
	if f.Listen != "" {
		mc.Listen = f.Listen
	}
	if f.BasePath != "" {
		mc.BasePath = f.BasePath
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	mon, err := monitor.New(e.daemon, monitor.Config{Schedule: mc.Schedule, PollTimeout: mc.PollTimeout}, e.log)
	if err != nil {
		return err
	}

	if f.Once {
		snap := mon.Poll(ctx)
		if c.global.JSON {
			return printJSON(out, snap)
		}
		if snap.Error != "" {
			return errors.New(snap.Error)
		}
		_, err := fmt.Fprintln(out, e.render.Status(snap.Report))
		return err
	}

	var reporter *statechange.Reporter
	if e.cfg.History.DSN != "" {
		store, err := e.openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		reporter = statechange.NewReporter(store, e.transport)
	}

	tlsCfg, err := tls.Setup(mc.TLS)
	if err != nil {
		return fmt.Errorf("relay TLS: %w", err)
	}

	if err := mon.Start(); err != nil {
		return err
	}
	srv, err := server.NewServer(mc.Listen, server.NewRouter(mon, reporter, mc.BasePath), tlsCfg, e.log)
	if err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mon.Stop(stopCtx)
		return fmt.Errorf("relay API: %w", err)
	}
	e.log.Info("Relay API listening", "addr", srv.Addr, "base_path", mc.BasePath, "tls", tlsCfg != nil)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mon.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
