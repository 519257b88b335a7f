package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/loykin/daemonctl/internal/daemon"
	"github.com/loykin/daemonctl/internal/metrics"
)

// DefaultSchedule polls every ten seconds.
const DefaultSchedule = "@every 10s"

// Parser accepts standard five-field expressions, an optional seconds field
// and descriptors such as "@every 30s".
var Parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule reports whether expr is a usable poll schedule.
func ValidateSchedule(expr string) error {
	if _, err := Parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return nil
}

// Poller runs one status poll.
type Poller interface {
	GetStatus(ctx context.Context) (daemon.StatusReport, error)
}

// Snapshot is the outcome of the latest poll.
type Snapshot struct {
	Report   daemon.StatusReport `json:"report"`
	PolledAt time.Time           `json:"polled_at"`
	Duration time.Duration       `json:"duration"`
	Error    string              `json:"error,omitempty"`
}

// Config tunes the monitor.
type Config struct {
	Schedule    string        // cron expression; empty means DefaultSchedule
	PollTimeout time.Duration // bound for a single poll; zero means none
}

// Monitor polls the daemon on a cron schedule and keeps the latest result.
// Polls never overlap.
type Monitor struct {
	mu        sync.RWMutex
	pollMu    sync.Mutex // serializes polls
	initial   sync.WaitGroup
	poller    Poller
	cfg       Config
	logger    *slog.Logger
	scheduler *cron.Cron
	started   bool
	latest    *Snapshot
}

func New(p Poller, cfg Config, logger *slog.Logger) (*Monitor, error) {
	if p == nil {
		return nil, errors.New("monitor requires a poller")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if err := ValidateSchedule(cfg.Schedule); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{poller: p, cfg: cfg, logger: logger}, nil
}

// Start schedules polls and runs the first one immediately.
func (m *Monitor) Start() error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("monitor already started")
	}
	cl := cronLogger{m.logger}
	m.scheduler = cron.New(
		cron.WithParser(Parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	job := cron.FuncJob(func() { m.Poll(context.Background()) })
	if _, err := m.scheduler.AddJob(m.cfg.Schedule, job); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("failed to schedule poll: %w", err)
	}
	m.started = true
	m.scheduler.Start()
	m.initial.Add(1)
	m.mu.Unlock()

	m.logger.Info("Monitor started", "schedule", m.cfg.Schedule)
	go func() {
		defer m.initial.Done()
		m.Poll(context.Background())
	}()
	return nil
}

// Stop halts scheduling and waits for running polls, the initial one
// included, to finish or ctx to end.
func (m *Monitor) Stop(ctx context.Context) {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	cronDone := m.scheduler.Stop()
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		m.initial.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	m.logger.Info("Monitor stopped")
}

// Poll runs one poll, records it and returns the snapshot.
func (m *Monitor) Poll(ctx context.Context) Snapshot {
	m.pollMu.Lock()
	defer m.pollMu.Unlock()

	if m.cfg.PollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.PollTimeout)
		defer cancel()
	}

	start := time.Now()
	rep, err := m.poller.GetStatus(ctx)
	elapsed := time.Since(start)

	snap := Snapshot{Report: rep, PolledAt: start, Duration: elapsed}
	if err != nil {
		snap = Snapshot{PolledAt: start, Duration: elapsed, Error: err.Error()}
		metrics.ObservePollError(elapsed.Seconds())
		m.logger.Error("Status poll failed", "error", err)
	} else {
		metrics.ObserveReport(rep, elapsed.Seconds())
	}

	m.mu.Lock()
	prev := m.latest
	m.latest = &snap
	m.mu.Unlock()

	m.logTransition(prev, snap)
	return snap
}

func (m *Monitor) logTransition(prev *Snapshot, cur Snapshot) {
	if cur.Error != "" {
		return
	}
	kind := cur.Report.Status.Kind
	if prev == nil || prev.Error != "" {
		m.logger.Info("Daemon status", "status", kind.String(), "workers", len(cur.Report.Workers))
		return
	}
	if prev.Report.Status.Kind != kind {
		m.logger.Warn("Daemon status changed",
			"from", prev.Report.Status.Kind.String(),
			"to", kind.String(),
			"category", kind.Taxonomy())
	}
	if before, after := len(prev.Report.Workers), len(cur.Report.Workers); before != after {
		m.logger.Info("Worker count changed", "from", before, "to", after)
	}
}

// Latest returns the most recent snapshot; false before the first poll.
func (m *Monitor) Latest() (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == nil {
		return Snapshot{}, false
	}
	return *m.latest, true
}

// NextRun returns the next scheduled poll, zero when not started.
func (m *Monitor) NextRun() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.started {
		return time.Time{}
	}
	if entries := m.scheduler.Entries(); len(entries) > 0 {
		return entries[0].Next
	}
	return time.Time{}
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
