package statechange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/loykin/daemonctl/internal/daemon"
	"github.com/loykin/daemonctl/internal/history"
)

// ErrInvalidProcessKind is returned for a process kind outside the closed set.
var ErrInvalidProcessKind = errors.New("invalid process kind")

// AbsoluteLayout formats the timestamp of the last change.
const AbsoluteLayout = "at 15:04:05 on 2006-01-02"

// ProcessKind selects which processes are inspected.
type ProcessKind string

const (
	Calculation ProcessKind = "calculation"
	Work        ProcessKind = "work"
)

// ProcessKinds lists every valid kind.
func ProcessKinds() []ProcessKind { return []ProcessKind{Calculation, Work} }

func (k ProcessKind) Valid() bool { return k == Calculation || k == Work }

// ParseProcessKind validates s.
func ParseProcessKind(s string) (ProcessKind, error) {
	k := ProcessKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q (want %q or %q)", ErrInvalidProcessKind, s, Calculation, Work)
	}
	return k, nil
}

// StateStore answers when a process kind last changed state.
type StateStore interface {
	LastStateChange(ctx context.Context, kind string) (time.Time, error)
}

// Report is the last-activity summary for one process kind. Found is false
// when the store has no record; DaemonRunning is probed independently.
type Report struct {
	Kind          ProcessKind   `json:"kind"`
	Found         bool          `json:"found"`
	Timestamp     time.Time     `json:"timestamp,omitempty"`
	Elapsed       time.Duration `json:"elapsed"`
	Relative      string        `json:"relative"`
	Absolute      string        `json:"absolute,omitempty"`
	DaemonRunning bool          `json:"daemon_running"`
}

// Reporter combines the state store with a liveness probe.
type Reporter struct {
	store StateStore
	probe daemon.LivenessProbe
	now   func() time.Time
}

func NewReporter(store StateStore, probe daemon.LivenessProbe) *Reporter {
	return &Reporter{store: store, probe: probe, now: time.Now}
}

// LastStateChange reports the most recent state change of kind and whether
// the daemon is running.
func (r *Reporter) LastStateChange(ctx context.Context, kind ProcessKind) (Report, error) {
	if !kind.Valid() {
		return Report{}, fmt.Errorf("%w: %q", ErrInvalidProcessKind, string(kind))
	}

	rep := Report{Kind: kind, Relative: "never"}
	ts, err := r.store.LastStateChange(ctx, string(kind))
	switch {
	case errors.Is(err, history.ErrNoStateChange):
	case err != nil:
		return Report{}, fmt.Errorf("last state change of %s: %w", kind, err)
	default:
		now := r.now()
		rep.Found = true
		rep.Timestamp = ts
		rep.Elapsed = Elapsed(ts, now)
		rep.Relative = humanize.RelTime(now.Add(-rep.Elapsed), now, "ago", "from now")
		rep.Absolute = ts.Local().Format(AbsoluteLayout)
	}

	rep.DaemonRunning = r.probe.IsDaemonRunning(ctx)
	return rep, nil
}

// Elapsed returns now - ts, floored at zero for timestamps in the future.
func Elapsed(ts, now time.Time) time.Duration {
	d := now.Sub(ts)
	if d < 0 {
		return 0
	}
	return d
}
