package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/loykin/daemonctl/internal/status"
)

// ErrMalformedResponse marks a supervisor reply that violates the expected
// schema. It is never masked by defaults.
var ErrMalformedResponse = errors.New("malformed supervisor response")

// WorkerRecord is one worker subprocess as reported by a single poll.
type WorkerRecord struct {
	PID        int       `json:"pid"`
	MemPercent float64   `json:"mem_percent"`
	CPUPercent float64   `json:"cpu_percent"`
	StartedAt  time.Time `json:"started_at"`
}

// Info identifies the daemon process itself.
type Info struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

// StatusReport is the outcome of one poll. Workers and DaemonInfo are only
// populated when Status is active and every sub-call answered.
type StatusReport struct {
	Status     status.Status  `json:"status"`
	DaemonInfo *Info          `json:"daemon_info,omitempty"`
	Workers    []WorkerRecord `json:"workers,omitempty"`
}

// Result is the outcome of a sub-call that may time out inside the supervisor.
type Result[T any] struct {
	value T
	ready bool
}

// Ready wraps a value returned by the supervisor.
func Ready[T any](v T) Result[T] { return Result[T]{value: v, ready: true} }

// TimedOut marks a sub-call whose reply carried no info.
func TimedOut[T any]() Result[T] { return Result[T]{} }

// Get returns the value and whether it is present.
func (r Result[T]) Get() (T, bool) { return r.value, r.ready }

// IsTimeout reports whether the sub-call timed out.
func (r Result[T]) IsTimeout() bool { return !r.ready }

// Action is a control command understood by the supervisor.
type Action string

const (
	ActionPause    Action = "pause"
	ActionResume   Action = "resume"
	ActionIncrease Action = "increase"
	ActionDecrease Action = "decrease"
	ActionReset    Action = "reset"
)

// Command is a control request sent to the supervisor.
type Command struct {
	Action  Action `json:"action"`
	Workers int    `json:"workers,omitempty"`
}

// LivenessProbe is the cheap reachability check of a daemon.
type LivenessProbe interface {
	IsDaemonRunning(ctx context.Context) bool
}

// Transport is the request/response channel to the supervisor.
type Transport interface {
	LivenessProbe
	GetStatus(ctx context.Context) (map[string]any, error)
	GetWorkerInfo(ctx context.Context) (Result[[]WorkerRecord], error)
	GetDaemonInfo(ctx context.Context) (Result[Info], error)
	Control(ctx context.Context, cmd Command) (map[string]any, error)
}
