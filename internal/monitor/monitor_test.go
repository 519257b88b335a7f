package monitor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/daemonctl/internal/daemon"
	"github.com/loykin/daemonctl/internal/status"
	"github.com/loykin/daemonctl/pkg/client"
)

type scriptedPoller struct {
	mu      sync.Mutex
	reports []daemon.StatusReport
	err     error
	calls   atomic.Int32
	block   chan struct{}
}

func (p *scriptedPoller) GetStatus(ctx context.Context) (daemon.StatusReport, error) {
	n := int(p.calls.Add(1))
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return daemon.StatusReport{}, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return daemon.StatusReport{}, p.err
	}
	if len(p.reports) == 0 {
		return daemon.StatusReport{Status: status.Of(status.NotRunning)}, nil
	}
	idx := n - 1
	if idx >= len(p.reports) {
		idx = len(p.reports) - 1
	}
	return p.reports[idx], nil
}

func TestNewValidatesSchedule(t *testing.T) {
	_, err := New(&scriptedPoller{}, Config{Schedule: "every now and then"}, nil)
	assert.Error(t, err)

	_, err = New(nil, Config{}, nil)
	assert.Error(t, err)

	m, err := New(&scriptedPoller{}, Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSchedule, m.cfg.Schedule)
}

func TestValidateSchedule(t *testing.T) {
	for _, expr := range []string{"@every 5s", "*/10 * * * * *", "0 * * * *", "@hourly"} {
		assert.NoError(t, ValidateSchedule(expr), expr)
	}
	assert.Error(t, ValidateSchedule(""))
	assert.Error(t, ValidateSchedule("@every"))
}

func TestPollKeepsLatest(t *testing.T) {
	active := daemon.StatusReport{
		Status:     status.Of(status.Active),
		DaemonInfo: &daemon.Info{PID: 9},
		Workers:    []daemon.WorkerRecord{{PID: 10}},
	}
	p := &scriptedPoller{reports: []daemon.StatusReport{active, {Status: status.Of(status.NotRunning)}}}
	m, err := New(p, Config{Schedule: "@every 1h"}, nil)
	require.NoError(t, err)

	_, ok := m.Latest()
	assert.False(t, ok)

	snap := m.Poll(context.Background())
	assert.Equal(t, status.Active, snap.Report.Status.Kind)
	latest, ok := m.Latest()
	require.True(t, ok)
	assert.Equal(t, 9, latest.Report.DaemonInfo.PID)

	snap = m.Poll(context.Background())
	assert.Equal(t, status.NotRunning, snap.Report.Status.Kind)
	latest, _ = m.Latest()
	assert.Equal(t, status.NotRunning, latest.Report.Status.Kind)
	assert.Empty(t, latest.Error)
}

func TestPollRecordsError(t *testing.T) {
	p := &scriptedPoller{err: errors.New("malformed")}
	m, err := New(p, Config{}, nil)
	require.NoError(t, err)

	snap := m.Poll(context.Background())
	assert.Equal(t, "malformed", snap.Error)
	latest, ok := m.Latest()
	require.True(t, ok)
	assert.Equal(t, "malformed", latest.Error)
}

func TestPollTimeoutBoundsCall(t *testing.T) {
	p := &scriptedPoller{block: make(chan struct{})}
	m, err := New(p, Config{PollTimeout: 20 * time.Millisecond}, nil)
	require.NoError(t, err)

	snap := m.Poll(context.Background())
	assert.Contains(t, snap.Error, context.DeadlineExceeded.Error())
}

func TestPollTimeoutOnSlowSupervisorIsPollError(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(300 * time.Millisecond):
		case <-r.Context().Done():
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"active"}`))
	}))
	defer slow.Close()

	transport := client.New(client.Config{BaseURL: slow.URL, Timeout: 5 * time.Second})
	m, err := New(daemon.NewClient(transport, nil), Config{Schedule: "@every 1h", PollTimeout: 50 * time.Millisecond}, nil)
	require.NoError(t, err)

	snap := m.Poll(context.Background())
	assert.Contains(t, snap.Error, context.DeadlineExceeded.Error())
	assert.NotEqual(t, status.NotRunning, snap.Report.Status.Kind)
	assert.Less(t, snap.Duration, 300*time.Millisecond)
}

func TestStopWaitsForInitialPoll(t *testing.T) {
	p := &scriptedPoller{block: make(chan struct{})}
	m, err := New(p, Config{Schedule: "@every 1h"}, nil)
	require.NoError(t, err)
	require.NoError(t, m.Start())

	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		m.Stop(context.Background())
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while the initial poll was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(p.block)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the initial poll finished")
	}
	_, ok := m.Latest()
	assert.True(t, ok, "initial poll must be recorded before Stop returns")
}

func TestStartPollsAndStops(t *testing.T) {
	p := &scriptedPoller{}
	m, err := New(p, Config{Schedule: "@every 1s"}, nil)
	require.NoError(t, err)

	require.NoError(t, m.Start())
	assert.Error(t, m.Start())
	assert.False(t, m.NextRun().IsZero())

	require.Eventually(t, func() bool {
		_, ok := m.Latest()
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m.Stop(ctx)
	assert.True(t, m.NextRun().IsZero())
	// stopping twice is a no-op
	m.Stop(ctx)
}
