package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/daemonctl/internal/daemon"
	"github.com/loykin/daemonctl/internal/history"
	"github.com/loykin/daemonctl/internal/monitor"
	"github.com/loykin/daemonctl/internal/statechange"
	"github.com/loykin/daemonctl/internal/status"
)

type staticSource struct {
	snap *monitor.Snapshot
}

func (s staticSource) Latest() (monitor.Snapshot, bool) {
	if s.snap == nil {
		return monitor.Snapshot{}, false
	}
	return *s.snap, true
}

type liveness bool

func (l liveness) IsDaemonRunning(context.Context) bool { return bool(l) }

func setupRouter(t *testing.T, base string, src SnapshotSource, rep *statechange.Reporter) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewRouter(src, rep, base).Handler()
}

func doReq(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestReportBeforeFirstPoll(t *testing.T) {
	h := setupRouter(t, "/api", staticSource{}, nil)
	rec := doReq(t, h, http.MethodGet, "/api/report")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestReportReturnsLatestSnapshot(t *testing.T) {
	snap := &monitor.Snapshot{
		Report: daemon.StatusReport{
			Status:     status.Of(status.Active),
			DaemonInfo: &daemon.Info{PID: 99, StartedAt: time.Unix(1700000000, 0).UTC()},
			Workers:    []daemon.WorkerRecord{{PID: 111, MemPercent: 2.5, CPUPercent: 1}},
		},
		PolledAt: time.Unix(1700000100, 0).UTC(),
	}
	h := setupRouter(t, "api", staticSource{snap: snap}, nil)
	rec := doReq(t, h, http.MethodGet, "/api/report")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got monitor.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Report.Status.Kind != status.Active || got.Report.DaemonInfo.PID != 99 || len(got.Report.Workers) != 1 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestHealthz(t *testing.T) {
	h := setupRouter(t, "", staticSource{}, nil)
	rec := doReq(t, h, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok":true`) {
		t.Fatalf("unexpected healthz reply %d %s", rec.Code, rec.Body.String())
	}
}

func TestMetricsRoute(t *testing.T) {
	h := setupRouter(t, "/api", staticSource{}, nil)
	rec := doReq(t, h, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestLastChangeRoute(t *testing.T) {
	store := history.NewMemory()
	when := time.Now().Add(-time.Minute)
	if err := store.Record(context.Background(), history.Change{Kind: "work", OccurredAt: when}); err != nil {
		t.Fatal(err)
	}
	rep := statechange.NewReporter(store, liveness(false))
	h := setupRouter(t, "/api", staticSource{}, rep)

	rec := doReq(t, h, http.MethodGet, "/api/last-change?kind=work")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got statechange.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Found || got.DaemonRunning || got.Kind != statechange.Work {
		t.Fatalf("unexpected report %+v", got)
	}

	rec = doReq(t, h, http.MethodGet, "/api/last-change?kind=bogus")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid kind, got %d", rec.Code)
	}
}

func TestLastChangeRouteAbsentWithoutReporter(t *testing.T) {
	h := setupRouter(t, "/api", staticSource{}, nil)
	rec := doReq(t, h, http.MethodGet, "/api/last-change")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
