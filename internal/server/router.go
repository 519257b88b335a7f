package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/daemonctl/internal/metrics"
	"github.com/loykin/daemonctl/internal/monitor"
	"github.com/loykin/daemonctl/internal/statechange"
)

// Router relays the monitor's view of the daemon over HTTP.
// Endpoints:
//
//	GET {basePath}/report                    latest poll snapshot, 503 before the first poll
//	GET {basePath}/healthz                   liveness of the relay itself
//	GET {basePath}/last-change?kind=work     last process state change (when a reporter is set)
//	GET /metrics                             Prometheus metrics
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	source   SnapshotSource
	reporter *statechange.Reporter
	basePath string
}

// SnapshotSource provides the latest poll snapshot.
type SnapshotSource interface {
	Latest() (monitor.Snapshot, bool)
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/abc" results in /abc/report and /abc/healthz.
func NewRouter(src SnapshotSource, reporter *statechange.Reporter, basePath string) *Router {
	return &Router{source: src, reporter: reporter, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/report", r.handleReport)
	group.GET("/healthz", r.handleHealth)
	if r.reporter != nil {
		group.GET("/last-change", r.handleLastChange)
	}
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer binds addr and serves this router in the background. A bind
// failure is returned; later serve errors are logged. The returned server's
// Addr is the bound address, so ":0" resolves to the chosen port.
func NewServer(addr string, r *Router, tlsCfg *tls.Config, logger *slog.Logger) (*http.Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           r.Handler(),
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		var err error
		if tlsCfg != nil {
			// certificates come from TLSConfig.GetCertificate
			err = server.ServeTLS(ln, "", "")
		} else {
			err = server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Relay API server stopped", "addr", server.Addr, "error", err)
		}
	}()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleReport(c *gin.Context) {
	snap, ok := r.source.Latest()
	if !ok {
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: "no poll completed yet"})
		return
	}
	writeJSON(c, http.StatusOK, snap)
}

func (r *Router) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleLastChange(c *gin.Context) {
	kind, err := statechange.ParseProcessKind(c.DefaultQuery("kind", string(statechange.Calculation)))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	rep, err := r.reporter.LastStateChange(ctx, kind)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			code = http.StatusGatewayTimeout
		}
		writeJSON(c, code, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, rep)
}
