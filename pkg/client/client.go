package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/loykin/daemonctl/internal/daemon"
	"github.com/loykin/daemonctl/internal/detector"
	"github.com/loykin/daemonctl/internal/status"
)

// Client talks to the supervisor control API over HTTP, either on a TCP
// address or on a local unix control socket. It implements daemon.Transport.
type Client struct {
	baseURL  string
	client   *http.Client
	logger   *slog.Logger
	detector detector.Detector
}

// Config holds client configuration
type Config struct {
	BaseURL  string
	Socket   string // unix control socket; when set BaseURL only contributes its path
	PIDFile  string // optional daemon pid file checked before the endpoint
	Timeout  time.Duration
	Logger   *slog.Logger // Optional logger for client operations
	TLS      *TLSClientConfig
	Insecure bool // Skip TLS verification
}

// TLSClientConfig holds TLS configuration for client
type TLSClientConfig struct {
	Enabled    bool   // Enable TLS
	CACert     string // CA certificate file path
	ClientCert string // Client certificate file
	ClientKey  string // Client private key file
	ServerName string // Server name for verification
	SkipVerify bool   // Skip certificate verification
}

const (
	DefaultBaseURL = "http://localhost:8080/api"
	DefaultTimeout = 10 * time.Second
)

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: DefaultTimeout,
	}
}

// New creates a new control API client
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := &http.Transport{}
	baseURL := strings.TrimRight(config.BaseURL, "/")

	if config.Socket != "" {
		socket := config.Socket
		dialer := &net.Dialer{}
		transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, "unix", socket)
		}
		baseURL = "http://daemon" + urlPath(baseURL)
	} else if config.TLS != nil && config.TLS.Enabled || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			config.Logger.Error("TLS setup failed", "error", err)
		} else {
			transport.TLSClientConfig = tlsConfig
		}
	}

	c := &Client{
		baseURL: baseURL,
		logger:  config.Logger,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
	if config.PIDFile != "" {
		c.detector = detector.PIDFileDetector{PIDFile: config.PIDFile}
	}
	return c
}

var _ daemon.Transport = (*Client)(nil)

// IsDaemonRunning checks the pid file (when configured) and that the control
// endpoint answers. Any reply except 404 counts as reachable.
func (c *Client) IsDaemonRunning(ctx context.Context) bool {
	if c.detector != nil {
		alive, err := c.detector.Alive()
		if err != nil {
			c.logger.Debug("Liveness detector failed", "detector", c.detector.Describe(), "error", err)
			return false
		}
		if !alive {
			c.logger.Debug("Daemon process not alive", "detector", c.detector.Describe())
			return false
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ping", nil)
	if err != nil {
		c.logger.Debug("Failed to create request for reachability check", "error", err)
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			c.logger.Debug("Reachability check abandoned", "error", ctx.Err())
		} else {
			c.logger.Debug("Daemon unreachable", "error", err)
		}
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	reachable := resp.StatusCode != http.StatusNotFound
	c.logger.Debug("Daemon reachability check", "reachable", reachable, "status", resp.StatusCode)
	return reachable
}

// GetStatus returns the aggregate status reply. Transport timeouts and
// refused connections are reported with the sentinel status codes.
func (c *Client) GetStatus(ctx context.Context) (map[string]any, error) {
	resp, err := c.call(ctx, http.MethodGet, "/status", nil)
	if err != nil {
		if code, ok := sentinelFor(ctx, err); ok {
			c.logger.Debug("Status call failed", "error", err, "code", code)
			return map[string]any{"status": code}, nil
		}
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode status: %v", daemon.ErrMalformedResponse, err)
	}
	return out, nil
}

// GetWorkerInfo returns the workers keyed by pid, in response order.
func (c *Client) GetWorkerInfo(ctx context.Context) (daemon.Result[[]daemon.WorkerRecord], error) {
	env, ok, err := c.detail(ctx, "/workers")
	if err != nil || !ok {
		return daemon.TimedOut[[]daemon.WorkerRecord](), err
	}
	records, err := decodeWorkers(env.Info)
	if err != nil {
		return daemon.TimedOut[[]daemon.WorkerRecord](), err
	}
	return daemon.Ready(records), nil
}

// GetDaemonInfo returns the pid and start time of the daemon.
func (c *Client) GetDaemonInfo(ctx context.Context) (daemon.Result[daemon.Info], error) {
	env, ok, err := c.detail(ctx, "/info")
	if err != nil || !ok {
		return daemon.TimedOut[daemon.Info](), err
	}
	var e daemonEntry
	if err := json.Unmarshal(env.Info, &e); err != nil {
		return daemon.TimedOut[daemon.Info](), fmt.Errorf("%w: daemon info: %v", daemon.ErrMalformedResponse, err)
	}
	if e.PID == nil || e.CreateTime == nil {
		return daemon.TimedOut[daemon.Info](), fmt.Errorf("%w: daemon info requires pid and create_time", daemon.ErrMalformedResponse)
	}
	return daemon.Ready(daemon.Info{PID: *e.PID, StartedAt: unixFloat(*e.CreateTime)}), nil
}

// Control posts a command and returns the raw reply.
func (c *Client) Control(ctx context.Context, cmd daemon.Command) (map[string]any, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("marshal command: %w", err)
	}
	resp, err := c.call(ctx, http.MethodPost, "/control", data)
	if err != nil {
		if code, ok := sentinelFor(ctx, err); ok {
			return map[string]any{"status": code}, nil
		}
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode control reply: %v", daemon.ErrMalformedResponse, err)
	}
	c.logger.Debug("Control command completed", "action", cmd.Action, "reply", out)
	return out, nil
}

// detail fetches a detail endpoint. ok is false when the reply has no info,
// including replies replaced by a sentinel after a transport failure.
func (c *Client) detail(ctx context.Context, path string) (envelope, bool, error) {
	resp, err := c.call(ctx, http.MethodGet, path, nil)
	if err != nil {
		if _, ok := sentinelFor(ctx, err); ok {
			c.logger.Debug("Detail call failed", "path", path, "error", err)
			return envelope{}, false, nil
		}
		return envelope{}, false, err
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return envelope{}, false, fmt.Errorf("%w: decode %s: %v", daemon.ErrMalformedResponse, path, err)
	}
	if len(env.Info) == 0 || string(env.Info) == "null" {
		return env, false, nil
	}
	return env, true, nil
}

// transportError wraps failures of the HTTP round trip itself.
type transportError struct{ err error }

func (e *transportError) Error() string { return "do request: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// call performs the request and returns the response on 200.
func (c *Client) call(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &transportError{err: err}
	}
	if err := c.handleErrorResponse(resp); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil || errorResp.Error == "" {
		c.logger.Error("Failed to decode error response", "status", resp.StatusCode)
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	c.logger.Error("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
	return fmt.Errorf("API error: %s", errorResp.Error)
}

// sentinelFor maps a round-trip failure to the status code the supervisor
// would have reported for it. Failures caused by the caller's context ending
// are not the daemon's and are returned unchanged.
func sentinelFor(ctx context.Context, err error) (string, bool) {
	var te *transportError
	if !errors.As(err, &te) {
		return "", false
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return "", false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		// http.Client.Timeout
		return status.TimeoutCode, true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return status.TimeoutCode, true
	}
	return status.NotRunningCode, true
}

// setupClientTLS configures TLS settings for HTTP client
func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{}

	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true
		return tlsConfig, nil
	}

	if config.TLS != nil {
		if config.TLS.SkipVerify {
			tlsConfig.InsecureSkipVerify = true
		}
		if config.TLS.ServerName != "" {
			tlsConfig.ServerName = config.TLS.ServerName
		}
		if config.TLS.CACert != "" {
			if err := loadCACert(tlsConfig, config.TLS.CACert); err != nil {
				return nil, fmt.Errorf("failed to load CA certificate: %w", err)
			}
		}
		if config.TLS.ClientCert != "" && config.TLS.ClientKey != "" {
			cert, err := tls.LoadX509KeyPair(config.TLS.ClientCert, config.TLS.ClientKey)
			if err != nil {
				return nil, fmt.Errorf("failed to load client certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
	}

	return tlsConfig, nil
}

// loadCACert loads CA certificate from file and adds it to TLS config
func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return fmt.Errorf("failed to read CA certificate file: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("failed to parse CA certificate")
	}

	tlsConfig.RootCAs = caCertPool
	return nil
}
