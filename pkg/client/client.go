package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/tuc"
)

// DefaultBaseURL is the daemon address used when Config.BaseURL is empty.
const DefaultBaseURL = "http://127.0.0.1:8765/api"

// Client provides HTTP client functionality to communicate with the tuc daemon
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Token is sent as a bearer token when the daemon has [server.auth] enabled.
	Token    string
	Logger   *slog.Logger
	TLS      *TLSClientConfig
	Insecure bool // Skip TLS verification
}

// TLSClientConfig holds TLS configuration for client
type TLSClientConfig struct {
	CACert     string // CA certificate file path
	ServerName string
	SkipVerify bool
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: 10 * time.Second,
	}
}

// APIError is a non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// New creates a new tuc API client
func New(config Config) (*Client, error) {
	// Set defaults
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	// Setup TLS if configured
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if config.TLS != nil || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tlsConfig
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		token:   config.Token,
		logger:  config.Logger,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}, nil
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	err := c.do(ctx, http.MethodGet, "/scripts", nil, nil)
	if err != nil {
		c.logger.Debug("daemon unreachable", "error", err)
		return false
	}
	return true
}

// ListScripts returns registered scripts in insertion order
func (c *Client) ListScripts(ctx context.Context) ([]tuc.Entry, error) {
	var out []tuc.Entry
	err := c.do(ctx, http.MethodGet, "/scripts", nil, &out)
	return out, err
}

// AddScript registers an absolute script path
func (c *Client) AddScript(ctx context.Context, path string) (tuc.Entry, error) {
	var out tuc.Entry
	err := c.do(ctx, http.MethodPost, "/scripts", map[string]string{"path": path}, &out)
	return out, err
}

func (c *Client) RemoveScript(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, "/scripts?path="+url.QueryEscape(path), nil, nil)
}

// StartScript schedules the script. Idempotent no-ops come back as an
// *APIError with status 409.
func (c *Client) StartScript(ctx context.Context, path string) (tuc.Result, error) {
	var out tuc.Result
	err := c.do(ctx, http.MethodPost, "/scripts/start?path="+url.QueryEscape(path), nil, &out)
	return out, err
}

func (c *Client) StopScript(ctx context.Context, path string) (tuc.Result, error) {
	var out tuc.Result
	err := c.do(ctx, http.MethodPost, "/scripts/stop?path="+url.QueryEscape(path), nil, &out)
	return out, err
}

// StartAll starts every registered script and returns one result per script
func (c *Client) StartAll(ctx context.Context) ([]tuc.Result, error) {
	var out []tuc.Result
	err := c.do(ctx, http.MethodPost, "/start-all", nil, &out)
	return out, err
}

func (c *Client) StopAll(ctx context.Context) ([]tuc.Result, error) {
	var out []tuc.Result
	err := c.do(ctx, http.MethodPost, "/stop-all", nil, &out)
	return out, err
}

type autostartBody struct {
	Enabled bool `json:"enabled"`
}

func (c *Client) Autostart(ctx context.Context) (bool, error) {
	var out autostartBody
	err := c.do(ctx, http.MethodGet, "/autostart", nil, &out)
	return out.Enabled, err
}

func (c *Client) SetAutostart(ctx context.Context, on bool) (bool, error) {
	var out autostartBody
	err := c.do(ctx, http.MethodPut, "/autostart", autostartBody{Enabled: on}, &out)
	return out.Enabled, err
}

// Notices returns up to limit recent notifications, newest last
func (c *Client) Notices(ctx context.Context, limit int) ([]tuc.Notice, error) {
	var out []tuc.Notice
	err := c.do(ctx, http.MethodGet, "/notices?limit="+strconv.Itoa(limit), nil, &out)
	return out, err
}

// setupClientTLS configures TLS settings for HTTP client
func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true // #nosec G402 opt-in for self-signed local daemons
		return tlsConfig, nil
	}
	if config.TLS == nil {
		return tlsConfig, nil
	}
	tlsConfig.InsecureSkipVerify = config.TLS.SkipVerify // #nosec G402
	tlsConfig.ServerName = config.TLS.ServerName
	if config.TLS.CACert != "" {
		if err := loadCACert(tlsConfig, config.TLS.CACert); err != nil {
			return nil, fmt.Errorf("failed to load CA certificate: %w", err)
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

// do performs the request and decodes a 200 response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	// Attach bearer token if configured
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Check for errors
	if resp.StatusCode != http.StatusOK {
		return c.handleErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	var errorResp struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil || errorResp.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	c.logger.Debug("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
	return &APIError{StatusCode: resp.StatusCode, Message: errorResp.Error}
}
