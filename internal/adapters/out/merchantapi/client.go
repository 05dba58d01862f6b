// Package merchantapi is the REST client for the merchant backend. Every call is
// bearer-authenticated and bounded by a timeout. Response bodies that cannot be
// decoded are treated as empty.
package merchantapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"merchantdispatch/internal/pkg/errs"

	"github.com/goccy/go-json"
)

const (
	// DefaultTimeout bounds a standard REST call.
	DefaultTimeout = 15 * time.Second
	// DefaultProbeTimeout bounds the existence probe.
	DefaultProbeTimeout = 3500 * time.Millisecond
)

// Config configures a Client.
type Config struct {
	BaseURL      string
	Token        string
	Timeout      time.Duration
	ProbeTimeout time.Duration
}

// Client implements the OrderAPI, BusinessAPI, DispatchAPI, DriverAPI and
// HealthProbe ports.
type Client struct {
	baseURL      string
	token        string
	timeout      time.Duration
	probeTimeout time.Duration
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewClient validates cfg and creates a client. Zero timeouts take the defaults.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	var errList []error
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if cfg.BaseURL == "" {
		errList = append(errList, errs.NewValueIsRequiredError("base url"))
	} else if err != nil || base.Scheme == "" || base.Host == "" {
		errList = append(errList, errs.NewValueIsInvalidErrorWithCause("base url",
			fmt.Errorf("%q is not an absolute url", cfg.BaseURL)))
	}
	if logger == nil {
		errList = append(errList, errs.NewValueIsRequiredError("logger"))
	}
	if err := errors.Join(errList...); err != nil {
		return nil, err
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		baseURL:      strings.TrimRight(base.String(), "/") + "/",
		token:        cfg.Token,
		timeout:      cfg.Timeout,
		probeTimeout: cfg.ProbeTimeout,
		httpClient:   httpClient,
		logger:       logger.With("component", "merchant_api"),
	}, nil
}

// BaseURL returns the normalized base url with a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Probe sends HEAD to the base url. Any HTTP response counts as reachable.
func (c *Client) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL, nil)
	if err != nil {
		return errs.NewNetworkError("HEAD base url", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.NewNetworkError("HEAD base url", err)
	}
	_ = resp.Body.Close()
	return nil
}

// do performs one call and returns the raw body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	op := method + " " + path
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal body: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+strings.TrimLeft(path, "/"), reader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.NewNetworkError(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.NewNetworkError(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errs.NewNetworkStatusError(op, resp.StatusCode, string(data))
	}
	return data, nil
}

// decode parses data into any JSON value and unwraps a {"data": ...} envelope.
// Unparseable bodies yield nil.
func (c *Client) decode(op string, data []byte) any {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.Debug("Unparseable response body treated as empty", "op", op, "error", err)
		return nil
	}
	if m, ok := v.(map[string]any); ok {
		if inner, ok := m["data"]; ok && inner != nil {
			return inner
		}
	}
	return v
}

func (c *Client) decodeObject(op string, data []byte) map[string]any {
	m, _ := c.decode(op, data).(map[string]any)
	return m
}
