// Package rpc is a typed client for the wallet process JSON-RPC interface.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/icholy/digest"

	"github.com/loykin/walletvisor/internal/metrics"
)

var (
	// ErrUnreachable means the wallet process did not answer at the transport level.
	ErrUnreachable = errors.New("wallet rpc: unreachable")
	// ErrUnauthorized means the digest credentials were rejected.
	ErrUnauthorized = errors.New("wallet rpc: unauthorized")
)

// Error is a JSON-RPC error object returned by the wallet.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("wallet rpc error %d: %s", e.Code, e.Message)
}

// Config addresses one wallet RPC endpoint.
type Config struct {
	Host     string
	Port     int
	TLS      bool
	Username string
	Password string
	// Timeout bounds ordinary calls.
	Timeout time.Duration
	// ProbeTimeout bounds the connectivity probe.
	ProbeTimeout time.Duration
	// TransferTimeout bounds transfer and sweep_all.
	TransferTimeout time.Duration
	Logger          *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 3 * time.Second
	}
	if c.TransferTimeout <= 0 {
		c.TransferTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client sends JSON-RPC 2.0 requests to <scheme>://host:port/json_rpc.
type Client struct {
	url     string
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
	seq     atomic.Uint64
}

// NewClient builds a client. Digest auth is enabled when Username is set.
func NewClient(cfg Config) *Client {
	cfg.applyDefaults()
	scheme := "http"
	if cfg.TLS {
		scheme = "https"
	}
	var rt http.RoundTripper = http.DefaultTransport
	if cfg.Username != "" {
		rt = &digest.Transport{
			Username:  cfg.Username,
			Password:  cfg.Password,
			Transport: http.DefaultTransport,
		}
	}
	return &Client{
		url:     scheme + "://" + net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)) + "/json_rpc",
		http:    &http.Client{Transport: rt},
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}
}

// URL returns the endpoint the client posts to.
func (c *Client) URL() string { return c.url }

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

// Call invokes method with params and decodes the result into out.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	return c.call(ctx, c.timeout, method, params, out)
}

func (c *Client) call(ctx context.Context, timeout time.Duration, method string, params, out any) (retErr error) {
	start := time.Now()
	defer func() {
		metrics.ObserveRPC(method, resultLabel(retErr), time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      strconv.FormatUint(c.seq.Add(1), 10),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, method, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		if closeErr := resp.Body.Close(); closeErr != nil && retErr == nil {
			retErr = closeErr
		}
	}()
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, method)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("wallet rpc %s: http status %d", method, resp.StatusCode)
	}

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		// a truncated body means the peer went away mid-response
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %s: %v", ErrUnreachable, method, err)
		}
		return fmt.Errorf("decode %s: %w", method, err)
	}
	if decoded.Error != nil {
		c.logger.Debug("wallet rpc error", "method", method, "code", decoded.Error.Code, "message", decoded.Error.Message)
		return decoded.Error
	}
	if out == nil {
		return nil
	}
	if len(decoded.Result) == 0 || string(decoded.Result) == "null" {
		return fmt.Errorf("wallet rpc %s: empty result", method)
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

func resultLabel(err error) string {
	var rpcErr *Error
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnreachable):
		return "unreachable"
	case errors.As(err, &rpcErr):
		return "rpc_error"
	default:
		return "error"
	}
}
