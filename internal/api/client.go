package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/bryanchriswhite/hopper/internal/daemon"
	herrors "github.com/bryanchriswhite/hopper/internal/errors"
	"github.com/gorilla/websocket"
)

const (
	DefaultDialTimeout = 500 * time.Millisecond
	DefaultTimeout     = 3 * time.Second

	// the host is ignored; every request goes to the socket
	baseURL   = "http://hopper"
	streamURL = "ws://hopper/v1/stream"
)

// Client talks to a running daemon
type Client struct {
	socketPath string
	http       *http.Client
	dialer     *websocket.Dialer
}

// NewClient creates a client for the daemon listening on socketPath.
// Zero timeouts select the defaults.
func NewClient(socketPath string, dialTimeout, timeout time.Duration) *Client {
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	dial := func(ctx context.Context, _, _ string) (net.Conn, error) {
		d := net.Dialer{Timeout: dialTimeout}
		return d.DialContext(ctx, "unix", socketPath)
	}

	return &Client{
		socketPath: socketPath,
		http: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{DialContext: dial, DisableKeepAlives: true},
		},
		dialer: &websocket.Dialer{
			NetDialContext:   dial,
			HandshakeTimeout: timeout,
		},
	}
}

// Send submits one command and returns the resulting state
func (c *Client) Send(ctx context.Context, req Request) (daemon.Snapshot, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return daemon.Snapshot{}, herrors.Wrap(err, herrors.ErrCodeInternal, "failed to encode request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/command", bytes.NewReader(body))
	if err != nil {
		return daemon.Snapshot{}, herrors.Wrap(err, herrors.ErrCodeInternal, "failed to build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.do(httpReq)
	if err != nil {
		return daemon.Snapshot{}, err
	}
	if err := resp.Err(); err != nil {
		if resp.State != nil {
			return *resp.State, err
		}
		return daemon.Snapshot{}, err
	}
	if resp.State == nil {
		return daemon.Snapshot{}, nil
	}
	return *resp.State, nil
}

// State returns the daemon's current snapshot without changing it
func (c *Client) State(ctx context.Context) (daemon.Snapshot, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/state", nil)
	if err != nil {
		return daemon.Snapshot{}, herrors.Wrap(err, herrors.ErrCodeInternal, "failed to build request")
	}
	resp, err := c.do(httpReq)
	if err != nil {
		return daemon.Snapshot{}, err
	}
	if resp.State == nil {
		return daemon.Snapshot{}, resp.Err()
	}
	return *resp.State, resp.Err()
}

// Health checks that the daemon answers
func (c *Client) Health(ctx context.Context) (map[string]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return nil, herrors.Wrap(err, herrors.ErrCodeInternal, "failed to build request")
	}
	raw, err := c.roundTrip(httpReq)
	if err != nil {
		return nil, err
	}
	var out map[string]string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, herrors.Wrap(err, herrors.ErrCodeInternal, "malformed health response")
	}
	return out, nil
}

// Stream calls fn with every state the daemon publishes until ctx is
// cancelled, the daemon stops, or fn returns an error
func (c *Client) Stream(ctx context.Context, fn func(daemon.Snapshot) error) error {
	conn, _, err := c.dialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		return classifyTransportError(err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	for {
		var msg StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return nil
			}
			return herrors.Wrap(err, herrors.ErrCodeTransportUnreachable, "stream closed")
		}
		if msg.Type != MessageState || msg.State == nil {
			continue
		}
		if err := fn(*msg.State); err != nil {
			return err
		}
	}
}

func (c *Client) do(req *http.Request) (Response, error) {
	raw, err := c.roundTrip(req)
	if err != nil {
		return Response{}, err
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Response{}, herrors.Wrap(err, herrors.ErrCodeInternal, "malformed daemon response")
	}
	return resp, nil
}

func (c *Client) roundTrip(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, herrors.Wrap(err, herrors.ErrCodeInternal, "failed to read daemon response")
	}
	return raw, nil
}

// classifyTransportError reports a failed dial as "daemon not running" and
// anything later as an internal error
func classifyTransportError(err error) error {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return herrors.Wrap(err, herrors.ErrCodeTransportUnreachable, "daemon not running")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return herrors.Wrap(err, herrors.ErrCodeInternal, "daemon did not respond in time")
	}
	return herrors.Wrap(err, herrors.ErrCodeInternal, "request failed")
}
