package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/leandrodaf/midicc/sdk/contracts"
)

// Client implements contracts.Backend against a running Server.
// Failures to reach the server surface as *contracts.CommunicationError.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ contracts.Backend = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.http = c }
}

// NewClient returns a client for the server listening at addr, which may be a
// bare host:port or a full URL.
func NewClient(addr string, opts ...ClientOption) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	c := &Client{baseURL: base, http: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetSettings fetches the stored settings and the server's device list.
func (c *Client) GetSettings(ctx context.Context) (contracts.SettingsView, error) {
	var resp settingsResponse
	if err := c.do(ctx, "get_settings", http.MethodGet, pathSettings, nil, &resp); err != nil {
		return contracts.SettingsView{}, err
	}
	return resp.view(), nil
}

// SetSettings sends a full or partial update and returns the resulting worker status.
func (c *Client) SetSettings(ctx context.Context, update contracts.SettingsUpdate) (contracts.WorkerStatus, error) {
	var resp statusResponse
	if err := c.do(ctx, "set_settings", http.MethodPost, pathSettings, update, &resp); err != nil {
		return contracts.Unknown(), err
	}
	return resp.status(), nil
}

// GetError returns the worker's current status.
func (c *Client) GetError(ctx context.Context) (contracts.WorkerStatus, error) {
	var resp statusResponse
	if err := c.do(ctx, "get_error", http.MethodGet, pathError, nil, &resp); err != nil {
		return contracts.Unknown(), err
	}
	return resp.status(), nil
}

// AttemptRestart asks the server to restart the worker with the stored settings.
func (c *Client) AttemptRestart(ctx context.Context) (contracts.WorkerStatus, error) {
	var resp statusResponse
	if err := c.do(ctx, "attempt_restart", http.MethodPost, pathRestart, nil, &resp); err != nil {
		return contracts.Unknown(), err
	}
	return resp.status(), nil
}

// Devices lists the MIDI input devices the server can see.
func (c *Client) Devices(ctx context.Context) (contracts.DeviceList, error) {
	var resp devicesResponse
	if err := c.do(ctx, "list_devices", http.MethodGet, pathDevices, nil, &resp); err != nil {
		return nil, err
	}
	return contracts.DeviceList(resp.MIDIDevices), nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encoding request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &contracts.CommunicationError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &contracts.CommunicationError{Op: op, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.Unmarshal(data, out); err != nil {
			return &contracts.CommunicationError{Op: op, Err: fmt.Errorf("decoding response: %w", err)}
		}
		return nil
	case resp.StatusCode == http.StatusUnprocessableEntity:
		var sr statusResponse
		if err := json.Unmarshal(data, &sr); err == nil && sr.Field != "" {
			return &contracts.ValidationError{Field: sr.Field, Reason: sr.Reason}
		}
	}

	var sr statusResponse
	if err := json.Unmarshal(data, &sr); err == nil && sr.Error != nil {
		return fmt.Errorf("%s: %s", op, *sr.Error)
	}
	return &contracts.CommunicationError{Op: op, Err: errors.New(resp.Status)}
}
