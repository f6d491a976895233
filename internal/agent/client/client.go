// Package client is the agent's HTTP client for the fleetsight server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fleetsight/fleetsight/internal/api/http/dto"
)

// ErrDeviceArchived means the server refuses fresh data for this device; the
// agent should stop submitting until unarchived.
var ErrDeviceArchived = errors.New("device is archived on the server")

type Client struct {
	baseURL      string
	apiKey       string
	serialNumber string
	httpClient   *http.Client
}

func New(baseURL, apiKey, serialNumber string) *Client {
	return &Client{
		baseURL:      baseURL,
		apiKey:       apiKey,
		serialNumber: serialNumber,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Enroll registers the device. Safe to call every startup; re-enrollment
// refreshes hostname and platform.
func (c *Client) Enroll(ctx context.Context, hostname, platform string) error {
	req := dto.EnrollDeviceRequest{
		SerialNumber: c.serialNumber,
		Hostname:     hostname,
		Platform:     platform,
	}
	return c.post(ctx, http.MethodPost, "/api/v1/devices", req)
}

// SubmitSnapshot uploads the applications snapshot, overwriting the previous
// one for this device.
func (c *Client) SubmitSnapshot(ctx context.Context, snapshot dto.SubmitSnapshotRequest) error {
	path := fmt.Sprintf("/api/v1/devices/%s/snapshots/applications", c.serialNumber)
	return c.post(ctx, http.MethodPut, path, snapshot)
}

func (c *Client) post(ctx context.Context, method, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict:
		return ErrDeviceArchived
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, msg)
	}
}
