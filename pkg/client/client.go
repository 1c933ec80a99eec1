// Package client is a small HTTP client for the huebridged admin API, used
// by huebridgectl and suitable for third-party tooling.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Light mirrors the API's light representation.
type Light struct {
	ID           string      `json:"id"`
	EntityID     string      `json:"entity_id"`
	UniqueID     string      `json:"uniqueid"`
	Name         string      `json:"name"`
	Kind         string      `json:"kind"`
	Enabled      bool        `json:"enabled"`
	Reachable    bool        `json:"reachable"`
	On           bool        `json:"on"`
	Brightness   int         `json:"brightness"`
	ColorMode    string      `json:"color_mode"`
	ColorTemp    int         `json:"ct"`
	Hue          int         `json:"hue"`
	Saturation   int         `json:"sat"`
	XY           *[2]float64 `json:"xy"`
	Effect       string      `json:"effect"`
	Transition   float64     `json:"transition_seconds"`
	Manufacturer string      `json:"manufacturer"`
	Model        string      `json:"model"`
	SWVersion    string      `json:"swversion"`
}

// StateUpdate is the body for a set-state request. Nil fields are omitted.
type StateUpdate struct {
	On           *bool       `json:"on,omitempty"`
	Brightness   *int        `json:"brightness,omitempty"`
	ColorTemp    *int        `json:"ct,omitempty"`
	Hue          *int        `json:"hue,omitempty"`
	Saturation   *int        `json:"sat,omitempty"`
	XY           *[2]float64 `json:"xy,omitempty"`
	RGB          *[3]int     `json:"rgb,omitempty"`
	Effect       *string     `json:"effect,omitempty"`
	Flash        *string     `json:"flash,omitempty"`
	TransitionMS *float64    `json:"transition_ms,omitempty"`
}

// Version is the daemon's build information.
type Version struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Client talks to one huebridged instance.
type Client struct {
	logger  *slog.Logger
	baseURL string
	http    *http.Client
}

// New creates a client for the API at baseURL, e.g. http://127.0.0.1:8686.
func New(logger *slog.Logger, baseURL string) *Client {
	return &Client{
		logger:  logger,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("api request", "method", method, "path", path)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, bytes.TrimSpace(raw))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// GetVersion returns the daemon's build information.
func (c *Client) GetVersion(ctx context.Context) (Version, error) {
	var v Version
	err := c.do(ctx, http.MethodGet, "/api/v1/version", nil, &v)
	return v, err
}

// GetLights returns all lights keyed by light id.
func (c *Client) GetLights(ctx context.Context) (map[string]Light, error) {
	var lights map[string]Light
	err := c.do(ctx, http.MethodGet, "/api/v1/lights", nil, &lights)
	return lights, err
}

// GetLight returns one light by id.
func (c *Client) GetLight(ctx context.Context, id string) (Light, error) {
	var l Light
	err := c.do(ctx, http.MethodGet, "/api/v1/lights/"+id, nil, &l)
	return l, err
}

// SetLightState commits a state update to a light.
func (c *Client) SetLightState(ctx context.Context, id string, update StateUpdate) error {
	return c.do(ctx, http.MethodPost, "/api/v1/lights/"+id+"/state", update, nil)
}
