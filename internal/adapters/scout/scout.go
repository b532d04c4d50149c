// Package scout issues outbound scan requests to the external scout
// provider.
package scout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"scoutq/internal/config"
	"scoutq/internal/domain/model"
	"scoutq/pkg/metrics"
)

var (
	// ErrCall indicates the scout request could not be delivered.
	ErrCall = errors.New("scout call")
	// ErrStatus indicates a non-2xx scout provider response.
	ErrStatus = errors.New("scout status")
)

// Caller issues one scout scan covering the given coordinates.
type Caller interface {
	Scout(ctx context.Context, points []model.Point) error
}

// Client is the HTTP scout provider client. Exactly one auth mode is
// applied, in order of precedence: basic, API key, bearer.
type Client struct {
	baseURL  string
	username string
	password string
	apiKey   string
	bearer   string
	client   *http.Client
}

// NewClient builds a scout client from the static scout configuration.
func NewClient(cfg config.ScoutConfig, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		apiKey:   cfg.APIKey,
		bearer:   cfg.BearerToken,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: 30 * time.Second}
	}
	return c
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// Scout posts the coordinate list as [[lat,lon], ...] to the provider.
func (c *Client) Scout(ctx context.Context, points []model.Point) error {
	pairs := make([][2]float64, len(points))
	for i, p := range points {
		pairs[i] = [2]float64{p.Lat, p.Lon}
	}
	body, err := json.Marshal(pairs)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCall, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/scout", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCall, err)
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.username != "":
		req.SetBasicAuth(c.username, c.password)
	case c.apiKey != "":
		req.Header.Set("X-API-Key", c.apiKey)
	case c.bearer != "":
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.RecordScoutIssueLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCall, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}
	return nil
}
