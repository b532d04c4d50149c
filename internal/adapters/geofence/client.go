package geofence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Area is one named fence with its polygon geometry.
type Area struct {
	Name     string
	Polygons []orb.Polygon
}

// Provider fetches the full area set for a project.
type Provider interface {
	FetchAreas(ctx context.Context) ([]Area, error)
}

// Client fetches geofence feature collections from a Koji-compatible
// provider over HTTP.
type Client struct {
	baseURL string
	token   string
	project string
	client  *http.Client
}

// NewClient creates a provider client for one project.
func NewClient(baseURL, token, project string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		project: project,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: 30 * time.Second}
	}
	return c
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.client = hc
	}
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

// FetchAreas retrieves the project's feature collection and converts
// every Polygon or MultiPolygon feature into an Area. Features with
// other geometry types are skipped.
func (c *Client) FetchAreas(ctx context.Context) ([]Area, error) {
	url := fmt.Sprintf("%s/api/v1/geofence/feature-collection/%s", c.baseURL, c.project)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, Wrap(ErrFetch, err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, Wrap(ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Wrap(ErrFetch, err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, Wrap(ErrDecode, err)
	}
	raw := env.Data
	if len(raw) == 0 {
		// Some deployments return the collection bare.
		raw = body
	}

	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, Wrap(ErrDecode, err)
	}

	areas := make([]Area, 0, len(fc.Features))
	for i, feat := range fc.Features {
		name, _ := feat.Properties["name"].(string)
		if name == "" {
			name = fmt.Sprintf("area-%d", i)
		}
		var polys []orb.Polygon
		switch geom := feat.Geometry.(type) {
		case orb.Polygon:
			polys = []orb.Polygon{geom}
		case orb.MultiPolygon:
			polys = geom
		default:
			continue
		}
		areas = append(areas, Area{Name: name, Polygons: polys})
	}
	return areas, nil
}
