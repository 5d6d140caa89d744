// Package maps resolves delivery place ids to coordinates through the Google
// Places API, for pricing deliveries outside the named zones.
package maps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/ovenly/backend/pkg/errors"
)

const (
	defaultBaseURL              = "https://places.googleapis.com/v1"
	placeResolveFieldMask       = "id,formattedAddress,location"
	requestBodyReadLimit  int64 = 1024
	defaultCacheSize            = 512
)

var errAPIKeyRequired = errors.New("google maps api key is required")

// Client wraps the Google Places details API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cache      *placeCache
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured Places base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithCacheSize bounds the number of resolved places kept in memory. Zero disables caching.
func WithCacheSize(size int) Option {
	return func(c *Client) {
		c.cache = newPlaceCache(size)
	}
}

// NewClient builds the Google Maps client given an API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}

	client := &Client{
		apiKey:     trimmedKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      newPlaceCache(defaultCacheSize),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// PlaceDetails is the normalized data returned by the place-details API.
type PlaceDetails struct {
	PlaceID          string
	FormattedAddress string
	Location         LatLng
}

// LatLng is the latitude/longitude pair returned by Google.
type LatLng struct {
	Latitude  float64
	Longitude float64
}

// Locate returns the coordinates for placeID.
func (c *Client) Locate(ctx context.Context, placeID string) (float64, float64, error) {
	details, err := c.ResolvePlace(ctx, placeID)
	if err != nil {
		return 0, 0, err
	}
	return details.Location.Latitude, details.Location.Longitude, nil
}

// ResolvePlace fetches the canonical place data for the provided place ID.
func (c *Client) ResolvePlace(ctx context.Context, placeID string) (*PlaceDetails, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "google maps client not configured")
	}
	trimmed := strings.TrimSpace(placeID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "place ID is required")
	}
	if cached, ok := c.cache.get(trimmed); ok {
		return &cached, nil
	}

	endpoint := fmt.Sprintf("%s/places/%s", strings.TrimRight(c.baseURL, "/"), url.PathEscape(trimmed))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build place resolve request")
	}
	httpReq.Header.Set("X-Goog-Api-Key", c.apiKey)
	httpReq.Header.Set("X-Goog-FieldMask", placeResolveFieldMask)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute place resolve request")
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusBadRequest:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery place not found").
			WithDetails(map[string]any{"field": "delivery.place_id"})
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, requestBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "place resolve request failed")
	}

	var apiResp struct {
		ID               string `json:"id"`
		FormattedAddress string `json:"formattedAddress"`
		Location         *struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"location"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode place resolve response")
	}
	if apiResp.Location == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery place has no location").
			WithDetails(map[string]any{"field": "delivery.place_id"})
	}

	details := PlaceDetails{
		PlaceID:          apiResp.ID,
		FormattedAddress: apiResp.FormattedAddress,
		Location: LatLng{
			Latitude:  apiResp.Location.Latitude,
			Longitude: apiResp.Location.Longitude,
		},
	}
	c.cache.put(trimmed, details)
	return &details, nil
}

// placeCache keeps recently resolved places; the oldest entry is evicted
// once the cache is full.
type placeCache struct {
	mu    sync.Mutex
	size  int
	order []string
	items map[string]PlaceDetails
}

func newPlaceCache(size int) *placeCache {
	if size <= 0 {
		return nil
	}
	return &placeCache{size: size, items: make(map[string]PlaceDetails, size)}
}

func (p *placeCache) get(key string) (PlaceDetails, bool) {
	if p == nil {
		return PlaceDetails{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.items[key]
	return v, ok
}

func (p *placeCache) put(key string, v PlaceDetails) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.items[key]; !ok {
		if len(p.order) >= p.size {
			delete(p.items, p.order[0])
			p.order = p.order[1:]
		}
		p.order = append(p.order, key)
	}
	p.items[key] = v
}
