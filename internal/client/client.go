// Package client is the mobile-facing API client. It mirrors, at the edge,
// the coherence concerns the server's cache layer handles: identical
// in-flight requests share one network call, successful responses are kept
// locally with a freshness window, and network failures degrade to bounded
// staleness instead of hard errors.
package client

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"parkingspots-backend/internal/occupancy"
	"parkingspots-backend/internal/search"
)

const (
	// freshWindow is how long a cached response is served without any
	// network call.
	freshWindow = 5 * time.Minute
	// staleWindow is how long a cached response may still be served when
	// the network is down.
	staleWindow = 24 * time.Hour
	// fetchTimeout bounds the shared network call made on behalf of all
	// deduplicated callers.
	fetchTimeout = 10 * time.Second
)

func init() {
	gob.Register(cachedResponse{})
}

// cachedResponse is one locally persisted API response.
type cachedResponse struct {
	Body      []byte
	FetchedAt time.Time
}

// Client talks to the parking API with request de-duplication and an
// offline-tolerant local cache.
type Client struct {
	baseURL string
	http    *http.Client
	group   singleflight.Group
	local   *gocache.Cache
	dev     bool
	now     func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithDevFallback enables synthetic placeholder data when neither the
// network nor the cache can answer. Development builds only.
func WithDevFallback() Option {
	return func(c *Client) { c.dev = true }
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		local:   gocache.New(staleWindow, 2*staleWindow),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type nearbyEnvelope struct {
	Success bool                  `json:"success"`
	Count   int                   `json:"count"`
	Data    []search.EnrichedSpot `json:"data"`
	Error   string                `json:"error"`
}

// Nearby fetches spots around the origin. Fresh cached responses are served
// without a network call; concurrent identical calls share one request; on
// network failure a stale response up to 24 hours old is returned instead.
func (c *Client) Nearby(ctx context.Context, lat, lng, radius float64, spotType string, freeOnly bool) ([]search.EnrichedSpot, error) {
	params := url.Values{}
	params.Set("lat", fmt.Sprintf("%.6f", lat))
	params.Set("lng", fmt.Sprintf("%.6f", lng))
	if radius > 0 {
		params.Set("radius", fmt.Sprintf("%.0f", radius))
	}
	if spotType != "" {
		params.Set("type", spotType)
	}
	if freeOnly {
		params.Set("free", "true")
	}

	body, err := c.fetchCached(ctx, "nearby:", "/parking/nearby?"+params.Encode())
	if err != nil {
		if c.dev {
			log.Printf("client: no cache and no network, serving placeholder data: %v", err)
			return placeholderSpots(lat, lng), nil
		}
		return nil, err
	}

	var envelope nearbyEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decoding nearby response: %w", err)
	}
	return envelope.Data, nil
}

type predictionEnvelope struct {
	Success bool                 `json:"success"`
	Data    occupancy.Prediction `json:"data"`
	Error   string               `json:"error"`
}

// Predict fetches the occupancy forecast for one spot.
func (c *Client) Predict(ctx context.Context, spotID string) (*occupancy.Prediction, error) {
	body, err := c.fetchCached(ctx, "predict:", "/parking/predict/"+url.PathEscape(spotID))
	if err != nil {
		return nil, err
	}
	var envelope predictionEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decoding prediction response: %w", err)
	}
	return &envelope.Data, nil
}

// CheckIn posts a check-in. Mutations are never cached or de-duplicated.
func (c *Client) CheckIn(ctx context.Context, deviceID, spotID string, durationMinutes int) (map[string]any, error) {
	return c.post(ctx, "/parking/checkin", map[string]any{
		"deviceId": deviceID,
		"spotId":   spotID,
		"duration": durationMinutes,
	})
}

// CheckOut posts a check-out.
func (c *Client) CheckOut(ctx context.Context, deviceID, checkInID string) (map[string]any, error) {
	return c.post(ctx, "/parking/checkout", map[string]any{
		"deviceId":  deviceID,
		"checkInId": checkInID,
	})
}

// HandleSpotUpdate reacts to a pushed spot_update message by dropping local
// search and prediction entries, so the next read goes back to the server.
// This is what keeps the client cache from outliving a server-side
// invalidation.
func (c *Client) HandleSpotUpdate(spotID string) {
	for key := range c.local.Items() {
		if strings.HasPrefix(key, "nearby:") || key == "predict:/parking/predict/"+url.PathEscape(spotID) {
			c.local.Delete(key)
		}
	}
}

// SaveCache persists the local cache to disk.
func (c *Client) SaveCache(path string) error {
	return c.local.SaveFile(path)
}

// LoadCache restores a previously saved local cache.
func (c *Client) LoadCache(path string) error {
	return c.local.LoadFile(path)
}

// fetchCached implements the freshness / de-duplication / stale-fallback
// ladder for GET endpoints.
func (c *Client) fetchCached(ctx context.Context, keyPrefix, path string) ([]byte, error) {
	key := keyPrefix + path

	if v, ok := c.local.Get(key); ok {
		if cached, ok := v.(cachedResponse); ok && c.now().Sub(cached.FetchedAt) < freshWindow {
			return cached.Body, nil
		}
	}

	body, err, _ := c.group.Do(key, func() (any, error) {
		// The fetch answers every deduplicated caller, so it must not
		// die with the first caller's context.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		return c.get(fetchCtx, path)
	})
	if err == nil {
		raw := body.([]byte)
		c.local.Set(key, cachedResponse{Body: raw, FetchedAt: c.now()}, staleWindow)
		return raw, nil
	}

	// Degraded: a stale entry within the 24h window is better than an
	// error. TTL eviction bounds how old it can be.
	if v, ok := c.local.Get(key); ok {
		if cached, ok := v.(cachedResponse); ok {
			log.Printf("client: network failure, serving stale response for %s: %v", path, err)
			return cached.Body, nil
		}
	}
	return nil, err
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, body)
	}
	return body, nil
}

func (c *Client) post(ctx context.Context, path string, payload map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(string(raw)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", path, err)
	}
	if resp.StatusCode >= 300 {
		msg, _ := decoded["error"].(string)
		return decoded, fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, msg)
	}
	return decoded, nil
}

// placeholderSpots is the development-build fallback when there is neither
// a cached response nor a reachable server.
func placeholderSpots(lat, lng float64) []search.EnrichedSpot {
	spots := make([]search.EnrichedSpot, 0, 2)
	for i, offset := range []float64{0.001, 0.002} {
		s := search.EnrichedSpot{
			DistanceMeters: float64(100 * (i + 1)),
			WalkMinutes:    2 * (i + 1),
			Available:      1,
		}
		s.ID = fmt.Sprintf("placeholder-%d", i+1)
		s.Lat = lat + offset
		s.Lng = lng + offset
		s.Type = "on_street"
		s.Capacity = 1
		s.Active = true
		spots = append(spots, s)
	}
	return spots
}
