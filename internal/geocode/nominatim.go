// Placerank - Semantic Nearby Place Recommendations
// Copyright 2026 Placerank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/placerank/placerank

package geocode

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/placerank/placerank/internal/metrics"
)

// NominatimConfig configures the Nominatim client.
type NominatimConfig struct {
	// Endpoint is the Nominatim base URL, without trailing slash.
	Endpoint string

	// UserAgent identifies this service; required by the usage policy.
	UserAgent string

	// MinInterval is the minimum spacing between backend calls, shared
	// process-wide across all requests.
	MinInterval time.Duration

	// RetryAttempts is the number of retries after the initial call.
	RetryAttempts int

	// RetryDelay is the initial backoff, doubled per retry.
	RetryDelay time.Duration

	// Timeout bounds each HTTP call.
	Timeout time.Duration
}

// Nominatim is a Geocoder backed by the Nominatim HTTP API. All calls pass
// through one rate gate, so it must be shared, not constructed per request.
type Nominatim struct {
	endpoint      string
	userAgent     string
	httpClient    *http.Client
	gate          *rate.Limiter
	retryAttempts int
	retryDelay    time.Duration
	logger        zerolog.Logger
}

// NewNominatim creates a Nominatim geocoder.
func NewNominatim(cfg NominatimConfig, logger zerolog.Logger) *Nominatim {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://nominatim.openstreetmap.org"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "placerank/1.0"
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = time.Second
	}
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Nominatim{
		endpoint:      cfg.Endpoint,
		userAgent:     cfg.UserAgent,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		gate:          rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
		logger:        logger.With().Str("component", "geocode").Logger(),
	}
}

// nominatimPlace is one jsonv2 result. Coordinates arrive as strings.
type nominatimPlace struct {
	Lat         string            `json:"lat"`
	Lon         string            `json:"lon"`
	DisplayName string            `json:"display_name"`
	Name        string            `json:"name"`
	Class       string            `json:"class"`
	Type        string            `json:"type"`
	Address     map[string]string `json:"address"`
	Error       string            `json:"error"`
}

func (p *nominatimPlace) toLocation() (*Location, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude %q: %w", p.Lat, err)
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude %q: %w", p.Lon, err)
	}

	return &Location{
		Lat:         lat,
		Lon:         lon,
		DisplayName: p.DisplayName,
		Name:        p.Name,
		Class:       p.Class,
		Type:        p.Type,
		Address:     p.Address,
	}, nil
}

// Geocode resolves free-form text to its best-ranked location. No match is
// (nil, nil).
func (n *Nominatim) Geocode(ctx context.Context, query string) (*Location, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("addressdetails", "1")
	params.Set("limit", "1")

	body, err := n.get(ctx, n.endpoint+"/search?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("geocode %q: %w", query, err)
	}

	var results []nominatimPlace
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("geocode %q: malformed response: %w", query, err)
	}
	if len(results) == 0 {
		n.logger.Debug().Str("query", query).Msg("no geocoding match")
		return nil, nil
	}

	loc, err := results[0].toLocation()
	if err != nil {
		return nil, fmt.Errorf("geocode %q: %w", query, err)
	}
	return loc, nil
}

// ReverseGeocode resolves coordinates to the nearest known location. A
// coordinate pair the backend cannot name is (nil, nil).
func (n *Nominatim) ReverseGeocode(ctx context.Context, lat, lon float64) (*Location, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("format", "jsonv2")
	params.Set("addressdetails", "1")

	body, err := n.get(ctx, n.endpoint+"/reverse?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("reverse geocode %f,%f: %w", lat, lon, err)
	}

	var result nominatimPlace
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("reverse geocode %f,%f: malformed response: %w", lat, lon, err)
	}
	// Nominatim signals an unresolvable point with an error field in a 200.
	if result.Error != "" {
		n.logger.Debug().Float64("lat", lat).Float64("lon", lon).Msg("no reverse geocoding match")
		return nil, nil
	}

	loc, err := result.toLocation()
	if err != nil {
		return nil, fmt.Errorf("reverse geocode %f,%f: %w", lat, lon, err)
	}
	return loc, nil
}

// get performs a rate-gated GET with bounded retries and doubling backoff.
// Every attempt, including retries, waits on the shared gate first.
func (n *Nominatim) get(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	delay := n.retryDelay

	for attempt := 0; attempt <= n.retryAttempts; attempt++ {
		if attempt > 0 {
			n.logger.Warn().Err(lastErr).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("retrying geocoding call")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		if err := n.gate.Wait(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		body, err := n.doGet(ctx, rawURL)
		metrics.RecordCollaboratorCall("nominatim", err, time.Since(start))
		if err == nil {
			return body, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("after %d attempts: %w", n.retryAttempts+1, lastErr)
}

func (n *Nominatim) doGet(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", n.userAgent)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query nominatim: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("nominatim returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read nominatim response: %w", err)
	}
	return body, nil
}
