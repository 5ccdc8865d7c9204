// Placerank - Semantic Nearby Place Recommendations
// Copyright 2026 Placerank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/placerank/placerank

// Package places queries the Overpass map-data backend and normalizes raw
// map elements into Place records.
//
// The client is deliberately fail-soft: a backend outage or malformed payload
// degrades to "no places found" rather than failing the request, because the
// caller has no meaningful recovery beyond showing an empty result set. The
// only hard failure is a malformed tag filter, which is rejected before any
// network I/O.
package places

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/placerank/placerank/internal/metrics"
)

// ErrInvalidFilter indicates a tag filter that is not of the form key=value.
// It is returned before any network call is made.
var ErrInvalidFilter = errors.New("invalid tag filter")

// defaultTagKeys is the broad unscoped key set substituted when a search
// carries no tag filters.
var defaultTagKeys = []string{"amenity", "tourism", "shop", "leisure"}

// defaultSearchLimit bounds the element count when the caller passes none.
const defaultSearchLimit = 50

// ClientConfig configures the Overpass client.
type ClientConfig struct {
	// Endpoint is the Overpass interpreter URL.
	Endpoint string

	// Timeout bounds the query POST and is also emitted in the QL header.
	Timeout time.Duration

	// BreakerEnabled wraps the POST in a circuit breaker so repeated backend
	// failures short-circuit instead of burning the full timeout per request.
	BreakerEnabled  bool
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Client queries the Overpass API and normalizes elements into Places.
// It is safe for concurrent use and shares one HTTP client process-wide.
type Client struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logger     zerolog.Logger
}

// NewClient creates an Overpass client.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewClient(cfg ClientConfig, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 25 * time.Second
	}

	c := &Client{
		endpoint: cfg.Endpoint,
		timeout:  cfg.Timeout,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With().Str("component", "places").Logger(),
	}

	if cfg.BreakerEnabled {
		failures := cfg.BreakerFailures
		if failures == 0 {
			failures = 5
		}
		cooldown := cfg.BreakerCooldown
		if cooldown <= 0 {
			cooldown = 30 * time.Second
		}

		c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "overpass",
			MaxRequests: 1,
			Timeout:     cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("circuit breaker state transition")
				metrics.RecordBreakerStateChange(name, to.String())
			},
		})
	}

	return c
}

// tagFilter is a parsed key or key=value filter.
type tagFilter struct {
	key   string
	value string // empty means match by key existence
}

// parseTagFilters validates user-supplied filters and substitutes the default
// broad key set when none are given. Malformed filters fail fast with
// ErrInvalidFilter before any network call.
func parseTagFilters(filters []string) ([]tagFilter, error) {
	if len(filters) == 0 {
		parsed := make([]tagFilter, len(defaultTagKeys))
		for i, key := range defaultTagKeys {
			parsed[i] = tagFilter{key: key}
		}
		return parsed, nil
	}

	parsed := make([]tagFilter, 0, len(filters))
	for _, f := range filters {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("%w: %q (want key=value, e.g. amenity=restaurant)", ErrInvalidFilter, f)
		}
		parsed = append(parsed, tagFilter{key: k, value: v})
	}
	return parsed, nil
}

// buildQuery constructs the Overpass QL query: per filter, node/way/relation
// sub-queries scoped to a circle around center, unioned, with the element
// body capped at limit plus skeleton geometry for way/relation members.
func (c *Client) buildQuery(center Coordinates, radiusMeters int, filters []tagFilter, limit int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "[out:json][timeout:%d];\n(\n", int(c.timeout.Seconds()))
	for _, f := range filters {
		var clause string
		if f.value == "" {
			clause = fmt.Sprintf("[%q]", f.key)
		} else {
			clause = fmt.Sprintf("[%q=%q]", f.key, f.value)
		}
		for _, kind := range []string{"node", "way", "relation"} {
			fmt.Fprintf(&b, "%s(around:%d,%f,%f)%s;\n", kind, radiusMeters, center.Lat, center.Lon, clause)
		}
	}
	fmt.Fprintf(&b, ");\nout center %d;\n>;\nout skel qt;\n", limit)

	return b.String()
}

// overpassResponse is the Overpass JSON payload. Absence of elements is zero
// results, not an error.
type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

// overpassElement is one raw map element. Ways and relations carry geometry
// via the center object rather than direct lat/lon.
type overpassElement struct {
	Type   string  `json:"type"`
	ID     int64   `json:"id"`
	Lat    float64 `json:"lat,omitempty"`
	Lon    float64 `json:"lon,omitempty"`
	Center *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"center,omitempty"`
	Tags map[string]string `json:"tags,omitempty"`
}

// Search builds and executes an area-and-tag query, returning normalized
// Places. Backend failures and malformed payloads degrade to an empty result;
// only malformed tag filters produce an error.
func (c *Client) Search(ctx context.Context, center Coordinates, radiusMeters int, tagFilters []string, limit int) ([]Place, error) {
	filters, err := parseTagFilters(tagFilters)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultSearchLimit
	}

	query := c.buildQuery(center, radiusMeters, filters, limit)

	start := time.Now()
	body, err := c.post(ctx, query)
	metrics.RecordCollaboratorCall("overpass", err, time.Since(start))
	if err != nil {
		// Fail-soft: one attempt, degrade to no places found.
		c.logger.Warn().Err(err).
			Float64("lat", center.Lat).
			Float64("lon", center.Lon).
			Int("radius_m", radiusMeters).
			Msg("map-data query failed, returning empty result")
		return []Place{}, nil
	}

	var resp overpassResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.Warn().Err(err).Msg("malformed map-data payload, returning empty result")
		return []Place{}, nil
	}

	results := processElements(resp.Elements)
	c.logger.Debug().
		Int("elements", len(resp.Elements)).
		Int("places", len(results)).
		Msg("map-data query complete")

	return results, nil
}

// post executes the query POST, through the circuit breaker when configured.
func (c *Client) post(ctx context.Context, query string) ([]byte, error) {
	if c.breaker == nil {
		return c.doPost(ctx, query)
	}
	return c.breaker.Execute(func() ([]byte, error) {
		return c.doPost(ctx, query)
	})
}

func (c *Client) doPost(ctx context.Context, query string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(query))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query overpass: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("overpass returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read overpass response: %w", err)
	}

	return body, nil
}

// processElements normalizes raw elements into Places. Elements without tags
// or without a name are skipped, so every Place has a non-empty name.
func processElements(elements []overpassElement) []Place {
	results := make([]Place, 0, len(elements))

	for i := range elements {
		el := &elements[i]
		if len(el.Tags) == 0 || el.Tags["name"] == "" {
			continue
		}

		place := Place{
			ID:          fmt.Sprintf("%s_%d", el.Type, el.ID),
			Name:        el.Tags["name"],
			Coordinates: Coordinates{Lat: el.Lat, Lon: el.Lon},
			Tags:        NewPlaceTags(el.Tags),
			Features:    extractFeatures(el.Tags),
		}

		// Centroid geometry overrides direct lat/lon.
		if el.Center != nil {
			place.Coordinates = Coordinates{Lat: el.Center.Lat, Lon: el.Center.Lon}
		}

		if addr := extractAddress(el.Tags); len(addr) > 0 {
			place.Address = addr
		}

		results = append(results, place)
	}

	return results
}

// extractFeatures projects the fixed feature allow-list out of raw tags.
func extractFeatures(tags map[string]string) map[string]string {
	features := make(map[string]string)
	for _, key := range featureTagKeys {
		if v, ok := tags[key]; ok {
			features[key] = v
		}
	}
	return features
}

// extractAddress projects the fixed address allow-list out of raw tags.
// Returns nil when no address-related tag exists.
func extractAddress(tags map[string]string) map[string]string {
	var addr map[string]string
	for _, key := range addressTagKeys {
		if v, ok := tags[key]; ok {
			if addr == nil {
				addr = make(map[string]string)
			}
			addr[key] = v
		}
	}
	return addr
}
