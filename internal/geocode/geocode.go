// Placerank - Semantic Nearby Place Recommendations
// Copyright 2026 Placerank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/placerank/placerank

// Package geocode resolves free-form location text to coordinates and back
// via the Nominatim HTTP API.
//
// Calls to the backend are serialized through a shared admission gate so the
// process as a whole honors the usage policy's one-request-per-second limit,
// regardless of how many concurrent requests need geocoding.
package geocode

import (
	"context"
	"strconv"
	"strings"
)

// Location is a resolved place on the map. A forward geocode carries the
// backend's display name and address breakdown; a parsed coordinate pair
// carries only Lat/Lon.
type Location struct {
	Lat         float64           `json:"lat"`
	Lon         float64           `json:"lon"`
	DisplayName string            `json:"display_name,omitempty"`
	Name        string            `json:"name,omitempty"`
	Class       string            `json:"class,omitempty"`
	Type        string            `json:"type,omitempty"`
	Address     map[string]string `json:"address,omitempty"`
}

// Geocoder resolves location text to coordinates and coordinates to a
// location. A miss is (nil, nil); an error means the backend could not be
// reached after bounded retries.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (*Location, error)
	ReverseGeocode(ctx context.Context, lat, lon float64) (*Location, error)
}

// ParseCoordinates interprets s as a "lat,lon" pair. It reports false for
// anything that is not two valid floats in range, leaving the caller to fall
// back to forward geocoding.
func ParseCoordinates(s string) (lat, lon float64, ok bool) {
	latStr, lonStr, found := strings.Cut(s, ",")
	if !found {
		return 0, 0, false
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return 0, 0, false
	}

	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, false
	}
	return lat, lon, true
}

// Resolve turns free-form location input into a Location. A parseable
// "lat,lon" pair short-circuits without touching the backend; anything else
// is forward geocoded. A geocoder miss propagates as (nil, nil).
func Resolve(ctx context.Context, g Geocoder, input string) (*Location, error) {
	if lat, lon, ok := ParseCoordinates(input); ok {
		return &Location{Lat: lat, Lon: lon}, nil
	}
	return g.Geocode(ctx, input)
}
