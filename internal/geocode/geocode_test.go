// Placerank - Semantic Nearby Place Recommendations
// Copyright 2026 Placerank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/placerank/placerank

package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testNominatim(t *testing.T, handler http.HandlerFunc) *Nominatim {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewNominatim(NominatimConfig{
		Endpoint:    srv.URL,
		UserAgent:   "placerank-test/1.0",
		MinInterval: time.Millisecond,
		RetryDelay:  time.Millisecond,
	}, zerolog.Nop())
}

func TestParseCoordinates(t *testing.T) {
	tests := []struct {
		name  string
		input string
		lat   float64
		lon   float64
		ok    bool
	}{
		{"plain pair", "1.3521,103.8198", 1.3521, 103.8198, true},
		{"spaced pair", " 48.85 , 2.35 ", 48.85, 2.35, true},
		{"negative pair", "-33.87,151.21", -33.87, 151.21, true},
		{"free-form text", "Marina Bay Sands", 0, 0, false},
		{"single number", "1.3521", 0, 0, false},
		{"latitude out of range", "91,0", 0, 0, false},
		{"longitude out of range", "0,181", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat, lon, ok := ParseCoordinates(tt.input)
			if ok != tt.ok {
				t.Fatalf("ParseCoordinates(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if ok && (lat != tt.lat || lon != tt.lon) {
				t.Errorf("ParseCoordinates(%q) = %v,%v, want %v,%v", tt.input, lat, lon, tt.lat, tt.lon)
			}
		})
	}
}

func TestGeocode(t *testing.T) {
	n := testNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path = %q, want /search", r.URL.Path)
		}
		if ua := r.Header.Get("User-Agent"); ua != "placerank-test/1.0" {
			t.Errorf("User-Agent = %q", ua)
		}
		q := r.URL.Query()
		if q.Get("format") != "jsonv2" || q.Get("addressdetails") != "1" {
			t.Errorf("query params = %v, want jsonv2 with addressdetails", q)
		}
		_, _ = w.Write([]byte(`[{
			"lat": "1.2837", "lon": "103.8607",
			"display_name": "Gardens by the Bay, Singapore",
			"name": "Gardens by the Bay",
			"class": "leisure", "type": "park",
			"address": {"city": "Singapore", "country": "Singapore"}
		}]`))
	})

	loc, err := n.Geocode(context.Background(), "Gardens by the Bay")
	if err != nil {
		t.Fatalf("Geocode() error = %v", err)
	}
	if loc == nil {
		t.Fatal("Geocode() = nil, want location")
	}
	if loc.Lat != 1.2837 || loc.Lon != 103.8607 {
		t.Errorf("coordinates = %v,%v", loc.Lat, loc.Lon)
	}
	if loc.DisplayName != "Gardens by the Bay, Singapore" {
		t.Errorf("DisplayName = %q", loc.DisplayName)
	}
	if loc.Address["city"] != "Singapore" {
		t.Errorf("Address = %v", loc.Address)
	}
}

func TestGeocodeMissIsNilNil(t *testing.T) {
	n := testNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	loc, err := n.Geocode(context.Background(), "nowhere in particular")
	if err != nil {
		t.Fatalf("Geocode() error = %v, want nil for a miss", err)
	}
	if loc != nil {
		t.Errorf("Geocode() = %+v, want nil for a miss", loc)
	}
}

func TestGeocodeRetriesThenFails(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n := NewNominatim(NominatimConfig{
		Endpoint:      srv.URL,
		MinInterval:   time.Millisecond,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
	}, zerolog.Nop())

	loc, err := n.Geocode(context.Background(), "anywhere")
	if err == nil {
		t.Fatal("Geocode() error = nil, want transport error after retries")
	}
	if loc != nil {
		t.Errorf("Geocode() = %+v, want nil on error", loc)
	}
	if calls != 3 {
		t.Errorf("backend calls = %d, want 3 (initial + 2 retries)", calls)
	}
}

func TestGeocodeRetrySucceeds(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[{"lat": "1.0", "lon": "2.0", "display_name": "Somewhere"}]`))
	}))
	defer srv.Close()

	n := NewNominatim(NominatimConfig{
		Endpoint:      srv.URL,
		MinInterval:   time.Millisecond,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
	}, zerolog.Nop())

	loc, err := n.Geocode(context.Background(), "somewhere")
	if err != nil {
		t.Fatalf("Geocode() error = %v", err)
	}
	if loc == nil || loc.DisplayName != "Somewhere" {
		t.Fatalf("Geocode() = %+v, want Somewhere", loc)
	}
	if calls != 2 {
		t.Errorf("backend calls = %d, want 2", calls)
	}
}

func TestReverseGeocode(t *testing.T) {
	n := testNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reverse" {
			t.Errorf("path = %q, want /reverse", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("lat") == "" || q.Get("lon") == "" {
			t.Errorf("query params = %v, want lat and lon", q)
		}
		_, _ = w.Write([]byte(`{
			"lat": "1.2837", "lon": "103.8607",
			"display_name": "Marina Gardens Drive, Singapore",
			"type": "road"
		}`))
	})

	loc, err := n.ReverseGeocode(context.Background(), 1.2837, 103.8607)
	if err != nil {
		t.Fatalf("ReverseGeocode() error = %v", err)
	}
	if loc == nil || loc.DisplayName != "Marina Gardens Drive, Singapore" {
		t.Fatalf("ReverseGeocode() = %+v", loc)
	}
}

func TestReverseGeocodeUnresolvablePoint(t *testing.T) {
	n := testNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": "Unable to geocode"}`))
	})

	loc, err := n.ReverseGeocode(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("ReverseGeocode() error = %v, want nil for a miss", err)
	}
	if loc != nil {
		t.Errorf("ReverseGeocode() = %+v, want nil for a miss", loc)
	}
}

func TestResolve(t *testing.T) {
	var backendCalls int
	n := testNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		backendCalls++
		_, _ = w.Write([]byte(`[{"lat": "48.8584", "lon": "2.2945", "display_name": "Tour Eiffel, Paris"}]`))
	})

	// Coordinate input never reaches the backend.
	loc, err := Resolve(context.Background(), n, "1.3521, 103.8198")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if loc.Lat != 1.3521 || loc.Lon != 103.8198 {
		t.Errorf("Resolve() = %v,%v", loc.Lat, loc.Lon)
	}
	if backendCalls != 0 {
		t.Errorf("backend calls = %d for coordinate input, want 0", backendCalls)
	}

	// Free-form text is forward geocoded.
	loc, err = Resolve(context.Background(), n, "Eiffel Tower")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if loc == nil || loc.DisplayName != "Tour Eiffel, Paris" {
		t.Fatalf("Resolve() = %+v", loc)
	}
	if backendCalls != 1 {
		t.Errorf("backend calls = %d, want 1", backendCalls)
	}
}

func TestRateGateSpacesCalls(t *testing.T) {
	var stamps []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stamps = append(stamps, time.Now())
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	const interval = 50 * time.Millisecond
	n := NewNominatim(NominatimConfig{
		Endpoint:    srv.URL,
		MinInterval: interval,
	}, zerolog.Nop())

	for i := 0; i < 3; i++ {
		if _, err := n.Geocode(context.Background(), "x"); err != nil {
			t.Fatalf("Geocode() error = %v", err)
		}
	}

	if len(stamps) != 3 {
		t.Fatalf("backend calls = %d, want 3", len(stamps))
	}
	for i := 1; i < len(stamps); i++ {
		if gap := stamps[i].Sub(stamps[i-1]); gap < interval-5*time.Millisecond {
			t.Errorf("gap between calls %d and %d = %v, want at least ~%v", i-1, i, gap, interval)
		}
	}
}
