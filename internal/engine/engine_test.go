// Placerank - Semantic Nearby Place Recommendations
// Copyright 2026 Placerank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/placerank/placerank

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/placerank/placerank/internal/geocode"
	"github.com/placerank/placerank/internal/places"
	"github.com/placerank/placerank/internal/rank"
	"github.com/placerank/placerank/internal/results"
)

type fakeSource struct {
	places     []places.Place
	err        error
	lastRadius int
	lastLimit  int
	lastTags   []string
	lastCenter places.Coordinates
}

func (f *fakeSource) Search(_ context.Context, center places.Coordinates, radiusMeters int, tagFilters []string, limit int) ([]places.Place, error) {
	f.lastCenter = center
	f.lastRadius = radiusMeters
	f.lastTags = tagFilters
	f.lastLimit = limit
	return f.places, f.err
}

type fakeGeocoder struct {
	forward map[string]*geocode.Location
	reverse *geocode.Location
	err     error
}

func (f *fakeGeocoder) Geocode(_ context.Context, query string) (*geocode.Location, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.forward[query], nil
}

func (f *fakeGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (*geocode.Location, error) {
	return f.reverse, f.err
}

// keywordEmbedder gives each text a vector from the first matching keyword.
type keywordEmbedder struct {
	vectors map[string][]float32
}

func (k *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := []float32{0, 0, 1}
		for key, v := range k.vectors {
			if strings.Contains(text, key) {
				vec = v
				break
			}
		}
		out[i] = vec
	}
	return out, nil
}

func (k *keywordEmbedder) Dimensions() int { return 3 }

func testPlace(i int, cuisine string) places.Place {
	return places.Place{
		ID:   fmt.Sprintf("node_%d", i),
		Name: fmt.Sprintf("Place %d", i),
		Tags: places.NewPlaceTags(map[string]string{"name": fmt.Sprintf("Place %d", i)}),
		Features: map[string]string{
			"cuisine": cuisine,
			"amenity": "restaurant",
		},
	}
}

func testEngine(src *fakeSource, emb rank.Embedder, geo geocode.Geocoder) *Engine {
	if emb == nil {
		emb = &keywordEmbedder{}
	}
	return New(
		src,
		rank.NewRanker(emb, zerolog.Nop()),
		results.NewProcessor(zerolog.Nop()),
		geo,
		Options{},
		zerolog.Nop(),
	)
}

func coords(lat, lon float64) (*float64, *float64) {
	return &lat, &lon
}

func TestRecommendNoQueryKeepsDiscoveryOrder(t *testing.T) {
	src := &fakeSource{}
	for i := 0; i < 50; i++ {
		src.places = append(src.places, testPlace(i, "mixed"))
	}
	e := testEngine(src, nil, nil)

	lat, lon := coords(1.3, 103.8)
	resp, err := e.Recommend(context.Background(), Request{Lat: lat, Lon: lon})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}

	if len(resp.Results) != 3 {
		t.Fatalf("len(results) = %d, want default top 3", len(resp.Results))
	}
	for i, rec := range resp.Results {
		if rec.ID != fmt.Sprintf("node_%d", i) {
			t.Errorf("result[%d].ID = %q, want input order", i, rec.ID)
		}
		if rec.Score != 1.0 {
			t.Errorf("result[%d].Score = %v, want neutral 1.0", i, rec.Score)
		}
	}
	if resp.Metadata.SourceCount != 50 || resp.Metadata.ReturnedCount != 3 {
		t.Errorf("metadata counts = %+v", resp.Metadata)
	}
	if resp.Metadata.RequestID == "" {
		t.Error("metadata missing request id")
	}
}

func TestRecommendQueryRanksSemantically(t *testing.T) {
	src := &fakeSource{places: []places.Place{
		testPlace(1, "pizza"),
		testPlace(2, "seafood"),
		testPlace(3, "pizza"),
	}}
	emb := &keywordEmbedder{vectors: map[string][]float32{
		"seafood": {1, 0, 0},
		"pizza":   {0, 1, 0},
		"fish":    {0.95, 0.05, 0},
	}}
	e := testEngine(src, emb, nil)

	lat, lon := coords(1.3, 103.8)
	resp, err := e.Recommend(context.Background(), Request{
		Lat: lat, Lon: lon,
		Query: "fresh fish dinner",
		TopN:  2,
	})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(resp.Results))
	}
	if resp.Results[0].ID != "node_2" {
		t.Errorf("best match = %q, want the seafood place", resp.Results[0].ID)
	}
}

func TestRecommendDefaultsAndClamps(t *testing.T) {
	src := &fakeSource{}
	e := testEngine(src, nil, nil)
	lat, lon := coords(1.3, 103.8)

	if _, err := e.Recommend(context.Background(), Request{Lat: lat, Lon: lon}); err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if src.lastRadius != 3000 {
		t.Errorf("radius = %d, want default 3000", src.lastRadius)
	}
	if src.lastLimit != 25 {
		t.Errorf("limit = %d, want default 25", src.lastLimit)
	}
	if len(src.lastTags) != 2 || src.lastTags[0] != "amenity=restaurant" {
		t.Errorf("tag filters = %v, want engine defaults", src.lastTags)
	}

	if _, err := e.Recommend(context.Background(), Request{Lat: lat, Lon: lon, RadiusMeters: 999999}); err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if src.lastRadius != 50000 {
		t.Errorf("radius = %d, want clamped 50000", src.lastRadius)
	}
}

func TestRecommendOverfetchForFilters(t *testing.T) {
	// Ten candidates, the first six too cheap for the price filter. With a
	// filter present the ranker cut is topN*3, leaving enough slack to still
	// fill topN after filtering.
	src := &fakeSource{}
	for i := 0; i < 10; i++ {
		p := testPlace(i, "mixed")
		level := "$"
		if i >= 6 {
			level = "$$$"
		}
		p.Tags = places.NewPlaceTags(map[string]string{"name": p.Name, "price_level": level})
		src.places = append(src.places, p)
	}
	e := testEngine(src, nil, nil)

	lat, lon := coords(1.3, 103.8)
	resp, err := e.Recommend(context.Background(), Request{
		Lat: lat, Lon: lon,
		TopN:    3,
		Filters: results.FilterSpec{PriceMin: 3},
	})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("len(results) = %d, want 3 via overfetch", len(resp.Results))
	}
	for _, rec := range resp.Results {
		if lvl := rec.Tags.PriceLevel(); lvl != "$$$" {
			t.Errorf("result %s price_level = %q, want $$$", rec.ID, lvl)
		}
	}
}

func TestRecommendLocationResolution(t *testing.T) {
	src := &fakeSource{places: []places.Place{testPlace(1, "")}}
	geo := &fakeGeocoder{forward: map[string]*geocode.Location{
		"Marina Bay": {Lat: 1.2837, Lon: 103.8607, DisplayName: "Marina Bay, Singapore"},
	}}
	e := testEngine(src, nil, geo)

	resp, err := e.Recommend(context.Background(), Request{Location: "Marina Bay"})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if src.lastCenter.Lat != 1.2837 || src.lastCenter.Lon != 103.8607 {
		t.Errorf("center = %v, want geocoded coordinates", src.lastCenter)
	}
	if resp.Metadata.LocationName != "Marina Bay, Singapore" {
		t.Errorf("LocationName = %q", resp.Metadata.LocationName)
	}

	// A "lat,lon" string never consults the geocoder.
	resp, err = e.Recommend(context.Background(), Request{Location: "48.85,2.35"})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if src.lastCenter.Lat != 48.85 {
		t.Errorf("center = %v, want parsed coordinates", src.lastCenter)
	}

	// Reverse geocoding supplies a name for coordinate inputs on request.
	geo.reverse = &geocode.Location{DisplayName: "Somewhere Road"}
	lat, lon := coords(1, 2)
	resp, err = e.Recommend(context.Background(), Request{Lat: lat, Lon: lon, ResolveName: true})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if resp.Metadata.LocationName != "Somewhere Road" {
		t.Errorf("LocationName = %q, want reverse geocoded name", resp.Metadata.LocationName)
	}
}

func TestRecommendLocationErrors(t *testing.T) {
	src := &fakeSource{}
	geo := &fakeGeocoder{forward: map[string]*geocode.Location{}}
	e := testEngine(src, nil, geo)

	_, err := e.Recommend(context.Background(), Request{})
	if !errors.Is(err, ErrLocationRequired) {
		t.Errorf("Recommend() error = %v, want ErrLocationRequired", err)
	}

	_, err = e.Recommend(context.Background(), Request{Location: "nowhere at all"})
	if !errors.Is(err, ErrLocationNotFound) {
		t.Errorf("Recommend() error = %v, want ErrLocationNotFound", err)
	}

	_, failures := e.Stats()
	if failures != 2 {
		t.Errorf("failures = %d, want 2", failures)
	}
}

func TestRecommendSourceErrorPropagates(t *testing.T) {
	sentinel := errors.New("bad filter")
	e := testEngine(&fakeSource{err: sentinel}, nil, nil)

	lat, lon := coords(1, 2)
	_, err := e.Recommend(context.Background(), Request{Lat: lat, Lon: lon})
	if !errors.Is(err, sentinel) {
		t.Errorf("Recommend() error = %v, want wrapped source error", err)
	}
}
