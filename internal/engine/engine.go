// Placerank - Semantic Nearby Place Recommendations
// Copyright 2026 Placerank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/placerank/placerank

// Package engine orchestrates the recommendation pipeline: resolve the
// location, query the place source, rank by semantic similarity, then filter
// and truncate. One request is one synchronous pass; collaborators are shared
// and read-only after construction.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/placerank/placerank/internal/geocode"
	"github.com/placerank/placerank/internal/logging"
	"github.com/placerank/placerank/internal/metrics"
	"github.com/placerank/placerank/internal/places"
	"github.com/placerank/placerank/internal/rank"
	"github.com/placerank/placerank/internal/results"
)

var (
	// ErrLocationRequired indicates a request with neither coordinates nor a
	// location string.
	ErrLocationRequired = errors.New("location required: pass lat/lon or a location string")

	// ErrLocationNotFound indicates a location string the geocoder could not
	// resolve.
	ErrLocationNotFound = errors.New("location could not be resolved")
)

// PlaceSource finds candidate places around a center.
type PlaceSource interface {
	Search(ctx context.Context, center places.Coordinates, radiusMeters int, tagFilters []string, limit int) ([]places.Place, error)
}

// Ranker orders candidates by similarity to a query.
type Ranker interface {
	Rank(ctx context.Context, candidates []places.Place, query string, topN int) ([]rank.ScoredPlace, error)
}

// Processor enriches, filters and truncates ranked places.
type Processor interface {
	Process(ranked []rank.ScoredPlace, filters results.FilterSpec, topN int) []results.Recommendation
}

// Options tunes request defaulting and clamping.
type Options struct {
	DefaultRadius     int
	MaxRadius         int
	DefaultTagFilters []string
	SearchLimit       int
	DefaultTopN       int
	MaxTopN           int

	// OverfetchFactor widens the ranker's cut to topN*factor so the filter
	// chain has slack before final truncation.
	OverfetchFactor int
}

// DefaultOptions are the tuning values used when a field is zero.
func DefaultOptions() Options {
	return Options{
		DefaultRadius:     3000,
		MaxRadius:         50000,
		DefaultTagFilters: []string{"amenity=restaurant", "amenity=cafe"},
		SearchLimit:       25,
		DefaultTopN:       3,
		MaxTopN:           50,
		OverfetchFactor:   3,
	}
}

// Request is one recommendation query. Lat/Lon take precedence over
// Location; Location may be free-form text or a "lat,lon" pair.
type Request struct {
	Lat          *float64
	Lon          *float64
	Location     string
	RadiusMeters int
	TagFilters   []string
	Query        string
	TopN         int
	Filters      results.FilterSpec

	// ResolveName requests a reverse-geocoded display name for coordinate
	// inputs.
	ResolveName bool
}

// Metadata describes how a response was produced.
type Metadata struct {
	RequestID     string  `json:"request_id"`
	ElapsedMS     int64   `json:"elapsed_ms"`
	RadiusMeters  int     `json:"radius_meters"`
	Query         string  `json:"query,omitempty"`
	SourceCount   int     `json:"source_count"`
	RankedCount   int     `json:"ranked_count"`
	ReturnedCount int     `json:"returned_count"`
	CenterLat     float64 `json:"center_lat"`
	CenterLon     float64 `json:"center_lon"`
	LocationName  string  `json:"location_name,omitempty"`
}

// Response is the pipeline output: enriched, filtered recommendations plus
// production metadata.
type Response struct {
	Results  []results.Recommendation `json:"results"`
	Metadata Metadata                 `json:"metadata"`
}

// Engine runs the pipeline. Safe for concurrent use.
type Engine struct {
	source    PlaceSource
	ranker    Ranker
	processor Processor
	geocoder  geocode.Geocoder
	opts      Options
	logger    zerolog.Logger

	requests atomic.Uint64
	failures atomic.Uint64
}

// New creates an Engine. Zero Options fields fall back to DefaultOptions.
func New(source PlaceSource, ranker Ranker, processor Processor, geocoder geocode.Geocoder, opts Options, logger zerolog.Logger) *Engine {
	def := DefaultOptions()
	if opts.DefaultRadius <= 0 {
		opts.DefaultRadius = def.DefaultRadius
	}
	if opts.MaxRadius <= 0 {
		opts.MaxRadius = def.MaxRadius
	}
	if len(opts.DefaultTagFilters) == 0 {
		opts.DefaultTagFilters = def.DefaultTagFilters
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = def.SearchLimit
	}
	if opts.DefaultTopN <= 0 {
		opts.DefaultTopN = def.DefaultTopN
	}
	if opts.MaxTopN <= 0 {
		opts.MaxTopN = def.MaxTopN
	}
	if opts.OverfetchFactor <= 0 {
		opts.OverfetchFactor = def.OverfetchFactor
	}

	return &Engine{
		source:    source,
		ranker:    ranker,
		processor: processor,
		geocoder:  geocoder,
		opts:      opts,
		logger:    logger.With().Str("component", "engine").Logger(),
	}
}

// Stats reports lifetime request and failure counts.
func (e *Engine) Stats() (requests, failures uint64) {
	return e.requests.Load(), e.failures.Load()
}

// Recommend runs one request through the pipeline.
func (e *Engine) Recommend(ctx context.Context, req Request) (*Response, error) {
	e.requests.Add(1)
	start := time.Now()

	requestID := logging.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = logging.GenerateRequestID()
	}
	log := e.logger.With().Str("request_id", requestID).Logger()

	resp, err := e.recommend(ctx, req, requestID, log)
	metrics.RecordPipelineRequest(err)
	if err != nil {
		e.failures.Add(1)
		return nil, err
	}

	resp.Metadata.ElapsedMS = time.Since(start).Milliseconds()
	log.Info().
		Int("source_count", resp.Metadata.SourceCount).
		Int("returned", resp.Metadata.ReturnedCount).
		Int64("elapsed_ms", resp.Metadata.ElapsedMS).
		Msg("recommendation complete")
	return resp, nil
}

func (e *Engine) recommend(ctx context.Context, req Request, requestID string, log zerolog.Logger) (*Response, error) {
	center, locationName, err := e.resolveCenter(ctx, req)
	if err != nil {
		return nil, err
	}

	radius := req.RadiusMeters
	if radius <= 0 {
		radius = e.opts.DefaultRadius
	}
	if radius > e.opts.MaxRadius {
		radius = e.opts.MaxRadius
	}

	topN := req.TopN
	if topN <= 0 {
		topN = e.opts.DefaultTopN
	}
	if topN > e.opts.MaxTopN {
		topN = e.opts.MaxTopN
	}

	tagFilters := req.TagFilters
	if len(tagFilters) == 0 {
		tagFilters = e.opts.DefaultTagFilters
	}

	sourceStart := time.Now()
	candidates, err := e.source.Search(ctx, center, radius, tagFilters, e.opts.SearchLimit)
	metrics.RecordPipelineStage("source", time.Since(sourceStart))
	if err != nil {
		return nil, fmt.Errorf("place search: %w", err)
	}
	metrics.RecordPipelineCandidates(len(candidates))

	// Overfetch so post-rank filters have slack before final truncation.
	rankN := topN * e.opts.OverfetchFactor
	if req.Filters.Empty() {
		rankN = topN
	}

	rankStart := time.Now()
	ranked, err := e.ranker.Rank(ctx, candidates, strings.TrimSpace(req.Query), rankN)
	metrics.RecordPipelineStage("rank", time.Since(rankStart))
	if err != nil {
		return nil, fmt.Errorf("ranking: %w", err)
	}

	filterStart := time.Now()
	recs := e.processor.Process(ranked, req.Filters, topN)
	metrics.RecordPipelineStage("filter", time.Since(filterStart))

	log.Debug().
		Int("candidates", len(candidates)).
		Int("ranked", len(ranked)).
		Int("returned", len(recs)).
		Msg("pipeline stages complete")

	return &Response{
		Results: recs,
		Metadata: Metadata{
			RequestID:     requestID,
			RadiusMeters:  radius,
			Query:         strings.TrimSpace(req.Query),
			SourceCount:   len(candidates),
			RankedCount:   len(ranked),
			ReturnedCount: len(recs),
			CenterLat:     center.Lat,
			CenterLon:     center.Lon,
			LocationName:  locationName,
		},
	}, nil
}

// resolveCenter turns the request's location input into coordinates.
// Explicit lat/lon win; a location string is parsed as "lat,lon" or geocoded.
func (e *Engine) resolveCenter(ctx context.Context, req Request) (places.Coordinates, string, error) {
	if req.Lat != nil && req.Lon != nil {
		center := places.Coordinates{Lat: *req.Lat, Lon: *req.Lon}
		name := ""
		if req.ResolveName && e.geocoder != nil {
			// Best effort; a reverse-geocode miss or error never fails the
			// request.
			if loc, err := e.geocoder.ReverseGeocode(ctx, center.Lat, center.Lon); err == nil && loc != nil {
				name = loc.DisplayName
			}
		}
		return center, name, nil
	}

	input := strings.TrimSpace(req.Location)
	if input == "" {
		return places.Coordinates{}, "", ErrLocationRequired
	}

	loc, err := geocode.Resolve(ctx, e.geocoder, input)
	if err != nil {
		return places.Coordinates{}, "", fmt.Errorf("resolving %q: %w", input, err)
	}
	if loc == nil {
		return places.Coordinates{}, "", fmt.Errorf("%w: %q", ErrLocationNotFound, input)
	}
	return places.Coordinates{Lat: loc.Lat, Lon: loc.Lon}, loc.DisplayName, nil
}
