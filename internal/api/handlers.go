// Placerank - Semantic Nearby Place Recommendations
// Copyright 2026 Placerank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/placerank/placerank

package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/placerank/placerank/internal/engine"
	"github.com/placerank/placerank/internal/geocode"
	"github.com/placerank/placerank/internal/places"
	"github.com/placerank/placerank/internal/results"
	"github.com/placerank/placerank/internal/validation"
)

// Handler holds the dependencies for the API endpoints.
type Handler struct {
	engine    *engine.Engine
	geocoder  geocode.Geocoder
	startTime time.Time
	version   string
}

// NewHandler creates an API handler.
func NewHandler(eng *engine.Engine, geocoder geocode.Geocoder, version string) *Handler {
	return &Handler{
		engine:    eng,
		geocoder:  geocoder,
		startTime: time.Now(),
		version:   version,
	}
}

// recommendParams carries the parsed query parameters through validation.
type recommendParams struct {
	Lat       *float64 `validate:"omitempty,latitude"`
	Lon       *float64 `validate:"omitempty,longitude"`
	Radius    int      `validate:"omitempty,min=1"`
	TopN      int      `validate:"omitempty,min=1,max=50"`
	PriceMin  int      `validate:"omitempty,min=1,max=5"`
	PriceMax  int      `validate:"omitempty,min=1,max=5"`
	RatingMin float64  `validate:"omitempty,min=0,max=6"`
	RatingMax float64  `validate:"omitempty,min=0,max=6"`
}

// Recommend handles GET /api/v1/recommend.
//
// Query parameters: lat, lon, location, radius, type (repeatable), query,
// top_n, price_min, price_max, rating_min, rating_max, bookable,
// resolve_name.
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	req, apiErr := parseRecommendRequest(r.URL.Query())
	if apiErr != nil {
		respondJSON(w, r, http.StatusBadRequest, &APIResponse{
			Status: "error",
			Error:  apiErr,
		})
		return
	}

	resp, err := h.engine.Recommend(r.Context(), *req)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, &APIResponse{
		Status:   "success",
		Data:     resp,
		Metadata: Metadata{RequestID: resp.Metadata.RequestID},
	})
}

func (h *Handler) respondEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, places.ErrInvalidFilter):
		respondError(w, r, http.StatusBadRequest, ErrCodeInvalidFilter,
			"Tag filters must be of the form key=value", err)
	case errors.Is(err, engine.ErrLocationRequired):
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest,
			"Pass lat and lon, or a location parameter", err)
	case errors.Is(err, engine.ErrLocationNotFound):
		respondError(w, r, http.StatusNotFound, ErrCodeLocationNotFound,
			"The given location could not be resolved", err)
	default:
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError,
			"Failed to generate recommendations", err)
	}
}

// parseRecommendRequest maps query parameters onto an engine request,
// rejecting malformed numbers and out-of-range values before the pipeline
// runs.
func parseRecommendRequest(q url.Values) (*engine.Request, *APIError) {
	params := recommendParams{}

	for name, dst := range map[string]**float64{"lat": &params.Lat, "lon": &params.Lon} {
		if raw := q.Get(name); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, &APIError{
					Code:    ErrCodeBadRequest,
					Message: name + " must be a number",
				}
			}
			*dst = &v
		}
	}
	if (params.Lat == nil) != (params.Lon == nil) {
		return nil, &APIError{
			Code:    ErrCodeBadRequest,
			Message: "lat and lon must be passed together",
		}
	}

	var parseErr *APIError
	intParam := func(name string) int {
		raw := q.Get(name)
		if raw == "" || parseErr != nil {
			return 0
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			parseErr = &APIError{Code: ErrCodeBadRequest, Message: name + " must be an integer"}
			return 0
		}
		return v
	}
	floatParam := func(name string) float64 {
		raw := q.Get(name)
		if raw == "" || parseErr != nil {
			return 0
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			parseErr = &APIError{Code: ErrCodeBadRequest, Message: name + " must be a number"}
			return 0
		}
		return v
	}

	params.Radius = intParam("radius")
	params.TopN = intParam("top_n")
	params.PriceMin = intParam("price_min")
	params.PriceMax = intParam("price_max")
	params.RatingMin = floatParam("rating_min")
	params.RatingMax = floatParam("rating_max")
	if parseErr != nil {
		return nil, parseErr
	}

	if verr := validation.ValidateStruct(&params); verr != nil {
		apiErr := verr.ToAPIError()
		return nil, &APIError{
			Code:    ErrCodeValidationError,
			Message: apiErr.Message,
			Details: apiErr.Details,
		}
	}

	return &engine.Request{
		Lat:          params.Lat,
		Lon:          params.Lon,
		Location:     q.Get("location"),
		RadiusMeters: params.Radius,
		TagFilters:   q["type"],
		Query:        q.Get("query"),
		TopN:         params.TopN,
		Filters: results.FilterSpec{
			PriceMin:  params.PriceMin,
			PriceMax:  params.PriceMax,
			RatingMin: params.RatingMin,
			RatingMax: params.RatingMax,
			Bookable:  q.Get("bookable") == "true",
		},
		ResolveName: q.Get("resolve_name") == "true",
	}, nil
}

// Geocode handles GET /api/v1/geocode?q=... and exposes the forward geocoder
// directly. A miss is a 404.
func (h *Handler) Geocode(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "q parameter is required", nil)
		return
	}

	loc, err := geocode.Resolve(r.Context(), h.geocoder, query)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Geocoding failed", err)
		return
	}
	if loc == nil {
		respondError(w, r, http.StatusNotFound, ErrCodeLocationNotFound, "No match for the given location", nil)
		return
	}

	respondJSON(w, r, http.StatusOK, &APIResponse{Status: "success", Data: loc})
}

// healthResponse is the /healthz payload.
type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Requests      uint64 `json:"requests"`
	Failures      uint64 `json:"failures"`
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	requests, failures := h.engine.Stats()
	respondJSON(w, r, http.StatusOK, &APIResponse{
		Status: "success",
		Data: healthResponse{
			Status:        "ok",
			Version:       h.version,
			UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
			Requests:      requests,
			Failures:      failures,
		},
	})
}
