// Placerank - Semantic Nearby Place Recommendations
// Copyright 2026 Placerank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/placerank/placerank

// Package results turns ranked places into client-facing recommendations:
// enrichment with derived display fields, a deterministic filter chain, and
// truncation.
//
// Filters are fail-open: a place whose data cannot be parsed for a given
// filter passes that filter rather than being silently excluded, because
// partial source data must not hide an otherwise valid result.
package results

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/placerank/placerank/internal/rank"
)

// amenityCandidates are the boolean tags surfaced in the amenities list when
// their value is exactly "yes".
var amenityCandidates = []string{"wifi", "outdoor_seating", "wheelchair", "reservation", "delivery"}

// FilterSpec bounds the filter chain. Zero values leave the corresponding
// bound open; Bookable false skips the bookable filter entirely.
type FilterSpec struct {
	// PriceMin and PriceMax are inclusive bounds on the 1-5 "$"-count scale.
	PriceMin int
	PriceMax int

	// RatingMin and RatingMax are inclusive numeric bounds.
	RatingMin float64
	RatingMax float64

	// Bookable, when true, keeps only places whose raw tags mark
	// reservation=yes or bookable=yes.
	Bookable bool
}

// Empty reports whether no filter is in effect.
func (f FilterSpec) Empty() bool {
	return f.PriceMin == 0 && f.PriceMax == 0 && f.RatingMin == 0 && f.RatingMax == 0 && !f.Bookable
}

// Recommendation is the enriched, filtered record returned at the boundary.
// Enrichment fields are derived from raw tags, never authoritative.
type Recommendation struct {
	rank.ScoredPlace
	OpeningHours string   `json:"opening_hours,omitempty"`
	Website      string   `json:"website,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	Amenities    []string `json:"amenities,omitempty"`
}

// CleanedPlace is the minimal client-facing projection.
type CleanedPlace struct {
	Name            string            `json:"name"`
	Cuisine         string            `json:"cuisine"`
	SimilarityScore float64           `json:"similarity_score"`
	Address         map[string]string `json:"address"`
}

// Clean projects a recommendation down to the lean shape. Missing cuisine
// becomes "Not specified" and a missing address becomes an empty mapping.
func (r Recommendation) Clean() CleanedPlace {
	cuisine := r.Features["cuisine"]
	if cuisine == "" {
		cuisine = "Not specified"
	}
	address := r.Address
	if address == nil {
		address = map[string]string{}
	}
	return CleanedPlace{
		Name:            r.Name,
		Cuisine:         cuisine,
		SimilarityScore: r.Score,
		Address:         address,
	}
}

// filterOutcome is the three-valued result of one filter on one place.
type filterOutcome int

const (
	outcomePass filterOutcome = iota
	outcomeFail
	outcomeInapplicable // missing or unparseable data; counts as pass
)

// Processor applies enrichment, filtering and truncation.
type Processor struct {
	logger zerolog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(logger zerolog.Logger) *Processor {
	return &Processor{logger: logger.With().Str("component", "results").Logger()}
}

// Process enriches ranked places, drops those failing the filter chain and
// truncates to the first topN. Order is preserved throughout; filtering never
// re-sorts.
func (p *Processor) Process(ranked []rank.ScoredPlace, filters FilterSpec, topN int) []Recommendation {
	out := make([]Recommendation, 0, len(ranked))
	dropped := 0

	for _, sp := range ranked {
		rec := enrich(sp)
		if passes(rec, filters) {
			out = append(out, rec)
		} else {
			dropped++
		}
	}

	if topN >= 0 && len(out) > topN {
		out = out[:topN]
	}

	if dropped > 0 {
		p.logger.Debug().
			Int("ranked", len(ranked)).
			Int("dropped", dropped).
			Int("returned", len(out)).
			Msg("filtered recommendations")
	}
	return out
}

// enrich derives the display fields from raw tags.
func enrich(sp rank.ScoredPlace) Recommendation {
	rec := Recommendation{
		ScoredPlace:  sp,
		OpeningHours: sp.Tags.OpeningHours(),
		Website:      sp.Tags.Website(),
		Phone:        sp.Tags.Phone(),
	}
	for _, key := range amenityCandidates {
		if sp.Tags.IsYes(key) {
			rec.Amenities = append(rec.Amenities, key)
		}
	}
	return rec
}

// passes runs the filter chain. Inapplicable outcomes count as pass.
func passes(rec Recommendation, filters FilterSpec) bool {
	if filters.Empty() {
		return true
	}
	if priceFilter(rec, filters) == outcomeFail {
		return false
	}
	if ratingFilter(rec, filters) == outcomeFail {
		return false
	}
	if bookableFilter(rec, filters) == outcomeFail {
		return false
	}
	return true
}

// priceFilter checks the "$"-count of price_level against the bounds. A
// price_level without any "$" characters is unparseable for this scale.
func priceFilter(rec Recommendation, filters FilterSpec) filterOutcome {
	if filters.PriceMin == 0 && filters.PriceMax == 0 {
		return outcomeInapplicable
	}

	level := rec.Tags.PriceLevel()
	if !strings.Contains(level, "$") {
		return outcomeInapplicable
	}
	tier := strings.Count(level, "$")

	if filters.PriceMin > 0 && tier < filters.PriceMin {
		return outcomeFail
	}
	if filters.PriceMax > 0 && tier > filters.PriceMax {
		return outcomeFail
	}
	return outcomePass
}

// ratingFilter checks the numeric rating tag against the bounds.
func ratingFilter(rec Recommendation, filters FilterSpec) filterOutcome {
	if filters.RatingMin == 0 && filters.RatingMax == 0 {
		return outcomeInapplicable
	}

	rating, err := strconv.ParseFloat(strings.TrimSpace(rec.Tags.Rating()), 64)
	if err != nil {
		return outcomeInapplicable
	}

	if filters.RatingMin > 0 && rating < filters.RatingMin {
		return outcomeFail
	}
	if filters.RatingMax > 0 && rating > filters.RatingMax {
		return outcomeFail
	}
	return outcomePass
}

// bookableFilter, when requested, passes only places whose raw tags mark them
// bookable. This is the one strict filter: absence of the tag is a fail, not
// inapplicable, because the caller asked for bookable places specifically.
func bookableFilter(rec Recommendation, filters FilterSpec) filterOutcome {
	if !filters.Bookable {
		return outcomeInapplicable
	}
	if rec.Tags.IsYes("reservation") || rec.Tags.IsYes("bookable") {
		return outcomePass
	}
	return outcomeFail
}
