// Placerank - Semantic Nearby Place Recommendations
// Copyright 2026 Placerank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/placerank/placerank

package places

import (
	"github.com/goccy/go-json"
)

// Coordinates is a WGS84 latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// PlaceTags wraps the raw key/value attributes of a map element with typed
// accessors for every key the pipeline consumes. The raw mapping stays
// available as an escape hatch, but pipeline logic should go through the
// named accessors rather than probing arbitrary keys.
//
// The zero value is usable and behaves as an empty tag set.
type PlaceTags struct {
	raw map[string]string
}

// NewPlaceTags wraps a raw tag mapping. The map is retained, not copied;
// callers must not mutate it afterwards.
func NewPlaceTags(raw map[string]string) PlaceTags {
	return PlaceTags{raw: raw}
}

// Name returns the name tag, or empty string.
func (t PlaceTags) Name() string { return t.raw["name"] }

// Cuisine returns the cuisine tag, or empty string.
func (t PlaceTags) Cuisine() string { return t.raw["cuisine"] }

// Amenity returns the amenity tag, or empty string.
func (t PlaceTags) Amenity() string { return t.raw["amenity"] }

// Website returns the website tag, or empty string.
func (t PlaceTags) Website() string { return t.raw["website"] }

// OpeningHours returns the opening_hours tag, or empty string.
func (t PlaceTags) OpeningHours() string { return t.raw["opening_hours"] }

// Phone returns the phone tag, falling back to contact:phone.
func (t PlaceTags) Phone() string {
	if v := t.raw["phone"]; v != "" {
		return v
	}
	return t.raw["contact:phone"]
}

// PriceLevel returns the price_level tag, or empty string.
func (t PlaceTags) PriceLevel() string { return t.raw["price_level"] }

// Rating returns the rating tag, or empty string.
func (t PlaceTags) Rating() string { return t.raw["rating"] }

// IsYes reports whether the given tag exists with the exact value "yes".
func (t PlaceTags) IsYes(key string) bool { return t.raw[key] == "yes" }

// Get returns the value for an arbitrary tag key. This is the escape hatch
// for keys without a named accessor.
func (t PlaceTags) Get(key string) (string, bool) {
	v, ok := t.raw[key]
	return v, ok
}

// Len returns the number of tags.
func (t PlaceTags) Len() int { return len(t.raw) }

// Raw returns the underlying tag mapping. Callers must treat it as read-only.
func (t PlaceTags) Raw() map[string]string { return t.raw }

// MarshalJSON emits the raw tag mapping, preserving full wire fidelity.
func (t PlaceTags) MarshalJSON() ([]byte, error) {
	if t.raw == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(t.raw)
}

// UnmarshalJSON restores the raw tag mapping.
func (t *PlaceTags) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &t.raw)
}

// Place is a normalized point of interest derived from one map-data element.
//
// A Place is immutable after normalization: every field is set once by the
// source client and never modified. Enrichment (opening hours, amenity list)
// happens on derived records in the results package, never here. Places live
// for a single request and are never persisted.
type Place struct {
	// ID is {element_kind}_{element_id}, unique within a response. Stable
	// across requests only if the underlying map element is unchanged.
	ID string `json:"id"`

	// Name is always non-empty; unnamed elements are dropped at
	// normalization time.
	Name string `json:"name"`

	// Coordinates come from the element's center when present (ways and
	// relations report geometry via a centroid), else from direct lat/lon.
	Coordinates Coordinates `json:"coordinates"`

	// Tags carries every raw attribute of the source element, unfiltered.
	Tags PlaceTags `json:"tags"`

	// Features is the curated subset of tags used for display and
	// description generation.
	Features map[string]string `json:"features"`

	// Address holds address-related tags, nil when the element has none.
	Address map[string]string `json:"address,omitempty"`
}

// featureTagKeys is the fixed allow-list projected into Place.Features.
var featureTagKeys = []string{
	"cuisine",
	"amenity",
	"name",
	"website",
	"indoor_seating",
	"outdoor_seating",
	"wheelchair",
	"takeaway",
}

// addressTagKeys is the fixed allow-list projected into Place.Address.
var addressTagKeys = []string{
	"addr:street",
	"addr:housename",
	"addr:housenumber",
	"addr:postcode",
	"addr:city",
	"name",
}
