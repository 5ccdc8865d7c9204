// Placerank - Semantic Nearby Place Recommendations
// Copyright 2026 Placerank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/placerank/placerank

// Package rank orders candidate places by semantic similarity between a
// natural-language query and a short description derived from each place.
package rank

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/placerank/placerank/internal/places"
)

// neutralScore is the similarity assigned when no query is given: without a
// preference signal the discovery order is preserved and the score is a
// sentinel, not a computed value.
const neutralScore = 1.0

// ScoredPlace is a place with its similarity to the query attached.
type ScoredPlace struct {
	places.Place
	Score float64 `json:"similarity_score"`
}

// Embedder encodes texts into fixed-dimension vectors. Implementations are
// process-wide shared and must be safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Ranker selects the places most similar to a query.
type Ranker struct {
	embedder Embedder
	logger   zerolog.Logger
}

// NewRanker creates a Ranker on top of a shared embedder.
func NewRanker(embedder Embedder, logger zerolog.Logger) *Ranker {
	return &Ranker{
		embedder: embedder,
		logger:   logger.With().Str("component", "rank").Logger(),
	}
}

// Rank returns the topN places most similar to query, descending, ties broken
// by input order. An empty query bypasses the embedder entirely and returns
// the first topN places in input order with a neutral score. Never returns
// more than len(candidates) results.
func (r *Ranker) Rank(ctx context.Context, candidates []places.Place, query string, topN int) ([]ScoredPlace, error) {
	if topN <= 0 || len(candidates) == 0 {
		return []ScoredPlace{}, nil
	}
	if topN > len(candidates) {
		topN = len(candidates)
	}

	if strings.TrimSpace(query) == "" {
		scored := make([]ScoredPlace, topN)
		for i := 0; i < topN; i++ {
			scored[i] = ScoredPlace{Place: candidates[i], Score: neutralScore}
		}
		return scored, nil
	}

	// One batch: the query first, then every place description, so all
	// vectors come from the same model invocation.
	texts := make([]string, 0, len(candidates)+1)
	texts = append(texts, query)
	for _, p := range candidates {
		texts = append(texts, describe(p))
	}

	vectors, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}

	queryVec := vectors[0]
	scored := make([]ScoredPlace, len(candidates))
	for i, p := range candidates {
		scored[i] = ScoredPlace{
			Place: p,
			Score: cosineSimilarity(queryVec, vectors[i+1]),
		}
	}

	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].Score > scored[b].Score
	})

	r.logger.Debug().
		Str("query", query).
		Int("candidates", len(candidates)).
		Int("top_n", topN).
		Float64("best", scored[0].Score).
		Msg("ranked places")

	return scored[:topN], nil
}

// describe derives the embedding text for a place: lower-cased name, cuisine,
// amenity (default "place"), and the non-empty address components.
func describe(p places.Place) string {
	cuisine := p.Features["cuisine"]
	amenity := p.Features["amenity"]
	if amenity == "" {
		amenity = "place"
	}

	parts := []string{p.Name, cuisine, amenity}
	for _, key := range []string{"addr:housenumber", "addr:street", "addr:city"} {
		if v := p.Address[key]; v != "" {
			parts = append(parts, v)
		}
	}

	nonEmpty := parts[:0]
	for _, part := range parts {
		if part != "" {
			nonEmpty = append(nonEmpty, part)
		}
	}
	return strings.ToLower(strings.Join(nonEmpty, " "))
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched or zero-magnitude vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
