// Placerank - Semantic Nearby Place Recommendations
// Copyright 2026 Placerank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/placerank/placerank

package rank

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/placerank/placerank/internal/places"
)

// fakeEmbedder maps known substrings to fixed 3-dimension vectors so tests
// control similarity outcomes exactly.
type fakeEmbedder struct {
	vectors map[string][]float32
	calls   int
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := []float32{0, 0, 1}
		for key, v := range f.vectors {
			if strings.Contains(text, key) {
				vec = v
				break
			}
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }

func place(id, name string, features map[string]string) places.Place {
	return places.Place{
		ID:       id,
		Name:     name,
		Tags:     places.NewPlaceTags(map[string]string{"name": name}),
		Features: features,
	}
}

func TestRankEmptyQueryBypassesEmbedder(t *testing.T) {
	emb := &fakeEmbedder{}
	r := NewRanker(emb, zerolog.Nop())

	candidates := []places.Place{
		place("node_1", "First", nil),
		place("node_2", "Second", nil),
		place("node_3", "Third", nil),
	}

	got, err := r.Rank(context.Background(), candidates, "   ", 2)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if emb.calls != 0 {
		t.Errorf("embedder calls = %d, want 0 for empty query", emb.calls)
	}
	if len(got) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(got))
	}
	for i, want := range []string{"node_1", "node_2"} {
		if got[i].ID != want {
			t.Errorf("result[%d].ID = %q, want %q (input order)", i, got[i].ID, want)
		}
		if got[i].Score != 1.0 {
			t.Errorf("result[%d].Score = %v, want neutral 1.0", i, got[i].Score)
		}
	}
}

func TestRankByQuerySimilarity(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"seafood": {1, 0, 0},
		"pizza":   {0, 1, 0},
		"fresh":   {0.9, 0.1, 0}, // the query itself
	}}
	r := NewRanker(emb, zerolog.Nop())

	candidates := []places.Place{
		place("node_1", "Pizza Corner", map[string]string{"cuisine": "pizza", "amenity": "restaurant"}),
		place("node_2", "Harbour Catch", map[string]string{"cuisine": "seafood", "amenity": "restaurant"}),
		place("node_3", "Slice Works", map[string]string{"cuisine": "pizza", "amenity": "restaurant"}),
	}

	got, err := r.Rank(context.Background(), candidates, "fresh fish by the water", 2)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(got))
	}
	if got[0].ID != "node_2" {
		t.Errorf("best match = %q, want the seafood place", got[0].ID)
	}
	if got[0].Score <= got[1].Score {
		t.Errorf("scores not descending: %v then %v", got[0].Score, got[1].Score)
	}
	// The two pizza places tie; stable sort keeps input order.
	if got[1].ID != "node_1" {
		t.Errorf("tie broken out of input order: %q", got[1].ID)
	}
}

func TestRankNeverPads(t *testing.T) {
	r := NewRanker(&fakeEmbedder{}, zerolog.Nop())
	candidates := []places.Place{place("node_1", "Only One", nil)}

	got, err := r.Rank(context.Background(), candidates, "", 10)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("len(results) = %d, want 1 (never pads)", len(got))
	}

	got, err = r.Rank(context.Background(), candidates, "", 0)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len(results) = %d for topN 0, want 0", len(got))
	}
}

func TestRankEmbedderFailure(t *testing.T) {
	sentinel := errors.New("model not loaded")
	r := NewRanker(&fakeEmbedder{err: sentinel}, zerolog.Nop())

	_, err := r.Rank(context.Background(), []places.Place{place("node_1", "X", nil)}, "query", 1)
	if !errors.Is(err, sentinel) {
		t.Fatalf("Rank() error = %v, want wrapped embedder error", err)
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name  string
		place places.Place
		want  string
	}{
		{
			name: "full record",
			place: places.Place{
				Name:     "Harbour Catch",
				Features: map[string]string{"cuisine": "seafood", "amenity": "restaurant"},
				Address: map[string]string{
					"addr:housenumber": "12",
					"addr:street":      "Marina Walk",
					"addr:city":        "Singapore",
				},
			},
			want: "harbour catch seafood restaurant 12 marina walk singapore",
		},
		{
			name:  "amenity defaults to place",
			place: places.Place{Name: "Mystery Spot"},
			want:  "mystery spot place",
		},
		{
			name: "missing address components skipped",
			place: places.Place{
				Name:     "Corner Cafe",
				Features: map[string]string{"amenity": "cafe"},
				Address:  map[string]string{"addr:city": "Lyon"},
			},
			want: "corner cafe cafe lyon",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describe(tt.place); got != tt.want {
				t.Errorf("describe() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cosineSimilarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("cosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}
