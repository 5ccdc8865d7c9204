// Placerank - Semantic Nearby Place Recommendations
// Copyright 2026 Placerank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/placerank/placerank

package rank

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/placerank/placerank/internal/metrics"
)

// defaultModel is the sentence-transformer this service was tuned against.
const defaultModel = "all-mpnet-base-v2"

// defaultDimensions is the vector width of all-mpnet-base-v2.
const defaultDimensions = 768

// HTTPEmbedderConfig configures the embeddings client.
type HTTPEmbedderConfig struct {
	// BaseURL is the API root, e.g. "http://127.0.0.1:8080/v1". The client
	// POSTs to BaseURL + "/embeddings" (OpenAI-compatible, which covers
	// text-embeddings-inference, Ollama and LocalAI).
	BaseURL string

	// Model is the embedding model name.
	Model string

	// APIKey, when set, is sent as a bearer token.
	APIKey string

	// Dimensions is the expected vector width; used to reject truncated
	// responses.
	Dimensions int

	// Timeout bounds each HTTP call.
	Timeout time.Duration
}

// HTTPEmbedder is an Embedder backed by an OpenAI-compatible embeddings
// endpoint. Safe for concurrent use.
type HTTPEmbedder struct {
	baseURL    string
	model      string
	apiKey     string
	dimensions int
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewHTTPEmbedder creates an embeddings client.
func NewHTTPEmbedder(cfg HTTPEmbedderConfig, logger zerolog.Logger) *HTTPEmbedder {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = defaultDimensions
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &HTTPEmbedder{
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		dimensions: cfg.Dimensions,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With().Str("component", "embedder").Logger(),
	}
}

// Dimensions returns the configured vector width.
func (e *HTTPEmbedder) Dimensions() int { return e.dimensions }

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed encodes texts in one batch. The result preserves input order.
func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	payload, err := json.Marshal(embeddingsRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to encode embeddings request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	metrics.RecordCollaboratorCall("embedder", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to query embedder: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedder returned status %d: %s", resp.StatusCode, body)
	}

	var parsed embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("malformed embedder response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(parsed.Data), len(texts))
	}

	// The API may return entries out of order; index is authoritative.
	sort.Slice(parsed.Data, func(a, b int) bool {
		return parsed.Data[a].Index < parsed.Data[b].Index
	})

	vectors := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		if len(d.Embedding) != e.dimensions {
			return nil, fmt.Errorf("embedder returned %d-dimension vector, want %d", len(d.Embedding), e.dimensions)
		}
		vectors[i] = d.Embedding
	}
	return vectors, nil
}
