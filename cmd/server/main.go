// Placerank - Semantic Nearby Place Recommendations
// Copyright 2026 Placerank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/placerank/placerank

// Package main is the entry point for the Placerank server.
//
// Placerank recommends nearby points of interest by combining map data from
// an Overpass backend with semantic ranking: each candidate place is turned
// into a short description, embedded alongside the user's natural-language
// query, and scored by cosine similarity. Results pass a deterministic
// price/rating/bookable filter chain before truncation.
//
// The server initializes components in the following order:
//
//  1. Configuration: layered loading via Koanf v2 (defaults, config.yaml,
//     environment variables)
//  2. Logging: zerolog, JSON or console format
//  3. Collaborator clients: Overpass place source, Nominatim geocoder,
//     embeddings client
//  4. Pipeline engine: source -> rank -> filter orchestration
//  5. HTTP server: Chi router with request ID, access log, CORS and
//     per-IP rate limiting middleware
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM: it stops
// accepting new connections and waits up to 10 seconds for in-flight
// requests to complete.
//
// # Example Usage
//
//	export OVERPASS_ENDPOINT=https://overpass-api.de/api/interpreter
//	export EMBEDDER_BASE_URL=http://localhost:8080/v1
//	export GEOCODER_USER_AGENT="placerank/1.0 (ops@example.com)"
//	./placerank
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/placerank/placerank/internal/api"
	"github.com/placerank/placerank/internal/config"
	"github.com/placerank/placerank/internal/engine"
	"github.com/placerank/placerank/internal/geocode"
	"github.com/placerank/placerank/internal/logging"
	"github.com/placerank/placerank/internal/places"
	"github.com/placerank/placerank/internal/rank"
	"github.com/placerank/placerank/internal/results"
)

// version is set at build time via -ldflags.
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Str("version", version).Msg("Starting Placerank")

	logger := logging.Logger()

	source := places.NewClient(places.ClientConfig{
		Endpoint:        cfg.Overpass.Endpoint,
		Timeout:         cfg.Overpass.Timeout,
		BreakerEnabled:  cfg.Overpass.BreakerEnabled,
		BreakerFailures: uint32(cfg.Overpass.BreakerFailures),
		BreakerCooldown: cfg.Overpass.BreakerCooldown,
	}, logger)

	geocoder := geocode.NewNominatim(geocode.NominatimConfig{
		Endpoint:      cfg.Geocoder.Endpoint,
		UserAgent:     cfg.Geocoder.UserAgent,
		MinInterval:   cfg.Geocoder.MinInterval,
		RetryAttempts: cfg.Geocoder.RetryAttempts,
		RetryDelay:    cfg.Geocoder.RetryDelay,
		Timeout:       cfg.Geocoder.Timeout,
	}, logger)

	embedder := rank.NewHTTPEmbedder(rank.HTTPEmbedderConfig{
		BaseURL: cfg.Embedder.BaseURL,
		Model:   cfg.Embedder.Model,
		APIKey:  cfg.Embedder.APIKey,
		Timeout: cfg.Embedder.Timeout,
	}, logger)

	eng := engine.New(
		source,
		rank.NewRanker(embedder, logger),
		results.NewProcessor(logger),
		geocoder,
		engine.Options{
			DefaultRadius:     cfg.Engine.DefaultRadius,
			MaxRadius:         cfg.Engine.MaxRadius,
			DefaultTagFilters: cfg.Engine.DefaultTagFilters,
			SearchLimit:       cfg.Engine.SearchLimit,
			DefaultTopN:       cfg.Engine.DefaultTopN,
			MaxTopN:           cfg.Engine.MaxTopN,
			OverfetchFactor:   cfg.Engine.OverfetchFactor,
		},
		logger,
	)

	handler := api.NewHandler(eng, geocoder, version)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handler, cfg.Server),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("HTTP server failed")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logging.Error().Err(err).Msg("Graceful shutdown failed")
	}

	logging.Info().Msg("Application stopped gracefully")
}
