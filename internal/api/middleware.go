// Placerank - Semantic Nearby Place Recommendations
// Copyright 2026 Placerank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/placerank/placerank

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/placerank/placerank/internal/logging"
	"github.com/placerank/placerank/internal/metrics"
)

// RequestID assigns each request a unique ID, honoring one supplied by an
// upstream proxy, and exposes it on the response and in the context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = logging.GenerateRequestID()
		}

		w.Header().Set("X-Request-ID", requestID)
		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

// AccessLog emits one structured log line per request and feeds the request
// metrics. The endpoint label uses the chi route pattern, not the raw path,
// to keep metric cardinality bounded.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}
		metrics.RecordAPIRequest(r.Method, endpoint, rec.status, elapsed)

		logging.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", elapsed).
			Str("request_id", logging.RequestIDFromContext(r.Context())).
			Str("remote", r.RemoteAddr).
			Msg("request")
	})
}
