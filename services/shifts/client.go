// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package shifts queries the scheduling backend on behalf of the model:
// filter validation, identity scoping, tool dispatch and the tool catalog.
package shifts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/ShiftAssist/services/llm"
	"github.com/AleutianAI/ShiftAssist/services/session"
)

// Backend endpoints.
const (
	EndpointAvailable = "/api/available-shifts"
	EndpointRequested = "/api/requested-shifts"
	EndpointAssigned  = "/api/assigned-shifts"
)

// DefaultBackendTimeout bounds a single backend GET.
const DefaultBackendTimeout = 15 * time.Second

// maxBackendBody caps how much of a backend response is read.
const maxBackendBody = 8 << 20

// backendEnvelope is the backend's response wrapper: {status, message, data}.
type backendEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// BackendClient issues read-only GETs against the scheduling backend.
//
// Description:
//
//	The base URL and bearer token come from the caller's SessionConfig on
//	every call, so one client serves all identities. Failures of any kind
//	are converted to error records; Get never returns a Go error.
//
// Thread Safety: BackendClient is safe for concurrent use.
type BackendClient struct {
	httpClient *http.Client
	cache      QueryCache
	logger     *slog.Logger
}

// NewBackendClient creates a BackendClient.
//
// Inputs:
//   - timeout: Per-request timeout. Zero uses DefaultBackendTimeout.
//   - cache: Optional result cache. May be nil.
//   - logger: May be nil.
func NewBackendClient(timeout time.Duration, cache QueryCache, logger *slog.Logger) *BackendClient {
	if timeout <= 0 {
		timeout = DefaultBackendTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BackendClient{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		cache:  cache,
		logger: logger,
	}
}

// Get fetches one endpoint and returns its data records or an error record.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - cfg: Supplies the base URL and bearer token.
//   - endpoint: One of the Endpoint constants.
//   - params: Already validated and scoped query parameters.
//
// Outputs:
//   - QueryResult: Records on success, error record otherwise.
//
// Thread Safety: This method is safe for concurrent use.
func (c *BackendClient) Get(ctx context.Context, cfg session.SessionConfig, endpoint string, params url.Values) QueryResult {
	ctx, span := otel.Tracer(shiftsTracerName).Start(ctx, "shifts.BackendClient.Get",
		trace.WithAttributes(
			attribute.String("endpoint", endpoint),
			attribute.String("query", params.Encode()),
			attribute.Bool("authenticated", cfg.AuthToken != ""),
		),
	)
	defer span.End()

	var key string
	if c.cache != nil {
		key = cacheKey(cfg.BaseURL, endpoint, params, cfg.AuthToken)
		cached, ok, err := c.cache.Get(ctx, key)
		switch {
		case err != nil:
			cacheLookupsTotal.WithLabelValues("error").Inc()
			c.logger.Warn("query cache lookup failed", slog.String("error", err.Error()))
		case ok:
			cacheLookupsTotal.WithLabelValues("hit").Inc()
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return cached
		default:
			cacheLookupsTotal.WithLabelValues("miss").Inc()
		}
	}

	start := time.Now()
	result := c.fetch(ctx, cfg, endpoint, params)
	recordBackendMetrics(endpoint, time.Since(start), result)

	if result.IsError() {
		span.SetStatus(codes.Error, result.Err.Message)
		c.logger.Warn("backend query failed",
			slog.String("endpoint", endpoint),
			slog.String("error", result.Err.Message),
		)
		return result
	}

	span.SetAttributes(attribute.Int("records", len(result.Records)))
	if c.cache != nil {
		if err := c.cache.Put(ctx, key, result); err != nil {
			c.logger.Warn("query cache save failed", slog.String("error", err.Error()))
		}
	}
	return result
}

func (c *BackendClient) fetch(ctx context.Context, cfg session.SessionConfig, endpoint string, params url.Values) QueryResult {
	target := cfg.BaseURL + endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return errorResult(fmt.Sprintf("building request: %s", err))
	}
	req.Header.Set("Accept", "application/json")
	if cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.AuthToken)
	}

	c.logger.Debug("backend GET",
		slog.String("endpoint", endpoint),
		slog.String("query", params.Encode()),
		slog.String("token", llm.RedactToken(cfg.AuthToken)),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errorResult(llm.SafeLogString(err.Error()))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBackendBody))
	if err != nil {
		return errorResult(fmt.Sprintf("reading response: %s", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorResult(fmt.Sprintf("%d %s for url: %s", resp.StatusCode, http.StatusText(resp.StatusCode), cfg.BaseURL+endpoint))
	}

	return decodeEnvelope(body)
}

// decodeEnvelope extracts the data list from a backend response body.
func decodeEnvelope(body []byte) QueryResult {
	var env backendEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return errorResult("backend response is not a JSON object")
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || data[0] != '[' {
		if env.Message != "" {
			return errorResult(llm.SafeLogString(env.Message))
		}
		return errorResult("backend response has no data list")
	}
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return errorResult("backend data list is malformed")
	}
	return recordsResult(records)
}
