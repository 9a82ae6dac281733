// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const llmTracerName = "shiftassist.llm"

// Request kinds, by whether the request continues an earlier response.
const (
	kindOpening  = "opening"
	kindFollowUp = "follow_up"
)

var (
	// responseSeconds is the latency of POST /responses.
	//
	// Labels:
	//   - kind: "opening" (no previous_response_id) or "follow_up"
	//   - outcome: see classifyError, or "ok"
	responseSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shiftassist",
			Subsystem: "model",
			Name:      "response_seconds",
			Help:      "Latency of Responses API calls.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64, 120},
		},
		[]string{"kind", "outcome"},
	)

	// responseTokens counts usage reported on successful responses.
	responseTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shiftassist",
			Subsystem: "model",
			Name:      "tokens_total",
			Help:      "Tokens reported by the Responses API.",
		},
		[]string{"direction"},
	)

	responsesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "shiftassist",
			Subsystem: "model",
			Name:      "responses_in_flight",
			Help:      "Responses API calls currently awaiting an answer.",
		},
	)
)

// requestKind labels req for the latency histogram.
func requestKind(req *ResponseRequest) string {
	if req.PreviousResponseID != "" {
		return kindFollowUp
	}
	return kindOpening
}

// classifyError reduces a CreateResponse error to a metric label.
//
// Outputs:
//
//	"" for nil, otherwise one of "auth", "rate_limit", "server", "rejected",
//	"failed", "empty", "timeout", "canceled" or "transport".
func classifyError(err error) string {
	if err == nil {
		return ""
	}

	var statusErr *StatusError
	switch {
	case errors.Is(err, ErrMissingAPIKey):
		return "auth"
	case errors.Is(err, ErrEmptyResponse):
		return "empty"
	case errors.Is(err, ErrResponseFailed):
		return "failed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &statusErr):
		switch code := statusErr.StatusCode; {
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return "auth"
		case code == http.StatusTooManyRequests:
			return "rate_limit"
		case code >= http.StatusInternalServerError:
			return "server"
		default:
			return "rejected"
		}
	}

	// http.Client timeouts lose their type once redacted into text.
	if strings.Contains(err.Error(), "Timeout exceeded") {
		return "timeout"
	}
	return "transport"
}

// observeResponse records one finished CreateResponse call.
func observeResponse(kind string, elapsed time.Duration, usage Usage, err error) {
	outcome := "ok"
	if err != nil {
		outcome = classifyError(err)
	}
	responseSeconds.WithLabelValues(kind, outcome).Observe(elapsed.Seconds())
	if err == nil {
		responseTokens.WithLabelValues("input").Add(float64(usage.InputTokens))
		responseTokens.WithLabelValues("output").Add(float64(usage.OutputTokens))
	}
}
