// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package shifts

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// shiftsTracerName is the OTel tracer name for backend query spans.
const shiftsTracerName = "shiftassist.shifts"

var (
	// backendRequestDuration measures backend GET latency.
	//
	// Labels:
	//   - endpoint: backend path, e.g. "/api/available-shifts"
	//   - outcome: "ok" or "error"
	backendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shiftassist",
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Duration of scheduling backend requests in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"endpoint", "outcome"},
	)

	backendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shiftassist",
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Total scheduling backend requests.",
		},
		[]string{"endpoint", "outcome"},
	)

	// cacheLookupsTotal counts query cache lookups.
	//
	// Labels:
	//   - result: "hit", "miss" or "error"
	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shiftassist",
			Subsystem: "backend",
			Name:      "cache_lookups_total",
			Help:      "Total query cache lookups by result.",
		},
		[]string{"result"},
	)

	// toolDispatchTotal counts tool dispatches.
	//
	// Labels:
	//   - tool: tool name, or "unknown"
	//   - outcome: "records", "error_record" or "rejected"
	toolDispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shiftassist",
			Subsystem: "tools",
			Name:      "dispatch_total",
			Help:      "Total tool dispatches by tool and outcome.",
		},
		[]string{"tool", "outcome"},
	)
)

func recordBackendMetrics(endpoint string, duration time.Duration, result QueryResult) {
	outcome := "ok"
	if result.IsError() {
		outcome = "error"
	}
	backendRequestDuration.WithLabelValues(endpoint, outcome).Observe(duration.Seconds())
	backendRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
}

func recordDispatch(tool, outcome string) {
	toolDispatchTotal.WithLabelValues(tool, outcome).Inc()
}
