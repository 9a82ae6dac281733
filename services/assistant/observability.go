// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assistant

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// assistantTracerName is the OTel tracer name for conversation spans.
const assistantTracerName = "shiftassist.assistant"

var (
	// turnDuration measures end-to-end turn latency.
	//
	// Labels:
	//   - role: "admin" or "employee"
	//   - outcome: final TurnState name
	turnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shiftassist",
			Subsystem: "assistant",
			Name:      "turn_duration_seconds",
			Help:      "Duration of conversation turns in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"role", "outcome"},
	)

	turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shiftassist",
			Subsystem: "assistant",
			Name:      "turns_total",
			Help:      "Total conversation turns by role and outcome.",
		},
		[]string{"role", "outcome"},
	)

	toolCallsPerTurn = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "shiftassist",
			Subsystem: "assistant",
			Name:      "tool_calls_per_turn",
			Help:      "Number of tool calls the model issued per turn.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8},
		},
	)

	// httpRejectionsTotal counts chat requests refused at the boundary.
	//
	// Labels:
	//   - reason: "bad_json", "bad_employee_id", "missing_prompt", "referer", "rate_limited"
	httpRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shiftassist",
			Subsystem: "http",
			Name:      "rejections_total",
			Help:      "Chat requests rejected before reaching the model.",
		},
		[]string{"reason"},
	)
)

func recordTurnMetrics(role string, state TurnState, toolCalls int, duration time.Duration) {
	turnDuration.WithLabelValues(role, state.String()).Observe(duration.Seconds())
	turnsTotal.WithLabelValues(role, state.String()).Inc()
	if state == StateDone {
		toolCallsPerTurn.Observe(float64(toolCalls))
	}
}

func recordRejection(reason string) {
	httpRejectionsTotal.WithLabelValues(reason).Inc()
}
