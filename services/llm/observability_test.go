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
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// =============================================================================
// classifyError Tests
// =============================================================================

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil error", err: nil, expected: ""},
		{name: "empty response", err: fmt.Errorf("wrapped: %w", ErrEmptyResponse), expected: "empty"},
		{name: "missing key", err: ErrMissingAPIKey, expected: "auth"},
		{name: "failed response", err: fmt.Errorf("%w: resp_1", ErrResponseFailed), expected: "failed"},
		{name: "deadline", err: fmt.Errorf("openai: request abandoned: %w", context.DeadlineExceeded), expected: "timeout"},
		{name: "canceled", err: fmt.Errorf("openai: request abandoned: %w", context.Canceled), expected: "canceled"},
		{name: "client timeout text", err: errors.New("openai: HTTP request failed: (Client.Timeout exceeded while awaiting headers)"), expected: "timeout"},
		{name: "401", err: &StatusError{StatusCode: http.StatusUnauthorized}, expected: "auth"},
		{name: "403", err: &StatusError{StatusCode: http.StatusForbidden}, expected: "auth"},
		{name: "429", err: &StatusError{StatusCode: http.StatusTooManyRequests}, expected: "rate_limit"},
		{name: "502", err: &StatusError{StatusCode: http.StatusBadGateway}, expected: "server"},
		{name: "400", err: fmt.Errorf("wrapped: %w", &StatusError{StatusCode: http.StatusBadRequest}), expected: "rejected"},
		{name: "status text alone is not a status", err: errors.New("status 429 in prose"), expected: "transport"},
		{name: "unknown", err: errors.New("connection refused"), expected: "transport"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyError(tt.err); got != tt.expected {
				t.Errorf("classifyError(%v) = %q, want %q", tt.err, got, tt.expected)
			}
		})
	}
}

func TestRequestKind(t *testing.T) {
	if got := requestKind(&ResponseRequest{}); got != kindOpening {
		t.Errorf("requestKind(no previous) = %q, want %q", got, kindOpening)
	}
	if got := requestKind(&ResponseRequest{PreviousResponseID: "resp_1"}); got != kindFollowUp {
		t.Errorf("requestKind(previous) = %q, want %q", got, kindFollowUp)
	}
}

// =============================================================================
// Span Tests
// =============================================================================

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})
	return exporter
}

func TestCreateResponse_SpanCreated(t *testing.T) {
	exporter := setupTestTracer(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, textResponseJSON)
	}))
	defer server.Close()

	client := NewOpenAIClientWithConfig("test-key", "gpt-4o-mini", server.URL)
	if _, err := client.CreateResponse(context.Background(), &ResponseRequest{
		Input: []InputItem{MessageItem(RoleUser, "Hello")},
	}); err != nil {
		t.Fatalf("CreateResponse() error: %v", err)
	}

	spans := exporter.GetSpans()
	found := false
	for _, s := range spans {
		if s.Name != "llm.OpenAIClient.CreateResponse" {
			continue
		}
		found = true
		if s.Status.Code == codes.Error {
			t.Errorf("span status = Error, want Unset/Ok")
		}
		for _, attr := range s.Attributes {
			if string(attr.Key) == "response_id" && attr.Value.AsString() != "resp_2" {
				t.Errorf("response_id attr = %q, want resp_2", attr.Value.AsString())
			}
		}
	}
	if !found {
		t.Errorf("span llm.OpenAIClient.CreateResponse not found in %d spans", len(spans))
	}
}

func TestCreateResponse_SpanRecordsError(t *testing.T) {
	exporter := setupTestTracer(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":"server error"}`)
	}))
	defer server.Close()

	client := NewOpenAIClientWithConfig("test-key", "gpt-4o-mini", server.URL)
	if _, err := client.CreateResponse(context.Background(), &ResponseRequest{
		Input: []InputItem{MessageItem(RoleUser, "Hello")},
	}); err == nil {
		t.Fatal("expected error for 500")
	}

	spans := exporter.GetSpans()
	if len(spans) == 0 {
		t.Fatal("no spans recorded")
	}
	for _, s := range spans {
		if s.Name != "llm.OpenAIClient.CreateResponse" {
			continue
		}
		if s.Status.Code != codes.Error {
			t.Errorf("span status = %v, want Error", s.Status.Code)
		}
		return
	}
	t.Errorf("span llm.OpenAIClient.CreateResponse not found in %d spans", len(spans))
}
