// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AleutianAI/ShiftAssist/services/assistant"
)

// envOTLPEndpoint enables OTLP export when set.
const envOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"

// newLogger builds the process logger.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := parseLogLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "json", "":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q: want json or text", format)
	}
}

// traceExporter picks the span exporter.
type traceExporter int

const (
	exporterNone traceExporter = iota
	exporterOTLP
	exporterStdout
)

func (e traceExporter) String() string {
	switch e {
	case exporterOTLP:
		return "otlp"
	case exporterStdout:
		return "stdout"
	default:
		return "none"
	}
}

// chooseExporter prefers OTLP when an endpoint is configured, then stdout
// when requested.
func chooseExporter(otlpEndpoint string, stdout bool) traceExporter {
	switch {
	case otlpEndpoint != "":
		return exporterOTLP
	case stdout:
		return exporterStdout
	default:
		return exporterNone
	}
}

// setupTracing installs the global tracer provider and propagator.
//
// Description:
//
//	With no exporter the global no-op provider stays in place, so spans
//	cost nothing. The returned shutdown flushes pending spans.
//
// Inputs:
//   - ctx: Context for exporter construction.
//   - stdout: Export spans to w when no OTLP endpoint is configured.
//   - w: Writer for the stdout exporter.
//
// Outputs:
//   - func(context.Context) error: Flushes and stops the provider. Never nil.
//   - error: Non-nil if the exporter cannot be created.
func setupTracing(ctx context.Context, stdout bool, w io.Writer) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	kind := chooseExporter(os.Getenv(envOTLPEndpoint), stdout)

	var exporter sdktrace.SpanExporter
	var err error
	switch kind {
	case exporterOTLP:
		exporter, err = otlptracegrpc.New(ctx)
	case exporterStdout:
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	default:
		return func(context.Context) error { return nil }, nil
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s trace exporter: %w", kind, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", assistant.ServiceName),
			attribute.String("service.version", version),
		)),
	)
	otel.SetTracerProvider(tp)
	slog.Info("tracing enabled", slog.String("exporter", kind.String()))
	return tp.Shutdown, nil
}
