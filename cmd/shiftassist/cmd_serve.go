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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/ShiftAssist/services/assistant"
	"github.com/AleutianAI/ShiftAssist/services/llm"
	"github.com/AleutianAI/ShiftAssist/services/session"
	"github.com/AleutianAI/ShiftAssist/services/shifts"
)

// serveOptions hold the serve command flags.
type serveOptions struct {
	port        int
	traceStdout bool
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP chat service",
		Long: `Run the HTTP chat service.

Endpoints:
  POST /api/chat   one question, one answer
  GET  /health     liveness
  GET  /metrics    Prometheus metrics

Spans are exported over OTLP/gRPC when OTEL_EXPORTER_OTLP_ENDPOINT is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loadServeSettings(configPath, opts, cmd.Flags().Changed("port"))
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), settings, opts, cmd)
		},
	}
	cmd.Flags().IntVar(&opts.port, "port", 0, "Listen port (overrides settings)")
	cmd.Flags().BoolVar(&opts.traceStdout, "trace-stdout", false, "Print spans to stdout when no OTLP endpoint is set")
	return cmd
}

// loadServeSettings loads settings and applies flag overrides.
func loadServeSettings(path string, opts *serveOptions, portChanged bool) (*assistant.ServiceSettings, error) {
	settings, err := assistant.LoadSettings(path)
	if err != nil {
		return nil, err
	}
	if portChanged {
		settings.Server.Port = opts.port
		if err := settings.Validate(); err != nil {
			return nil, fmt.Errorf("invalid --port %d: %w", opts.port, err)
		}
	}
	return settings, nil
}

// openQueryCache opens the backend cache when enabled. The returned closer
// is never nil.
func openQueryCache(s assistant.CacheSettings) (shifts.QueryCache, func(), error) {
	if !s.Enabled {
		return nil, func() {}, nil
	}
	c, err := shifts.OpenBadgerQueryCache(s.Dir, s.TTL, slog.Default())
	if err != nil {
		return nil, nil, err
	}
	return c, func() {
		if err := c.Close(); err != nil {
			slog.Warn("closing query cache", slog.String("error", err.Error()))
		}
	}, nil
}

func runServe(parent context.Context, settings *assistant.ServiceSettings, opts *serveOptions, cmd *cobra.Command) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := setupTracing(ctx, opts.traceStdout, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), settings.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("flushing spans", slog.String("error", err.Error()))
		}
	}()

	gin.SetMode(settings.Server.GinMode)

	cache, closeCache, err := openQueryCache(settings.Cache)
	if err != nil {
		return err
	}
	defer closeCache()

	model, err := llm.NewOpenAIClient(settings.Model.Name, settings.Model.BaseURL)
	if err != nil {
		return err
	}

	base := session.FromEnvironment()
	dispatcher := shifts.NewDispatcher(shifts.NewBackendClient(settings.Backend.Timeout, cache, slog.Default()))
	limiter := assistant.NewRateLimiter(settings.RateLimit)

	handlers := assistant.NewHandlers(assistant.HandlersConfig{
		BaseConfig:     base,
		Model:          model,
		Dispatcher:     dispatcher,
		ModelName:      model.Model(),
		RequestTimeout: settings.Server.RequestTimeout,
	})
	router := assistant.NewRouter(handlers, assistant.RouterOptions{
		AllowedOrigin: base.BaseURL,
		Limiter:       limiter,
		Tracing:       true,
		AccessLog:     true,
	})

	srv := &http.Server{
		Addr:              settings.Addr(),
		Handler:           router,
		ReadHeaderTimeout: settings.Server.RequestTimeout,
	}

	slog.Info("shiftassist starting",
		slog.String("addr", srv.Addr),
		slog.String("model", model.Model()),
		slog.String("session", base.String()),
		slog.Bool("cache", settings.Cache.Enabled),
		slog.Float64("rate_limit_rps", settings.RateLimit.RequestsPerSecond),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listening on %s: %w", srv.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server exited")
	return nil
}
