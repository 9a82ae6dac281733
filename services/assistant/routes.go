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
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"
)

// ServiceName is the OTel service and gin middleware name.
const ServiceName = "shiftassist"

// RegisterRoutes registers the service endpoints.
//
// Description:
//
//	Registers the chat API under /api with the rate limiter applied, plus
//	the unlimited operational endpoints.
//
// Inputs:
//
//	r - Gin router or group
//	handlers - The handlers instance
//	limiter - Inbound limiter for /api. Nil disables limiting.
//
// Endpoints:
//
//	POST /api/chat - Run one conversation turn
//	GET  /health   - Liveness check
//	GET  /metrics  - Prometheus metrics
func RegisterRoutes(r gin.IRouter, handlers *Handlers, limiter *rate.Limiter) {
	r.GET("/health", handlers.HandleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(RateLimitMiddleware(limiter))
	{
		api.POST("/chat", handlers.HandleChat)
		api.OPTIONS("/chat", func(c *gin.Context) {})
	}
}

// RouterOptions configure NewRouter.
type RouterOptions struct {
	// AllowedOrigin is the browser origin allowed by CORS, usually the
	// backend base URL. Empty disables CORS headers.
	AllowedOrigin string

	// Limiter is the inbound limiter for /api. May be nil.
	Limiter *rate.Limiter

	// Tracing installs the otelgin middleware.
	Tracing bool

	// AccessLog installs the per-request log line.
	AccessLog bool
}

// NewRouter builds the gin engine with middleware and routes.
func NewRouter(handlers *Handlers, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	if opts.Tracing {
		router.Use(otelgin.Middleware(ServiceName))
	}
	if opts.AccessLog {
		router.Use(RequestLogMiddleware())
	}
	router.Use(CORSMiddleware(strings.TrimRight(opts.AllowedOrigin, "/")))

	RegisterRoutes(router, handlers, opts.Limiter)
	return router
}
