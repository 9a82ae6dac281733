// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm is the model transport: an OpenAI Responses API client with
// function calling, plus the shared tool and transcript wire types.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// OpenAI Wire Types
// =============================================================================

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o-mini"
	providerOpenAI       = "openai"
)

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("openai: API key is missing (OPENAI_API_KEY)")

// ErrEmptyResponse is returned when the provider answers without output items.
var ErrEmptyResponse = errors.New("openai: response contained no output")

// ErrResponseFailed is returned when a 200 answer carries an error object or
// a failed status.
var ErrResponseFailed = errors.New("openai: response failed")

// StatusError is a non-200 answer from the Responses API. Body is redacted.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openai: API returned status %d: %s", e.StatusCode, e.Body)
}

type openaiRequest struct {
	Model              string      `json:"model"`
	Input              []InputItem `json:"input"`
	Tools              []ToolDef   `json:"tools,omitempty"`
	PreviousResponseID string      `json:"previous_response_id,omitempty"`
	MaxOutputTokens    *int        `json:"max_output_tokens,omitempty"`
}

type openaiResponse struct {
	ID     string       `json:"id"`
	Object string       `json:"object"`
	Status string       `json:"status"`
	Model  string       `json:"model"`
	Output []OutputItem `json:"output"`
	Usage  Usage        `json:"usage"`
	Error  *openaiError `json:"error,omitempty"`
}

type openaiError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// =============================================================================
// Client Implementation
// =============================================================================

// OpenAIClient calls the OpenAI Responses API using raw net/http.
//
// Description:
//
//	Supports function calling and response chaining through
//	previous_response_id. The API key is held in a memguard enclave and only
//	decrypted for the duration of a request.
//
// Thread Safety: OpenAIClient is safe for concurrent use.
type OpenAIClient struct {
	httpClient *http.Client
	apiKey     *memguard.Enclave
	model      string
	baseURL    string
}

// NewOpenAIClientWithConfig creates an OpenAIClient with explicit configuration.
//
// Description:
//
//	Creates an OpenAIClient without reading environment variables. Useful
//	for testing with mock servers.
//
// Inputs:
//   - apiKey: The OpenAI API key.
//   - model: The default model name.
//   - baseURL: API root, e.g. "https://api.openai.com/v1".
//
// Outputs:
//   - *OpenAIClient: The configured client.
func NewOpenAIClientWithConfig(apiKey, model, baseURL string) *OpenAIClient {
	c := &OpenAIClient{
		httpClient: &http.Client{
			Timeout:   120 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
	if apiKey != "" {
		c.apiKey = memguard.NewEnclave([]byte(apiKey))
	}
	return c
}

// NewOpenAIClient creates a new OpenAIClient from environment variables.
//
// Description:
//
//	Reads OPENAI_API_KEY, OPENAI_MODEL and OPENAI_BASE_URL. The model falls
//	back to the supplied default, then to "gpt-4o-mini".
//
// Inputs:
//   - defaultModel: Model to use when OPENAI_MODEL is unset. May be empty.
//   - defaultBaseURL: API root to use when OPENAI_BASE_URL is unset. May be empty.
//
// Outputs:
//   - *OpenAIClient: The configured client.
//   - error: ErrMissingAPIKey if OPENAI_API_KEY is missing.
func NewOpenAIClient(defaultModel, defaultBaseURL string) (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		slog.Warn("OpenAI API Key is empty. OpenAI Client will not function.")
		return nil, ErrMissingAPIKey
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = defaultModel
	}
	if model == "" {
		model = defaultOpenAIModel
		slog.Warn("OPENAI_MODEL not set, defaulting", slog.String("model", model))
	}

	baseURL := os.Getenv("OPENAI_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}

	slog.Info("Initializing OpenAI client", slog.String("model", model))
	return NewOpenAIClientWithConfig(apiKey, model, baseURL), nil
}

// Model returns the default model name.
func (o *OpenAIClient) Model() string {
	return o.model
}

// CreateResponse sends one Responses API request.
//
// Description:
//
//	Serializes the transcript and optional tool catalog, posts to
//	{baseURL}/responses, and parses output items. Chaining is requested
//	when req.PreviousResponseID is set. No retries are attempted: the
//	conversation loop treats any error as a failed turn.
//
// Inputs:
//   - ctx: Context for cancellation and timeout.
//   - req: The request. Must not be nil.
//
// Outputs:
//   - *ResponseResult: Parsed response with output items and usage.
//   - error: Non-nil on transport, HTTP status, API, or parse failure.
//
// Thread Safety: This method is safe for concurrent use.
func (o *OpenAIClient) CreateResponse(ctx context.Context, req *ResponseRequest) (*ResponseResult, error) {
	if o == nil {
		return nil, fmt.Errorf("openai: client is nil")
	}
	if req == nil {
		return nil, fmt.Errorf("openai: request is nil")
	}

	model := o.model
	if req.Model != "" {
		model = req.Model
	}

	ctx, span := otel.Tracer(llmTracerName).Start(ctx, "llm.OpenAIClient.CreateResponse",
		trace.WithAttributes(
			attribute.String("provider", providerOpenAI),
			attribute.String("model", model),
			attribute.Int("input_items", len(req.Input)),
			attribute.Int("tools", len(req.Tools)),
			attribute.Bool("chained", req.PreviousResponseID != ""),
		),
	)
	defer span.End()

	responsesInFlight.Inc()
	defer responsesInFlight.Dec()

	startTime := time.Now()
	result, err := o.createResponse(ctx, model, req)
	kind := requestKind(req)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observeResponse(kind, time.Since(startTime), Usage{}, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("response_id", result.ID),
		attribute.Int("function_calls", len(result.FunctionCalls())),
	)
	observeResponse(kind, time.Since(startTime), result.Usage, nil)
	return result, nil
}

func (o *OpenAIClient) createResponse(ctx context.Context, model string, req *ResponseRequest) (*ResponseResult, error) {
	slog.Debug("CreateResponse via OpenAI",
		slog.String("model", model),
		slog.Int("input_items", len(req.Input)),
		slog.Int("tools", len(req.Tools)),
	)

	reqPayload := openaiRequest{
		Model:              model,
		Input:              req.Input,
		Tools:              req.Tools,
		PreviousResponseID: req.PreviousResponseID,
	}
	if req.MaxOutputTokens > 0 {
		maxTokens := req.MaxOutputTokens
		reqPayload.MaxOutputTokens = &maxTokens
	}

	reqBody, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("openai: marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/responses", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("openai: creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if o.apiKey == nil {
		return nil, ErrMissingAPIKey
	}
	key, err := o.apiKey.Open()
	if err != nil {
		return nil, fmt.Errorf("openai: opening API key enclave: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+key.String())
	key.Destroy()

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("openai: request abandoned: %w", ctxErr)
		}
		return nil, fmt.Errorf("openai: HTTP request failed: %s", SafeLogString(err.Error()))
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: SafeLogString(string(bodyBytes))}
	}

	var apiResp openaiResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("openai: parsing response JSON: %w", err)
	}

	if apiResp.Error != nil {
		return nil, fmt.Errorf("%w: %s - %s", ErrResponseFailed, apiResp.Error.Code, SafeLogString(apiResp.Error.Message))
	}
	if apiResp.Status == "failed" {
		return nil, fmt.Errorf("%w: %s", ErrResponseFailed, apiResp.ID)
	}
	if len(apiResp.Output) == 0 {
		return nil, ErrEmptyResponse
	}

	result := &ResponseResult{
		ID:     apiResp.ID,
		Status: apiResp.Status,
		Output: apiResp.Output,
		Usage:  apiResp.Usage,
	}

	slog.Debug("Received OpenAI response",
		slog.String("response_id", result.ID),
		slog.String("status", result.Status),
		slog.Int("output_items", len(result.Output)),
	)
	return result, nil
}
