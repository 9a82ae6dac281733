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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/ShiftAssist/services/session"
	"github.com/AleutianAI/ShiftAssist/services/shifts"
)

// maxChatBody caps the request body of POST /api/chat.
const maxChatBody = 64 << 10

// Boundary error messages returned verbatim to clients.
const (
	msgInvalidJSON     = "Invalid JSON payload"
	msgAccessDenied    = "Access denied"
	msgPromptRequired  = "user_prompt is required"
	msgBadEmployeeID   = "employee_id must be an integer"
	msgModelFailure    = "The assistant is temporarily unavailable"
	msgInternalFailure = "The assistant could not complete the request"
)

// ChatResponse is the success body of POST /api/chat.
type ChatResponse struct {
	AIReply string `json:"ai_reply"`
}

// ErrorResponse is the error body of every endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model,omitempty"`
}

// chatRequest holds the raw fields of a chat body. Each field keeps its raw
// JSON so loosely typed clients can be accepted.
type chatRequest struct {
	UserPrompt json.RawMessage `json:"user_prompt"`
	EmployeeID json.RawMessage `json:"employee_id"`
	AdminMode  json.RawMessage `json:"admin_mode"`
	JWTToken   json.RawMessage `json:"jwt_token"`
}

// HandlersConfig wires Handlers to their collaborators.
type HandlersConfig struct {
	// BaseConfig is the environment-derived identity that request fields override.
	BaseConfig session.SessionConfig

	// Model is the model transport. Required.
	Model ModelClient

	// Dispatcher executes tool calls. Required.
	Dispatcher ToolDispatcher

	// ModelName overrides the client's default model. May be empty.
	ModelName string

	// RequestTimeout bounds one turn. Zero means no extra bound.
	RequestTimeout time.Duration
}

// Handlers serves the chat API.
//
// Thread Safety: Safe for concurrent use. Each request gets its own
// Conversation; collaborators are shared read-only.
type Handlers struct {
	cfg HandlersConfig
}

// NewHandlers creates Handlers.
func NewHandlers(cfg HandlersConfig) *Handlers {
	return &Handlers{cfg: cfg}
}

// HandleChat handles POST /api/chat.
//
// Description:
//
//	Parses the body, applies identity overrides, checks the Referer,
//	requires a prompt, then runs one conversation turn.
//
// Request Body:
//
//	{"user_prompt": "...", "employee_id": 7, "admin_mode": false, "jwt_token": "..."}
//
// Response:
//
//	200 OK: ChatResponse
//	400 Bad Request: Malformed JSON, bad employee_id, or missing prompt
//	403 Forbidden: Referer present and not the backend origin
//	500 Internal Server Error: Tool contract failure
//	502 Bad Gateway: Model failure
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleChat(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleChat")

	req, err := decodeChatRequest(c.Request.Body)
	if err != nil {
		recordRejection("bad_json")
		logger.Info("rejected chat request", slog.String("reason", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: msgInvalidJSON})
		return
	}

	overrides, err := req.overrides()
	if err != nil {
		recordRejection("bad_employee_id")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: msgBadEmployeeID})
		return
	}
	cfg := h.cfg.BaseConfig.Override(overrides)

	if referer := c.GetHeader("Referer"); referer != "" && referer != cfg.RefererOrigin() {
		recordRejection("referer")
		logger.Warn("referer rejected", slog.String("referer", referer))
		c.JSON(http.StatusForbidden, ErrorResponse{Error: msgAccessDenied})
		return
	}

	prompt := req.prompt()
	if prompt == "" {
		recordRejection("missing_prompt")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: msgPromptRequired})
		return
	}

	ctx := c.Request.Context()
	if h.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.RequestTimeout)
		defer cancel()
	}

	conv := NewConversation(cfg, h.cfg.Model, h.cfg.Dispatcher, ConversationOptions{
		Model:  h.cfg.ModelName,
		Logger: logger,
	})
	result, err := conv.Turn(ctx, prompt)
	if err != nil {
		status, body := errorStatus(err)
		c.JSON(status, body)
		return
	}

	logger.Info("chat complete",
		slog.String("role", cfg.Role()),
		slog.Int("tool_calls", result.ToolCalls),
		slog.Duration("duration", result.Duration),
	)
	c.JSON(http.StatusOK, ChatResponse{AIReply: result.Reply})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Model: h.cfg.ModelName})
}

// errorStatus maps a turn error to an HTTP status and body.
func errorStatus(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, ErrModelFailure):
		return http.StatusBadGateway, ErrorResponse{Error: msgModelFailure, Code: "MODEL_FAILURE"}
	case errors.Is(err, shifts.ErrUnknownTool):
		return http.StatusInternalServerError, ErrorResponse{Error: msgInternalFailure, Code: "UNKNOWN_TOOL"}
	case errors.Is(err, shifts.ErrInvalidArguments):
		return http.StatusInternalServerError, ErrorResponse{Error: msgInternalFailure, Code: "INVALID_TOOL_ARGUMENTS"}
	case errors.Is(err, ErrEmptyUtterance):
		return http.StatusBadRequest, ErrorResponse{Error: msgPromptRequired}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: msgInternalFailure, Code: "INTERNAL"}
	}
}

// decodeChatRequest parses a chat body. An empty body is an empty object.
func decodeChatRequest(body io.Reader) (*chatRequest, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxChatBody+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if len(data) > maxChatBody {
		return nil, fmt.Errorf("body exceeds %d bytes", maxChatBody)
	}
	var req chatRequest
	if len(bytes.TrimSpace(data)) == 0 {
		return &req, nil
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// prompt returns the trimmed prompt, or "" when absent or not a string.
func (r *chatRequest) prompt() string {
	var s string
	if err := json.Unmarshal(r.UserPrompt, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// overrides converts the optional identity fields to session overrides.
func (r *chatRequest) overrides() (session.Overrides, error) {
	var o session.Overrides

	if present(r.EmployeeID) {
		id, err := parseEmployeeID(r.EmployeeID)
		if err != nil {
			return o, err
		}
		o.EmployeeID = &id
	}

	if present(r.AdminMode) {
		o.AdminMode = session.Ptr(parseAdminMode(r.AdminMode))
	}

	var token string
	if err := json.Unmarshal(r.JWTToken, &token); err == nil && token != "" {
		o.AuthToken = &token
	}
	return o, nil
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// parseEmployeeID accepts an integral JSON number or a numeric string.
func parseEmployeeID(raw json.RawMessage) (int, error) {
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, err
	}
	switch t := v.(type) {
	case json.Number:
		n = t
	case string:
		n = json.Number(strings.TrimSpace(t))
	default:
		return 0, fmt.Errorf("employee_id has type %T", v)
	}
	if i, err := strconv.Atoi(n.String()); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("employee_id %q is not an integer", n.String())
	}
	return int(f), nil
}

// parseAdminMode treats true, or any string equal to "true" ignoring case,
// as admin. Everything else is false.
func parseAdminMode(raw json.RawMessage) bool {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.EqualFold(strings.TrimSpace(s), "true")
	}
	return false
}
