// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assistant runs the two-pass tool-calling conversation and exposes
// it over HTTP.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/ShiftAssist/services/llm"
	"github.com/AleutianAI/ShiftAssist/services/session"
	"github.com/AleutianAI/ShiftAssist/services/shifts"
)

// =============================================================================
// Collaborator Interfaces
// =============================================================================

// ModelClient sends one Responses API request.
//
// *llm.OpenAIClient satisfies this interface.
type ModelClient interface {
	CreateResponse(ctx context.Context, req *llm.ResponseRequest) (*llm.ResponseResult, error)
}

// ToolDispatcher executes one model function call.
//
// *shifts.Dispatcher satisfies this interface.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, cfg session.SessionConfig, name, arguments string) (string, error)
}

// ToolSelector returns the tool catalog for a session.
type ToolSelector func(cfg session.SessionConfig) []llm.ToolDef

// =============================================================================
// Turn State
// =============================================================================

// TurnState is the position of a conversation within a turn.
type TurnState int

const (
	// StateAwaitingUserInput is the idle state between turns.
	StateAwaitingUserInput TurnState = iota

	// StateFirstPassRequested means the tool-enabled request is in flight.
	StateFirstPassRequested

	// StateExecutingTools means function calls are being dispatched.
	StateExecutingTools

	// StateSecondPassRequested means the tool-free follow-up is in flight.
	StateSecondPassRequested

	// StateDone means the reply was produced.
	StateDone

	// StateFailed means the turn ended with an error.
	StateFailed
)

// String returns the snake_case name of the state.
func (s TurnState) String() string {
	switch s {
	case StateAwaitingUserInput:
		return "awaiting_user_input"
	case StateFirstPassRequested:
		return "first_pass_requested"
	case StateExecutingTools:
		return "executing_tools"
	case StateSecondPassRequested:
		return "second_pass_requested"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

var (
	// ErrModelFailure wraps any model transport failure on either pass.
	ErrModelFailure = errors.New("model request failed")

	// ErrEmptyUtterance is returned for a blank user utterance.
	ErrEmptyUtterance = errors.New("user utterance is empty")

	// ErrEmptyReply is returned, wrapped in ErrModelFailure, when the
	// second pass carries no output text (for example only a refusal).
	ErrEmptyReply = errors.New("reply contained no text")
)

// TurnResult reports the outcome of one turn.
type TurnResult struct {
	// Reply is the assistant text from the second pass.
	Reply string

	// State is StateDone on success, StateFailed otherwise.
	State TurnState

	// ToolCalls is the number of function calls executed.
	ToolCalls int

	// FirstResponseID and FinalResponseID are the provider response handles.
	FirstResponseID string
	FinalResponseID string

	// Usage sums token usage across both passes.
	Usage llm.Usage

	// Duration is the wall time of the turn.
	Duration time.Duration
}

// =============================================================================
// Conversation
// =============================================================================

// ConversationOptions tunes a Conversation. The zero value is usable.
type ConversationOptions struct {
	// Model overrides the client's default model. Empty uses the client default.
	Model string

	// HistoryLimit bounds non-developer transcript messages between turns.
	// Zero means unbounded.
	HistoryLimit int

	// Tools selects the catalog. Nil uses shifts.SelectTools.
	Tools ToolSelector

	// Now supplies the date stated in the developer instruction. Nil uses time.Now.
	Now func() time.Time

	// Logger may be nil.
	Logger *slog.Logger
}

// Conversation runs two-pass tool-calling turns for one identity.
//
// Description:
//
//	Each turn appends the user utterance, asks the model with the tool
//	catalog, executes any function calls in order through the dispatcher,
//	then asks the model again chained to the first response and without
//	tools. The transcript is kept across turns.
//
// Thread Safety: Turns on one Conversation are serialized. Separate
// Conversations share nothing mutable.
type Conversation struct {
	cfg        session.SessionConfig
	model      ModelClient
	dispatcher ToolDispatcher
	tools      ToolSelector
	modelName  string
	logger     *slog.Logger

	turnMu     sync.Mutex
	transcript *Transcript

	stateMu sync.RWMutex
	state   TurnState
}

// NewConversation creates a Conversation for cfg.
//
// Inputs:
//   - cfg: Identity and token budget for every turn.
//   - model: Model transport. Must not be nil.
//   - dispatcher: Tool executor. Must not be nil.
//   - opts: Optional tuning.
//
// Outputs:
//   - *Conversation: Ready in StateAwaitingUserInput.
func NewConversation(cfg session.SessionConfig, model ModelClient, dispatcher ToolDispatcher, opts ConversationOptions) *Conversation {
	if opts.Tools == nil {
		opts.Tools = shifts.SelectTools
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Conversation{
		cfg:        cfg,
		model:      model,
		dispatcher: dispatcher,
		tools:      opts.Tools,
		modelName:  opts.Model,
		logger:     logger.With(slog.String("role", cfg.Role()), slog.Int("employee_id", cfg.EmployeeID)),
		transcript: NewTranscript(DeveloperPrompt(cfg, opts.Now()), opts.HistoryLimit),
		state:      StateAwaitingUserInput,
	}
}

// DeveloperPrompt builds the instruction message for cfg.
func DeveloperPrompt(cfg session.SessionConfig, now time.Time) string {
	return fmt.Sprintf(
		"You are an AI assistant on a shift-management platform. "+
			"You are limited to %d tokens in your response. "+
			"Today's date is %s.",
		cfg.TokenBudget, now.Format("2006-01-02 (Monday)"),
	)
}

// State returns the current turn state.
func (c *Conversation) State() TurnState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// Transcript returns a snapshot of the conversation history.
func (c *Conversation) Transcript() []Message {
	return c.transcript.Snapshot()
}

func (c *Conversation) setState(s TurnState) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// Turn runs one two-pass exchange for utterance.
//
// Description:
//
//	On success the reply is appended to the transcript and the state is
//	StateDone. On failure the turn's messages are removed from the
//	transcript and the state is StateFailed. Model errors wrap
//	ErrModelFailure. Dispatch contract errors wrap shifts.ErrUnknownTool
//	or shifts.ErrInvalidArguments. Backend failures are not errors.
//
// Inputs:
//   - ctx: Context for cancellation. Passed to every model and backend call.
//   - utterance: The user's message. Must not be blank.
//
// Outputs:
//   - *TurnResult: Always non-nil.
//   - error: Non-nil when the turn failed.
//
// Thread Safety: Safe for concurrent use; concurrent turns are serialized.
func (c *Conversation) Turn(ctx context.Context, utterance string) (*TurnResult, error) {
	c.turnMu.Lock()
	defer c.turnMu.Unlock()

	start := time.Now()
	result := &TurnResult{State: StateAwaitingUserInput}

	ctx, span := otel.Tracer(assistantTracerName).Start(ctx, "assistant.Conversation.Turn",
		trace.WithAttributes(
			attribute.String("role", c.cfg.Role()),
			attribute.Int("token_budget", c.cfg.TokenBudget),
		),
	)
	defer span.End()

	err := c.runTurn(ctx, strings.TrimSpace(utterance), result)
	result.Duration = time.Since(start)

	if err != nil {
		result.State = StateFailed
		c.setState(StateFailed)
		c.transcript.AbortTurn()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("turn failed",
			slog.String("error", llm.SafeLogString(err.Error())),
			slog.Int("tool_calls", result.ToolCalls),
		)
	} else {
		result.State = StateDone
		c.setState(StateDone)
		c.logger.Info("turn complete",
			slog.Int("tool_calls", result.ToolCalls),
			slog.Int("total_tokens", result.Usage.TotalTokens),
			slog.Duration("duration", result.Duration),
		)
	}

	span.SetAttributes(
		attribute.String("state", result.State.String()),
		attribute.Int("tool_calls", result.ToolCalls),
	)
	recordTurnMetrics(c.cfg.Role(), result.State, result.ToolCalls, result.Duration)
	return result, err
}

func (c *Conversation) runTurn(ctx context.Context, utterance string, result *TurnResult) error {
	if utterance == "" {
		return ErrEmptyUtterance
	}

	c.transcript.BeginTurn(utterance)

	// Pass 1: transcript plus catalog.
	c.setState(StateFirstPassRequested)
	first, err := c.pass(ctx, 1, &llm.ResponseRequest{
		Model:           c.modelName,
		Input:           c.transcript.InputItems(),
		Tools:           c.tools(c.cfg),
		MaxOutputTokens: c.cfg.TokenBudget,
	})
	if err != nil {
		return err
	}
	result.FirstResponseID = first.ID
	addUsage(&result.Usage, first.Usage)

	// Function calls, in output order, no retries.
	c.setState(StateExecutingTools)
	for _, call := range first.FunctionCalls() {
		output, err := c.dispatcher.Dispatch(ctx, c.cfg, call.Name, call.ArgumentsJSON())
		if err != nil {
			return fmt.Errorf("dispatching %s (call %s): %w", call.Name, call.CallID, err)
		}
		c.transcript.Append(ToolCallMessage(call), ToolResultMessage(call.CallID, output))
		result.ToolCalls++
		c.logger.Debug("tool executed",
			slog.String("tool", call.Name),
			slog.String("call_id", call.CallID),
			slog.Int("output_bytes", len(output)),
		)
	}

	// Pass 2: chained to pass 1, no tools.
	c.setState(StateSecondPassRequested)
	final, err := c.pass(ctx, 2, &llm.ResponseRequest{
		Model:              c.modelName,
		Input:              c.transcript.InputItems(),
		PreviousResponseID: first.ID,
		MaxOutputTokens:    c.cfg.TokenBudget,
	})
	if err != nil {
		return err
	}
	result.FinalResponseID = final.ID
	addUsage(&result.Usage, final.Usage)

	reply := final.OutputText()
	if strings.TrimSpace(reply) == "" {
		return fmt.Errorf("%w: pass 2: %w", ErrModelFailure, ErrEmptyReply)
	}
	result.Reply = reply
	c.transcript.Append(AssistantMessage(reply))
	c.transcript.EndTurn()
	return nil
}

// pass sends one model request inside its own span.
func (c *Conversation) pass(ctx context.Context, n int, req *llm.ResponseRequest) (*llm.ResponseResult, error) {
	ctx, span := otel.Tracer(assistantTracerName).Start(ctx, "assistant.Conversation.pass",
		trace.WithAttributes(
			attribute.Int("pass", n),
			attribute.Int("input_items", len(req.Input)),
			attribute.Int("tools", len(req.Tools)),
		),
	)
	defer span.End()

	resp, err := c.model.CreateResponse(ctx, req)
	if err == nil && resp == nil {
		err = llm.ErrEmptyResponse
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: pass %d: %w", ErrModelFailure, n, err)
	}
	span.SetAttributes(attribute.String("response_id", resp.ID))
	return resp, nil
}

func addUsage(total *llm.Usage, u llm.Usage) {
	total.InputTokens += u.InputTokens
	total.OutputTokens += u.OutputTokens
	total.TotalTokens += u.TotalTokens
}
