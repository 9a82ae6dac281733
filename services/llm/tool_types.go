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
	"encoding/json"
	"sort"
	"strings"
)

// ToolDef is a function tool descriptor in the Responses API shape.
//
// Description:
//
//	Unlike Chat Completions, the Responses API flattens the function
//	definition onto the tool object (no nested "function" key) and supports
//	strict schema adherence.
//
// Thread Safety: ToolDef is immutable once built and safe for concurrent reads.
type ToolDef struct {
	// Type is the tool type. Always "function".
	Type string `json:"type"`

	// Name is the function name the model will call.
	Name string `json:"name"`

	// Description explains what the function does.
	Description string `json:"description"`

	// Parameters defines the JSON Schema for function arguments.
	Parameters ToolParameters `json:"parameters"`

	// Strict asks the model to adhere exactly to Parameters.
	Strict bool `json:"strict"`
}

// ToolParameters defines the JSON Schema object for tool arguments.
//
// Strict mode requires every property to be listed in Required and
// AdditionalProperties to be false, so neither field is omitted on the wire.
type ToolParameters struct {
	// Type is the JSON Schema type. Always "object".
	Type string `json:"type"`

	// Properties maps parameter names to their definitions.
	Properties map[string]ToolParamDef `json:"properties"`

	// Required lists parameter names that must be provided.
	Required []string `json:"required"`

	// AdditionalProperties permits keys not listed in Properties.
	AdditionalProperties bool `json:"additionalProperties"`
}

// ToolParamDef defines a single parameter in JSON Schema format.
type ToolParamDef struct {
	// Type is the JSON Schema type (string, integer, boolean, number).
	Type string `json:"type"`

	// Description explains what the parameter is for.
	Description string `json:"description,omitempty"`

	// Enum restricts values to a set of options.
	Enum []any `json:"enum,omitempty"`
}

// NewStrictParameters builds a strict object schema where every property is required.
//
// Inputs:
//   - props: Parameter definitions keyed by name. May be empty.
//
// Outputs:
//   - ToolParameters: Schema with sorted Required and AdditionalProperties=false.
func NewStrictParameters(props map[string]ToolParamDef) ToolParameters {
	if props == nil {
		props = map[string]ToolParamDef{}
	}
	required := make([]string, 0, len(props))
	for name := range props {
		required = append(required, name)
	}
	sort.Strings(required)
	return ToolParameters{
		Type:                 "object",
		Properties:           props,
		Required:             required,
		AdditionalProperties: false,
	}
}

// =============================================================================
// Input items (request side)
// =============================================================================

// Input item types and roles used by the Responses API.
const (
	ItemTypeMessage            = "message"
	ItemTypeFunctionCall       = "function_call"
	ItemTypeFunctionCallOutput = "function_call_output"

	RoleDeveloper = "developer"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// InputItem is one element of the request "input" array.
//
// Description:
//
//	A union over easy-input messages (Role + Content), function calls
//	echoed back from a previous response (CallID + Name + Arguments), and
//	function call outputs (CallID + Output). Unused fields are omitted.
type InputItem struct {
	Type      string `json:"type,omitempty"`
	Role      string `json:"role,omitempty"`
	Content   string `json:"content,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
}

// MessageItem builds a role/content input item.
func MessageItem(role, content string) InputItem {
	return InputItem{Type: ItemTypeMessage, Role: role, Content: content}
}

// FunctionCallItem echoes a model-issued function call back into the input.
func FunctionCallItem(call FunctionCall) InputItem {
	return InputItem{
		Type:      ItemTypeFunctionCall,
		CallID:    call.CallID,
		Name:      call.Name,
		Arguments: call.Arguments,
	}
}

// FunctionCallOutputItem carries the result of executing a function call.
func FunctionCallOutputItem(callID, output string) InputItem {
	return InputItem{Type: ItemTypeFunctionCallOutput, CallID: callID, Output: output}
}

// ResponseRequest is the provider-agnostic input to CreateResponse.
type ResponseRequest struct {
	// Model overrides the client's default model when non-empty.
	Model string

	// Input is the ordered transcript.
	Input []InputItem

	// Tools is the catalog offered to the model. Empty on a final pass.
	Tools []ToolDef

	// PreviousResponseID chains this request to an earlier response.
	PreviousResponseID string

	// MaxOutputTokens bounds the reply. Zero omits the limit.
	MaxOutputTokens int
}

// =============================================================================
// Output items (response side)
// =============================================================================

// FunctionCall is a tool invocation requested by the model.
type FunctionCall struct {
	// ID is the output item id (fc_...).
	ID string `json:"id,omitempty"`

	// CallID correlates the call with its function_call_output.
	CallID string `json:"call_id"`

	// Name is the function name.
	Name string `json:"name"`

	// Arguments is the raw JSON object text produced by the model.
	Arguments string `json:"arguments"`
}

// ArgumentsJSON returns the arguments as a JSON object text.
//
// Description:
//
//	Some models double-encode arguments as a JSON string value. In that
//	case the unquoted string is returned. Empty arguments become "{}".
//
// Thread Safety: This method is safe for concurrent use.
func (c FunctionCall) ArgumentsJSON() string {
	args := strings.TrimSpace(c.Arguments)
	if args == "" {
		return "{}"
	}
	if args[0] == '"' {
		var s string
		if err := json.Unmarshal([]byte(args), &s); err == nil {
			return s
		}
	}
	return args
}

// OutputContent is one content part of an output message.
type OutputContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// OutputItem is one element of the response "output" array.
type OutputItem struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Status    string          `json:"status,omitempty"`
	Role      string          `json:"role,omitempty"`
	Content   []OutputContent `json:"content,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments string          `json:"arguments,omitempty"`
}

// Usage reports token consumption for a response.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ResponseResult is the parsed result of CreateResponse.
//
// Thread Safety: ResponseResult is safe for concurrent read access.
type ResponseResult struct {
	// ID is the response handle usable as PreviousResponseID.
	ID string

	// Status is the provider status ("completed", "incomplete", ...).
	Status string

	// Output is the ordered list of output items.
	Output []OutputItem

	// Usage is the token accounting for this response.
	Usage Usage
}

// FunctionCalls returns the function_call items in output order.
func (r *ResponseResult) FunctionCalls() []FunctionCall {
	if r == nil {
		return nil
	}
	var calls []FunctionCall
	for _, item := range r.Output {
		if item.Type != ItemTypeFunctionCall {
			continue
		}
		calls = append(calls, FunctionCall{
			ID:        item.ID,
			CallID:    item.CallID,
			Name:      item.Name,
			Arguments: item.Arguments,
		})
	}
	return calls
}

// OutputText concatenates the output_text parts of all message items.
func (r *ResponseResult) OutputText() string {
	if r == nil {
		return ""
	}
	var sb strings.Builder
	for _, item := range r.Output {
		if item.Type != ItemTypeMessage {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" {
				sb.WriteString(part.Text)
			}
		}
	}
	return sb.String()
}
