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
	"reflect"
	"strings"
	"testing"
)

func TestFunctionCall_ArgumentsJSON_Object(t *testing.T) {
	fc := FunctionCall{CallID: "call-1", Name: "get_available_shifts", Arguments: `{"shift_date":"2024-04-29"}`}

	if got := fc.ArgumentsJSON(); got != `{"shift_date":"2024-04-29"}` {
		t.Errorf("ArgumentsJSON() = %q, want JSON object string", got)
	}
}

func TestFunctionCall_ArgumentsJSON_DoubleEncoded(t *testing.T) {
	fc := FunctionCall{CallID: "call-2", Arguments: `"{\"request_status\":\"pending\"}"`}

	if got := fc.ArgumentsJSON(); got != `{"request_status":"pending"}` {
		t.Errorf("ArgumentsJSON() = %q, want unquoted JSON string", got)
	}
}

func TestFunctionCall_ArgumentsJSON_Empty(t *testing.T) {
	for _, args := range []string{"", "   "} {
		fc := FunctionCall{CallID: "call-3", Arguments: args}
		if got := fc.ArgumentsJSON(); got != "{}" {
			t.Errorf("ArgumentsJSON(%q) = %q, want %q", args, got, "{}")
		}
	}
}

func TestNewStrictParameters_MarshalsStrictShape(t *testing.T) {
	params := NewStrictParameters(map[string]ToolParamDef{
		"b_field": {Type: "string"},
		"a_field": {Type: "integer"},
	})

	if !reflect.DeepEqual(params.Required, []string{"a_field", "b_field"}) {
		t.Errorf("Required = %v, want sorted property names", params.Required)
	}

	data, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"additionalProperties":false`) {
		t.Errorf("additionalProperties must be serialized as false: %s", data)
	}
}

func TestNewStrictParameters_EmptyIsObjectNotNull(t *testing.T) {
	data, err := json.Marshal(NewStrictParameters(nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"object","properties":{},"required":[],"additionalProperties":false}`
	if string(data) != want {
		t.Errorf("empty schema = %s, want %s", data, want)
	}
}

func TestResponseResult_FunctionCallsPreserveOrder(t *testing.T) {
	r := &ResponseResult{Output: []OutputItem{
		{Type: "reasoning", ID: "rs_1"},
		{Type: ItemTypeFunctionCall, ID: "fc_1", CallID: "call_a", Name: "first", Arguments: "{}"},
		{Type: ItemTypeMessage, Role: RoleAssistant, Content: []OutputContent{{Type: "output_text", Text: "ignored"}}},
		{Type: ItemTypeFunctionCall, ID: "fc_2", CallID: "call_b", Name: "second", Arguments: "{}"},
	}}

	calls := r.FunctionCalls()
	if len(calls) != 2 {
		t.Fatalf("len(calls) = %d, want 2", len(calls))
	}
	if calls[0].CallID != "call_a" || calls[1].CallID != "call_b" {
		t.Errorf("calls out of order: %+v", calls)
	}
}

func TestResponseResult_OutputText(t *testing.T) {
	r := &ResponseResult{Output: []OutputItem{
		{Type: ItemTypeFunctionCall, CallID: "call_a"},
		{Type: ItemTypeMessage, Content: []OutputContent{
			{Type: "output_text", Text: "Two shifts "},
			{Type: "refusal", Text: "nope"},
			{Type: "output_text", Text: "are open."},
		}},
	}}

	if got := r.OutputText(); got != "Two shifts are open." {
		t.Errorf("OutputText() = %q", got)
	}
}

func TestResponseResult_NilSafe(t *testing.T) {
	var r *ResponseResult
	if r.OutputText() != "" || r.FunctionCalls() != nil {
		t.Error("nil ResponseResult should yield empty values")
	}
}

func TestInputItemConstructors_OmitUnusedFields(t *testing.T) {
	tests := []struct {
		name string
		item InputItem
		want string
	}{
		{
			name: "message",
			item: MessageItem(RoleUser, "hi"),
			want: `{"type":"message","role":"user","content":"hi"}`,
		},
		{
			name: "function call",
			item: FunctionCallItem(FunctionCall{ID: "fc_1", CallID: "call_1", Name: "get_assigned_shifts", Arguments: "{}"}),
			want: `{"type":"function_call","call_id":"call_1","name":"get_assigned_shifts","arguments":"{}"}`,
		},
		{
			name: "function call output",
			item: FunctionCallOutputItem("call_1", "[]"),
			want: `{"type":"function_call_output","call_id":"call_1","output":"[]"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.item)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("got %s, want %s", data, tt.want)
			}
		})
	}
}
