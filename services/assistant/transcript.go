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
	"fmt"
	"sync"

	"github.com/AleutianAI/ShiftAssist/services/llm"
)

// MessageKind tags a transcript entry.
type MessageKind int

const (
	// KindDeveloper is the leading instruction message.
	KindDeveloper MessageKind = iota

	// KindUser is a user utterance.
	KindUser

	// KindAssistant is a final model reply.
	KindAssistant

	// KindToolCall is a function call issued by the model.
	KindToolCall

	// KindToolResult is the output for a preceding tool call.
	KindToolResult
)

// String returns the wire-friendly name of the kind.
func (k MessageKind) String() string {
	switch k {
	case KindDeveloper:
		return "developer"
	case KindUser:
		return "user"
	case KindAssistant:
		return "assistant"
	case KindToolCall:
		return "tool_call"
	case KindToolResult:
		return "tool_result"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Message is one transcript entry.
//
// Text carries developer, user and assistant content. CallID, Name and
// Arguments describe a tool call. CallID and Output describe a tool result.
type Message struct {
	Kind      MessageKind
	Text      string
	CallID    string
	Name      string
	Arguments string
	Output    string
}

// DeveloperMessage builds the instruction message.
func DeveloperMessage(text string) Message { return Message{Kind: KindDeveloper, Text: text} }

// UserMessage builds a user utterance.
func UserMessage(text string) Message { return Message{Kind: KindUser, Text: text} }

// AssistantMessage builds a model reply.
func AssistantMessage(text string) Message { return Message{Kind: KindAssistant, Text: text} }

// ToolCallMessage records a model function call.
func ToolCallMessage(call llm.FunctionCall) Message {
	return Message{Kind: KindToolCall, CallID: call.CallID, Name: call.Name, Arguments: call.Arguments}
}

// ToolResultMessage records the output for callID.
func ToolResultMessage(callID, output string) Message {
	return Message{Kind: KindToolResult, CallID: callID, Output: output}
}

// InputItem converts the message to its Responses API input form.
func (m Message) InputItem() llm.InputItem {
	switch m.Kind {
	case KindDeveloper:
		return llm.MessageItem(llm.RoleDeveloper, m.Text)
	case KindAssistant:
		return llm.MessageItem(llm.RoleAssistant, m.Text)
	case KindToolCall:
		return llm.FunctionCallItem(llm.FunctionCall{CallID: m.CallID, Name: m.Name, Arguments: m.Arguments})
	case KindToolResult:
		return llm.FunctionCallOutputItem(m.CallID, m.Output)
	default:
		return llm.MessageItem(llm.RoleUser, m.Text)
	}
}

// Transcript is the ordered conversation history with a bounded window.
//
// Description:
//
//	The first message is the developer instruction and is never evicted.
//	When more than limit other messages are held, the oldest are evicted
//	first. A tool call and its result leave together. Messages belonging
//	to the turn in progress are never evicted, so a turn may briefly
//	exceed the limit.
//
// Thread Safety: Safe for concurrent use. Appends and trims happen under one
// mutex; readers receive copies.
type Transcript struct {
	mu        sync.Mutex
	messages  []Message
	limit     int
	turnStart int
}

// NewTranscript creates a transcript seeded with the developer instruction.
//
// Inputs:
//   - developer: Instruction text.
//   - limit: Maximum non-developer messages kept between turns. Zero or
//     negative means unbounded.
func NewTranscript(developer string, limit int) *Transcript {
	return &Transcript{
		messages:  []Message{DeveloperMessage(developer)},
		limit:     limit,
		turnStart: 1,
	}
}

// BeginTurn marks the start of a turn and appends the user utterance.
func (t *Transcript) BeginTurn(utterance string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turnStart = len(t.messages)
	t.messages = append(t.messages, UserMessage(utterance))
	t.trimLocked()
}

// Append adds messages to the current turn.
func (t *Transcript) Append(msgs ...Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, msgs...)
	t.trimLocked()
}

// EndTurn commits the current turn and applies the window to it.
func (t *Transcript) EndTurn() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turnStart = len(t.messages)
	t.trimLocked()
}

// AbortTurn drops every message added since BeginTurn. It is a no-op after
// EndTurn.
func (t *Transcript) AbortTurn() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.turnStart < len(t.messages) {
		t.messages = t.messages[:t.turnStart]
	}
}

// Snapshot returns a copy of the current messages.
func (t *Transcript) Snapshot() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// InputItems returns the transcript in Responses API input form.
func (t *Transcript) InputItems() []llm.InputItem {
	t.mu.Lock()
	defer t.mu.Unlock()
	items := make([]llm.InputItem, len(t.messages))
	for i, m := range t.messages {
		items[i] = m.InputItem()
	}
	return items
}

// trimLocked evicts the oldest evictable messages until within the limit.
//
// Caller must hold t.mu.
func (t *Transcript) trimLocked() {
	if t.limit <= 0 {
		return
	}
	for len(t.messages)-1 > t.limit {
		// Index 0 is the developer instruction. Only messages before the
		// current turn are candidates.
		if t.turnStart <= 1 {
			return
		}
		victim := t.messages[1]
		if victim.Kind == KindToolCall {
			for i := 2; i < t.turnStart; i++ {
				if t.messages[i].Kind == KindToolResult && t.messages[i].CallID == victim.CallID {
					t.messages = append(t.messages[:i], t.messages[i+1:]...)
					t.turnStart--
					break
				}
			}
		}
		t.messages = append(t.messages[:1], t.messages[2:]...)
		t.turnStart--
	}
}
