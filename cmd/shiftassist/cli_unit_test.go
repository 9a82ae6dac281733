// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// These are unit tests that need neither a model provider nor a backend.

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ShiftAssist/services/assistant"
	"github.com/AleutianAI/ShiftAssist/services/llm"
	"github.com/AleutianAI/ShiftAssist/services/session"
	"github.com/AleutianAI/ShiftAssist/services/shifts"
)

// =============================================================================
// ROOT COMMAND
// =============================================================================

func TestCLIUnit_Root_Help(t *testing.T) {
	tests := []struct {
		name         string
		args         []string
		wantContains []string
	}{
		{"help flag long", []string{"--help"}, []string{"shiftassist", "Usage"}},
		{"help shows serve", []string{"--help"}, []string{"serve"}},
		{"help shows chat", []string{"--help"}, []string{"chat"}},
		{"help shows env", []string{"--help"}, []string{"SHIFT_BACKEND_URL", "OPENAI_API_KEY"}},
		{"serve help", []string{"serve", "--help"}, []string{"--port", "--trace-stdout", "/api/chat"}},
		{"chat help", []string{"chat", "--help"}, []string{"--employee-id", "--admin", "--jwt-token"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newRootCmd()
			var out bytes.Buffer
			root.SetOut(&out)
			root.SetErr(&out)
			root.SetArgs(tt.args)

			require.NoError(t, root.Execute())
			for _, want := range tt.wantContains {
				assert.Contains(t, out.String(), want)
			}
		})
	}
}

func TestCLIUnit_Root_Version(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), version)
}

func TestCLIUnit_Root_InvalidLogLevel(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"--log-level", "loud", "serve"})
	t.Cleanup(func() { logLevel = "info" })

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--log-level")
}

func TestCLIUnit_Serve_RejectsArgs(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"serve", "extra"})

	assert.Error(t, root.Execute())
}

// =============================================================================
// LOGGING AND TRACING
// =============================================================================

func TestCLIUnit_ParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: " warn ", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "verbose", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLogLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCLIUnit_NewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, err := newLogger(&buf, "info", "json")
	require.NoError(t, err)
	logger.Debug("hidden")
	logger.Info("shown", slog.String("k", "v"))
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	logger, err = newLogger(&buf, "debug", "text")
	require.NoError(t, err)
	logger.Debug("visible")
	assert.Contains(t, buf.String(), "msg=visible")

	_, err = newLogger(&buf, "info", "xml")
	assert.Error(t, err)
}

func TestCLIUnit_ChooseExporter(t *testing.T) {
	assert.Equal(t, exporterOTLP, chooseExporter("localhost:4317", true))
	assert.Equal(t, exporterOTLP, chooseExporter("localhost:4317", false))
	assert.Equal(t, exporterStdout, chooseExporter("", true))
	assert.Equal(t, exporterNone, chooseExporter("", false))
	assert.Equal(t, "stdout", exporterStdout.String())
}

func TestCLIUnit_SetupTracing_Disabled(t *testing.T) {
	t.Setenv(envOTLPEndpoint, "")
	shutdown, err := setupTracing(context.Background(), false, &bytes.Buffer{})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

// =============================================================================
// SERVE SETTINGS
// =============================================================================

func TestCLIUnit_LoadServeSettings(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s, err := loadServeSettings("", &serveOptions{port: 1234}, false)
		require.NoError(t, err)
		assert.Equal(t, 8080, s.Server.Port)
	})

	t.Run("port flag wins", func(t *testing.T) {
		s, err := loadServeSettings("", &serveOptions{port: 1234}, true)
		require.NoError(t, err)
		assert.Equal(t, ":1234", s.Addr())
	})

	t.Run("invalid port flag", func(t *testing.T) {
		_, err := loadServeSettings("", &serveOptions{port: 0}, true)
		assert.Error(t, err)
	})

	t.Run("overlay file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "s.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o600))
		s, err := loadServeSettings(path, &serveOptions{}, false)
		require.NoError(t, err)
		assert.Equal(t, 9000, s.Server.Port)
	})
}

func TestCLIUnit_OpenQueryCache(t *testing.T) {
	cache, closeCache, err := openQueryCache(assistant.CacheSettings{})
	require.NoError(t, err)
	assert.Nil(t, cache)
	closeCache()

	cache, closeCache, err = openQueryCache(assistant.CacheSettings{Enabled: true})
	require.NoError(t, err)
	require.NotNil(t, cache)
	closeCache()
}

// =============================================================================
// CHAT
// =============================================================================

func TestCLIUnit_ChatOverrides(t *testing.T) {
	opts := &chatOptions{employeeID: 9, admin: true, jwtToken: "tok", maxTokens: 120}

	t.Run("nothing changed", func(t *testing.T) {
		ov := opts.overrides(func(string) bool { return false })
		assert.Equal(t, session.Overrides{}, ov)
	})

	t.Run("all changed", func(t *testing.T) {
		ov := opts.overrides(func(string) bool { return true })
		require.NotNil(t, ov.EmployeeID)
		assert.Equal(t, 9, *ov.EmployeeID)
		require.NotNil(t, ov.AdminMode)
		assert.True(t, *ov.AdminMode)
		require.NotNil(t, ov.AuthToken)
		assert.Equal(t, "tok", *ov.AuthToken)
		require.NotNil(t, ov.TokenBudget)
		assert.Equal(t, 120, *ov.TokenBudget)
	})

	t.Run("empty token ignored", func(t *testing.T) {
		empty := &chatOptions{}
		ov := empty.overrides(func(name string) bool { return name == "jwt-token" })
		assert.Nil(t, ov.AuthToken)
	})
}

func TestCLIUnit_IsExitCommand(t *testing.T) {
	for _, in := range []string{"exit", "QUIT", " q ", ":q"} {
		assert.True(t, isExitCommand(in), in)
	}
	for _, in := range []string{"", "exit please", "question"} {
		assert.False(t, isExitCommand(in), in)
	}
}

func TestCLIUnit_DescribeTurnError(t *testing.T) {
	assert.Contains(t, describeTurnError(fmt.Errorf("%w: pass 1: boom", assistant.ErrModelFailure)), "model could not be reached")
	assert.Contains(t, describeTurnError(fmt.Errorf("x: %w", shifts.ErrUnknownTool)), "invalid tool call")
	assert.True(t, strings.HasPrefix(describeTurnError(errors.New("other")), "Error:"))
	assert.NotContains(t, describeTurnError(errors.New("key sk-abcdefghijklmnopqrstuvwxyz0123")), "sk-abcdefghijklmnopqrstuvwxyz0123")
}

// scriptedModel replies with its text on every request.
type scriptedModel struct {
	text string
	err  error
}

func (m *scriptedModel) CreateResponse(_ context.Context, req *llm.ResponseRequest) (*llm.ResponseResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	last := req.Input[len(req.Input)-1]
	return &llm.ResponseResult{
		ID: "resp",
		Output: []llm.OutputItem{{
			Type:    llm.ItemTypeMessage,
			Role:    llm.RoleAssistant,
			Content: []llm.OutputContent{{Type: "output_text", Text: m.text + ": " + last.Content}},
		}},
	}, nil
}

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(context.Context, session.SessionConfig, string, string) (string, error) {
	return "[]", nil
}

func TestCLIUnit_ChatLoop(t *testing.T) {
	settings, err := assistant.DefaultSettings()
	require.NoError(t, err)

	t.Run("answers until exit", func(t *testing.T) {
		conv := assistant.NewConversation(session.SessionConfig{EmployeeID: 3, TokenBudget: 100},
			&scriptedModel{text: "answer"}, noopDispatcher{}, assistant.ConversationOptions{})
		var out bytes.Buffer
		in := strings.NewReader("first question\n\nsecond question\nexit\nnever asked\n")

		require.NoError(t, chatLoop(context.Background(), conv, settings, in, &out, newChatStyles(&out)))

		assert.Contains(t, out.String(), "answer: first question")
		assert.Contains(t, out.String(), "answer: second question")
		assert.NotContains(t, out.String(), "never asked")
		assert.Len(t, conv.Transcript(), 1+2*2)
	})

	t.Run("errors are reported and the loop continues", func(t *testing.T) {
		conv := assistant.NewConversation(session.SessionConfig{EmployeeID: 3},
			&scriptedModel{err: errors.New("unreachable")}, noopDispatcher{}, assistant.ConversationOptions{})
		var out bytes.Buffer
		in := strings.NewReader("one\ntwo\n")

		require.NoError(t, chatLoop(context.Background(), conv, settings, in, &out, newChatStyles(&out)))
		assert.Equal(t, 2, strings.Count(out.String(), "model could not be reached"))
	})
}
