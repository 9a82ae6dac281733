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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/ShiftAssist/services/assistant"
	"github.com/AleutianAI/ShiftAssist/services/llm"
	"github.com/AleutianAI/ShiftAssist/services/session"
	"github.com/AleutianAI/ShiftAssist/services/shifts"
)

// chatOptions hold the chat command flags.
type chatOptions struct {
	employeeID int
	admin      bool
	jwtToken   string
	maxTokens  int
}

// overrides converts the flags the user actually set into session overrides.
func (o *chatOptions) overrides(changed func(name string) bool) session.Overrides {
	var ov session.Overrides
	if changed("employee-id") {
		ov.EmployeeID = session.Ptr(o.employeeID)
	}
	if changed("admin") {
		ov.AdminMode = session.Ptr(o.admin)
	}
	if changed("jwt-token") && o.jwtToken != "" {
		ov.AuthToken = session.Ptr(o.jwtToken)
	}
	if changed("max-tokens") {
		ov.TokenBudget = session.Ptr(o.maxTokens)
	}
	return ov
}

func newChatCmd() *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat [question]",
		Short: "Chat with the assistant in the terminal",
		Long: `Chat with the assistant in the terminal.

With a question argument, one turn is run and the reply printed. Without
arguments an interactive session starts; the conversation history is kept
between questions. Type "exit" or "quit" to leave.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := assistant.LoadSettings(configPath)
			if err != nil {
				return err
			}
			cfg := session.FromEnvironment().Override(opts.overrides(cmd.Flags().Changed))
			return runChat(cmd, settings, cfg, strings.TrimSpace(strings.Join(args, " ")))
		},
	}
	cmd.Flags().IntVar(&opts.employeeID, "employee-id", 0, "Act as this employee (overrides SHIFT_EMPLOYEE_ID)")
	cmd.Flags().BoolVar(&opts.admin, "admin", false, "Use the admin tool catalog (overrides SHIFT_ADMIN_MODE)")
	cmd.Flags().StringVar(&opts.jwtToken, "jwt-token", "", "Bearer token for backend calls (overrides SHIFT_JWT_TOKEN)")
	cmd.Flags().IntVar(&opts.maxTokens, "max-tokens", 0, "Reply token budget (overrides SHIFT_MAX_TOKENS)")
	return cmd
}

// chatStyles render REPL output. Plain styles are used off a terminal.
type chatStyles struct {
	prompt lipgloss.Style
	reply  lipgloss.Style
	err    lipgloss.Style
	dim    lipgloss.Style
}

func newChatStyles(w io.Writer) chatStyles {
	if !isTerminal(w) {
		plain := lipgloss.NewStyle()
		return chatStyles{prompt: plain, reply: plain, err: plain, dim: plain}
	}
	return chatStyles{
		prompt: lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
		reply:  lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		err:    lipgloss.NewStyle().Foreground(lipgloss.Color("160")),
		dim:    lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// isExitCommand reports whether line ends the interactive session.
func isExitCommand(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "exit", "quit", "q", ":q":
		return true
	}
	return false
}

func runChat(cmd *cobra.Command, settings *assistant.ServiceSettings, cfg session.SessionConfig, question string) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cache, closeCache, err := openQueryCache(settings.Cache)
	if err != nil {
		return err
	}
	defer closeCache()

	model, err := llm.NewOpenAIClient(settings.Model.Name, settings.Model.BaseURL)
	if err != nil {
		return err
	}

	sessionID := uuid.NewString()
	logger := slog.With(slog.String("session_id", sessionID))
	dispatcher := shifts.NewDispatcher(shifts.NewBackendClient(settings.Backend.Timeout, cache, logger))
	conv := assistant.NewConversation(cfg, model, dispatcher, assistant.ConversationOptions{
		HistoryLimit: settings.Conversation.HistoryLimit,
		Logger:       logger,
	})

	out := cmd.OutOrStdout()
	styles := newChatStyles(out)

	if question != "" {
		reply, err := askOnce(ctx, conv, settings, question)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, styles.reply.Render(reply))
		return nil
	}

	logger.Info("chat session started", slog.String("session", cfg.String()))
	fmt.Fprintln(out, styles.dim.Render(fmt.Sprintf("shiftassist (%s, employee %d). Type \"exit\" to quit.", cfg.Role(), cfg.EmployeeID)))
	return chatLoop(ctx, conv, settings, cmd.InOrStdin(), out, styles)
}

// chatLoop reads questions until EOF, an exit command or cancellation.
// A failed turn is reported and the session continues.
func chatLoop(ctx context.Context, conv *assistant.Conversation, settings *assistant.ServiceSettings, in io.Reader, out io.Writer, styles chatStyles) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, styles.prompt.Render("you> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if isExitCommand(line) {
			return nil
		}

		reply, err := askOnce(ctx, conv, settings, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(out, styles.err.Render(describeTurnError(err)))
			continue
		}
		fmt.Fprintln(out, styles.reply.Render(reply))
	}
}

func askOnce(ctx context.Context, conv *assistant.Conversation, settings *assistant.ServiceSettings, question string) (string, error) {
	turnCtx, cancel := context.WithTimeout(ctx, settings.Server.RequestTimeout)
	defer cancel()
	result, err := conv.Turn(turnCtx, question)
	if err != nil {
		return "", err
	}
	return result.Reply, nil
}

// describeTurnError renders a turn error for the terminal.
func describeTurnError(err error) string {
	switch {
	case errors.Is(err, assistant.ErrModelFailure):
		return "The model could not be reached: " + llm.SafeLogString(err.Error())
	case errors.Is(err, shifts.ErrUnknownTool), errors.Is(err, shifts.ErrInvalidArguments):
		return "The model made an invalid tool call: " + err.Error()
	default:
		return "Error: " + llm.SafeLogString(err.Error())
	}
}
