// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command shiftassist runs the shift scheduling assistant, either as an HTTP
// service or as an interactive terminal chat.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// Global flags shared by every subcommand.
var (
	configPath string
	logLevel   string
	logFormat  string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "shiftassist",
		Short: "Shift scheduling assistant backed by an LLM with tool calling",
		Long: `shiftassist answers questions about open, requested and assigned shifts.

Each question is sent to the model together with the scheduling tools the
caller may use. Tool calls are executed against the scheduling backend and
the model is asked once more, without tools, to phrase the answer.

Identity comes from the environment:
  SHIFT_BACKEND_URL   scheduling backend base URL
  SHIFT_EMPLOYEE_ID   employee the session acts for
  SHIFT_ADMIN_MODE    "true" for the admin tool catalog
  SHIFT_JWT_TOKEN     bearer token for backend calls
  SHIFT_MAX_TOKENS    reply token budget
  OPENAI_API_KEY      model provider key`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), logLevel, logFormat)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML settings overlay file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "json", "Log format (json, text)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newChatCmd())
	return root
}

func main() {
	defer memguard.Purge()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		memguard.Purge()
		os.Exit(1)
	}
}

// parseLogLevel maps a flag value to a slog level.
func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid --log-level %q: %w", s, err)
	}
	return level, nil
}
