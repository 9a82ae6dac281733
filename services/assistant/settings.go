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
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Default Settings
// =============================================================================

//go:embed default_settings.yaml
var defaultSettingsYAML []byte

// MaxSettingsFileSize bounds an overlay settings file.
const MaxSettingsFileSize = 1 << 20

// =============================================================================
// Settings Types
// =============================================================================

// ServiceSettings are the process-wide settings of the HTTP service.
//
// Description:
//
//	Per-request identity lives in session.SessionConfig. These settings
//	cover everything shared by all requests: listen address, model choice,
//	backend timeout, history window, cache and inbound rate limit.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type ServiceSettings struct {
	Server       ServerSettings       `yaml:"server"`
	Model        ModelSettings        `yaml:"model"`
	Backend      BackendSettings      `yaml:"backend"`
	Conversation ConversationSettings `yaml:"conversation"`
	Cache        CacheSettings        `yaml:"cache"`
	RateLimit    RateLimitSettings    `yaml:"rate_limit"`
}

// ServerSettings configure the HTTP listener.
type ServerSettings struct {
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	GinMode         string        `yaml:"gin_mode" validate:"oneof=debug release test"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`

	// RequestTimeout bounds one chat turn including both model passes.
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gt=0"`
}

// ModelSettings choose the model and endpoint. OPENAI_MODEL and
// OPENAI_BASE_URL still take precedence at client construction.
type ModelSettings struct {
	Name    string `yaml:"name" validate:"required"`
	BaseURL string `yaml:"base_url" validate:"required,url"`
}

// BackendSettings configure scheduling backend calls.
type BackendSettings struct {
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// ConversationSettings configure the transcript window.
type ConversationSettings struct {
	HistoryLimit int `yaml:"history_limit" validate:"min=0"`
}

// CacheSettings configure the backend query cache.
type CacheSettings struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl" validate:"gte=0"`
	Dir     string        `yaml:"dir"`
}

// RateLimitSettings configure the inbound chat limiter.
type RateLimitSettings struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int     `yaml:"burst" validate:"gte=0"`
}

// =============================================================================
// Loading
// =============================================================================

// DefaultSettings returns the embedded defaults.
func DefaultSettings() (*ServiceSettings, error) {
	return ParseSettings(nil)
}

// LoadSettings returns the embedded defaults overlaid with the file at path.
//
// Inputs:
//   - path: YAML overlay. Empty returns the defaults.
//
// Outputs:
//   - *ServiceSettings: Validated settings.
//   - error: Non-nil if the file cannot be read, parsed or validated.
func LoadSettings(path string) (*ServiceSettings, error) {
	if path == "" {
		return DefaultSettings()
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("LoadSettings: %w", err)
	}
	if info.Size() > MaxSettingsFileSize {
		return nil, fmt.Errorf("LoadSettings: %s exceeds maximum size (%d > %d)", path, info.Size(), MaxSettingsFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadSettings: %w", err)
	}
	settings, err := ParseSettings(data)
	if err != nil {
		return nil, err
	}
	slog.Info("service settings loaded", slog.String("path", path))
	return settings, nil
}

// ParseSettings overlays overlay onto the embedded defaults and validates.
//
// Inputs:
//   - overlay: YAML bytes. Nil or empty returns the defaults.
//
// Outputs:
//   - *ServiceSettings: Validated settings.
//   - error: Non-nil on parse or validation failure.
func ParseSettings(overlay []byte) (*ServiceSettings, error) {
	var s ServiceSettings
	if err := yaml.Unmarshal(defaultSettingsYAML, &s); err != nil {
		return nil, fmt.Errorf("ParseSettings: parsing embedded defaults: %w", err)
	}
	if len(overlay) > 0 {
		if err := yaml.Unmarshal(overlay, &s); err != nil {
			return nil, fmt.Errorf("ParseSettings: parsing YAML: %w", err)
		}
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("ParseSettings: validation: %w", err)
	}
	return &s, nil
}

// settingsValidator is shared; validator.Validate caches struct metadata and
// is safe for concurrent use.
var settingsValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (s *ServiceSettings) Validate() error {
	return settingsValidator.Struct(s)
}

// Addr returns the listen address for Server.Port.
func (s *ServiceSettings) Addr() string {
	return fmt.Sprintf(":%d", s.Server.Port)
}
