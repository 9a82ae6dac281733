// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvironment_Defaults(t *testing.T) {
	t.Setenv(EnvBackendURL, "")
	t.Setenv(EnvEmployeeID, "")
	t.Setenv(EnvAdminMode, "")
	t.Setenv(EnvJWTToken, "")
	t.Setenv(EnvMaxTokens, "")

	cfg := FromEnvironment()

	assert.Equal(t, DefaultBackendURL, cfg.BaseURL)
	assert.Equal(t, DefaultEmployeeID, cfg.EmployeeID)
	assert.False(t, cfg.AdminMode)
	assert.Empty(t, cfg.AuthToken)
	assert.Equal(t, DefaultTokenBudget, cfg.TokenBudget)
}

func TestFromEnvironment_Values(t *testing.T) {
	t.Setenv(EnvBackendURL, "https://shifts.example.com/")
	t.Setenv(EnvEmployeeID, "42")
	t.Setenv(EnvAdminMode, "true")
	t.Setenv(EnvJWTToken, " abc.def.ghi ")
	t.Setenv(EnvMaxTokens, "512")

	cfg := FromEnvironment()

	assert.Equal(t, "https://shifts.example.com", cfg.BaseURL, "trailing slash is trimmed")
	assert.Equal(t, 42, cfg.EmployeeID)
	assert.True(t, cfg.AdminMode)
	assert.Equal(t, "abc.def.ghi", cfg.AuthToken)
	assert.Equal(t, 512, cfg.TokenBudget)
}

func TestFromEnvironment_InvalidFallsBack(t *testing.T) {
	t.Setenv(EnvEmployeeID, "seven")
	t.Setenv(EnvAdminMode, "maybe")
	t.Setenv(EnvMaxTokens, "-")

	cfg := FromEnvironment()

	assert.Equal(t, DefaultEmployeeID, cfg.EmployeeID)
	assert.False(t, cfg.AdminMode)
	assert.Equal(t, DefaultTokenBudget, cfg.TokenBudget)
}

func TestOverride_PartialFields(t *testing.T) {
	base := SessionConfig{
		EmployeeID:  3,
		AdminMode:   false,
		AuthToken:   "base-token",
		TokenBudget: 100,
		BaseURL:     "http://backend",
	}

	next := base.Override(Overrides{EmployeeID: Ptr(9)})

	assert.Equal(t, 9, next.EmployeeID)
	assert.False(t, next.AdminMode)
	assert.Equal(t, "base-token", next.AuthToken)
	assert.Equal(t, 100, next.TokenBudget)
	assert.Equal(t, "http://backend", next.BaseURL)

	// The receiver is untouched.
	assert.Equal(t, 3, base.EmployeeID)
}

func TestOverride_AllFields(t *testing.T) {
	base := FromEnvironment()

	next := base.Override(Overrides{
		EmployeeID:  Ptr(11),
		AdminMode:   Ptr(true),
		AuthToken:   Ptr("tok"),
		TokenBudget: Ptr(50),
	})

	assert.Equal(t, SessionConfig{
		EmployeeID:  11,
		AdminMode:   true,
		AuthToken:   "tok",
		TokenBudget: 50,
		BaseURL:     base.BaseURL,
	}, next)
}

func TestOverride_EmptyIsIdentity(t *testing.T) {
	base := SessionConfig{EmployeeID: 5, AdminMode: true, BaseURL: "http://x"}
	assert.Equal(t, base, base.Override(Overrides{}))
}

func TestSessionConfig_RefererOriginAndRole(t *testing.T) {
	cfg := SessionConfig{BaseURL: "http://host:3000"}
	assert.Equal(t, "http://host:3000/", cfg.RefererOrigin())
	assert.Equal(t, "employee", cfg.Role())
	assert.Equal(t, "admin", cfg.Override(Overrides{AdminMode: Ptr(true)}).Role())
}

func TestSessionConfig_StringHidesToken(t *testing.T) {
	cfg := SessionConfig{AuthToken: "super-secret-token"}
	s := cfg.String()
	if strings.Contains(s, "super-secret-token") {
		t.Errorf("String() leaked the auth token: %s", s)
	}
	assert.Contains(t, s, "token=set")
}
