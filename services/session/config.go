// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session holds the per-conversation caller identity that
// parameterizes tool selection, query scoping, and model requests.
//
// Thread Safety:
//
//	SessionConfig is a value type. Every override returns a fresh copy, so a
//	config can be shared between goroutines without synchronization.
package session

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variable names read by FromEnvironment.
const (
	EnvBackendURL = "SHIFT_BACKEND_URL"
	EnvEmployeeID = "SHIFT_EMPLOYEE_ID"
	EnvAdminMode  = "SHIFT_ADMIN_MODE"
	EnvJWTToken   = "SHIFT_JWT_TOKEN"
	EnvMaxTokens  = "SHIFT_MAX_TOKENS"
)

// Defaults used when the environment does not provide a value.
const (
	DefaultBackendURL  = "http://localhost:3000"
	DefaultEmployeeID  = 1
	DefaultTokenBudget = 300
)

// AllEmployees is the employee id sentinel meaning "do not scope by employee".
// Only honoured in admin mode.
const AllEmployees = -1

// SessionConfig is an immutable snapshot of caller identity.
//
// Description:
//
//	Created once per conversation or HTTP request and passed by value to the
//	catalog selector, the query dispatcher, and the conversation loop. It is
//	never mutated after construction; Override produces a new value.
//
// Invariant: AdminMode == false implies every employee-scoped query is forced
// to EmployeeID.
type SessionConfig struct {
	// EmployeeID is the caller's own employee id.
	EmployeeID int

	// AdminMode removes employee scoping from queries when true.
	AdminMode bool

	// AuthToken is forwarded to the backend as a bearer token. Optional.
	AuthToken string

	// TokenBudget bounds the length of the model's reply.
	TokenBudget int

	// BaseURL is the scheduling backend root, without a trailing slash.
	BaseURL string
}

// Overrides lists the fields a caller may replace. A nil field is left as-is.
type Overrides struct {
	EmployeeID  *int
	AdminMode   *bool
	AuthToken   *string
	TokenBudget *int
}

// FromEnvironment builds the base config from process-wide defaults.
//
// Description:
//
//	Reads SHIFT_BACKEND_URL, SHIFT_EMPLOYEE_ID, SHIFT_ADMIN_MODE,
//	SHIFT_JWT_TOKEN and SHIFT_MAX_TOKENS. Unset or unparsable values fall back
//	to the package defaults rather than failing, matching how the rest of the
//	service treats environment configuration.
//
// Outputs:
//   - SessionConfig: The base configuration.
func FromEnvironment() SessionConfig {
	return SessionConfig{
		EmployeeID:  envInt(EnvEmployeeID, DefaultEmployeeID),
		AdminMode:   envBool(EnvAdminMode, false),
		AuthToken:   strings.TrimSpace(os.Getenv(EnvJWTToken)),
		TokenBudget: envInt(EnvMaxTokens, DefaultTokenBudget),
		BaseURL:     strings.TrimRight(envString(EnvBackendURL, DefaultBackendURL), "/"),
	}
}

// Override returns a copy of c with only the supplied fields replaced.
//
// Inputs:
//   - o: Fields to replace. Nil pointers keep the current value.
//
// Outputs:
//   - SessionConfig: The new configuration. c is unchanged.
func (c SessionConfig) Override(o Overrides) SessionConfig {
	next := c
	if o.EmployeeID != nil {
		next.EmployeeID = *o.EmployeeID
	}
	if o.AdminMode != nil {
		next.AdminMode = *o.AdminMode
	}
	if o.AuthToken != nil {
		next.AuthToken = *o.AuthToken
	}
	if o.TokenBudget != nil {
		next.TokenBudget = *o.TokenBudget
	}
	return next
}

// RefererOrigin is the only Referer value accepted by the HTTP surface.
func (c SessionConfig) RefererOrigin() string {
	return c.BaseURL + "/"
}

// Role returns "admin" or "employee" for logging and metric labels.
func (c SessionConfig) Role() string {
	if c.AdminMode {
		return "admin"
	}
	return "employee"
}

// String renders the config for logs. The auth token is never printed.
func (c SessionConfig) String() string {
	token := "unset"
	if c.AuthToken != "" {
		token = "set"
	}
	return fmt.Sprintf("SessionConfig{employee_id=%d admin=%t token=%s budget=%d base_url=%s}",
		c.EmployeeID, c.AdminMode, token, c.TokenBudget, c.BaseURL)
}

// envString reads a string environment variable with a default value.
func envString(key, defaultVal string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	return val
}

// envBool reads a boolean environment variable with a default value.
func envBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

// envInt reads an integer environment variable with a default value.
func envInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// Ptr returns a pointer to v. Convenience for building Overrides.
func Ptr[T any](v T) *T {
	return &v
}
