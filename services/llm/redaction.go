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
	"regexp"
	"strings"
)

// secretRule rewrites one class of secret.
type secretRule struct {
	label string
	re    *regexp.Regexp
	repl  string
}

// secretRules run in order. Bearer runs before the bare JWT rule so a
// backend Authorization header is labelled as such, and sk-proj- runs
// before the generic sk- key.
var secretRules = []secretRule{
	{label: "openai_key", re: regexp.MustCompile(`sk-proj-[A-Za-z0-9_-]{20,}`)},
	{label: "openai_key", re: regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`)},
	{label: "bearer_token", re: regexp.MustCompile(`Bearer\s+[A-Za-z0-9._~+/=-]{10,}`)},
	{label: "jwt", re: regexp.MustCompile(`eyJ[A-Za-z0-9_-]{5,}\.[A-Za-z0-9_-]{5,}\.[A-Za-z0-9_-]+`)},

	// jwt_token as a query parameter or as a JSON field in a chat body.
	{re: regexp.MustCompile(`jwt_token=[^\s&"]{3,}`), repl: "jwt_token=[REDACTED]"},
	{re: regexp.MustCompile(`"jwt_token"\s*:\s*"[^"]{3,}"`), repl: `"jwt_token":"[REDACTED]"`},

	// Credentials embedded in a backend or proxy URL.
	{re: regexp.MustCompile(`(https?)://[^\s/@]+@`), repl: "${1}://[REDACTED]@"},
}

// SafeLogString redacts known secrets from s before it is logged or
// returned to a caller.
//
// Description:
//
//	Model provider error bodies and backend transport errors can echo the
//	OpenAI key, the backend bearer token or a URL with credentials. Each
//	match is replaced with a labelled placeholder.
//
// Inputs:
//   - s: Text to redact. Empty returns empty.
//
// Outputs:
//   - string: s with every matched secret replaced.
//
// Limitations:
//   - Pattern based. Secrets in unknown formats pass through.
//
// Thread Safety: This function is safe for concurrent use.
func SafeLogString(s string) string {
	if s == "" {
		return s
	}
	for _, r := range secretRules {
		s = r.re.ReplaceAllString(s, r.replacement())
	}
	return s
}

func (r secretRule) replacement() string {
	if r.repl != "" {
		return r.repl
	}
	return "[REDACTED:" + r.label + "]"
}

// RedactToken shortens a token to a recognizable prefix for debug logs.
// Tokens of eight characters or fewer are fully hidden.
func RedactToken(token string) string {
	token = strings.TrimSpace(token)
	switch {
	case token == "":
		return ""
	case len(token) <= 8:
		return "[REDACTED]"
	default:
		return token[:4] + "…[REDACTED]"
	}
}
