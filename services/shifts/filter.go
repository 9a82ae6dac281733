// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package shifts

import (
	"net/url"
	"regexp"
	"strings"
)

// AllValue is the sentinel meaning "do not filter on this field".
const AllValue = "all"

var (
	datePattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])-(0[1-9]|[12]\d|3[01])$`)
	timePattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d:[0-5]\d$`)
)

// ShiftQueryFilter holds optional available-shift filters keyed by backend
// parameter name (shift_date, shift_start_before, ...).
type ShiftQueryFilter map[string]string

// ValidateFilter returns the subset of f that may be forwarded to the backend.
//
// Description:
//
//	A key containing "date" must be a YYYY-MM-DD calendar-shaped value. A
//	key containing "before" or "after" must be an HH:MM:SS wall-clock
//	value. Empty values, the "all" sentinel, malformed values and keys that
//	match neither rule are dropped. Each field is judged on its own.
//
// Inputs:
//   - f: Raw filter. May be nil.
//
// Outputs:
//   - ShiftQueryFilter: Never nil. Contains only forwardable fields.
//
// Thread Safety: Pure function, safe for concurrent use.
func ValidateFilter(f ShiftQueryFilter) ShiftQueryFilter {
	out := make(ShiftQueryFilter, len(f))
	for key, value := range f {
		if value == "" || value == AllValue {
			continue
		}
		if validField(key, value) {
			out[key] = value
		}
	}
	return out
}

func validField(key, value string) bool {
	switch {
	case strings.Contains(key, "date"):
		return datePattern.MatchString(value)
	case strings.Contains(key, "before"), strings.Contains(key, "after"):
		return timePattern.MatchString(value)
	default:
		return false
	}
}

// Values converts the filter to URL query values.
func (f ShiftQueryFilter) Values() url.Values {
	v := url.Values{}
	for key, value := range f {
		v.Set(key, value)
	}
	return v
}
