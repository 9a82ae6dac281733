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
	"encoding/json"
)

// ErrorRecord is the inline payload returned in place of records when a
// backend query fails. The model sees it as tool output.
type ErrorRecord struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// QueryResult is either the backend's record list or an error record.
//
// Records are opaque JSON objects passed through unmodified.
type QueryResult struct {
	Records []json.RawMessage
	Err     *ErrorRecord
}

// recordsResult wraps a record list. A nil list becomes empty.
func recordsResult(records []json.RawMessage) QueryResult {
	if records == nil {
		records = []json.RawMessage{}
	}
	return QueryResult{Records: records}
}

// errorResult wraps a failure message in an error record.
func errorResult(message string) QueryResult {
	return QueryResult{Err: &ErrorRecord{Status: "error", Message: message}}
}

// IsError reports whether the result carries an error record.
func (r QueryResult) IsError() bool {
	return r.Err != nil
}

// MarshalJSON emits the error record object or the record array.
func (r QueryResult) MarshalJSON() ([]byte, error) {
	if r.Err != nil {
		return json.Marshal(r.Err)
	}
	if r.Records == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.Records)
}

// UnmarshalJSON accepts either shape produced by MarshalJSON.
func (r *QueryResult) UnmarshalJSON(data []byte) error {
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err == nil {
		*r = recordsResult(records)
		return nil
	}
	var rec ErrorRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	*r = QueryResult{Err: &rec}
	return nil
}
