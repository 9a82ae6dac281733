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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/ShiftAssist/services/session"
)

// Tool names shared by the catalog and the dispatcher.
const (
	ToolAvailableShifts = "get_available_shifts"
	ToolRequestedShifts = "get_requested_shifts"
	ToolAssignedShifts  = "get_assigned_shifts"
)

// Argument and query parameter names.
const (
	paramRequestStatus      = "request_status"
	paramRequestEmployeeID  = "request_employee_id"
	paramAssignedEmployeeID = "assigned_employee_id"
)

// availableFilterKeys are the only argument keys read for available shifts.
var availableFilterKeys = []string{
	"shift_date",
	"shift_start_date",
	"shift_end_date",
	"shift_start_before",
	"shift_start_after",
	"shift_end_before",
	"shift_end_after",
}

var (
	// ErrUnknownTool means the model called a name the dispatcher does not
	// know. The catalog and dispatcher disagree, so the turn must fail.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArguments means the call arguments are not a JSON object.
	ErrInvalidArguments = errors.New("tool arguments are not a JSON object")
)

// Dispatcher executes the three read-only shift queries.
//
// Thread Safety: Dispatcher is safe for concurrent use.
type Dispatcher struct {
	client *BackendClient
}

// NewDispatcher creates a Dispatcher over the given backend client.
func NewDispatcher(client *BackendClient) *Dispatcher {
	if client == nil {
		client = NewBackendClient(0, nil, nil)
	}
	return &Dispatcher{client: client}
}

// AvailableShifts lists open shifts matching the validated filter.
//
// No identity scoping applies: open shifts are visible to everyone.
func (d *Dispatcher) AvailableShifts(ctx context.Context, cfg session.SessionConfig, filter ShiftQueryFilter) QueryResult {
	return d.client.Get(ctx, cfg, EndpointAvailable, ValidateFilter(filter).Values())
}

// AssignedShifts lists assigned shifts for the scoped employee.
//
// Description:
//
//	A non-admin session is always scoped to cfg.EmployeeID and any
//	supplied id is ignored. An admin session uses employeeID unless it is
//	nil or session.AllEmployees, in which case no employee filter is sent.
func (d *Dispatcher) AssignedShifts(ctx context.Context, cfg session.SessionConfig, employeeID *int) QueryResult {
	params := url.Values{}
	if id, ok := scopedEmployeeID(cfg, employeeID); ok {
		params.Set(paramAssignedEmployeeID, strconv.Itoa(id))
	}
	return d.client.Get(ctx, cfg, EndpointAssigned, params)
}

// RequestedShifts lists shift requests for the scoped employee.
//
// Scoping follows AssignedShifts. status is forwarded only when non-empty
// and not "all".
func (d *Dispatcher) RequestedShifts(ctx context.Context, cfg session.SessionConfig, status string, employeeID *int) QueryResult {
	params := url.Values{}
	if id, ok := scopedEmployeeID(cfg, employeeID); ok {
		params.Set(paramRequestEmployeeID, strconv.Itoa(id))
	}
	if status != "" && status != AllValue {
		params.Set(paramRequestStatus, status)
	}
	return d.client.Get(ctx, cfg, EndpointRequested, params)
}

// Dispatch routes one model function call to its query.
//
// Description:
//
//	Decodes arguments, runs the matching query and returns the JSON text
//	of the result, which is either a record array or an error record.
//	Backend failures are part of a successful dispatch. Only contract
//	violations return an error.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - cfg: Per-turn identity.
//   - name: Tool name from the function call.
//   - arguments: Raw JSON object text. Empty means no arguments.
//
// Outputs:
//   - string: JSON text to send back as the function call output.
//   - error: ErrUnknownTool or ErrInvalidArguments, wrapped.
//
// Thread Safety: This method is safe for concurrent use.
func (d *Dispatcher) Dispatch(ctx context.Context, cfg session.SessionConfig, name, arguments string) (string, error) {
	ctx, span := otel.Tracer(shiftsTracerName).Start(ctx, "shifts.Dispatcher.Dispatch",
		trace.WithAttributes(
			attribute.String("tool", name),
			attribute.String("role", cfg.Role()),
		),
	)
	defer span.End()

	output, err := d.dispatch(ctx, cfg, name, arguments)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return output, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, cfg session.SessionConfig, name, arguments string) (string, error) {
	switch name {
	case ToolAvailableShifts, ToolRequestedShifts, ToolAssignedShifts:
	default:
		recordDispatch("unknown", "rejected")
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	args, err := decodeArguments(arguments)
	if err != nil {
		recordDispatch(name, "rejected")
		return "", fmt.Errorf("%s: %w", name, err)
	}

	var result QueryResult
	switch name {
	case ToolAvailableShifts:
		filter := ShiftQueryFilter{}
		for _, key := range availableFilterKeys {
			if v, ok := stringArg(args, key); ok {
				filter[key] = v
			}
		}
		result = d.AvailableShifts(ctx, cfg, filter)
	case ToolRequestedShifts:
		status, _ := stringArg(args, paramRequestStatus)
		result = d.RequestedShifts(ctx, cfg, status, intArg(args, paramRequestEmployeeID))
	case ToolAssignedShifts:
		result = d.AssignedShifts(ctx, cfg, intArg(args, paramAssignedEmployeeID))
	}

	outcome := "records"
	if result.IsError() {
		outcome = "error_record"
	}
	recordDispatch(name, outcome)

	out, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("%s: encoding result: %w", name, err)
	}
	return string(out), nil
}

// scopedEmployeeID returns the employee id to filter on, if any.
func scopedEmployeeID(cfg session.SessionConfig, requested *int) (int, bool) {
	if !cfg.AdminMode {
		return cfg.EmployeeID, true
	}
	if requested == nil || *requested == session.AllEmployees {
		return 0, false
	}
	return *requested, true
}

// decodeArguments parses the raw argument text into a JSON object.
func decodeArguments(arguments string) (map[string]any, error) {
	trimmed := strings.TrimSpace(arguments)
	if trimmed == "" {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidArguments, err)
	}
	if args == nil {
		return nil, ErrInvalidArguments
	}
	return args, nil
}

// stringArg returns a string-typed argument. Other types count as absent.
func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key].(string)
	return v, ok
}

// intArg returns an integral argument given as a JSON number or a numeric
// string. Values outside the int32 range and anything else count as absent.
func intArg(args map[string]any, key string) *int {
	var f float64
	switch v := args[key].(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return boundedInt(float64(i))
		}
		parsed, err := v.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil
		}
		f = float64(i)
	default:
		return nil
	}
	return boundedInt(f)
}

func boundedInt(f float64) *int {
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return nil
	}
	return session.Ptr(int(f))
}
