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
	"github.com/AleutianAI/ShiftAssist/services/llm"
	"github.com/AleutianAI/ShiftAssist/services/session"
)

// SelectTools returns the tool catalog visible to the model for this turn.
//
// Description:
//
//	Both roles see the same three tool names. Employees get self-scoped
//	variants with no employee id parameters. Admins additionally get an
//	integer employee id parameter on the requested and assigned tools,
//	where -1 means every employee. A fresh slice is built on every call.
//
// Inputs:
//   - cfg: Per-turn identity. Only AdminMode is consulted.
//
// Outputs:
//   - []llm.ToolDef: Three strict tool definitions in a fixed order.
//
// Thread Safety: Pure function, safe for concurrent use.
func SelectTools(cfg session.SessionConfig) []llm.ToolDef {
	if cfg.AdminMode {
		return []llm.ToolDef{availableTool(), requestedToolAdmin(), assignedToolAdmin()}
	}
	return []llm.ToolDef{availableTool(), requestedTool(), assignedTool()}
}

func availableTool() llm.ToolDef {
	dateParam := func(what string) llm.ToolParamDef {
		return llm.ToolParamDef{
			Type:        "string",
			Description: what + " (format: YYYY-MM-DD), or 'all' to include all shifts.",
		}
	}
	timeParam := func(what string) llm.ToolParamDef {
		return llm.ToolParamDef{
			Type:        "string",
			Description: what + " (format: HH:mm:ss), or 'all' to include all shifts.",
		}
	}
	return strictTool(ToolAvailableShifts,
		"Query the database for available shift slots based on optional filtering by date and time ranges.",
		map[string]llm.ToolParamDef{
			"shift_date":         dateParam("Exact date of the shift to retrieve"),
			"shift_start_date":   dateParam("Earliest date to consider for the start of a shift"),
			"shift_end_date":     dateParam("Latest date to consider for the end of a shift"),
			"shift_start_before": timeParam("Only include shifts that start before this time"),
			"shift_start_after":  timeParam("Only include shifts that start after this time"),
			"shift_end_before":   timeParam("Only include shifts that end before this time"),
			"shift_end_after":    timeParam("Only include shifts that end after this time"),
		},
	)
}

func requestStatusParam() llm.ToolParamDef {
	return llm.ToolParamDef{
		Type:        "string",
		Enum:        []any{"pending", "approved", "denied", AllValue},
		Description: "Status of the shift request: pending, approved or denied. Pass 'all' to include every status.",
	}
}

func requestedTool() llm.ToolDef {
	return strictTool(ToolRequestedShifts,
		"Query the database for your requested shift slots based on optional filtering by request status.",
		map[string]llm.ToolParamDef{
			paramRequestStatus: requestStatusParam(),
		},
	)
}

func requestedToolAdmin() llm.ToolDef {
	return strictTool(ToolRequestedShifts,
		"Query the database for requested shift slots based on optional filtering by request status and employee id.",
		map[string]llm.ToolParamDef{
			paramRequestStatus: requestStatusParam(),
			paramRequestEmployeeID: {
				Type:        "integer",
				Description: "The ID of the employee who made the request. Pass -1 to include all employees.",
			},
		},
	)
}

func assignedTool() llm.ToolDef {
	return strictTool(ToolAssignedShifts,
		"Query the database for your assigned shift slots.",
		nil,
	)
}

func assignedToolAdmin() llm.ToolDef {
	return strictTool(ToolAssignedShifts,
		"Query the database for assigned shift slots, optionally filtered by employee ID.",
		map[string]llm.ToolParamDef{
			paramAssignedEmployeeID: {
				Type:        "integer",
				Description: "The ID of the employee whose assigned shifts to list. Pass -1 to include all employees.",
			},
		},
	)
}

func strictTool(name, description string, props map[string]llm.ToolParamDef) llm.ToolDef {
	return llm.ToolDef{
		Type:        "function",
		Name:        name,
		Description: description,
		Parameters:  llm.NewStrictParameters(props),
		Strict:      true,
	}
}
