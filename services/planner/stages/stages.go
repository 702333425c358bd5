// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stages wraps each generative planning worker in a Stage with
// a uniform defensive contract.
//
// A stage never returns an error for "bad but parseable" worker output:
// empty arrays, null payloads, and schema drift become a failing
// checkpoint with human-readable issues, and the result defaults to an
// empty shape so callers can inspect it without nil checks. The only
// errors a stage surfaces are transport-level failures from the worker
// client (unreachable, timeout, broken stream).
package stages

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianPlanner/services/planner/datatypes"
)

// Stage names double as checkpoint phase labels and event agent names.
const (
	StageIntentExtraction = "intent_extraction"
	StageUserContext      = "user_context"
	StageGoalPlanning     = "goal_planning"
	StageTaskBreakdown    = "task_breakdown"
	StageScheduler        = "scheduler"
	StagePrioritizer      = "prioritizer"
	StageOptimizer        = "optimizer"
	StageQA               = "qa"
)

// pass builds a passing checkpoint, optionally with warnings.
func pass(phase string, warnings ...string) datatypes.Checkpoint {
	return datatypes.Checkpoint{
		Phase:       phase,
		IsValid:     true,
		CanContinue: true,
		Warnings:    warnings,
	}
}

// fail builds a hard-failing checkpoint.
func fail(phase string, issues ...string) datatypes.Checkpoint {
	return datatypes.Checkpoint{
		Phase:          phase,
		CriticalIssues: issues,
	}
}

// degraded builds a checkpoint that flags invalid output while still
// allowing the run to continue. Used by non-gating stages whose failure
// is cheaper to report than to abort on.
func degraded(phase string, issues ...string) datatypes.Checkpoint {
	return datatypes.Checkpoint{
		Phase:          phase,
		CanContinue:    true,
		CriticalIssues: issues,
	}
}

// decode unmarshals a worker payload, translating absence and
// malformation into issue strings instead of errors.
func decode(raw json.RawMessage, v any) []string {
	if len(raw) == 0 {
		return []string{"worker returned an empty payload"}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return []string{fmt.Sprintf("worker payload does not match schema: %v", err)}
	}
	return nil
}

// stageLogger returns logger or the process default.
func stageLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
