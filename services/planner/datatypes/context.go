// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// PlanningContext accumulates stage results over one orchestration run.
//
// Fields are nil until their producing phase completes. The context is
// owned exclusively by the pipeline for the run's lifetime: exactly one
// phase writes it at a time, so no locking is needed inside a run. It is
// never persisted directly; a resumed run rehydrates it from the
// resilience store's per-phase results.
type PlanningContext struct {
	UserID string `json:"user_id"`
	Domain string `json:"domain"`

	// Prompt is the caller's free-form planning request.
	Prompt string `json:"prompt"`

	Intent         *ParsedIntent         `json:"intent,omitempty"`
	Snapshot       *UserSnapshot         `json:"snapshot,omitempty"`
	GoalPlan       *GoalPlan             `json:"goal_plan,omitempty"`
	Breakdown      *TaskBreakdown        `json:"breakdown,omitempty"`
	Schedule       *ScheduleResult       `json:"schedule,omitempty"`
	Prioritization *PrioritizationResult `json:"prioritization,omitempty"`
	Optimized      *OptimizedSchedule    `json:"optimized,omitempty"`
	Quality        *QualityReport        `json:"quality,omitempty"`
}

// Checkpoint is a stage's pass/fail verdict with structured issues.
//
// Immutable once produced. IsValid == false conventionally implies
// CanContinue == false, but a stage may report IsValid=false with
// CanContinue=true to signal "proceed with degraded confidence". Gates
// honor CanContinue literally and never infer it from IsValid.
type Checkpoint struct {
	Phase          string   `json:"phase"`
	IsValid        bool     `json:"is_valid"`
	CriticalIssues []string `json:"critical_issues,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
	CanContinue    bool     `json:"can_continue"`
}

// OrchestrationResult is returned for every run, successful or not.
//
// On failure Plan is nil but Context holds everything produced before the
// abort and Checkpoints lists every verdict collected so far, so callers
// can inspect how far the run progressed. On success the checkpoint list
// still matters: non-gating phases may carry failing checkpoints, which is
// how "succeeded with warnings" is distinguished from "succeeded cleanly".
type OrchestrationResult struct {
	RunID   string `json:"run_id"`
	Success bool   `json:"success"`

	Plan        *GeneratedPlan   `json:"plan,omitempty"`
	Context     *PlanningContext `json:"context,omitempty"`
	Checkpoints []Checkpoint     `json:"checkpoints"`

	// PhaseDurations records wall time per completed phase, in milliseconds.
	PhaseDurations map[string]int64 `json:"phase_durations_ms,omitempty"`

	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
