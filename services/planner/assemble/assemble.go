// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package assemble builds the final plan from an accumulated planning
// context after every phase has joined.
package assemble

import (
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianPlanner/services/planner/datatypes"
)

// BuildPlan assembles the final plan from the context.
//
// # Description
//
// The title derives from the first goal, totals from the reconciled task
// list, and the schedule from the optimized output when the optimizer
// produced one, else the raw scheduled output. The context must already
// be reconciled; BuildPlan copies ids verbatim.
//
// # Inputs
//
//   - pc: accumulated context. Nil sub-results are tolerated and yield
//     empty slices on the plan.
//
// # Outputs
//
//   - *GeneratedPlan: never nil.
func BuildPlan(pc *datatypes.PlanningContext) *datatypes.GeneratedPlan {
	plan := &datatypes.GeneratedPlan{
		ID:        uuid.NewString(),
		Domain:    pc.Domain,
		CreatedAt: time.Now().UTC(),
	}

	if pc.GoalPlan != nil {
		plan.Goals = pc.GoalPlan.Goals
		if len(plan.Goals) > 0 {
			plan.Title = plan.Goals[0].Title
		}
	}
	if plan.Title == "" && pc.Intent != nil {
		plan.Title = pc.Intent.Summary
	}

	if pc.Breakdown != nil {
		plan.Tasks = pc.Breakdown.Tasks
		plan.TotalTasks = len(plan.Tasks)
		for _, t := range plan.Tasks {
			plan.TotalEstimatedMinutes += t.EstimatedMinutes
		}
	}

	switch {
	case pc.Optimized != nil && len(pc.Optimized.Blocks) > 0:
		plan.Schedule = pc.Optimized.Blocks
	case pc.Schedule != nil:
		plan.Schedule = pc.Schedule.Blocks
	}

	if pc.Quality != nil {
		plan.QualityScore = pc.Quality.Score
	}
	return plan
}
