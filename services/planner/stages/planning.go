// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stages

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianPlanner/services/planner/datatypes"
	"github.com/AleutianAI/AleutianPlanner/services/worker"
)

// GoalPlanningStage turns the parsed intent into goals with milestones.
//
// # Description
//
// The worker invents its own ids for goals and milestones; this stage
// returns them untouched. Reconciliation of those ids is the pipeline's
// responsibility and MUST happen before task breakdown consumes the plan.
type GoalPlanningStage struct {
	Worker worker.Client
	Logger *slog.Logger
}

func (s *GoalPlanningStage) Run(ctx context.Context, pc *datatypes.PlanningContext) (*datatypes.GoalPlan, datatypes.Checkpoint, error) {
	raw, err := worker.Invoke(ctx, s.Worker, worker.Request{
		Stage: StageGoalPlanning,
		Payload: map[string]any{
			"intent":   pc.Intent,
			"snapshot": pc.Snapshot,
		},
	})
	if err != nil {
		return nil, datatypes.Checkpoint{Phase: StageGoalPlanning}, err
	}

	plan := &datatypes.GoalPlan{}
	if issues := decode(raw, plan); issues != nil {
		return plan, fail(StageGoalPlanning, issues...), nil
	}
	if len(plan.Goals) == 0 {
		return plan, fail(StageGoalPlanning, "worker produced no goals"), nil
	}

	cp := pass(StageGoalPlanning)
	for i, g := range plan.Goals {
		if g.Title == "" {
			cp.Warnings = append(cp.Warnings, fmt.Sprintf("goal %d has no title", i+1))
		}
		if len(g.Milestones) == 0 {
			cp.Warnings = append(cp.Warnings, fmt.Sprintf("goal %d has no milestones", i+1))
		}
	}
	stageLogger(s.Logger).DebugContext(ctx, "goal plan produced",
		slog.Int("goals", len(plan.Goals)))
	return plan, cp, nil
}

// TaskBreakdownStage decomposes the reconciled goal plan into tasks.
//
// The goal plan handed to the worker already carries stable goal and
// milestone ids, but the worker is free to echo them back mangled or to
// reference goals by position. Output ids are therefore still treated as
// ephemeral; the pipeline reconciles them in a second pass.
type TaskBreakdownStage struct {
	Worker worker.Client
	Logger *slog.Logger
}

func (s *TaskBreakdownStage) Run(ctx context.Context, pc *datatypes.PlanningContext) (*datatypes.TaskBreakdown, datatypes.Checkpoint, error) {
	raw, err := worker.Invoke(ctx, s.Worker, worker.Request{
		Stage: StageTaskBreakdown,
		Payload: map[string]any{
			"goal_plan": pc.GoalPlan,
			"intent":    pc.Intent,
		},
	})
	if err != nil {
		return nil, datatypes.Checkpoint{Phase: StageTaskBreakdown}, err
	}

	bd := &datatypes.TaskBreakdown{}
	if issues := decode(raw, bd); issues != nil {
		return bd, fail(StageTaskBreakdown, issues...), nil
	}
	if len(bd.Tasks) == 0 {
		return bd, fail(StageTaskBreakdown, "worker produced no tasks"), nil
	}

	cp := pass(StageTaskBreakdown)
	missing := 0
	for _, t := range bd.Tasks {
		if t.EstimatedMinutes <= 0 {
			missing++
		}
	}
	if missing > 0 {
		cp.Warnings = append(cp.Warnings,
			fmt.Sprintf("%d of %d tasks have no time estimate", missing, len(bd.Tasks)))
	}
	stageLogger(s.Logger).DebugContext(ctx, "task breakdown produced",
		slog.Int("tasks", len(bd.Tasks)))
	return bd, cp, nil
}
