// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stages

import (
	"context"
	"log/slog"

	"github.com/AleutianAI/AleutianPlanner/services/planner/datatypes"
	"github.com/AleutianAI/AleutianPlanner/services/worker"
)

// SchedulerStage lays the reconciled tasks out on a calendar.
//
// Runs in the scheduling phase, where failures are isolated: a bad or
// empty schedule produces a failing checkpoint but the sibling
// prioritizer still completes and its verdict is still recorded.
type SchedulerStage struct {
	Worker worker.Client
	Logger *slog.Logger
}

func (s *SchedulerStage) Run(ctx context.Context, pc *datatypes.PlanningContext) (*datatypes.ScheduleResult, datatypes.Checkpoint, error) {
	var tasks []datatypes.Task
	if pc.Breakdown != nil {
		tasks = pc.Breakdown.Tasks
	}
	raw, err := worker.Invoke(ctx, s.Worker, worker.Request{
		Stage: StageScheduler,
		Payload: map[string]any{
			"tasks":    tasks,
			"snapshot": pc.Snapshot,
		},
	})
	if err != nil {
		return nil, datatypes.Checkpoint{Phase: StageScheduler}, err
	}

	sched := &datatypes.ScheduleResult{}
	if issues := decode(raw, sched); issues != nil {
		return sched, fail(StageScheduler, issues...), nil
	}
	if len(sched.Blocks) == 0 {
		return sched, fail(StageScheduler, "worker produced no time blocks"), nil
	}

	stageLogger(s.Logger).DebugContext(ctx, "schedule produced",
		slog.Int("blocks", len(sched.Blocks)))
	return sched, pass(StageScheduler), nil
}

// PrioritizerStage ranks the reconciled tasks by urgency and impact.
type PrioritizerStage struct {
	Worker worker.Client
	Logger *slog.Logger
}

func (s *PrioritizerStage) Run(ctx context.Context, pc *datatypes.PlanningContext) (*datatypes.PrioritizationResult, datatypes.Checkpoint, error) {
	var tasks []datatypes.Task
	if pc.Breakdown != nil {
		tasks = pc.Breakdown.Tasks
	}
	raw, err := worker.Invoke(ctx, s.Worker, worker.Request{
		Stage:   StagePrioritizer,
		Payload: map[string]any{"tasks": tasks},
	})
	if err != nil {
		return nil, datatypes.Checkpoint{Phase: StagePrioritizer}, err
	}

	pr := &datatypes.PrioritizationResult{}
	if issues := decode(raw, pr); issues != nil {
		return pr, fail(StagePrioritizer, issues...), nil
	}
	if len(pr.RankedTaskIDs) == 0 {
		return pr, fail(StagePrioritizer, "worker produced an empty ranking"), nil
	}
	return pr, pass(StagePrioritizer), nil
}
