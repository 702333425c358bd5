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

// minAcceptableQuality is the QA score below which the report is flagged
// as degraded. The run still completes; the score travels on the plan.
const minAcceptableQuality = 0.5

// OptimizerStage rebalances the raw schedule against the prioritization.
//
// Optimization is strictly additive: when the worker returns nothing
// usable the stage reports a degraded checkpoint and the pipeline falls
// back to the raw schedule, so a nil result here never costs the run.
type OptimizerStage struct {
	Worker worker.Client
	Logger *slog.Logger
}

func (s *OptimizerStage) Run(ctx context.Context, pc *datatypes.PlanningContext) (*datatypes.OptimizedSchedule, datatypes.Checkpoint, error) {
	raw, err := worker.Invoke(ctx, s.Worker, worker.Request{
		Stage: StageOptimizer,
		Payload: map[string]any{
			"schedule":       pc.Schedule,
			"prioritization": pc.Prioritization,
		},
	})
	if err != nil {
		return nil, datatypes.Checkpoint{Phase: StageOptimizer}, err
	}

	opt := &datatypes.OptimizedSchedule{}
	if issues := decode(raw, opt); issues != nil {
		return opt, degraded(StageOptimizer, issues...), nil
	}
	if len(opt.Blocks) == 0 {
		return opt, degraded(StageOptimizer, "optimizer returned no blocks, keeping raw schedule"), nil
	}
	return opt, pass(StageOptimizer), nil
}

// QAStage scores the assembled plan for coherence and coverage.
type QAStage struct {
	Worker worker.Client
	Logger *slog.Logger
}

func (s *QAStage) Run(ctx context.Context, pc *datatypes.PlanningContext) (*datatypes.QualityReport, datatypes.Checkpoint, error) {
	raw, err := worker.Invoke(ctx, s.Worker, worker.Request{
		Stage: StageQA,
		Payload: map[string]any{
			"intent":    pc.Intent,
			"goal_plan": pc.GoalPlan,
			"breakdown": pc.Breakdown,
			"schedule":  pc.Schedule,
		},
	})
	if err != nil {
		return nil, datatypes.Checkpoint{Phase: StageQA}, err
	}

	report := &datatypes.QualityReport{}
	if issues := decode(raw, report); issues != nil {
		return report, fail(StageQA, issues...), nil
	}

	if report.Score < minAcceptableQuality {
		issues := append([]string{fmt.Sprintf("quality score %.2f below %.2f", report.Score, minAcceptableQuality)}, report.Issues...)
		return report, degraded(StageQA, issues...), nil
	}

	cp := pass(StageQA)
	cp.Warnings = append(cp.Warnings, report.Issues...)
	stageLogger(s.Logger).DebugContext(ctx, "plan scored",
		slog.Float64("score", report.Score))
	return report, cp, nil
}
