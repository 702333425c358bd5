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

// IntentStage extracts structured intent from the caller's free-form prompt.
//
// # Description
//
// Sends the prompt and declared domain to the intent-extraction worker and
// decodes the response into a ParsedIntent. A payload with no summary is a
// hard failure: every downstream stage conditions on the intent, so there
// is nothing useful to plan from.
type IntentStage struct {
	Worker worker.Client
	Logger *slog.Logger
}

func (s *IntentStage) Run(ctx context.Context, pc *datatypes.PlanningContext) (*datatypes.ParsedIntent, datatypes.Checkpoint, error) {
	raw, err := worker.Invoke(ctx, s.Worker, worker.Request{
		Stage: StageIntentExtraction,
		Payload: map[string]any{
			"prompt": pc.Prompt,
			"domain": pc.Domain,
		},
	})
	if err != nil {
		return nil, datatypes.Checkpoint{Phase: StageIntentExtraction}, err
	}

	intent := &datatypes.ParsedIntent{}
	if issues := decode(raw, intent); issues != nil {
		return intent, fail(StageIntentExtraction, issues...), nil
	}
	if intent.Summary == "" {
		return intent, fail(StageIntentExtraction, "intent has no summary"), nil
	}

	cp := pass(StageIntentExtraction)
	if intent.Domain == "" {
		intent.Domain = pc.Domain
		cp.Warnings = append(cp.Warnings, "worker omitted domain, using request domain")
	}
	stageLogger(s.Logger).DebugContext(ctx, "intent extracted",
		slog.String("domain", intent.Domain),
		slog.Int("key_outcomes", len(intent.KeyOutcomes)))
	return intent, cp, nil
}

// UserContextStage captures a snapshot of the user's availability and
// preferences. It runs alongside intent extraction and its verdict does
// not gate the run: a thin or empty snapshot degrades scheduling quality
// but never blocks planning.
type UserContextStage struct {
	Worker worker.Client
	Logger *slog.Logger
}

func (s *UserContextStage) Run(ctx context.Context, pc *datatypes.PlanningContext) (*datatypes.UserSnapshot, datatypes.Checkpoint, error) {
	raw, err := worker.Invoke(ctx, s.Worker, worker.Request{
		Stage: StageUserContext,
		Payload: map[string]any{
			"user_id": pc.UserID,
			"domain":  pc.Domain,
		},
	})
	if err != nil {
		return nil, datatypes.Checkpoint{Phase: StageUserContext}, err
	}

	snap := &datatypes.UserSnapshot{}
	if issues := decode(raw, snap); issues != nil {
		return snap, fail(StageUserContext, issues...), nil
	}

	cp := pass(StageUserContext)
	if snap.UserID == "" {
		snap.UserID = pc.UserID
	}
	if snap.WeeklyHours <= 0 {
		cp.Warnings = append(cp.Warnings, "snapshot has no weekly availability")
	}
	return snap, cp, nil
}
