// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stages

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianPlanner/services/planner/datatypes"
	"github.com/AleutianAI/AleutianPlanner/services/worker"
)

// fakeWorker returns a canned payload or error and records the request.
type fakeWorker struct {
	payload json.RawMessage
	err     error
	lastReq worker.Request
}

func (f *fakeWorker) Generate(_ context.Context, req worker.Request) (json.RawMessage, error) {
	f.lastReq = req
	return f.payload, f.err
}

func baseContext() *datatypes.PlanningContext {
	return &datatypes.PlanningContext{
		UserID: "user-1",
		Domain: "fitness",
		Prompt: "get ready for a 10k in 12 weeks",
	}
}

func TestIntentStage_HappyPath(t *testing.T) {
	fw := &fakeWorker{payload: json.RawMessage(`{"domain":"fitness","summary":"train for a 10k","horizon_weeks":12}`)}
	st := &IntentStage{Worker: fw}

	intent, cp, err := st.Run(context.Background(), baseContext())
	require.NoError(t, err)
	assert.True(t, cp.IsValid)
	assert.True(t, cp.CanContinue)
	assert.Equal(t, StageIntentExtraction, cp.Phase)
	assert.Equal(t, "train for a 10k", intent.Summary)
	assert.Equal(t, StageIntentExtraction, fw.lastReq.Stage)
}

func TestIntentStage_EmptyPayloadFailsCheckpoint(t *testing.T) {
	st := &IntentStage{Worker: &fakeWorker{payload: nil}}

	intent, cp, err := st.Run(context.Background(), baseContext())
	require.NoError(t, err, "empty output is a checkpoint failure, not an error")
	require.NotNil(t, intent, "result must be a zero value, never nil")
	assert.False(t, cp.IsValid)
	assert.False(t, cp.CanContinue)
	assert.NotEmpty(t, cp.CriticalIssues)
}

func TestIntentStage_MalformedPayloadFailsCheckpoint(t *testing.T) {
	st := &IntentStage{Worker: &fakeWorker{payload: json.RawMessage(`{"summary": 7}`)}}

	_, cp, err := st.Run(context.Background(), baseContext())
	require.NoError(t, err)
	assert.False(t, cp.CanContinue)
}

func TestIntentStage_MissingSummaryFails(t *testing.T) {
	st := &IntentStage{Worker: &fakeWorker{payload: json.RawMessage(`{"domain":"fitness"}`)}}

	_, cp, err := st.Run(context.Background(), baseContext())
	require.NoError(t, err)
	assert.False(t, cp.CanContinue)
	assert.Contains(t, cp.CriticalIssues, "intent has no summary")
}

func TestIntentStage_DomainDefaultsToRequest(t *testing.T) {
	st := &IntentStage{Worker: &fakeWorker{payload: json.RawMessage(`{"summary":"train"}`)}}

	intent, cp, err := st.Run(context.Background(), baseContext())
	require.NoError(t, err)
	assert.True(t, cp.IsValid)
	assert.Equal(t, "fitness", intent.Domain)
	assert.NotEmpty(t, cp.Warnings)
}

func TestIntentStage_TransportError(t *testing.T) {
	st := &IntentStage{Worker: &fakeWorker{err: errors.New("connection refused")}}

	_, _, err := st.Run(context.Background(), baseContext())
	require.Error(t, err)
}

func TestUserContextStage_ThinSnapshotWarnsButPasses(t *testing.T) {
	st := &UserContextStage{Worker: &fakeWorker{payload: json.RawMessage(`{}`)}}

	snap, cp, err := st.Run(context.Background(), baseContext())
	require.NoError(t, err)
	assert.True(t, cp.IsValid, "a thin snapshot must not block the run")
	assert.True(t, cp.CanContinue)
	assert.NotEmpty(t, cp.Warnings)
	assert.Equal(t, "user-1", snap.UserID, "missing user id backfilled from request")
}

func TestGoalPlanningStage_NoGoalsFails(t *testing.T) {
	st := &GoalPlanningStage{Worker: &fakeWorker{payload: json.RawMessage(`{"goals":[]}`)}}

	plan, cp, err := st.Run(context.Background(), baseContext())
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.False(t, cp.CanContinue)
}

func TestGoalPlanningStage_MilestonelessGoalWarns(t *testing.T) {
	fw := &fakeWorker{payload: json.RawMessage(`{"goals":[{"id":"g1","title":"Base fitness","milestones":[]}]}`)}
	st := &GoalPlanningStage{Worker: fw}

	plan, cp, err := st.Run(context.Background(), baseContext())
	require.NoError(t, err)
	assert.True(t, cp.IsValid)
	assert.Len(t, plan.Goals, 1)
	assert.NotEmpty(t, cp.Warnings)
}

func TestTaskBreakdownStage_PassesReconciledPlanToWorker(t *testing.T) {
	fw := &fakeWorker{payload: json.RawMessage(`{"tasks":[{"id":"t1","title":"Run 5k","goal_id":"goal-abc","estimated_minutes":40}]}`)}
	st := &TaskBreakdownStage{Worker: fw}

	pc := baseContext()
	pc.GoalPlan = &datatypes.GoalPlan{Goals: []datatypes.Goal{{ID: "goal-abc", Title: "Base"}}}

	bd, cp, err := st.Run(context.Background(), pc)
	require.NoError(t, err)
	assert.True(t, cp.IsValid)
	assert.Len(t, bd.Tasks, 1)

	payload, ok := fw.lastReq.Payload.(map[string]any)
	require.True(t, ok)
	assert.Same(t, pc.GoalPlan, payload["goal_plan"], "worker must see the reconciled plan")
}

func TestTaskBreakdownStage_MissingEstimatesWarn(t *testing.T) {
	fw := &fakeWorker{payload: json.RawMessage(`{"tasks":[{"id":"t1","title":"a","goal_id":"g"},{"id":"t2","title":"b","goal_id":"g","estimated_minutes":30}]}`)}
	st := &TaskBreakdownStage{Worker: fw}

	_, cp, err := st.Run(context.Background(), baseContext())
	require.NoError(t, err)
	assert.True(t, cp.IsValid)
	assert.Contains(t, cp.Warnings[0], "1 of 2 tasks")
}

func TestSchedulerStage_NoBlocksFailsCheckpoint(t *testing.T) {
	st := &SchedulerStage{Worker: &fakeWorker{payload: json.RawMessage(`{"blocks":[]}`)}}

	sched, cp, err := st.Run(context.Background(), baseContext())
	require.NoError(t, err)
	require.NotNil(t, sched)
	assert.False(t, cp.IsValid)
	assert.False(t, cp.CanContinue)
}

func TestPrioritizerStage_EmptyRankingFails(t *testing.T) {
	st := &PrioritizerStage{Worker: &fakeWorker{payload: json.RawMessage(`{"ranked_task_ids":[]}`)}}

	_, cp, err := st.Run(context.Background(), baseContext())
	require.NoError(t, err)
	assert.False(t, cp.CanContinue)
}

func TestOptimizerStage_EmptyOutputIsDegradedNotFatal(t *testing.T) {
	st := &OptimizerStage{Worker: &fakeWorker{payload: nil}}

	opt, cp, err := st.Run(context.Background(), baseContext())
	require.NoError(t, err)
	require.NotNil(t, opt)
	assert.False(t, cp.IsValid)
	assert.True(t, cp.CanContinue, "optimizer failure must not cost the run")
}

func TestQAStage_LowScoreIsDegraded(t *testing.T) {
	st := &QAStage{Worker: &fakeWorker{payload: json.RawMessage(`{"score":0.2,"issues":["schedule over capacity"]}`)}}

	report, cp, err := st.Run(context.Background(), baseContext())
	require.NoError(t, err)
	assert.InDelta(t, 0.2, report.Score, 1e-9)
	assert.False(t, cp.IsValid)
	assert.True(t, cp.CanContinue)
	assert.Contains(t, cp.CriticalIssues, "schedule over capacity")
}

func TestQAStage_GoodScorePassesWithIssuesAsWarnings(t *testing.T) {
	st := &QAStage{Worker: &fakeWorker{payload: json.RawMessage(`{"score":0.9,"issues":["minor overlap on tuesday"]}`)}}

	_, cp, err := st.Run(context.Background(), baseContext())
	require.NoError(t, err)
	assert.True(t, cp.IsValid)
	assert.Contains(t, cp.Warnings, "minor overlap on tuesday")
}
