// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reconcile

import (
	"fmt"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianPlanner/services/planner/datatypes"
)

// seqIDs returns a deterministic id generator for tests.
func seqIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%04d", prefix, n)
	}
}

func twoMilestonePlan() *datatypes.GoalPlan {
	return &datatypes.GoalPlan{
		Goals: []datatypes.Goal{
			{
				ID:    "goal_1",
				Title: "Run a half marathon",
				Milestones: []datatypes.Milestone{
					{ID: "milestone_1", Title: "10k base", DueInDays: 10},
					{ID: "milestone_2", Title: "Race ready", DueInDays: 30},
				},
			},
		},
		PriorityRanking: []string{"goal_1"},
	}
}

// TestScenario_MilestonePositionsAndDependencies is the end-to-end
// reconciliation scenario: one goal, two milestones, three tasks with
// milestone indices [1,1,2], task 3 depending on task 1 by ephemeral id.
func TestScenario_MilestonePositionsAndDependencies(t *testing.T) {
	e := New(nil, WithIDGenerator(seqIDs("stable")))

	plan := twoMilestonePlan()
	e.NormalizeGoalPlan(plan)

	bd := &datatypes.TaskBreakdown{
		Tasks: []datatypes.Task{
			{ID: "task_a", Title: "Base runs", GoalID: "goal_1", MilestoneIndex: 1},
			{ID: "task_b", Title: "Tempo runs", GoalID: "goal_1", MilestoneIndex: 1},
			{ID: "task_c", Title: "Taper", GoalID: "goal_1", MilestoneIndex: 2, Dependencies: []string{"task_a"}},
		},
	}
	e.NormalizeTasks(plan, bd)

	ms1 := plan.Goals[0].Milestones[0].ID
	ms2 := plan.Goals[0].Milestones[1].ID

	if bd.Tasks[0].MilestoneID != ms1 {
		t.Errorf("task 1 milestone = %q, want %q", bd.Tasks[0].MilestoneID, ms1)
	}
	if bd.Tasks[1].MilestoneID != ms1 {
		t.Errorf("task 2 milestone = %q, want %q", bd.Tasks[1].MilestoneID, ms1)
	}
	if bd.Tasks[2].MilestoneID != ms2 {
		t.Errorf("task 3 milestone = %q, want %q", bd.Tasks[2].MilestoneID, ms2)
	}

	if got := bd.Tasks[2].Dependencies[0]; got != bd.Tasks[0].ID {
		t.Errorf("task 3 dependency = %q, want task 1's stable id %q", got, bd.Tasks[0].ID)
	}
	if strings.Contains(bd.Tasks[2].Dependencies[0], "task_a") {
		t.Error("ephemeral id leaked into dependency list")
	}

	for i, task := range bd.Tasks {
		if task.GoalID != plan.Goals[0].ID {
			t.Errorf("task %d goal = %q, want stable goal id %q", i+1, task.GoalID, plan.Goals[0].ID)
		}
	}
}

// TestGoalScopedMilestoneCollision verifies that identically-numbered
// milestones from different goals never cross-resolve.
func TestGoalScopedMilestoneCollision(t *testing.T) {
	e := New(nil, WithIDGenerator(seqIDs("stable")))

	plan := &datatypes.GoalPlan{
		Goals: []datatypes.Goal{
			{
				ID: "goal_a",
				Milestones: []datatypes.Milestone{
					{ID: "milestone_1", Title: "A first"},
				},
			},
			{
				ID: "goal_b",
				Milestones: []datatypes.Milestone{
					{ID: "milestone_1", Title: "B first"},
				},
			},
		},
	}
	e.NormalizeGoalPlan(plan)

	msA := plan.Goals[0].Milestones[0].ID
	msB := plan.Goals[1].Milestones[0].ID
	if msA == msB {
		t.Fatal("milestones of different goals share a stable id")
	}

	bd := &datatypes.TaskBreakdown{
		Tasks: []datatypes.Task{
			{ID: "t1", GoalID: "goal_a", MilestoneIndex: 1},
			{ID: "t2", GoalID: "goal_b", MilestoneIndex: 1},
		},
	}
	e.NormalizeTasks(plan, bd)

	if bd.Tasks[0].MilestoneID != msA {
		t.Errorf("goal A task resolved to %q, want %q", bd.Tasks[0].MilestoneID, msA)
	}
	if bd.Tasks[1].MilestoneID != msB {
		t.Errorf("goal B task resolved to %q, want %q", bd.Tasks[1].MilestoneID, msB)
	}
	if bd.Tasks[0].MilestoneID == bd.Tasks[1].MilestoneID {
		t.Error("tasks under different goals resolved to the same milestone")
	}
}

// TestNormalizeTasks_StableGoalIDResolves covers the pass-2 worker
// contract: task breakdown consumes the reconciled goal plan, so a
// conforming worker references goals by their stable ids. Those ids
// must resolve directly, never through the first-goal fallback.
func TestNormalizeTasks_StableGoalIDResolves(t *testing.T) {
	e := New(nil, WithIDGenerator(seqIDs("stable")))

	plan := &datatypes.GoalPlan{
		Goals: []datatypes.Goal{
			{
				ID: "goal_a",
				Milestones: []datatypes.Milestone{
					{ID: "milestone_1", Title: "A first"},
				},
			},
			{
				ID: "goal_b",
				Milestones: []datatypes.Milestone{
					{ID: "milestone_1", Title: "B first"},
				},
			},
		},
	}
	e.NormalizeGoalPlan(plan)

	goalB := plan.Goals[1].ID
	msB := plan.Goals[1].Milestones[0].ID

	bd := &datatypes.TaskBreakdown{
		Tasks: []datatypes.Task{
			{ID: "t1", GoalID: goalB, MilestoneIndex: 1},
		},
	}
	e.NormalizeTasks(plan, bd)

	if bd.Tasks[0].GoalID != goalB {
		t.Errorf("task goal = %q, want goal B's stable id %q", bd.Tasks[0].GoalID, goalB)
	}
	if bd.Tasks[0].MilestoneID != msB {
		t.Errorf("task milestone = %q, want goal B's milestone %q", bd.Tasks[0].MilestoneID, msB)
	}
	if bd.Tasks[0].MilestoneID == plan.Goals[0].Milestones[0].ID {
		t.Error("task attributed to goal A's milestone via first-goal fallback")
	}

	// Stable milestone ids resolve under the stable goal ref too.
	if stable, ok := e.ResolveMilestone(MilestoneKey{GoalRef: goalB, Ref: msB}); !ok || stable != msB {
		t.Errorf("ResolveMilestone(stable, stable) = %q, %v; want %q, true", stable, ok, msB)
	}
}

// TestBarePositionalKey_FirstGoalWins pins the deterministic fallback
// for milestone lookups that arrive without goal context.
func TestBarePositionalKey_FirstGoalWins(t *testing.T) {
	e := New(nil, WithIDGenerator(seqIDs("stable")))

	plan := &datatypes.GoalPlan{
		Goals: []datatypes.Goal{
			{ID: "g1", Milestones: []datatypes.Milestone{{ID: "m", Title: "first goal's"}}},
			{ID: "g2", Milestones: []datatypes.Milestone{{ID: "m", Title: "second goal's"}}},
		},
	}
	e.NormalizeGoalPlan(plan)

	stable, ok := e.ResolveMilestone(MilestoneKey{GoalRef: "unknown_goal", Ref: "milestone_1"})
	if !ok {
		t.Fatal("bare positional key not registered")
	}
	if stable != plan.Goals[0].Milestones[0].ID {
		t.Errorf("bare milestone_1 = %q, want first goal's %q", stable, plan.Goals[0].Milestones[0].ID)
	}
}

func TestNormalizeGoalPlan_RewritesPriorityRanking(t *testing.T) {
	e := New(nil, WithIDGenerator(seqIDs("stable")))

	plan := &datatypes.GoalPlan{
		Goals: []datatypes.Goal{
			{ID: "learn_go"},
			{ID: "ship_app"},
		},
		PriorityRanking: []string{"ship_app", "goal_1", "ghost_goal"},
	}
	e.NormalizeGoalPlan(plan)

	if plan.PriorityRanking[0] != plan.Goals[1].ID {
		t.Errorf("ranking[0] = %q, want %q", plan.PriorityRanking[0], plan.Goals[1].ID)
	}
	if plan.PriorityRanking[1] != plan.Goals[0].ID {
		t.Errorf("ranking[1] = %q, want %q (positional alias)", plan.PriorityRanking[1], plan.Goals[0].ID)
	}
	// Unresolvable alias is preserved, not dropped.
	if plan.PriorityRanking[2] != "ghost_goal" {
		t.Errorf("ranking[2] = %q, want preserved alias", plan.PriorityRanking[2])
	}
}

func TestNormalizeTasks_SingleGoalFallback(t *testing.T) {
	e := New(nil, WithIDGenerator(seqIDs("stable")))

	plan := twoMilestonePlan()
	e.NormalizeGoalPlan(plan)

	bd := &datatypes.TaskBreakdown{
		Tasks: []datatypes.Task{
			{ID: "t1", GoalID: "some_invented_goal", MilestoneIndex: 1},
		},
	}
	e.NormalizeTasks(plan, bd)

	if bd.Tasks[0].GoalID != plan.Goals[0].ID {
		t.Errorf("goal = %q, want single-goal fallback %q", bd.Tasks[0].GoalID, plan.Goals[0].ID)
	}
}

func TestNormalizeTasks_MilestoneIndexOutOfRange(t *testing.T) {
	e := New(nil, WithIDGenerator(seqIDs("stable")))

	plan := twoMilestonePlan()
	e.NormalizeGoalPlan(plan)

	bd := &datatypes.TaskBreakdown{
		Tasks: []datatypes.Task{
			{ID: "t1", GoalID: "goal_1", MilestoneIndex: 7},
			{ID: "t2", GoalID: "goal_1"}, // index 0: also out of range
		},
	}
	e.NormalizeTasks(plan, bd)

	first := plan.Goals[0].Milestones[0].ID
	if bd.Tasks[0].MilestoneID != first {
		t.Errorf("out-of-range index resolved to %q, want first milestone %q", bd.Tasks[0].MilestoneID, first)
	}
	if bd.Tasks[1].MilestoneID != first {
		t.Errorf("zero index resolved to %q, want first milestone %q", bd.Tasks[1].MilestoneID, first)
	}
}

func TestNormalizeTasks_NoMilestonesSentinel(t *testing.T) {
	e := New(nil, WithIDGenerator(seqIDs("stable")))

	plan := &datatypes.GoalPlan{
		Goals: []datatypes.Goal{{ID: "g1", Title: "Bare goal"}},
	}
	e.NormalizeGoalPlan(plan)

	bd := &datatypes.TaskBreakdown{
		Tasks: []datatypes.Task{{ID: "t1", GoalID: "g1", MilestoneIndex: 1}},
	}
	e.NormalizeTasks(plan, bd)

	if bd.Tasks[0].MilestoneID != DefaultMilestoneID {
		t.Errorf("milestone = %q, want sentinel %q", bd.Tasks[0].MilestoneID, DefaultMilestoneID)
	}
}

func TestNormalizeTasks_DanglingDependencyPreserved(t *testing.T) {
	e := New(nil, WithIDGenerator(seqIDs("stable")))

	plan := twoMilestonePlan()
	e.NormalizeGoalPlan(plan)

	bd := &datatypes.TaskBreakdown{
		Tasks: []datatypes.Task{
			{ID: "t1", GoalID: "goal_1", MilestoneIndex: 1, Dependencies: []string{"never_existed"}},
		},
	}
	e.NormalizeTasks(plan, bd)

	if bd.Tasks[0].Dependencies[0] != "never_existed" {
		t.Errorf("dangling dependency rewritten to %q, want preserved alias", bd.Tasks[0].Dependencies[0])
	}
}

func TestNormalizeTasks_RewritesGraphAndCriticalPath(t *testing.T) {
	e := New(nil, WithIDGenerator(seqIDs("stable")))

	plan := twoMilestonePlan()
	e.NormalizeGoalPlan(plan)

	bd := &datatypes.TaskBreakdown{
		Tasks: []datatypes.Task{
			{ID: "t1", GoalID: "goal_1", MilestoneIndex: 1},
			{ID: "t2", GoalID: "goal_1", MilestoneIndex: 2, Dependencies: []string{"t1"}},
		},
		DependencyGraph: map[string][]string{
			"t1": {"t2"},
		},
		CriticalPath: []string{"t1", "t2"},
	}
	e.NormalizeTasks(plan, bd)

	id1, id2 := bd.Tasks[0].ID, bd.Tasks[1].ID

	deps, ok := bd.DependencyGraph[id1]
	if !ok {
		t.Fatalf("dependency graph key not rewritten, graph: %v", bd.DependencyGraph)
	}
	if len(deps) != 1 || deps[0] != id2 {
		t.Errorf("graph[%q] = %v, want [%q]", id1, deps, id2)
	}

	if bd.CriticalPath[0] != id1 || bd.CriticalPath[1] != id2 {
		t.Errorf("critical path = %v, want [%q %q]", bd.CriticalPath, id1, id2)
	}
}

// TestIdempotentReconciliation verifies that two engines fed the same
// raw output produce isomorphic graphs: same structure, ids consistent
// under renaming.
func TestIdempotentReconciliation(t *testing.T) {
	rawPlan := func() *datatypes.GoalPlan {
		return &datatypes.GoalPlan{
			Goals: []datatypes.Goal{
				{
					ID: "goal_1",
					Milestones: []datatypes.Milestone{
						{ID: "milestone_1"}, {ID: "milestone_2"},
					},
				},
				{
					ID: "goal_2",
					Milestones: []datatypes.Milestone{
						{ID: "milestone_1"},
					},
				},
			},
			PriorityRanking: []string{"goal_2", "goal_1"},
		}
	}
	rawBD := func() *datatypes.TaskBreakdown {
		return &datatypes.TaskBreakdown{
			Tasks: []datatypes.Task{
				{ID: "a", GoalID: "goal_1", MilestoneIndex: 2},
				{ID: "b", GoalID: "goal_2", MilestoneIndex: 1, Dependencies: []string{"a"}},
			},
			CriticalPath: []string{"a", "b"},
		}
	}

	run := func(prefix string) (*datatypes.GoalPlan, *datatypes.TaskBreakdown) {
		e := New(nil, WithIDGenerator(seqIDs(prefix)))
		p, b := rawPlan(), rawBD()
		e.NormalizeGoalPlan(p)
		e.NormalizeTasks(p, b)
		return p, b
	}

	p1, b1 := run("x")
	p2, b2 := run("y")

	// Structural checks hold across both runs even though ids differ.
	for _, pair := range []struct {
		plan *datatypes.GoalPlan
		bd   *datatypes.TaskBreakdown
	}{{p1, b1}, {p2, b2}} {
		if pair.bd.Tasks[0].MilestoneID != pair.plan.Goals[0].Milestones[1].ID {
			t.Error("task a not assigned to goal 1's second milestone")
		}
		if pair.bd.Tasks[1].MilestoneID != pair.plan.Goals[1].Milestones[0].ID {
			t.Error("task b not assigned to goal 2's first milestone")
		}
		if pair.bd.Tasks[1].Dependencies[0] != pair.bd.Tasks[0].ID {
			t.Error("dependency edge lost")
		}
		if pair.bd.CriticalPath[0] != pair.bd.Tasks[0].ID ||
			pair.bd.CriticalPath[1] != pair.bd.Tasks[1].ID {
			t.Error("critical path order lost")
		}
		if pair.plan.PriorityRanking[0] != pair.plan.Goals[1].ID {
			t.Error("priority ranking order lost")
		}
	}
}

// TestNoEphemeralIDLeak confirms no positional alias survives as an id.
func TestNoEphemeralIDLeak(t *testing.T) {
	e := New(nil) // real uuid generator

	plan := twoMilestonePlan()
	e.NormalizeGoalPlan(plan)

	bd := &datatypes.TaskBreakdown{
		Tasks: []datatypes.Task{
			{ID: "task_1", GoalID: "goal_1", MilestoneIndex: 1},
		},
	}
	e.NormalizeTasks(plan, bd)

	for _, g := range plan.Goals {
		if strings.HasPrefix(g.ID, "goal_") {
			t.Errorf("goal id %q looks like a positional alias", g.ID)
		}
		for _, m := range g.Milestones {
			if strings.HasPrefix(m.ID, "milestone_") {
				t.Errorf("milestone id %q looks like a positional alias", m.ID)
			}
		}
	}
	for _, task := range bd.Tasks {
		if strings.HasPrefix(task.ID, "task_") {
			t.Errorf("task id %q looks like a positional alias", task.ID)
		}
	}
}

func TestNormalize_NilInputsAreNoOps(t *testing.T) {
	e := New(nil)
	e.NormalizeGoalPlan(nil)
	e.NormalizeTasks(nil, nil)
	e.NormalizeTasks(nil, &datatypes.TaskBreakdown{
		Tasks: []datatypes.Task{{ID: "t1", GoalID: "g"}},
	})
	// No panic is the assertion; the orphan task keeps the sentinel.
}
