// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package reconcile repairs the identifier graph produced by the
// generative planning workers.
//
// Workers invent identifiers that are neither globally unique nor stable
// across reruns: every goal's first milestone may literally be named
// "milestone_1", and tasks reference their milestone only by 1-based
// position within the parent goal. This package assigns a stable
// run-local id to every goal, milestone, and task, and rewrites all
// cross-references (parent links, dependency edges, critical-path
// sequences) to use them.
//
// The engine runs twice per orchestration: once after goal planning
// (pass 1) and once after task breakdown (pass 2). Given the same raw
// worker output, it is deterministic and idempotent up to id generator
// reseeding: the rewritten graphs are isomorphic.
//
// Resolution misses are never fatal. Each lookup falls back through a
// documented chain (exact id, then positional alias, then single-parent
// default) and, when no fallback applies, leaves the original alias in
// place so the anomaly stays visible downstream instead of being masked.
package reconcile

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianPlanner/services/planner/datatypes"
)

// DefaultMilestoneID is the sentinel assigned to a task whose parent
// goal has no milestones at all.
const DefaultMilestoneID = "milestone_default"

// MilestoneKey scopes a milestone reference to its parent goal.
//
// Positional aliases like "milestone_1" collide across goals; keeping
// the goal reference in the key type (rather than concatenating strings)
// makes the scoping invariant structural.
type MilestoneKey struct {
	GoalRef string
	Ref     string
}

// Engine holds the reconciliation maps for one orchestration run.
//
// The maps are built during the Planning phase and discarded with the
// run; they are never persisted. Engine is not safe for concurrent use,
// which is fine: reconciliation happens between sequential stages.
type Engine struct {
	goals          map[string]string
	milestones     map[MilestoneKey]string
	bareMilestones map[string]string
	tasks          map[string]string

	newID  func() string
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDGenerator overrides the stable id generator. Tests use this to
// make ids predictable.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// New creates a reconciliation engine for a single run.
func New(logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		goals:          make(map[string]string),
		milestones:     make(map[MilestoneKey]string),
		bareMilestones: make(map[string]string),
		tasks:          make(map[string]string),
		newID:          uuid.NewString,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NormalizeGoalPlan is pass 1: goal and milestone normalization.
//
// Description:
//
//	For each goal, generates a stable id and registers it under the
//	goal's own ephemeral id, the positional alias "goal_{i+1}", and the
//	stable id itself (pass 2 consumers see the reconciled plan, so they
//	reference goals by stable id).
//	For each milestone within the goal, generates a stable id and
//	registers it under every combination of goal alias and milestone
//	alias (ephemeral id, "milestone_{j+1}", zero-padded variant, the
//	stable id), plus
//	the bare positional key on a first-goal-wins basis. Finally rewrites
//	the goal and milestone ids in place and the plan's priority ranking
//	through the goal map.
//
// Inputs:
//
//	plan - The raw goal plan from the goal-planning worker. Mutated in
//	    place. A nil plan is a no-op.
func (e *Engine) NormalizeGoalPlan(plan *datatypes.GoalPlan) {
	if plan == nil {
		return
	}

	for i := range plan.Goals {
		goal := &plan.Goals[i]
		stable := e.newID()

		positional := fmt.Sprintf("goal_%d", i+1)
		e.registerGoal(goal.ID, stable)
		e.registerGoal(positional, stable)
		// The stable id itself must resolve too: pass 2 hands the
		// reconciled plan to the task-breakdown worker, so a conforming
		// worker references goals by stable id.
		e.registerGoal(stable, stable)

		goalRefs := dedupe(goal.ID, positional, stable)

		for j := range goal.Milestones {
			ms := &goal.Milestones[j]
			msStable := e.newID()

			msRefs := dedupe(
				ms.ID,
				fmt.Sprintf("milestone_%d", j+1),
				fmt.Sprintf("milestone_%02d", j+1),
				msStable,
			)

			for _, gr := range goalRefs {
				for _, mr := range msRefs {
					e.registerMilestone(MilestoneKey{GoalRef: gr, Ref: mr}, msStable)
				}
			}

			// Bare positional key: first goal wins, so steps with no goal
			// context get a deterministic fallback.
			bare := fmt.Sprintf("milestone_%d", j+1)
			if _, claimed := e.bareMilestones[bare]; !claimed {
				e.bareMilestones[bare] = msStable
			}

			ms.ID = msStable
		}

		goal.ID = stable
	}

	for i, ref := range plan.PriorityRanking {
		if stable, ok := e.goals[ref]; ok {
			plan.PriorityRanking[i] = stable
		} else {
			e.logger.Warn("priority ranking references unknown goal, keeping alias",
				slog.String("ref", ref))
		}
	}
}

// NormalizeTasks is pass 2: task normalization.
//
// Description:
//
//	Generates a stable id per task and registers it under the task's
//	ephemeral id and positional alias "task_{k+1}". Resolves each task's
//	goal reference through the goal map (falling back to the plan's only
//	goal, then its first goal), resolves its milestone by 1-based
//	position within the resolved goal's milestone list (falling back to
//	the first milestone, then DefaultMilestoneID), and rewrites
//	dependency lists, the dependency graph, and the critical path
//	through the task map. Dangling dependency aliases are preserved
//	as-is so downstream consumers can detect and report them.
//
// Inputs:
//
//	plan - The goal plan already normalized by pass 1. Must not be
//	    mutated by this pass. May be nil if goal planning produced nothing.
//	bd - The raw task breakdown from the task-breakdown worker. Mutated
//	    in place. A nil breakdown is a no-op.
func (e *Engine) NormalizeTasks(plan *datatypes.GoalPlan, bd *datatypes.TaskBreakdown) {
	if bd == nil {
		return
	}

	// Register every task id before rewriting anything; dependencies may
	// point forward.
	stableIDs := make([]string, len(bd.Tasks))
	for k := range bd.Tasks {
		stable := e.newID()
		stableIDs[k] = stable
		e.registerTask(bd.Tasks[k].ID, stable)
		e.registerTask(fmt.Sprintf("task_%d", k+1), stable)
	}

	for k := range bd.Tasks {
		task := &bd.Tasks[k]

		goal := e.resolveTaskGoal(plan, task)
		if goal != nil {
			task.GoalID = goal.ID
			task.MilestoneID = e.resolveTaskMilestone(goal, task)
		} else if task.MilestoneID == "" {
			task.MilestoneID = DefaultMilestoneID
		}

		for d, dep := range task.Dependencies {
			task.Dependencies[d] = e.resolveTaskRef(dep)
		}

		task.ID = stableIDs[k]
	}

	if bd.DependencyGraph != nil {
		graph := make(map[string][]string, len(bd.DependencyGraph))
		for from, tos := range bd.DependencyGraph {
			rewritten := make([]string, len(tos))
			for i, to := range tos {
				rewritten[i] = e.resolveTaskRef(to)
			}
			graph[e.resolveTaskRef(from)] = rewritten
		}
		bd.DependencyGraph = graph
	}

	for i, ref := range bd.CriticalPath {
		bd.CriticalPath[i] = e.resolveTaskRef(ref)
	}
}

// ResolveGoal looks up a goal alias, reporting whether it is known.
func (e *Engine) ResolveGoal(ref string) (string, bool) {
	stable, ok := e.goals[ref]
	return stable, ok
}

// ResolveMilestone looks up a goal-scoped milestone alias, falling back
// to the bare positional key when the scoped lookup misses.
func (e *Engine) ResolveMilestone(key MilestoneKey) (string, bool) {
	if stable, ok := e.milestones[key]; ok {
		return stable, true
	}
	stable, ok := e.bareMilestones[key.Ref]
	return stable, ok
}

// resolveTaskGoal applies the goal fallback chain for a task.
// Returns nil only when the plan has no goals at all.
func (e *Engine) resolveTaskGoal(plan *datatypes.GoalPlan, task *datatypes.Task) *datatypes.Goal {
	if plan == nil || len(plan.Goals) == 0 {
		e.logger.Warn("task has no resolvable goal, plan is empty",
			slog.String("task", task.ID))
		return nil
	}

	if stable, ok := e.goals[task.GoalID]; ok {
		for i := range plan.Goals {
			if plan.Goals[i].ID == stable {
				return &plan.Goals[i]
			}
		}
	}

	if len(plan.Goals) == 1 {
		// Single goal: the fallback is ambiguity-free, no warning needed.
		return &plan.Goals[0]
	}

	e.logger.Warn("task goal reference unresolved, defaulting to first goal",
		slog.String("task", task.ID),
		slog.String("goal_ref", task.GoalID))
	return &plan.Goals[0]
}

// resolveTaskMilestone resolves a task's milestone by 1-based position.
func (e *Engine) resolveTaskMilestone(goal *datatypes.Goal, task *datatypes.Task) string {
	idx := task.MilestoneIndex - 1
	if idx >= 0 && idx < len(goal.Milestones) {
		return goal.Milestones[idx].ID
	}

	if len(goal.Milestones) > 0 {
		e.logger.Warn("task milestone index out of range, using first milestone",
			slog.String("task", task.ID),
			slog.Int("index", task.MilestoneIndex),
			slog.Int("milestones", len(goal.Milestones)))
		return goal.Milestones[0].ID
	}

	return DefaultMilestoneID
}

// resolveTaskRef maps a task alias to its stable id, defaulting to the
// alias itself so dangling references stay visible downstream.
func (e *Engine) resolveTaskRef(ref string) string {
	if stable, ok := e.tasks[ref]; ok {
		return stable
	}
	e.logger.Debug("task reference unresolved, preserving alias",
		slog.String("ref", ref))
	return ref
}

func (e *Engine) registerGoal(ref, stable string) {
	if ref == "" {
		return
	}
	if existing, ok := e.goals[ref]; ok && existing != stable {
		e.logger.Debug("goal alias already claimed, keeping first registration",
			slog.String("ref", ref))
		return
	}
	e.goals[ref] = stable
}

func (e *Engine) registerMilestone(key MilestoneKey, stable string) {
	if key.Ref == "" {
		return
	}
	if existing, ok := e.milestones[key]; ok && existing != stable {
		e.logger.Debug("milestone alias already claimed, keeping first registration",
			slog.String("goal_ref", key.GoalRef),
			slog.String("ref", key.Ref))
		return
	}
	e.milestones[key] = stable
}

func (e *Engine) registerTask(ref, stable string) {
	if ref == "" {
		return
	}
	if existing, ok := e.tasks[ref]; ok && existing != stable {
		e.logger.Debug("task alias already claimed, keeping first registration",
			slog.String("ref", ref))
		return
	}
	e.tasks[ref] = stable
}

// dedupe returns the non-empty unique values in order.
func dedupe(refs ...string) []string {
	seen := make(map[string]bool, len(refs))
	out := refs[:0]
	for _, r := range refs {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}
