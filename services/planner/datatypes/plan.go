// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the shared data model for the planner service.
//
// All payloads exchanged with generative workers decode into these types.
// Identifiers carried by Goal, Milestone, and Task are ephemeral until the
// reconcile package rewrites them; see that package for the id contract.
package datatypes

import "time"

// Goal is a high-level objective produced by the goal-planning worker.
//
// The ID is an ephemeral identifier invented by the worker: it is not
// guaranteed unique across the plan or stable across reruns. Reconciliation
// replaces it with a stable run-local id.
type Goal struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Category    string      `json:"category,omitempty"`
	Priority    int         `json:"priority,omitempty"`
	TargetDate  string      `json:"target_date,omitempty"`
	Milestones  []Milestone `json:"milestones"`
}

// Milestone is an intermediate target within a goal.
//
// Milestone ids are invented independently per goal and collide across
// goals (every goal's first milestone may literally be "milestone_1").
// Tasks therefore reference milestones by 1-based position, never by id.
type Milestone struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	DueInDays int    `json:"due_in_days,omitempty"`
}

// GoalPlan is the goal-planning stage's output.
type GoalPlan struct {
	Goals []Goal `json:"goals"`

	// PriorityRanking orders goals by ephemeral id or positional alias.
	// Rewritten to stable ids during reconciliation.
	PriorityRanking []string `json:"priority_ranking,omitempty"`
}

// Task is a unit of work produced by the task-breakdown worker.
type Task struct {
	ID    string `json:"id"`
	Title string `json:"title"`

	// GoalID references the parent goal by ephemeral id until reconciled.
	GoalID string `json:"goal_id"`

	// MilestoneIndex is the 1-based position of the milestone within the
	// parent goal's milestone list. Workers reference milestones by position
	// because their milestone ids collide across goals.
	MilestoneIndex int `json:"milestone_index,omitempty"`

	// MilestoneID is filled in by reconciliation; workers do not set it.
	MilestoneID string `json:"milestone_id,omitempty"`

	EstimatedMinutes int `json:"estimated_minutes,omitempty"`

	// Dependencies lists prerequisite tasks by ephemeral id or alias.
	Dependencies []string `json:"dependencies,omitempty"`
}

// TaskBreakdown is the task-breakdown stage's output.
type TaskBreakdown struct {
	Tasks []Task `json:"tasks"`

	// DependencyGraph maps a task id to the ids of tasks depending on it.
	DependencyGraph map[string][]string `json:"dependency_graph,omitempty"`

	// CriticalPath is the ordered sequence of task ids on the longest
	// dependency chain.
	CriticalPath []string `json:"critical_path,omitempty"`
}

// ParsedIntent is the intent-extraction stage's output.
type ParsedIntent struct {
	Domain       string   `json:"domain"`
	Summary      string   `json:"summary"`
	HorizonWeeks int      `json:"horizon_weeks,omitempty"`
	KeyOutcomes  []string `json:"key_outcomes,omitempty"`
	Constraints  []string `json:"constraints,omitempty"`
}

// UserSnapshot is the user-context stage's output: everything the planning
// workers need to know about the user, captured once at run start.
type UserSnapshot struct {
	UserID          string            `json:"user_id"`
	WeeklyHours     int               `json:"weekly_hours,omitempty"`
	PeakHours       []string          `json:"peak_hours,omitempty"`
	Commitments     []string          `json:"commitments,omitempty"`
	Preferences     map[string]string `json:"preferences,omitempty"`
	ExperienceLevel string            `json:"experience_level,omitempty"`
}

// TimeBlock is a scheduled slot for a task.
type TimeBlock struct {
	TaskID string `json:"task_id"`
	Day    string `json:"day"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

// ScheduleResult is the scheduler stage's output.
type ScheduleResult struct {
	Blocks []TimeBlock `json:"blocks"`
	Notes  []string    `json:"notes,omitempty"`
}

// PrioritizationResult is the prioritizer stage's output.
type PrioritizationResult struct {
	RankedTaskIDs []string           `json:"ranked_task_ids"`
	Scores        map[string]float64 `json:"scores,omitempty"`
}

// OptimizedSchedule is the optimizer stage's output: the raw schedule
// rebalanced against the prioritization.
type OptimizedSchedule struct {
	Blocks []TimeBlock `json:"blocks"`
	Notes  []string    `json:"notes,omitempty"`
}

// QualityReport is the QA stage's output.
type QualityReport struct {
	Score       float64  `json:"score"`
	Issues      []string `json:"issues,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// GeneratedPlan is the assembled final plan returned to the caller.
//
// Goals, milestones, and tasks carry stable run-local ids produced by
// reconciliation, not database ids. Downstream persistence performs its
// own mapping onto durable records (see the persist package).
type GeneratedPlan struct {
	ID                    string      `json:"id"`
	Title                 string      `json:"title"`
	Domain                string      `json:"domain"`
	Goals                 []Goal      `json:"goals"`
	Tasks                 []Task      `json:"tasks"`
	Schedule              []TimeBlock `json:"schedule"`
	TotalTasks            int         `json:"total_tasks"`
	TotalEstimatedMinutes int         `json:"total_estimated_minutes"`
	QualityScore          float64     `json:"quality_score,omitempty"`
	CreatedAt             time.Time   `json:"created_at"`
}
