// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package persist saves assembled plans as durable records.
//
// The assembled plan carries stable run-local ids, not database ids.
// Saving performs a second, independent mapping pass onto durable
// records: every goal, milestone, and task gets a durable id, and task
// references are resolved against the durable goal set. Resolution
// tries the exact run-local id, then the positional alias, then an
// unambiguous single-parent fallback; tasks whose goal resolves to
// nothing are skipped and counted rather than saved with dangling
// references, and unresolvable milestone references are dropped and
// counted while the task itself is kept.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianPlanner/services/planner/datatypes"
	"github.com/AleutianAI/AleutianPlanner/services/planner/storage/badgerstore"
)

var (
	// ErrInvalidInput indicates a nil or malformed argument.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPlanNotFound indicates no stored plan under the given id.
	ErrPlanNotFound = errors.New("plan not found")
)

// StoredGoal is the durable form of a goal.
type StoredGoal struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Category   string            `json:"category,omitempty"`
	Priority   int               `json:"priority,omitempty"`
	TargetDate string            `json:"target_date,omitempty"`
	Milestones []StoredMilestone `json:"milestones"`
}

// StoredMilestone is the durable form of a milestone.
type StoredMilestone struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	DueInDays int    `json:"due_in_days,omitempty"`
}

// StoredTask is the durable form of a task. GoalID and MilestoneID
// reference durable records, Dependencies reference durable task ids.
type StoredTask struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	GoalID           string   `json:"goal_id"`
	MilestoneID      string   `json:"milestone_id,omitempty"`
	EstimatedMinutes int      `json:"estimated_minutes,omitempty"`
	Dependencies     []string `json:"dependencies,omitempty"`
}

// StoredPlan is the durable form of an assembled plan.
type StoredPlan struct {
	ID        string                `json:"id"`
	UserID    string                `json:"user_id"`
	Domain    string                `json:"domain"`
	Title     string                `json:"title"`
	Goals     []StoredGoal          `json:"goals"`
	Tasks     []StoredTask          `json:"tasks"`
	Schedule  []datatypes.TimeBlock `json:"schedule,omitempty"`
	SavedAt   time.Time             `json:"saved_at"`
	CreatedAt time.Time             `json:"created_at"`
}

// SaveReport summarizes one save, including what could not be mapped.
type SaveReport struct {
	PlanID         string   `json:"plan_id"`
	GoalsSaved     int      `json:"goals_saved"`
	TasksSaved     int      `json:"tasks_saved"`
	TasksSkipped   int      `json:"tasks_skipped"`
	SkippedTaskIDs []string `json:"skipped_task_ids,omitempty"`

	// MilestonesUnmapped counts saved tasks whose milestone reference
	// could not be resolved; those tasks are stored without a milestone.
	MilestonesUnmapped int `json:"milestones_unmapped,omitempty"`
}

// Store saves and loads plans on badger.
type Store struct {
	db     *badgerstore.DB
	logger *slog.Logger
}

// NewStore creates a plan store on the given database.
func NewStore(db *badgerstore.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: db must not be nil", ErrInvalidInput)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}, nil
}

func planKey(userID, planID string) []byte {
	return []byte("plan/" + userID + "/" + planID)
}

func planPrefix(userID string) []byte {
	return []byte("plan/" + userID + "/")
}

// SavePlan maps the plan onto durable records and persists it.
//
// # Inputs
//
//   - userID: owner of the plan. Must not be empty.
//   - plan: assembled plan with reconciled run-local ids.
//
// # Outputs
//
//   - *SaveReport: counts of saved and skipped records. Never nil on
//     success.
//   - error: non-nil on storage failure or invalid input. Unmappable
//     tasks are not an error; they appear in the report.
func (s *Store) SavePlan(ctx context.Context, userID string, plan *datatypes.GeneratedPlan) (*SaveReport, error) {
	if userID == "" || plan == nil {
		return nil, fmt.Errorf("%w: user id and plan are required", ErrInvalidInput)
	}

	stored := &StoredPlan{
		ID:        uuid.NewString(),
		UserID:    userID,
		Domain:    plan.Domain,
		Title:     plan.Title,
		Schedule:  plan.Schedule,
		SavedAt:   time.Now().UTC(),
		CreatedAt: plan.CreatedAt,
	}

	// Run-local id (or positional alias) → durable goal id, and per
	// durable goal the scoped milestone mapping. Milestone aliases are
	// only meaningful within their parent goal.
	goalIDs := make(map[string]string)
	milestoneIDs := make(map[string]goalMilestones)

	for i, g := range plan.Goals {
		sg := StoredGoal{
			ID:         uuid.NewString(),
			Title:      g.Title,
			Category:   g.Category,
			Priority:   g.Priority,
			TargetDate: g.TargetDate,
		}
		goalIDs[g.ID] = sg.ID
		goalIDs[fmt.Sprintf("goal_%d", i+1)] = sg.ID

		gm := goalMilestones{refs: make(map[string]string)}
		for j, m := range g.Milestones {
			sm := StoredMilestone{
				ID:        uuid.NewString(),
				Title:     m.Title,
				DueInDays: m.DueInDays,
			}
			gm.refs[m.ID] = sm.ID
			gm.refs[fmt.Sprintf("milestone_%d", j+1)] = sm.ID
			gm.refs[fmt.Sprintf("milestone_%02d", j+1)] = sm.ID
			sg.Milestones = append(sg.Milestones, sm)
		}
		if len(g.Milestones) == 1 {
			gm.sole = sg.Milestones[0].ID
		}
		milestoneIDs[sg.ID] = gm
		stored.Goals = append(stored.Goals, sg)
	}

	report := &SaveReport{PlanID: stored.ID, GoalsSaved: len(stored.Goals)}

	// Resolve every task's goal before building records, so dependency
	// rewriting can exclude tasks that will not be saved.
	taskIDs := make(map[string]string)
	resolvedGoals := make(map[string]string)
	for _, t := range plan.Tasks {
		goalID, ok := resolveGoal(goalIDs, t.GoalID, len(stored.Goals))
		if !ok {
			report.TasksSkipped++
			report.SkippedTaskIDs = append(report.SkippedTaskIDs, t.ID)
			s.logger.Warn("task references unknown goal, skipping",
				slog.String("task_id", t.ID),
				slog.String("goal_ref", t.GoalID))
			continue
		}
		taskIDs[t.ID] = uuid.NewString()
		resolvedGoals[t.ID] = goalID
	}

	for _, t := range plan.Tasks {
		durableID, ok := taskIDs[t.ID]
		if !ok {
			continue
		}
		milestoneID, ok := resolveMilestone(milestoneIDs[resolvedGoals[t.ID]], t.MilestoneID)
		if !ok {
			report.MilestonesUnmapped++
			s.logger.Warn("task milestone reference unresolved, storing without milestone",
				slog.String("task_id", t.ID),
				slog.String("milestone_ref", t.MilestoneID))
		}
		st := StoredTask{
			ID:               durableID,
			Title:            t.Title,
			GoalID:           resolvedGoals[t.ID],
			MilestoneID:      milestoneID,
			EstimatedMinutes: t.EstimatedMinutes,
		}
		for _, dep := range t.Dependencies {
			if durable, ok := taskIDs[dep]; ok {
				st.Dependencies = append(st.Dependencies, durable)
			}
		}
		stored.Tasks = append(stored.Tasks, st)
		report.TasksSaved++
	}

	raw, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("serialize plan: %w", err)
	}
	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(planKey(userID, stored.ID), raw)
	})
	if err != nil {
		return nil, fmt.Errorf("save plan: %w", err)
	}

	s.logger.Info("plan saved",
		slog.String("plan_id", stored.ID),
		slog.Int("goals", report.GoalsSaved),
		slog.Int("tasks", report.TasksSaved),
		slog.Int("skipped", report.TasksSkipped))
	return report, nil
}

// resolveGoal maps a task's goal reference to a durable goal id.
func resolveGoal(goalIDs map[string]string, ref string, goalCount int) (string, bool) {
	if id, ok := goalIDs[ref]; ok {
		return id, true
	}
	if goalCount == 1 {
		return goalIDs["goal_1"], true
	}
	return "", false
}

// goalMilestones is one goal's scoped milestone mapping: run-local id or
// positional alias → durable id, plus the sole milestone's durable id
// when the goal has exactly one.
type goalMilestones struct {
	refs map[string]string
	sole string
}

// resolveMilestone maps a task's milestone reference within its resolved
// goal: exact id or positional alias first, then the goal's only
// milestone when that is unambiguous. An empty reference resolves to
// nothing without counting as a miss.
func resolveMilestone(gm goalMilestones, ref string) (string, bool) {
	if ref == "" {
		return "", true
	}
	if id, ok := gm.refs[ref]; ok {
		return id, true
	}
	if gm.sole != "" {
		return gm.sole, true
	}
	return "", false
}

// GetPlan loads a stored plan by id.
func (s *Store) GetPlan(ctx context.Context, userID, planID string) (*StoredPlan, error) {
	if userID == "" || planID == "" {
		return nil, fmt.Errorf("%w: user id and plan id are required", ErrInvalidInput)
	}

	var plan StoredPlan
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(planKey(userID, planID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &plan)
		})
	})
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// ListPlans returns all stored plans for a user, newest first.
func (s *Store) ListPlans(ctx context.Context, userID string) ([]StoredPlan, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	var plans []StoredPlan
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = planPrefix(userID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var plan StoredPlan
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &plan)
			})
			if err != nil {
				// Skip corrupt entries rather than failing the listing.
				s.logger.Warn("skipping unreadable plan record",
					slog.String("key", string(it.Item().Key())))
				continue
			}
			plans = append(plans, plan)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(plans, func(i, j int) bool {
		return plans[i].SavedAt.After(plans[j].SavedAt)
	})
	return plans, nil
}
