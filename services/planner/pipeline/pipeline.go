// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline drives a planning run through four ordered phases.
//
// Description:
//
//	The state machine is fixed: INIT → FOUNDATION → PLANNING → SCHEDULING
//	→ QUALITY → DONE, with FAILED absorbing from any phase on transport
//	error and from Foundation/Planning on a blocked checkpoint gate.
//	Transitions only move forward; no phase repeats within a run.
//
//	Foundation runs its two stages concurrently and fails fast: the phase
//	joins both stages, then gates. Planning is sequential with an id
//	reconciliation pass after each of its two stages. Scheduling and
//	Quality run their stage pairs concurrently with independent-failure
//	semantics: every stage settles before errors are examined, so one
//	stage's failure never suppresses a sibling's checkpoint.
//
//	Each phase commits its output to the resilience store before the next
//	phase starts. A resumed run rehydrates the planning context from
//	those commits and skips straight to the first incomplete phase.
//
// Thread Safety:
//
//	An Orchestrator is safe for concurrent use; each Run owns its own
//	PlanningContext and run record.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianPlanner/pkg/validation"
	"github.com/AleutianAI/AleutianPlanner/services/planner/assemble"
	"github.com/AleutianAI/AleutianPlanner/services/planner/datatypes"
	"github.com/AleutianAI/AleutianPlanner/services/planner/reconcile"
	"github.com/AleutianAI/AleutianPlanner/services/planner/resilience"
	"github.com/AleutianAI/AleutianPlanner/services/planner/stages"
	"github.com/AleutianAI/AleutianPlanner/services/worker"
)

var (
	tracer = otel.Tracer("aleutian.planner.pipeline")
	meter  = otel.Meter("aleutian.planner.pipeline")
)

var (
	// ErrInvalidRequest indicates a request missing required fields.
	ErrInvalidRequest = errors.New("invalid plan request")
)

// Phase names, also used as resilience store commit keys.
const (
	PhaseFoundation = "foundation"
	PhasePlanning   = "planning"
	PhaseScheduling = "scheduling"
	PhaseQuality    = "quality"
)

// PlanRequest is one caller request for a generated plan.
type PlanRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Domain string `json:"domain" binding:"required"`
	Prompt string `json:"prompt" binding:"required"`

	// ResumeRunID explicitly resumes a recoverable run. When empty, the
	// most recent recoverable run for (UserID, Domain) is resumed
	// automatically; if none exists a fresh run starts.
	ResumeRunID string `json:"resume_run_id,omitempty"`
}

// Config wires an Orchestrator.
type Config struct {
	// Worker is the generative backend shared by all stages.
	Worker worker.Client

	// Store persists per-phase results for crash resumption.
	Store *resilience.Store

	// Sink receives progress events. Nil means events are dropped.
	Sink datatypes.EventSink

	Logger *slog.Logger
}

// Orchestrator runs planning requests through the phase pipeline.
type Orchestrator struct {
	intent       *stages.IntentStage
	userContext  *stages.UserContextStage
	goalPlanning *stages.GoalPlanningStage
	breakdown    *stages.TaskBreakdownStage
	scheduler    *stages.SchedulerStage
	prioritizer  *stages.PrioritizerStage
	optimizer    *stages.OptimizerStage
	qa           *stages.QAStage

	store  *resilience.Store
	sink   datatypes.EventSink
	logger *slog.Logger

	// Metrics (initialized lazily)
	metricsOnce   sync.Once
	stageLatency  metric.Float64Histogram
	stageFailures metric.Int64Counter
	runLatency    metric.Float64Histogram
	activeRuns    metric.Int64UpDownCounter
}

// New creates an orchestrator from the given configuration.
//
// Inputs:
//
//	cfg - Worker and Store are required. A nil Sink drops events; a nil
//	    Logger falls back to slog.Default().
//
// Outputs:
//
//	*Orchestrator - The configured orchestrator.
//	error - Non-nil if a required dependency is missing.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Worker == nil {
		return nil, fmt.Errorf("%w: worker client is required", ErrInvalidRequest)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: resilience store is required", ErrInvalidRequest)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sink == nil {
		cfg.Sink = datatypes.NopSink{}
	}

	return &Orchestrator{
		intent:       &stages.IntentStage{Worker: cfg.Worker, Logger: cfg.Logger},
		userContext:  &stages.UserContextStage{Worker: cfg.Worker, Logger: cfg.Logger},
		goalPlanning: &stages.GoalPlanningStage{Worker: cfg.Worker, Logger: cfg.Logger},
		breakdown:    &stages.TaskBreakdownStage{Worker: cfg.Worker, Logger: cfg.Logger},
		scheduler:    &stages.SchedulerStage{Worker: cfg.Worker, Logger: cfg.Logger},
		prioritizer:  &stages.PrioritizerStage{Worker: cfg.Worker, Logger: cfg.Logger},
		optimizer:    &stages.OptimizerStage{Worker: cfg.Worker, Logger: cfg.Logger},
		qa:           &stages.QAStage{Worker: cfg.Worker, Logger: cfg.Logger},
		store:        cfg.Store,
		sink:         cfg.Sink,
		logger:       cfg.Logger,
	}, nil
}

// initMetrics lazily initializes metrics.
// Logs errors if metric creation fails but continues execution (graceful degradation).
func (o *Orchestrator) initMetrics() {
	o.metricsOnce.Do(func() {
		var initErrors []string

		var err error
		o.stageLatency, err = meter.Float64Histogram("planner_stage_duration_seconds",
			metric.WithDescription("Time spent in each generative planning stage"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "stage_latency: "+err.Error())
		}

		o.stageFailures, err = meter.Int64Counter("planner_stage_failure_total",
			metric.WithDescription("Number of transport-level stage failures"),
		)
		if err != nil {
			initErrors = append(initErrors, "stage_failures: "+err.Error())
		}

		o.runLatency, err = meter.Float64Histogram("planner_run_duration_seconds",
			metric.WithDescription("Total orchestration run time"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "run_latency: "+err.Error())
		}

		o.activeRuns, err = meter.Int64UpDownCounter("planner_active_runs",
			metric.WithDescription("Number of currently executing runs"),
		)
		if err != nil {
			initErrors = append(initErrors, "active_runs: "+err.Error())
		}

		if len(initErrors) > 0 {
			o.logger.Error("failed to initialize some planner metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

// Serialized phase outputs. These are what the resilience store commits,
// so a resumed run can rehydrate the planning context from them.
type foundationOutput struct {
	Intent      *datatypes.ParsedIntent `json:"intent"`
	Snapshot    *datatypes.UserSnapshot `json:"snapshot"`
	Checkpoints []datatypes.Checkpoint  `json:"checkpoints"`
}

type planningOutput struct {
	GoalPlan    *datatypes.GoalPlan      `json:"goal_plan"`
	Breakdown   *datatypes.TaskBreakdown `json:"breakdown"`
	Checkpoints []datatypes.Checkpoint   `json:"checkpoints"`
}

type schedulingOutput struct {
	Schedule       *datatypes.ScheduleResult       `json:"schedule"`
	Prioritization *datatypes.PrioritizationResult `json:"prioritization"`
	Checkpoints    []datatypes.Checkpoint          `json:"checkpoints"`
}

type qualityOutput struct {
	Optimized   *datatypes.OptimizedSchedule `json:"optimized"`
	Quality     *datatypes.QualityReport     `json:"quality"`
	Checkpoints []datatypes.Checkpoint       `json:"checkpoints"`
}

// Run executes one planning request end to end.
//
// Description:
//
//	Creates or resumes a run record, drives the four phases, assembles
//	the plan, and marks the run terminal. A failed run still returns a
//	result: the partial context, every checkpoint collected before the
//	abort, and the error message, so callers can inspect how far the run
//	progressed.
//
// Outputs:
//
//	*datatypes.OrchestrationResult - Always non-nil once a run record
//	    exists, even on failure.
//	error - Non-nil on abort; mirrors result.Errors.
func (o *Orchestrator) Run(ctx context.Context, req PlanRequest) (*datatypes.OrchestrationResult, error) {
	return o.run(ctx, req, newEmitter(o.sink))
}

// RunWithSink executes a request like Run while additionally delivering
// this run's events to the given sink. Streaming transports use this to
// attach a per-connection subscriber without touching the shared sink.
func (o *Orchestrator) RunWithSink(ctx context.Context, req PlanRequest, sink datatypes.EventSink) (*datatypes.OrchestrationResult, error) {
	return o.run(ctx, req, newEmitter(o.sink, sink))
}

func (o *Orchestrator) run(ctx context.Context, req PlanRequest, em *emitter) (*datatypes.OrchestrationResult, error) {
	if req.UserID == "" || req.Domain == "" || req.Prompt == "" {
		return nil, fmt.Errorf("%w: user_id, domain, and prompt are required", ErrInvalidRequest)
	}
	if err := validation.ValidateIdentifiers(req.UserID, req.Domain); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	o.initMetrics()

	ctx, span := tracer.Start(ctx, "planner.Orchestrate",
		trace.WithAttributes(
			attribute.String("planner.domain", req.Domain),
		),
	)
	defer span.End()

	start := time.Now()
	if o.activeRuns != nil {
		o.activeRuns.Add(ctx, 1)
		defer o.activeRuns.Add(ctx, -1)
	}

	rc, err := o.store.CreateContext(ctx, req.UserID, req.Domain, req.ResumeRunID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	runID := rc.Record.RunID
	span.SetAttributes(attribute.String("planner.run_id", runID))

	result := &datatypes.OrchestrationResult{
		RunID:          runID,
		PhaseDurations: make(map[string]int64),
		StartedAt:      start.UTC(),
	}
	pc := &datatypes.PlanningContext{
		UserID: req.UserID,
		Domain: req.Domain,
		Prompt: req.Prompt,
	}

	o.logger.Info("orchestration started",
		slog.String("run_id", runID),
		slog.String("domain", req.Domain),
		slog.Bool("resumed", rc.Resumed),
	)
	em.progress(runID, 5, "run started")

	fail := func(err error) (*datatypes.OrchestrationResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		result.Context = pc
		result.Errors = append(result.Errors, err.Error())
		result.Warnings = append(result.Warnings, rc.Warnings...)
		result.FinishedAt = time.Now().UTC()
		em.publish(datatypes.ProgressEvent{
			Type:  datatypes.EventOrchestrationError,
			RunID: runID,
			Error: err.Error(),
		})
		o.logger.Error("orchestration failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
		return result, err
	}

	if err := o.runFoundation(ctx, rc, pc, result, em); err != nil {
		return fail(err)
	}
	em.progress(runID, 20, "foundation complete")
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	em.progress(runID, 25, "planning goals")
	if err := o.runPlanning(ctx, rc, pc, result, em); err != nil {
		return fail(err)
	}
	em.progress(runID, 55, "planning complete")
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	em.progress(runID, 60, "scheduling tasks")
	if err := o.runScheduling(ctx, rc, pc, result, em); err != nil {
		return fail(err)
	}
	em.progress(runID, 80, "scheduling complete")
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	em.progress(runID, 85, "quality review")
	if err := o.runQuality(ctx, rc, pc, result, em); err != nil {
		return fail(err)
	}

	plan := assemble.BuildPlan(pc)
	if err := o.store.Complete(ctx, rc); err != nil {
		// The plan is already built; a failed terminal marker only means
		// the run stays recoverable.
		rc.Warnings = append(rc.Warnings, "run not marked terminal: "+err.Error())
	}

	duration := time.Since(start)
	if o.runLatency != nil {
		o.runLatency.Record(ctx, duration.Seconds(),
			metric.WithAttributes(attribute.String("domain", req.Domain)),
		)
	}

	result.Success = true
	result.Plan = plan
	result.Context = pc
	result.Warnings = append(result.Warnings, rc.Warnings...)
	result.FinishedAt = time.Now().UTC()

	em.progress(runID, 100, "plan ready")
	em.publish(datatypes.ProgressEvent{
		Type:       datatypes.EventOrchestrationComplete,
		RunID:      runID,
		DurationMs: duration.Milliseconds(),
	})
	o.logger.Info("orchestration complete",
		slog.String("run_id", runID),
		slog.Duration("duration", duration),
		slog.Int("tasks", plan.TotalTasks),
	)
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// runFoundation executes intent extraction and user context concurrently.
//
// Fail-fast join: a transport error from either stage aborts the phase
// after both goroutines return (no cancellation signal is sent, siblings
// finish naturally). The gate conditions on the intent checkpoint only;
// the user-context verdict is recorded but does not block.
func (o *Orchestrator) runFoundation(ctx context.Context, rc *resilience.RunContext, pc *datatypes.PlanningContext, result *datatypes.OrchestrationResult, em *emitter) error {
	phaseStart := time.Now()
	ctx, span := tracer.Start(ctx, "planner.FoundationPhase")
	defer span.End()

	runID := rc.Record.RunID
	var produced []datatypes.Checkpoint

	raw, _, err := o.store.ExecutePhase(ctx, rc, PhaseFoundation, func(ctx context.Context) (any, error) {
		out := &foundationOutput{}
		var intentCP, snapCP datatypes.Checkpoint

		var g errgroup.Group
		g.Go(func() error {
			intent, cp, err := runStage(o, em, ctx, runID, stages.StageIntentExtraction, o.intent.Run, pc)
			if err != nil {
				return err
			}
			out.Intent, intentCP = intent, cp
			return nil
		})
		g.Go(func() error {
			snap, cp, err := runStage(o, em, ctx, runID, stages.StageUserContext, o.userContext.Run, pc)
			if err != nil {
				return err
			}
			out.Snapshot, snapCP = snap, cp
			return nil
		})
		waitErr := g.Wait()

		for _, cp := range []datatypes.Checkpoint{intentCP, snapCP} {
			if cp.Phase != "" {
				out.Checkpoints = append(out.Checkpoints, cp)
			}
		}
		produced = out.Checkpoints

		if waitErr != nil {
			return nil, waitErr
		}
		if err := AssertCheckpoint(intentCP); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		result.Checkpoints = append(result.Checkpoints, produced...)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	out := &foundationOutput{}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("rehydrate %s phase: %w", PhaseFoundation, err)
	}
	pc.Intent = out.Intent
	pc.Snapshot = out.Snapshot
	result.Checkpoints = append(result.Checkpoints, out.Checkpoints...)
	result.PhaseDurations[PhaseFoundation] = time.Since(phaseStart).Milliseconds()
	return nil
}

// runPlanning executes goal planning and task breakdown sequentially,
// reconciling identifiers after each stage. Both sub-stages gate.
func (o *Orchestrator) runPlanning(ctx context.Context, rc *resilience.RunContext, pc *datatypes.PlanningContext, result *datatypes.OrchestrationResult, em *emitter) error {
	phaseStart := time.Now()
	ctx, span := tracer.Start(ctx, "planner.PlanningPhase")
	defer span.End()

	runID := rc.Record.RunID
	var produced []datatypes.Checkpoint

	raw, _, err := o.store.ExecutePhase(ctx, rc, PhasePlanning, func(ctx context.Context) (any, error) {
		out := &planningOutput{}

		plan, cp, err := runStage(o, em, ctx, runID, stages.StageGoalPlanning, o.goalPlanning.Run, pc)
		if err != nil {
			return nil, err
		}
		produced = append(produced, cp)
		out.Checkpoints = append(out.Checkpoints, cp)
		if err := AssertCheckpoint(cp); err != nil {
			return nil, err
		}

		// Reconciliation maps live exactly as long as this phase.
		eng := reconcile.New(o.logger)
		eng.NormalizeGoalPlan(plan)
		pc.GoalPlan = plan
		em.progress(runID, 40, "goals reconciled")

		bd, cp, err := runStage(o, em, ctx, runID, stages.StageTaskBreakdown, o.breakdown.Run, pc)
		if err != nil {
			return nil, err
		}
		produced = append(produced, cp)
		out.Checkpoints = append(out.Checkpoints, cp)
		if err := AssertCheckpoint(cp); err != nil {
			return nil, err
		}

		eng.NormalizeTasks(plan, bd)
		out.GoalPlan = plan
		out.Breakdown = bd
		return out, nil
	})
	if err != nil {
		result.Checkpoints = append(result.Checkpoints, produced...)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	out := &planningOutput{}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("rehydrate %s phase: %w", PhasePlanning, err)
	}
	pc.GoalPlan = out.GoalPlan
	pc.Breakdown = out.Breakdown
	result.Checkpoints = append(result.Checkpoints, out.Checkpoints...)
	result.PhaseDurations[PhasePlanning] = time.Since(phaseStart).Milliseconds()
	return nil
}

// runScheduling executes the scheduler and prioritizer concurrently with
// independent-failure semantics: both settle before errors are examined,
// and a failing stage never suppresses the sibling's checkpoint. The
// phase records checkpoints but does not gate on them.
func (o *Orchestrator) runScheduling(ctx context.Context, rc *resilience.RunContext, pc *datatypes.PlanningContext, result *datatypes.OrchestrationResult, em *emitter) error {
	phaseStart := time.Now()
	ctx, span := tracer.Start(ctx, "planner.SchedulingPhase")
	defer span.End()

	runID := rc.Record.RunID
	var produced []datatypes.Checkpoint

	raw, _, err := o.store.ExecutePhase(ctx, rc, PhaseScheduling, func(ctx context.Context) (any, error) {
		out := &schedulingOutput{}
		var schedCP, prioCP datatypes.Checkpoint
		var schedErr, prioErr error

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			sched, cp, err := runStage(o, em, ctx, runID, stages.StageScheduler, o.scheduler.Run, pc)
			if err != nil {
				schedErr = err
				return
			}
			out.Schedule, schedCP = sched, cp
		}()
		go func() {
			defer wg.Done()
			pr, cp, err := runStage(o, em, ctx, runID, stages.StagePrioritizer, o.prioritizer.Run, pc)
			if err != nil {
				prioErr = err
				return
			}
			out.Prioritization, prioCP = pr, cp
		}()
		wg.Wait()

		for _, cp := range []datatypes.Checkpoint{schedCP, prioCP} {
			if cp.Phase != "" {
				out.Checkpoints = append(out.Checkpoints, cp)
			}
		}
		produced = out.Checkpoints

		if err := errors.Join(schedErr, prioErr); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		result.Checkpoints = append(result.Checkpoints, produced...)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	out := &schedulingOutput{}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("rehydrate %s phase: %w", PhaseScheduling, err)
	}
	pc.Schedule = out.Schedule
	pc.Prioritization = out.Prioritization
	result.Checkpoints = append(result.Checkpoints, out.Checkpoints...)
	result.PhaseDurations[PhaseScheduling] = time.Since(phaseStart).Milliseconds()
	return nil
}

// runQuality executes the optimizer and QA concurrently, both reading
// the scheduling phase's output, with the same independent-failure join
// as scheduling.
func (o *Orchestrator) runQuality(ctx context.Context, rc *resilience.RunContext, pc *datatypes.PlanningContext, result *datatypes.OrchestrationResult, em *emitter) error {
	phaseStart := time.Now()
	ctx, span := tracer.Start(ctx, "planner.QualityPhase")
	defer span.End()

	runID := rc.Record.RunID
	var produced []datatypes.Checkpoint

	raw, _, err := o.store.ExecutePhase(ctx, rc, PhaseQuality, func(ctx context.Context) (any, error) {
		out := &qualityOutput{}
		var optCP, qaCP datatypes.Checkpoint
		var optErr, qaErr error

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			opt, cp, err := runStage(o, em, ctx, runID, stages.StageOptimizer, o.optimizer.Run, pc)
			if err != nil {
				optErr = err
				return
			}
			out.Optimized, optCP = opt, cp
		}()
		go func() {
			defer wg.Done()
			report, cp, err := runStage(o, em, ctx, runID, stages.StageQA, o.qa.Run, pc)
			if err != nil {
				qaErr = err
				return
			}
			out.Quality, qaCP = report, cp
		}()
		wg.Wait()

		for _, cp := range []datatypes.Checkpoint{optCP, qaCP} {
			if cp.Phase != "" {
				out.Checkpoints = append(out.Checkpoints, cp)
			}
		}
		produced = out.Checkpoints

		if err := errors.Join(optErr, qaErr); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		result.Checkpoints = append(result.Checkpoints, produced...)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	out := &qualityOutput{}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("rehydrate %s phase: %w", PhaseQuality, err)
	}
	pc.Optimized = out.Optimized
	pc.Quality = out.Quality
	result.Checkpoints = append(result.Checkpoints, out.Checkpoints...)
	result.PhaseDurations[PhaseQuality] = time.Since(phaseStart).Milliseconds()
	return nil
}

// runStage wraps one stage invocation with events and metrics.
func runStage[T any](
	o *Orchestrator,
	em *emitter,
	ctx context.Context,
	runID, agent string,
	fn func(context.Context, *datatypes.PlanningContext) (T, datatypes.Checkpoint, error),
	pc *datatypes.PlanningContext,
) (T, datatypes.Checkpoint, error) {
	em.publish(datatypes.ProgressEvent{
		Type:  datatypes.EventAgentStart,
		RunID: runID,
		Agent: agent,
	})

	start := time.Now()
	res, cp, err := fn(ctx, pc)
	if err != nil {
		if o.stageFailures != nil {
			o.stageFailures.Add(ctx, 1,
				metric.WithAttributes(attribute.String("stage", agent)),
			)
		}
		em.publish(datatypes.ProgressEvent{
			Type:  datatypes.EventAgentError,
			RunID: runID,
			Agent: agent,
			Error: err.Error(),
		})
		return res, cp, err
	}

	elapsed := time.Since(start)
	if o.stageLatency != nil {
		o.stageLatency.Record(ctx, elapsed.Seconds(),
			metric.WithAttributes(attribute.String("stage", agent)),
		)
	}
	em.publish(datatypes.ProgressEvent{
		Type:       datatypes.EventAgentComplete,
		RunID:      runID,
		Agent:      agent,
		DurationMs: elapsed.Milliseconds(),
	})
	return res, cp, nil
}
