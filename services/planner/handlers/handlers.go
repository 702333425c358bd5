// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the planner's HTTP API.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianPlanner/services/planner/datatypes"
	"github.com/AleutianAI/AleutianPlanner/services/planner/persist"
	"github.com/AleutianAI/AleutianPlanner/services/planner/pipeline"
	"github.com/AleutianAI/AleutianPlanner/services/planner/resilience"
)

// Runner abstracts the orchestrator so handlers can be tested against a
// stub.
type Runner interface {
	RunWithSink(ctx context.Context, req pipeline.PlanRequest, sink datatypes.EventSink) (*datatypes.OrchestrationResult, error)
}

// HealthCheck reports service liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// statusForRunError maps an orchestration error to an HTTP status.
// Gate failures are the caller's plan being unbuildable (unprocessable);
// transport failures are upstream worker trouble (bad gateway).
func statusForRunError(err error) int {
	var gateErr *pipeline.GateError
	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest), errors.Is(err, resilience.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, resilience.ErrRunNotFound):
		return http.StatusNotFound
	case errors.As(err, &gateErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

// GeneratePlan handles POST /v1/plans: runs the full pipeline
// synchronously and returns the orchestration result. On success the
// assembled plan is also saved to durable storage; a save failure is
// reported as a warning on the response, not an error.
func GeneratePlan(runner Runner, plans *persist.Store, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req pipeline.PlanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := runner.RunWithSink(c.Request.Context(), req, nil)
		if err != nil {
			status := statusForRunError(err)
			if result != nil {
				c.JSON(status, result)
				return
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		if plans != nil && result.Plan != nil {
			report, saveErr := plans.SavePlan(c.Request.Context(), req.UserID, result.Plan)
			if saveErr != nil {
				logger.Error("failed to save generated plan",
					slog.String("run_id", result.RunID),
					slog.String("error", saveErr.Error()))
				result.Warnings = append(result.Warnings, "plan not saved: "+saveErr.Error())
			} else {
				result.Plan.ID = report.PlanID
				if report.TasksSkipped > 0 {
					logger.Warn("some tasks could not be mapped to durable records",
						slog.String("plan_id", report.PlanID),
						slog.Int("skipped", report.TasksSkipped))
				}
			}
		}
		c.JSON(http.StatusOK, result)
	}
}

// ListRecoverableRuns handles GET /v1/runs/recoverable: lists
// interrupted runs that a client may resume.
func ListRecoverableRuns(store *resilience.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		domain := c.Query("domain")
		if userID == "" || domain == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and domain are required"})
			return
		}

		runs, err := store.GetRecoverableRuns(c.Request.Context(), userID, domain)
		if err != nil {
			if errors.Is(err, resilience.ErrInvalidInput) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs})
	}
}

// GetPlan handles GET /v1/plans/:planId.
func GetPlan(plans *persist.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
			return
		}

		plan, err := plans.GetPlan(c.Request.Context(), userID, c.Param("planId"))
		if err != nil {
			if errors.Is(err, persist.ErrPlanNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, plan)
	}
}

// ListPlans handles GET /v1/plans.
func ListPlans(plans *persist.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
			return
		}

		list, err := plans.ListPlans(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"plans": list})
	}
}
