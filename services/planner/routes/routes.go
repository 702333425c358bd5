// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianPlanner/services/planner/handlers"
	"github.com/AleutianAI/AleutianPlanner/services/planner/persist"
	"github.com/AleutianAI/AleutianPlanner/services/planner/resilience"
)

// SetupRoutes registers the planner API on the router.
func SetupRoutes(router *gin.Engine, runner handlers.Runner, runs *resilience.Store,
	plans *persist.Store, logger *slog.Logger) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/plans", handlers.GeneratePlan(runner, plans, logger))
		v1.POST("/plans/stream", handlers.StreamPlan(runner, logger))
		v1.GET("/plans/ws", handlers.PlanWebSocket(runner, logger))
		v1.GET("/plans", handlers.ListPlans(plans))
		v1.GET("/plans/:planId", handlers.GetPlan(plans))

		runGroup := v1.Group("/runs")
		{
			runGroup.GET("/recoverable", handlers.ListRecoverableRuns(runs))
		}
	}
}
