// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the planner.
//
// # Description
//
// Metrics cover orchestration runs (counts, durations, active gauge),
// worker transport failures by stage, and saved plans. Expose via the
// /metrics endpoint; use with Prometheus + Grafana for dashboards and
// alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/AleutianPlanner/services/planner/datatypes"
)

const metricsNamespace = "aleutian"

const plannerSubsystem = "planner"

// PlannerMetrics holds all Prometheus metrics for planning operations.
//
// Initialize once at startup via InitMetrics(); registering twice on the
// default registry panics.
type PlannerMetrics struct {
	// RunsTotal counts orchestration runs.
	// Labels: status (success, error)
	RunsTotal *prometheus.CounterVec

	// RunDurationSeconds measures total orchestration run time.
	// Labels: status (success, error)
	RunDurationSeconds *prometheus.HistogramVec

	// ActiveRuns tracks currently executing runs.
	ActiveRuns prometheus.Gauge

	// WorkerErrorsTotal counts transport-level worker failures.
	// Labels: stage (intent_extraction, goal_planning, ...)
	WorkerErrorsTotal *prometheus.CounterVec

	// PlansSavedTotal counts plans persisted to durable storage.
	PlansSavedTotal prometheus.Counter
}

// InitMetrics creates and registers all planner metrics on the default
// registry.
func InitMetrics() *PlannerMetrics {
	return &PlannerMetrics{
		RunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: plannerSubsystem,
				Name:      "runs_total",
				Help:      "Total orchestration runs by status",
			},
			[]string{"status"},
		),

		RunDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: plannerSubsystem,
				Name:      "run_duration_seconds",
				Help:      "Total orchestration run time in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),

		ActiveRuns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: plannerSubsystem,
				Name:      "active_runs",
				Help:      "Number of currently executing orchestration runs",
			},
		),

		WorkerErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: plannerSubsystem,
				Name:      "worker_errors_total",
				Help:      "Total transport-level worker failures by stage",
			},
			[]string{"stage"},
		),

		PlansSavedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: plannerSubsystem,
				Name:      "plans_saved_total",
				Help:      "Total plans persisted to durable storage",
			},
		),
	}
}

// RecordRun records a finished orchestration run.
func (m *PlannerMetrics) RecordRun(success bool, seconds float64) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDurationSeconds.WithLabelValues(status).Observe(seconds)
}

// MetricsSink adapts planner metrics to the orchestrator's event sink,
// so the pipeline stays free of any direct Prometheus dependency. It can
// wrap another sink to keep events flowing to stream consumers.
type MetricsSink struct {
	Metrics *PlannerMetrics

	// Next receives every event after metrics are recorded. Optional.
	Next datatypes.EventSink
}

// Publish implements datatypes.EventSink.
func (s *MetricsSink) Publish(ev datatypes.ProgressEvent) {
	if s.Metrics != nil {
		switch ev.Type {
		case datatypes.EventAgentError:
			s.Metrics.WorkerErrorsTotal.WithLabelValues(ev.Agent).Inc()
		case datatypes.EventOrchestrationComplete:
			s.Metrics.RecordRun(true, float64(ev.DurationMs)/1000)
		case datatypes.EventOrchestrationError:
			s.Metrics.RecordRun(false, 0)
		}
	}
	if s.Next != nil {
		s.Next.Publish(ev)
	}
}
