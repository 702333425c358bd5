// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command planner starts the AleutianPlanner HTTP server.
//
// This is the main entry point for the containerized planning service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - PLANNER_PORT: HTTP server port (default: 12310)
//   - PLANNER_WORKER_BACKEND: generative worker - http, openai (default: http)
//   - PLANNER_WORKER_URL: HTTP worker base URL (default: http://planner-worker:12311)
//   - PLANNER_WORKER_RPS: outbound worker rate limit (default: 4)
//   - PLANNER_DATA_DIR: badger database directory (default: ./data/planner)
//   - PLANNER_ENABLE_METRICS: expose Prometheus /metrics (default: true)
//   - PLANNER_LOG_LEVEL: debug, info, warn, error (default: info)
//   - PLANNER_LOG_DIR: also write daily JSON log files here (default: disabled)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: aleutian-otel-collector:4317)
//
// # Usage
//
//	# Build
//	go build -o planner ./cmd/planner
//
//	# Run
//	./planner
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/AleutianAI/AleutianPlanner/pkg/logging"
	"github.com/AleutianAI/AleutianPlanner/services/planner"
)

func main() {
	// Setup structured logging
	logger, err := logging.New(logging.Config{
		Level:   logging.ParseLevel(getEnvString("PLANNER_LOG_LEVEL", "info")),
		LogDir:  os.Getenv("PLANNER_LOG_DIR"),
		Service: "planner",
		JSON:    true,
	})
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logger.Close()
	slog.SetDefault(logger.Logger)

	// Build configuration from environment variables
	cfg := planner.Config{
		Port:          getEnvInt("PLANNER_PORT", 12310),
		WorkerBackend: getEnvString("PLANNER_WORKER_BACKEND", "http"),
		WorkerURL:     getEnvString("PLANNER_WORKER_URL", "http://planner-worker:12311"),
		WorkerRPS:     getEnvFloat("PLANNER_WORKER_RPS", 4),
		DataDir:       getEnvString("PLANNER_DATA_DIR", "./data/planner"),
		OTelEndpoint:  getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "aleutian-otel-collector:4317"),
		EnableMetrics: getEnvBool("PLANNER_ENABLE_METRICS", true),
		Logger:        logger.Logger,
	}

	slog.Info("Starting planner",
		"port", cfg.Port,
		"worker_backend", cfg.WorkerBackend,
		"data_dir", cfg.DataDir,
	)

	svc, err := planner.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create planner: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Planner error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns the environment variable as float64 or a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvBool returns the environment variable as bool or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
