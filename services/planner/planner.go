// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package planner assembles the planning service: HTTP routing, the
// phase orchestrator, generative worker clients, durable storage, and
// observability infrastructure.
//
// # Usage
//
//	cfg := planner.Config{Port: 12310, WorkerBackend: "http"}
//	svc, err := planner.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianPlanner/services/planner/datatypes"
	"github.com/AleutianAI/AleutianPlanner/services/planner/observability"
	"github.com/AleutianAI/AleutianPlanner/services/planner/persist"
	"github.com/AleutianAI/AleutianPlanner/services/planner/pipeline"
	"github.com/AleutianAI/AleutianPlanner/services/planner/resilience"
	"github.com/AleutianAI/AleutianPlanner/services/planner/routes"
	"github.com/AleutianAI/AleutianPlanner/services/planner/storage/badgerstore"
	"github.com/AleutianAI/AleutianPlanner/services/worker"
)

// Service is the planner service lifecycle contract.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and
// should only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine

	// Close releases storage and telemetry resources.
	Close() error
}

// Config holds planner service configuration. Zero values use defaults.
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int

	// WorkerBackend selects the generative worker client.
	// Valid values: "http", "openai". Default: "http"
	WorkerBackend string

	// WorkerURL is the HTTP worker's base URL.
	// Default: "http://planner-worker:12311"
	WorkerURL string

	// WorkerRPS rate-limits outbound worker calls. Default: 4
	WorkerRPS float64

	// DataDir is the badger database directory.
	// Default: "./data/planner". Empty string with InMemory unset still
	// gets the default; set InMemory for ephemeral storage.
	DataDir string

	// InMemory uses an ephemeral store, for tests and local development.
	InMemory bool

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "aleutian-otel-collector:4317"
	OTelEndpoint string

	// EnableMetrics enables the Prometheus /metrics endpoint.
	EnableMetrics bool

	Logger *slog.Logger
}

type service struct {
	config        Config
	router        *gin.Engine
	db            *badgerstore.DB
	runs          *resilience.Store
	plans         *persist.Store
	orchestrator  *pipeline.Orchestrator
	logger        *slog.Logger
	tracerCleanup func(context.Context)
}

// New creates a planner Service with the given configuration.
//
// Initialization order: defaults → tracing → metrics → storage → worker
// client → orchestrator → routes. Tracing failure is non-fatal; storage
// failure is.
func New(cfg Config) (Service, error) {
	s := &service{config: applyConfigDefaults(cfg)}
	s.logger = s.config.Logger

	cleanup, err := s.initTracer()
	if err != nil {
		// Spans degrade to no-ops without a collector; the service is
		// still useful.
		s.logger.Warn("tracer initialization failed, continuing without traces",
			slog.String("error", err.Error()))
	} else {
		s.tracerCleanup = cleanup
	}

	var sink datatypes.EventSink = datatypes.NopSink{}
	if s.config.EnableMetrics {
		sink = &observability.MetricsSink{Metrics: observability.InitMetrics()}
		s.logger.Info("initialized Prometheus metrics")
	}

	if err := s.initStorage(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	workerClient, err := s.initWorkerClient()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize worker client: %w", err)
	}

	s.orchestrator, err = pipeline.New(pipeline.Config{
		Worker: workerClient,
		Store:  s.runs,
		Sink:   sink,
		Logger: s.logger,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize orchestrator: %w", err)
	}

	s.initRouter()
	return s, nil
}

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.Close()

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.logger.Info("starting planner server", slog.Int("port", s.config.Port))
	return s.router.Run(addr)
}

func (s *service) Router() *gin.Engine {
	return s.router
}

// Close releases storage and telemetry resources. Safe to call more
// than once.
func (s *service) Close() error {
	var firstErr error
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			firstErr = err
		}
		s.db = nil
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
		s.tracerCleanup = nil
	}
	return firstErr
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.WorkerBackend == "" {
		cfg.WorkerBackend = "http"
	}
	if cfg.WorkerURL == "" {
		cfg.WorkerURL = "http://planner-worker:12311"
	}
	if cfg.WorkerRPS == 0 {
		cfg.WorkerRPS = 4
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data/planner"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "aleutian-otel-collector:4317"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// initTracer sets up the OTLP trace exporter for the configured
// collector. Uses an insecure gRPC connection, appropriate for internal
// networks.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("planner-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown OTLP exporter",
				slog.String("error", err.Error()))
		}
	}
	return cleanup, nil
}

// initStorage opens badger and builds the run and plan stores on it.
// Both stores share one database; their key prefixes do not overlap.
func (s *service) initStorage() error {
	var err error
	if s.config.InMemory {
		s.db, err = badgerstore.OpenInMemory()
	} else {
		storeCfg := badgerstore.DefaultConfig()
		storeCfg.Path = s.config.DataDir
		storeCfg.Logger = s.logger
		s.db, err = badgerstore.Open(storeCfg)
	}
	if err != nil {
		return err
	}

	s.runs, err = resilience.NewStore(s.db, s.logger)
	if err != nil {
		return err
	}
	s.plans, err = persist.NewStore(s.db, s.logger)
	return err
}

// initWorkerClient selects the generative worker backend.
func (s *service) initWorkerClient() (worker.Client, error) {
	switch s.config.WorkerBackend {
	case "openai":
		s.logger.Info("using OpenAI worker backend")
		return worker.NewOpenAIClient(s.logger)
	case "http":
		s.logger.Info("using HTTP worker backend",
			slog.String("url", s.config.WorkerURL))
		return worker.NewHTTPClient(s.config.WorkerURL, s.config.WorkerRPS, s.logger)
	default:
		s.logger.Warn("unknown worker backend, defaulting to http",
			slog.String("backend", s.config.WorkerBackend))
		return worker.NewHTTPClient(s.config.WorkerURL, s.config.WorkerRPS, s.logger)
	}
}

func (s *service) initRouter() {
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("planner-service"))

	routes.SetupRoutes(s.router, s.orchestrator, s.runs, s.plans, s.logger)
}

var _ Service = (*service)(nil)
