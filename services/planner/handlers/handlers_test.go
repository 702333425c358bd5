// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianPlanner/services/planner/datatypes"
	"github.com/AleutianAI/AleutianPlanner/services/planner/pipeline"
)

// stubRunner returns a canned outcome and replays canned events into
// the per-run sink.
type stubRunner struct {
	result *datatypes.OrchestrationResult
	err    error
	events []datatypes.ProgressEvent
}

func (r *stubRunner) RunWithSink(_ context.Context, _ pipeline.PlanRequest, sink datatypes.EventSink) (*datatypes.OrchestrationResult, error) {
	if sink != nil {
		for _, ev := range r.events {
			sink.Publish(ev)
		}
	}
	return r.result, r.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func successResult() *datatypes.OrchestrationResult {
	return &datatypes.OrchestrationResult{
		RunID:   "run-1",
		Success: true,
		Plan:    &datatypes.GeneratedPlan{Title: "Run a 10k", TotalTasks: 3},
	}
}

func requestBody() string {
	return `{"user_id":"user-1","domain":"fitness","prompt":"get ready for a 10k"}`
}

func newRouter(h gin.HandlerFunc, method, path string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Handle(method, path, h)
	return router
}

func TestGeneratePlan_Success(t *testing.T) {
	runner := &stubRunner{result: successResult()}
	router := newRouter(GeneratePlan(runner, nil, testLogger()), http.MethodPost, "/v1/plans")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/plans", strings.NewReader(requestBody()))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result datatypes.OrchestrationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, "Run a 10k", result.Plan.Title)
}

func TestGeneratePlan_MissingFieldsRejected(t *testing.T) {
	router := newRouter(GeneratePlan(&stubRunner{}, nil, testLogger()), http.MethodPost, "/v1/plans")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/plans", strings.NewReader(`{"user_id":"u"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGeneratePlan_GateFailureReturnsPartialResult(t *testing.T) {
	gateErr := &pipeline.GateError{Phase: "intent_extraction", Issues: []string{"intent has no summary"}}
	runner := &stubRunner{
		result: &datatypes.OrchestrationResult{
			RunID:       "run-1",
			Checkpoints: []datatypes.Checkpoint{{Phase: "intent_extraction"}},
			Errors:      []string{gateErr.Error()},
		},
		err: gateErr,
	}
	router := newRouter(GeneratePlan(runner, nil, testLogger()), http.MethodPost, "/v1/plans")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/plans", strings.NewReader(requestBody()))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var result datatypes.OrchestrationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Success)
	assert.Len(t, result.Checkpoints, 1, "partial checkpoints surfaced to the caller")
}

func TestGeneratePlan_TransportFailureIsBadGateway(t *testing.T) {
	runner := &stubRunner{err: errors.New("worker unreachable")}
	router := newRouter(GeneratePlan(runner, nil, testLogger()), http.MethodPost, "/v1/plans")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/plans", strings.NewReader(requestBody()))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestStreamPlan_EmitsEventsThenResult(t *testing.T) {
	runner := &stubRunner{
		result: successResult(),
		events: []datatypes.ProgressEvent{
			{Type: datatypes.EventProgress, Percentage: 5, Message: "run started"},
			{Type: datatypes.EventAgentStart, Agent: "intent_extraction"},
		},
	}
	router := newRouter(StreamPlan(runner, testLogger()), http.MethodPost, "/v1/plans/stream")
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/plans/stream", "application/json", strings.NewReader(requestBody()))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, "event: progress")
	assert.Contains(t, text, "event: agent_start")
	assert.Contains(t, text, "event: result")
	assert.Contains(t, text, `"Run a 10k"`)
}

func TestStreamPlan_ErrorEventOnFailure(t *testing.T) {
	runner := &stubRunner{err: errors.New("worker unreachable")}
	router := newRouter(StreamPlan(runner, testLogger()), http.MethodPost, "/v1/plans/stream")
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/plans/stream", "application/json", strings.NewReader(requestBody()))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "event: error")
	assert.Contains(t, string(body), "worker unreachable")
}

// blockingRunner publishes one event, then waits for release and
// records the state of its context at that point.
type blockingRunner struct {
	started chan struct{}
	release chan struct{}
	ctxErr  chan error
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		started: make(chan struct{}),
		release: make(chan struct{}),
		ctxErr:  make(chan error, 1),
	}
}

func (r *blockingRunner) RunWithSink(ctx context.Context, _ pipeline.PlanRequest, sink datatypes.EventSink) (*datatypes.OrchestrationResult, error) {
	if sink != nil {
		sink.Publish(datatypes.ProgressEvent{Type: datatypes.EventProgress, Percentage: 5, Message: "run started"})
	}
	close(r.started)
	<-r.release
	r.ctxErr <- ctx.Err()
	return successResult(), nil
}

func TestStreamPlan_ClientDisconnectDoesNotCancelRun(t *testing.T) {
	runner := newBlockingRunner()
	router := newRouter(StreamPlan(runner, testLogger()), http.MethodPost, "/v1/plans/stream")
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/plans/stream", "application/json", strings.NewReader(requestBody()))
	require.NoError(t, err)

	<-runner.started
	resp.Body.Close() // drop the stream mid-run

	// Give the server time to observe the disconnect and cancel the
	// request context before the run checks its own.
	time.Sleep(100 * time.Millisecond)
	close(runner.release)

	require.NoError(t, <-runner.ctxErr,
		"a dropped stream must not abort the run; it stays resumable either way, but in-flight phases should finish")
}

func TestPlanWebSocket_StreamsEventsAndResult(t *testing.T) {
	runner := &stubRunner{
		result: successResult(),
		events: []datatypes.ProgressEvent{
			{Type: datatypes.EventProgress, Percentage: 5, Message: "run started"},
		},
	}
	router := newRouter(PlanWebSocket(runner, testLogger()), http.MethodGet, "/v1/plans/ws")
	srv := httptest.NewServer(router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/plans/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{
		"user_id": "user-1",
		"domain":  "fitness",
		"prompt":  "get ready for a 10k",
	}))

	var kinds []string
	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			break
		}
		kinds = append(kinds, frame.Kind)
		if frame.Kind == "result" {
			assert.True(t, frame.Result.Success)
			break
		}
	}
	assert.Contains(t, kinds, "event")
	assert.Contains(t, kinds, "result")
}

func TestHealthCheck(t *testing.T) {
	router := newRouter(HealthCheck, http.MethodGet, "/health")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
