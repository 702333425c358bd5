// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianPlanner/services/planner/datatypes"
	"github.com/AleutianAI/AleutianPlanner/services/planner/pipeline"
)

// keepAliveInterval paces SSE comment pings during long worker calls.
const keepAliveInterval = 15 * time.Second

// channelSink bridges orchestrator events onto a channel without ever
// blocking the pipeline: when the buffer is full the event is dropped,
// which the event contract explicitly allows.
type channelSink struct {
	ch chan datatypes.ProgressEvent
}

func newChannelSink() *channelSink {
	return &channelSink{ch: make(chan datatypes.ProgressEvent, 256)}
}

// Publish implements datatypes.EventSink.
func (s *channelSink) Publish(ev datatypes.ProgressEvent) {
	select {
	case s.ch <- ev:
	default:
	}
}

// StreamPlan handles POST /v1/plans/stream: runs the pipeline while
// streaming progress events over SSE, ending with a "result" (or
// "error") event.
func StreamPlan(runner Runner, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req pipeline.PlanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		SetSSEHeaders(c.Writer)
		writer, err := NewSSEWriter(c.Writer)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
			return
		}

		sink := newChannelSink()
		type runOutcome struct {
			result *datatypes.OrchestrationResult
			err    error
		}
		// The stream is advisory: a client disconnect must not abort the
		// run, so the run context keeps the request's values (trace
		// propagation) but not its cancellation.
		runCtx := context.WithoutCancel(c.Request.Context())
		done := make(chan runOutcome, 1)
		go func() {
			result, err := runner.RunWithSink(runCtx, req, sink)
			done <- runOutcome{result: result, err: err}
		}()

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		for {
			select {
			case ev := <-sink.ch:
				if err := writer.WriteEvent(ev); err != nil {
					logger.Info("SSE client disconnected",
						slog.String("error", err.Error()))
					// The run keeps going on its detached context; its
					// phases commit to the resilience store and the
					// client can resume.
					return
				}
			case <-ticker.C:
				if err := writer.WriteKeepAlive(); err != nil {
					return
				}
			case outcome := <-done:
				// Flush any events published before the run returned.
				for {
					select {
					case ev := <-sink.ch:
						_ = writer.WriteEvent(ev)
						continue
					default:
					}
					break
				}
				if outcome.err != nil {
					_ = writer.WriteError(outcome.err.Error())
				}
				if outcome.result != nil {
					_ = writer.WriteResult(outcome.result)
				}
				return
			}
		}
	}
}
