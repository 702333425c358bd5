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

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianPlanner/services/planner/datatypes"
	"github.com/AleutianAI/AleutianPlanner/services/planner/pipeline"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// wsFrame is one websocket message to the client.
type wsFrame struct {
	Kind   string                         `json:"kind"` // "event", "result", "error"
	Event  *datatypes.ProgressEvent       `json:"event,omitempty"`
	Result *datatypes.OrchestrationResult `json:"result,omitempty"`
	Error  string                         `json:"error,omitempty"`
}

// PlanWebSocket handles GET /v1/plans/ws: the client sends one plan
// request as JSON, receives progress events as they happen, and a final
// "result" or "error" frame. One run per connection.
func PlanWebSocket(runner Runner, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Error("failed to upgrade the websocket",
				slog.String("error", err.Error()))
			return
		}
		defer ws.Close()

		var req pipeline.PlanRequest
		if err := ws.ReadJSON(&req); err != nil {
			_ = ws.WriteJSON(wsFrame{Kind: "error", Error: "invalid request: " + err.Error()})
			return
		}

		sink := newChannelSink()
		type runOutcome struct {
			result *datatypes.OrchestrationResult
			err    error
		}
		// Detach the run from the connection: a dropped socket must not
		// abort in-flight phases, only stop the event feed.
		runCtx := context.WithoutCancel(c.Request.Context())
		done := make(chan runOutcome, 1)
		go func() {
			result, err := runner.RunWithSink(runCtx, req, sink)
			done <- runOutcome{result: result, err: err}
		}()

		for {
			select {
			case ev := <-sink.ch:
				if err := ws.WriteJSON(wsFrame{Kind: "event", Event: &ev}); err != nil {
					logger.Info("websocket client disconnected",
						slog.String("error", err.Error()))
					return
				}
			case outcome := <-done:
				for {
					select {
					case ev := <-sink.ch:
						_ = ws.WriteJSON(wsFrame{Kind: "event", Event: &ev})
						continue
					default:
					}
					break
				}
				if outcome.err != nil {
					_ = ws.WriteJSON(wsFrame{Kind: "error", Error: outcome.err.Error()})
				}
				if outcome.result != nil {
					_ = ws.WriteJSON(wsFrame{Kind: "result", Result: outcome.result})
				}
				return
			}
		}
	}
}
