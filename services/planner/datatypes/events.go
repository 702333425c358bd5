// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// EventType identifies a progress event emitted by the orchestrator.
type EventType string

const (
	// EventAgentStart fires when a generative stage begins.
	EventAgentStart EventType = "agent_start"

	// EventAgentComplete fires when a generative stage finishes.
	EventAgentComplete EventType = "agent_complete"

	// EventAgentError fires when a generative stage transport-fails.
	EventAgentError EventType = "agent_error"

	// EventProgress fires at fixed milestones through the pipeline.
	EventProgress EventType = "progress"

	// EventOrchestrationComplete is the terminal success event.
	EventOrchestrationComplete EventType = "orchestration_complete"

	// EventOrchestrationError is the terminal failure event.
	EventOrchestrationError EventType = "orchestration_error"
)

// ProgressEvent is an advisory observability event. Events are not part
// of the correctness contract; consumers must tolerate missing or
// reordered events.
type ProgressEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	RunID      string    `json:"run_id,omitempty"`
	Agent      string    `json:"agent,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	Percentage int       `json:"percentage,omitempty"`
	Message    string    `json:"message,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// EventSink receives progress events from the orchestrator.
//
// Sinks are injected as explicit dependencies, never registered in a
// module-level singleton. Publish must not block: slow consumers should
// buffer or drop internally.
type EventSink interface {
	Publish(event ProgressEvent)
}

// NopSink discards all events.
type NopSink struct{}

// Publish implements EventSink.
func (NopSink) Publish(ProgressEvent) {}
