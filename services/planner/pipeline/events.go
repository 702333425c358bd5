// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianPlanner/services/planner/datatypes"
)

// emitter delivers one run's events to every interested sink: the
// orchestrator's configured sink plus any per-run sink a streaming
// caller attached.
type emitter struct {
	sinks []datatypes.EventSink
}

func newEmitter(sinks ...datatypes.EventSink) *emitter {
	e := &emitter{}
	for _, s := range sinks {
		if s != nil {
			e.sinks = append(e.sinks, s)
		}
	}
	return e
}

// publish stamps and delivers an event. Events are advisory; the sink
// contract requires Publish not to block.
func (e *emitter) publish(ev datatypes.ProgressEvent) {
	ev.ID = uuid.NewString()
	ev.CreatedAt = time.Now().UTC()
	for _, s := range e.sinks {
		s.Publish(ev)
	}
}

// progress emits a fixed-milestone progress event.
func (e *emitter) progress(runID string, percentage int, message string) {
	e.publish(datatypes.ProgressEvent{
		Type:       datatypes.EventProgress,
		RunID:      runID,
		Percentage: percentage,
		Message:    message,
	})
}
