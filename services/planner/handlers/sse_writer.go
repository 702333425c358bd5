// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/AleutianAI/AleutianPlanner/services/planner/datatypes"
)

// SSEWriter writes Server-Sent Events in the wire format
// "event: {type}\ndata: {json}\n\n", flushing after every write.
//
// # Thread Safety
//
// Safe for concurrent use; the orchestrator publishes events from
// multiple goroutines during parallel phases.
type SSEWriter interface {
	// WriteEvent writes one progress event.
	WriteEvent(event datatypes.ProgressEvent) error

	// WriteResult writes the terminal result event.
	WriteResult(result *datatypes.OrchestrationResult) error

	// WriteError writes an error event. The stream should be closed
	// after this.
	WriteError(errMsg string) error

	// WriteKeepAlive sends an SSE comment line (": ping") to keep the
	// connection alive through load-balancer idle timeouts. Comments are
	// ignored by clients.
	WriteKeepAlive() error
}

type sseWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// SetSSEHeaders sets the response headers required before streaming.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// NewSSEWriter creates an SSEWriter on the given ResponseWriter. The
// caller must set SSE headers first via SetSSEHeaders.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseWriter{writer: w, flusher: flusher}, nil
}

func (w *sseWriter) write(eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", eventType, data); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

func (w *sseWriter) WriteEvent(event datatypes.ProgressEvent) error {
	return w.write(string(event.Type), event)
}

func (w *sseWriter) WriteResult(result *datatypes.OrchestrationResult) error {
	return w.write("result", result)
}

func (w *sseWriter) WriteError(errMsg string) error {
	return w.write("error", map[string]string{"error": errMsg})
}

func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprint(w.writer, ": ping\n\n"); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}
