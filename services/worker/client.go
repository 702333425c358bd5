// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package worker provides clients for the generative planning workers.
//
// Workers are black-box services with a loose output contract: they
// return a JSON payload for a named stage, either as one final value or
// as a stream of increasingly complete partial values. Callers keep only
// the last payload of a stream. Schema conformance is NOT guaranteed;
// stages decode defensively and translate malformed output into failing
// checkpoints rather than errors.
package worker

import (
	"context"
	"encoding/json"
)

// Request is a stage-scoped payload for a generative worker.
type Request struct {
	// Stage names the planning stage, e.g. "goal_planning".
	Stage string `json:"stage"`

	// Payload is the structured input for the stage.
	Payload any `json:"payload"`
}

// Client is the minimal contract for a generative worker backend.
//
// Generate returns the worker's raw JSON payload. An error indicates
// transport-level failure only (unreachable, timeout, broken stream);
// structurally bad but parseable output is returned as-is for the
// caller to judge.
type Client interface {
	Generate(ctx context.Context, req Request) (json.RawMessage, error)
}

// StreamingClient is implemented by backends that can deliver partial
// payloads. Each value on the channel supersedes the previous one.
type StreamingClient interface {
	Client

	// GenerateStream returns a channel of increasingly complete payloads.
	// The channel is closed when the stream ends; a non-nil error from the
	// returned error function (checked after drain) indicates transport
	// failure.
	GenerateStream(ctx context.Context, req Request) (<-chan json.RawMessage, func() error, error)
}

// Invoke runs a request against a client, using streaming when the
// backend supports it and keeping only the final payload.
//
// Outputs:
//
//	json.RawMessage - The last payload received. May be nil if the worker
//	    returned nothing; callers treat that as a soft failure.
//	error - Non-nil only for transport failure.
func Invoke(ctx context.Context, c Client, req Request) (json.RawMessage, error) {
	sc, ok := c.(StreamingClient)
	if !ok {
		return c.Generate(ctx, req)
	}

	ch, errFn, err := sc.GenerateStream(ctx, req)
	if err != nil {
		return nil, err
	}

	var last json.RawMessage
	for payload := range ch {
		last = payload
	}
	if err := errFn(); err != nil {
		return nil, err
	}
	return last, nil
}
