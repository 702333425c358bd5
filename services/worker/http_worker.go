// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("aleutian.planner.worker")

// HTTPClient talks to a generative worker service over HTTP.
//
// The wire protocol mirrors the Ollama generate API shape: a POST with
// the stage name and payload, answered either by a single JSON object or
// by a newline-delimited stream of partial objects of which the final
// one carries done=true.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// httpGenerateRequest is the worker service request body.
type httpGenerateRequest struct {
	Stage   string `json:"stage"`
	Payload any    `json:"payload"`
	Stream  bool   `json:"stream"`
}

// httpGenerateResponse is one worker service response frame.
type httpGenerateResponse struct {
	Result json.RawMessage `json:"result"`
	Done   bool            `json:"done"`
}

// NewHTTPClient creates a worker client for the given base URL.
//
// Inputs:
//
//	baseURL - Worker service URL, e.g. "http://planner-workers:12400".
//	rps - Maximum requests per second. Zero disables rate limiting.
//	logger - Logger for request logging. If nil, uses slog.Default().
//
// Outputs:
//
//	*HTTPClient - The configured client.
//	error - Non-nil if baseURL is empty.
func NewHTTPClient(baseURL string, rps float64, logger *slog.Logger) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("worker base URL must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}

	return &HTTPClient{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		limiter:    limiter,
		logger:     logger,
	}, nil
}

// Generate implements the Client interface with a single blocking call.
func (c *HTTPClient) Generate(ctx context.Context, req Request) (json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "HTTPClient.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("worker.stage", req.Stage))

	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(httpGenerateRequest{Stage: req.Stage, Payload: req.Payload})
	if err != nil {
		return nil, fmt.Errorf("marshal worker request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/plan", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build worker request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug("invoking worker", slog.String("stage", req.Stage))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("worker request for stage %s: %w", req.Stage, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("worker returned status %d for stage %s: %s", resp.StatusCode, req.Stage, msg)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var frame httpGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&frame); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("decode worker response for stage %s: %w", req.Stage, err)
	}

	return frame.Result, nil
}

// GenerateStream implements StreamingClient using newline-delimited JSON.
//
// Each line is a partial frame; the caller keeps only the last. Lines
// that fail to parse are skipped (partial frames from a generative
// worker are best-effort by contract).
func (c *HTTPClient) GenerateStream(ctx context.Context, req Request) (<-chan json.RawMessage, func() error, error) {
	ctx, span := tracer.Start(ctx, "HTTPClient.GenerateStream")
	span.SetAttributes(attribute.String("worker.stage", req.Stage))

	if err := c.wait(ctx); err != nil {
		span.End()
		return nil, nil, err
	}

	body, err := json.Marshal(httpGenerateRequest{Stage: req.Stage, Payload: req.Payload, Stream: true})
	if err != nil {
		span.End()
		return nil, nil, fmt.Errorf("marshal worker request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/plan", bytes.NewReader(body))
	if err != nil {
		span.End()
		return nil, nil, fmt.Errorf("build worker request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, nil, fmt.Errorf("worker stream for stage %s: %w", req.Stage, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		err := fmt.Errorf("worker returned status %d for stage %s: %s", resp.StatusCode, req.Stage, msg)
		span.RecordError(err)
		span.End()
		return nil, nil, err
	}

	ch := make(chan json.RawMessage)
	var streamErr error

	go func() {
		defer close(ch)
		defer resp.Body.Close()
		defer span.End()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var frame httpGenerateResponse
			if err := json.Unmarshal(line, &frame); err != nil {
				c.logger.Debug("skipping unparseable stream frame",
					slog.String("stage", req.Stage))
				continue
			}
			if frame.Result != nil {
				select {
				case ch <- frame.Result:
				case <-ctx.Done():
					streamErr = ctx.Err()
					return
				}
			}
			if frame.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			streamErr = fmt.Errorf("worker stream for stage %s: %w", req.Stage, err)
			span.RecordError(streamErr)
		}
	}()

	return ch, func() error { return streamErr }, nil
}

// wait blocks on the rate limiter, if configured.
func (c *HTTPClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("worker rate limit: %w", err)
	}
	return nil
}
