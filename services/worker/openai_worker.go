// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// OpenAIClient backs a generative worker with the OpenAI chat API.
//
// The stage name and payload are rendered into a single user message;
// the model is instructed to answer with a bare JSON object, which is
// returned raw. Schema validation is the stage's job, not the client's.
type OpenAIClient struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAIClient creates an OpenAI-backed worker client.
//
// Reads OPENAI_API_KEY from the environment. The model defaults to
// gpt-4o when OPENAI_MODEL is unset.
func NewOpenAIClient(logger *slog.Logger) (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = openai.GPT4o
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("initializing OpenAI worker client", slog.String("model", model))

	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
		logger: logger,
	}, nil
}

// Generate implements the Client interface.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "OpenAIClient.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("worker.stage", req.Stage),
		attribute.String("llm.model", c.model),
	)

	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal worker payload: %w", err)
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "You are a planning worker. Respond with a single JSON object " +
					"matching the schema for the requested stage. No prose.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("stage: %s\ninput: %s", req.Stage, payload),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("openai completion for stage %s: %w", req.Stage, err)
	}

	if len(resp.Choices) == 0 {
		// Empty choice list is a degenerate-but-delivered response; hand
		// back nil so the stage reports it as a failing checkpoint.
		c.logger.Warn("openai returned no choices", slog.String("stage", req.Stage))
		return nil, nil
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	return json.RawMessage(content), nil
}
