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
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// scriptedClient returns canned payloads without streaming.
type scriptedClient struct {
	payload json.RawMessage
	err     error
	calls   int
}

func (c *scriptedClient) Generate(_ context.Context, _ Request) (json.RawMessage, error) {
	c.calls++
	return c.payload, c.err
}

// scriptedStreamer emits a fixed sequence of partial payloads.
type scriptedStreamer struct {
	scriptedClient
	frames    []string
	streamErr error
}

func (c *scriptedStreamer) GenerateStream(_ context.Context, _ Request) (<-chan json.RawMessage, func() error, error) {
	ch := make(chan json.RawMessage, len(c.frames))
	for _, f := range c.frames {
		ch <- json.RawMessage(f)
	}
	close(ch)
	return ch, func() error { return c.streamErr }, nil
}

func TestInvoke_NonStreaming(t *testing.T) {
	c := &scriptedClient{payload: json.RawMessage(`{"goals":[]}`)}

	out, err := Invoke(context.Background(), c, Request{Stage: "goal_planning"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if string(out) != `{"goals":[]}` {
		t.Errorf("unexpected payload: %s", out)
	}
	if c.calls != 1 {
		t.Errorf("expected 1 call, got %d", c.calls)
	}
}

func TestInvoke_KeepsLastStreamFrame(t *testing.T) {
	c := &scriptedStreamer{frames: []string{
		`{"goals":[{"id":"g1"}]}`,
		`{"goals":[{"id":"g1"},{"id":"g2"}]}`,
	}}

	out, err := Invoke(context.Background(), c, Request{Stage: "goal_planning"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if string(out) != `{"goals":[{"id":"g1"},{"id":"g2"}]}` {
		t.Errorf("expected last frame, got: %s", out)
	}
}

func TestInvoke_StreamTransportError(t *testing.T) {
	wantErr := errors.New("connection reset")
	c := &scriptedStreamer{frames: []string{`{}`}, streamErr: wantErr}

	_, err := Invoke(context.Background(), c, Request{Stage: "qa"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected transport error, got: %v", err)
	}
}

func TestHTTPClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req httpGenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Stage != "intent_extraction" {
			t.Errorf("unexpected stage: %s", req.Stage)
		}
		fmt.Fprint(w, `{"result":{"domain":"fitness"},"done":true}`)
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL, 0, nil)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}

	out, err := c.Generate(context.Background(), Request{Stage: "intent_extraction"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(out) != `{"domain":"fitness"}` {
		t.Errorf("unexpected result: %s", out)
	}
}

func TestHTTPClient_GenerateStream_KeepsLast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"result":{"n":1},"done":false}`)
		fmt.Fprintln(w, `not json, skipped`)
		fmt.Fprintln(w, `{"result":{"n":2},"done":true}`)
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL, 0, nil)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}

	out, err := Invoke(context.Background(), c, Request{Stage: "scheduler"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if string(out) != `{"n":2}` {
		t.Errorf("expected last frame, got: %s", out)
	}
}

func TestHTTPClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "worker exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL, 0, nil)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}

	if _, err := c.Generate(context.Background(), Request{Stage: "qa"}); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestNewHTTPClient_EmptyURL(t *testing.T) {
	if _, err := NewHTTPClient("", 0, nil); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}
