// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package planner

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc, err := New(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestNew_AppliesDefaults(t *testing.T) {
	cfg := applyConfigDefaults(Config{})

	assert.Equal(t, 12310, cfg.Port)
	assert.Equal(t, "http", cfg.WorkerBackend)
	assert.Equal(t, "./data/planner", cfg.DataDir)
	assert.NotNil(t, cfg.Logger)
}

func TestNew_WiresRoutes(t *testing.T) {
	svc := newTestService(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	svc.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestNew_RejectsNothingOnUnknownBackend(t *testing.T) {
	// Unknown backends fall back to the HTTP worker rather than failing
	// startup.
	gin.SetMode(gin.TestMode)
	svc, err := New(Config{InMemory: true, WorkerBackend: "carrier-pigeon"})
	require.NoError(t, err)
	defer svc.Close()
}

func TestClose_IsIdempotent(t *testing.T) {
	svc := newTestService(t)

	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())
}
