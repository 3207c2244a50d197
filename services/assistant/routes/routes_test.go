// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/minbar-platform/minbar/services/assistant/changebus"
	"github.com/minbar-platform/minbar/services/assistant/handlers"
	"github.com/minbar-platform/minbar/services/assistant/middleware"
)

// ============================================================================
// Test Setup
// ============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

func newTestRouter(validator middleware.SessionValidator) *gin.Engine {
	router := gin.New()
	// A pipeline with only the bus wired is enough for route registration;
	// handlers resolve their collaborators per request.
	p := &handlers.ChatPipeline{Bus: changebus.NewBus()}
	SetupRoutes(router, p, validator)
	return router
}

// ============================================================================
// SetupRoutes Tests
// ============================================================================

func TestSetupRoutes_CoreRoutesRegistered(t *testing.T) {
	router := newTestRouter(middleware.NopValidator{})

	coreRoutes := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"POST", "/v1/assistant/chat"},
		{"GET", "/v1/assistant/chat/ws"},
		{"GET", "/v1/stream"},
		{"POST", "/v1/changes"},
	}

	routes := router.Routes()
	for _, expected := range coreRoutes {
		found := false
		for _, r := range routes {
			if r.Method == expected.method && r.Path == expected.path {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected route %s %s not found", expected.method, expected.path)
		}
	}
}

func TestSetupRoutes_HealthEndpoint(t *testing.T) {
	router := newTestRouter(middleware.NopValidator{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Health endpoint returned %d, want %d", w.Code, http.StatusOK)
	}
}

func TestSetupRoutes_MetricsEndpoint(t *testing.T) {
	router := newTestRouter(middleware.NopValidator{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/metrics", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Metrics endpoint returned %d, want %d", w.Code, http.StatusOK)
	}
	if w.Header().Get("Content-Type") == "" {
		t.Error("Metrics endpoint should return Content-Type header")
	}
}

func TestSetupRoutes_HealthBypassesAuth(t *testing.T) {
	router := newTestRouter(middleware.StaticTokenValidator{Token: "secret"})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Health must not require auth, got %d", w.Code)
	}
}

func TestSetupRoutes_V1RequiresAuth(t *testing.T) {
	router := newTestRouter(middleware.StaticTokenValidator{Token: "secret"})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/stream?topics=teams", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Unauthenticated /v1 request returned %d, want %d",
			w.Code, http.StatusUnauthorized)
	}
	if !strings.Contains(w.Body.String(), `"error"`) {
		t.Errorf("401 must carry the JSON error shape, got %s", w.Body.String())
	}
}
