// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/minbar-platform/minbar/services/assistant/datatypes"
)

func TestSSEWriter_WriteChange(t *testing.T) {
	w := httptest.NewRecorder()
	writer, err := NewSSEWriter(w)
	if err != nil {
		t.Fatalf("NewSSEWriter: %v", err)
	}

	event := datatypes.NewChangeEvent("teams", nil)
	if err := writer.WriteChange(event); err != nil {
		t.Fatalf("WriteChange: %v", err)
	}

	body := w.Body.String()
	if !strings.HasPrefix(body, "event: change\n") {
		t.Errorf("expected event line first, got %q", body)
	}
	if !strings.Contains(body, "data: ") || !strings.HasSuffix(body, "\n\n") {
		t.Errorf("malformed SSE frame: %q", body)
	}

	dataLine := strings.TrimPrefix(strings.Split(body, "\n")[1], "data: ")
	var decoded datatypes.StreamEvent
	if err := json.Unmarshal([]byte(dataLine), &decoded); err != nil {
		t.Fatalf("data line is not JSON: %v", err)
	}
	if decoded.Type != datatypes.ChangeEventTypeChange {
		t.Errorf("type = %q", decoded.Type)
	}
	if decoded.Collection != "teams" {
		t.Errorf("collection = %q", decoded.Collection)
	}
	if decoded.Id == "" || decoded.CreatedAt == 0 {
		t.Errorf("id and created_at must be auto-set, got %+v", decoded)
	}
}

func TestSSEWriter_WriteStreamError(t *testing.T) {
	w := httptest.NewRecorder()
	writer, err := NewSSEWriter(w)
	if err != nil {
		t.Fatalf("NewSSEWriter: %v", err)
	}

	if err := writer.WriteStreamError("stream interrupted"); err != nil {
		t.Fatalf("WriteStreamError: %v", err)
	}

	body := w.Body.String()
	if !strings.HasPrefix(body, "event: error\n") {
		t.Errorf("expected error event, got %q", body)
	}
	if !strings.Contains(body, `"message":"stream interrupted"`) {
		t.Errorf("expected message field, got %q", body)
	}
}

func TestSSEWriter_WriteKeepAlive(t *testing.T) {
	w := httptest.NewRecorder()
	writer, err := NewSSEWriter(w)
	if err != nil {
		t.Fatalf("NewSSEWriter: %v", err)
	}

	if err := writer.WriteKeepAlive(); err != nil {
		t.Fatalf("WriteKeepAlive: %v", err)
	}
	if got := w.Body.String(); got != ": ping\n\n" {
		t.Errorf("keepalive frame = %q", got)
	}
}
