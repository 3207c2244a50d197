// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"testing"

	"github.com/google/uuid"
	"github.com/minbar-platform/minbar/services/assistant/datatypes"
)

func TestTurnUUID_Deterministic(t *testing.T) {
	turn := datatypes.ConversationTurn{
		Role:      datatypes.RoleUser,
		Content:   "ما هي أحدث حلقة؟",
		Language:  datatypes.LanguageArabic,
		Timestamp: 1700000000000,
	}

	first, err := turnUUID("conv-1", turn)
	if err != nil {
		t.Fatalf("turnUUID failed: %v", err)
	}
	second, err := turnUUID("conv-1", turn)
	if err != nil {
		t.Fatalf("turnUUID failed: %v", err)
	}

	if first != second {
		t.Errorf("same turn must derive the same id: %s vs %s", first, second)
	}
	if _, err := uuid.Parse(first); err != nil {
		t.Errorf("derived id is not a valid uuid: %v", err)
	}
}

func TestTurnUUID_DistinctInputsDiverge(t *testing.T) {
	base := datatypes.ConversationTurn{
		Role:      datatypes.RoleUser,
		Content:   "hello",
		Timestamp: 1700000000000,
	}

	baseID, _ := turnUUID("conv-1", base)

	variants := []struct {
		name   string
		convID string
		turn   datatypes.ConversationTurn
	}{
		{"different conversation", "conv-2", base},
		{"different role", "conv-1", datatypes.ConversationTurn{
			Role: datatypes.RoleAssistant, Content: "hello", Timestamp: 1700000000000}},
		{"different content", "conv-1", datatypes.ConversationTurn{
			Role: datatypes.RoleUser, Content: "hello!", Timestamp: 1700000000000}},
		{"different timestamp", "conv-1", datatypes.ConversationTurn{
			Role: datatypes.RoleUser, Content: "hello", Timestamp: 1700000000001}},
	}

	for _, tt := range variants {
		t.Run(tt.name, func(t *testing.T) {
			id, err := turnUUID(tt.convID, tt.turn)
			if err != nil {
				t.Fatalf("turnUUID failed: %v", err)
			}
			if id == baseID {
				t.Errorf("expected a distinct id for %s", tt.name)
			}
		})
	}
}
