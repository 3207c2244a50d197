// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassifiers(t *testing.T) {
	cause := errors.New("socket closed")

	tests := []struct {
		name    string
		err     error
		isConf  bool
		isGen   bool
		isMid   bool
		isValid bool
	}{
		{
			name:   "configuration error",
			err:    NewConfigurationError("GEMINI_API_KEY"),
			isConf: true,
		},
		{
			name:    "validation error",
			err:     NewValidationError(cause),
			isValid: true,
		},
		{
			name:  "generation failure",
			err:   &GenerationFailure{Model: "primary", Cause: cause},
			isGen: true,
		},
		{
			name:  "mid-stream failure",
			err:   &MidStreamFailure{Model: "primary", Chunks: 3, Cause: cause},
			isMid: true,
		},
		{
			name: "unrelated error",
			err:  cause,
		},
		{
			name:  "wrapped generation failure",
			err:   fmt.Errorf("pipeline: %w", &GenerationFailure{Model: "m", Cause: cause}),
			isGen: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.isConf, IsConfigurationError(tt.err))
			assert.Equal(t, tt.isGen, IsGenerationFailure(tt.err))
			assert.Equal(t, tt.isMid, IsMidStreamFailure(tt.err))
			assert.Equal(t, tt.isValid, IsValidationError(tt.err))
		})
	}
}

func TestErrorUnwrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")

	gf := &GenerationFailure{Model: "primary", Cause: cause}
	require.ErrorIs(t, gf, cause)

	mf := &MidStreamFailure{Model: "primary", Chunks: 7, Cause: cause}
	require.ErrorIs(t, mf, cause)
	assert.Contains(t, mf.Error(), "after 7 chunks")

	pf := &PersistenceFailure{ConversationID: "abc", Cause: cause}
	require.ErrorIs(t, pf, cause)

	ku := &KnowledgeUnavailable{Category: CategoryEpisode, Cause: cause}
	require.ErrorIs(t, ku, cause)
	assert.Contains(t, ku.Error(), string(CategoryEpisode))
}
