package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderID_IsKnown(t *testing.T) {
	for _, id := range KnownProviders {
		assert.True(t, id.IsKnown(), id)
	}
	assert.False(t, ProviderID("gpt-vision").IsKnown())
	assert.False(t, ProviderID("Claude").IsKnown())
	assert.False(t, ProviderID("").IsKnown())
}

func TestSessionStatus_Terminal(t *testing.T) {
	assert.False(t, SessionProcessing.Terminal())
	assert.True(t, SessionCompleted.Terminal())
	assert.True(t, SessionFailed.Terminal())
}

func TestFailedOutcome(t *testing.T) {
	o := FailedOutcome(ProviderMistral, "provider timed out", 45000)

	assert.Equal(t, ProviderMistral, o.Provider)
	assert.False(t, o.Success)
	assert.Zero(t, o.Confidence)
	assert.NotNil(t, o.Shifts)
	assert.Empty(t, o.Shifts)
	assert.Equal(t, "provider timed out", o.ErrorMessage)
	assert.Equal(t, int64(45000), o.ProcessingTimeMs)
	assert.Nil(t, o.Diagnostic)
}

func TestEmptyResult(t *testing.T) {
	r := EmptyResult()
	assert.True(t, r.NeedsReview)
	assert.Zero(t, r.OverallConfidence)
	assert.Empty(t, r.RecommendedProvider)

	// Empty collections serialize as arrays, not null.
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"recommended_shifts":[]`)
	assert.Contains(t, string(data), `"conflicts":[]`)
	assert.NotContains(t, string(data), "recommended_provider")
}

func TestSummarize(t *testing.T) {
	o := ProviderOutcome{
		Provider:         ProviderClaude,
		Success:          true,
		Confidence:       0.77,
		ProcessingTimeMs: 900,
		Shifts:           []ShiftRecord{{Date: "2024-07-20"}, {Date: "2024-07-21"}},
		Diagnostic:       &RawPayload{Body: "{}"},
	}

	assert.Equal(t, OutcomeSummary{
		Provider: ProviderClaude, Success: true, Confidence: 0.77,
		ShiftCount: 2, ProcessingTimeMs: 900,
	}, Summarize(o))
}

func TestProcessingSession_View(t *testing.T) {
	created := time.Date(2024, 7, 20, 9, 0, 0, 0, time.UTC)
	s := &ProcessingSession{
		ID:        "s-1",
		UserID:    "user-1",
		Options:   Options{Providers: []ProviderID{ProviderClaude}, ConfidenceThreshold: 0.7},
		Status:    SessionCompleted,
		Result:    &ConsolidatedResult{OverallConfidence: 0.9},
		CreatedAt: created,
	}

	v := s.View()
	assert.Equal(t, SessionView{
		SessionID: "s-1",
		Status:    SessionCompleted,
		Options:   s.Options,
		CreatedAt: created,
	}, v)

	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "user_id")
	assert.NotContains(t, string(data), "result")
}
