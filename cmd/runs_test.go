package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/shiftscan/internal/model"
	"github.com/sells-group/shiftscan/internal/monitoring"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:                  "abc12345-6789-0000-0000-000000000000",
			UserID:              "user-1",
			Status:              model.SessionCompleted,
			RecommendedProvider: model.ProviderClaude,
			OverallConfidence:   0.875,
			ProcessingTimeMs:    2500,
			CreatedAt:           now,
		},
		{
			ID:          "def12345-6789-0000-0000-000000000000",
			UserID:      "user-2",
			Status:      model.SessionFailed,
			NeedsReview: true,
			CreatedAt:   now.Add(-time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "completed")
	assert.Contains(t, output, "claude")
	assert.Contains(t, output, "0.88")
	assert.Contains(t, output, "2.5s")
	assert.Contains(t, output, "failed")
	assert.Contains(t, output, "yes")
	assert.Contains(t, output, "2025-06-15 10:30")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}

func TestFormatRunStats(t *testing.T) {
	snap := &monitoring.Snapshot{
		Total: 10, Completed: 8, Failed: 2, NeedsReview: 4, Unrecommended: 1,
		FailRate: 0.2, ReviewRate: 0.5, AvgConfidence: 0.81, AvgProcessingMs: 2300,
		Recommended:   map[model.ProviderID]int{model.ProviderClaude: 5, model.ProviderMistral: 2},
		LookbackHours: 24,
	}

	var buf bytes.Buffer
	formatRunStats(&buf, snap)

	out := buf.String()
	assert.Contains(t, out, "24h")
	assert.Regexp(t, `Total runs:\s+10`, out)
	assert.Regexp(t, `Needs review:\s+4 \(50\.0%\)`, out)
	assert.Regexp(t, `Failed:\s+2 \(20\.0%\)`, out)
	assert.Regexp(t, `Avg confidence:\s+0\.81`, out)
	assert.Regexp(t, `Recommended claude:\s+5`, out)
	assert.NotContains(t, out, "Recommended tesseract")
}

func TestFormatRunStats_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, &monitoring.Snapshot{LookbackHours: 1})
	assert.NotContains(t, buf.String(), "Avg confidence")
	assert.NotContains(t, buf.String(), "Avg duration")
}
