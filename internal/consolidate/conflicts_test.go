package consolidate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/shiftscan/internal/model"
)

func fields(cs []model.ConflictRecord) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Field
	}
	return out
}

func TestDetectConflicts_FewerThanTwo(t *testing.T) {
	assert.Empty(t, DetectConflicts(nil))
	assert.NotNil(t, DetectConflicts(nil))

	one := success(model.ProviderClaude, 0.8,
		shift("2024-07-20", "09:00", "17:00"),
		shift("2024-07-20", "18:00", "22:00"),
	)
	assert.Empty(t, DetectConflicts([]model.ProviderOutcome{one}))
}

func TestDetectConflicts_SpreadOfOneIsTolerated(t *testing.T) {
	a := success(model.ProviderClaude, 0.8, shift("2024-07-20", "09:00", "17:00"))
	b := success(model.ProviderMistral, 0.7, shift("2024-07-20", "09:00", "17:00"), shift("2024-07-21", "09:00", "17:00"))
	assert.Empty(t, DetectConflicts([]model.ProviderOutcome{a, b}))
}

func TestDetectConflicts_OrderIsCountThenDateAscending(t *testing.T) {
	a := success(model.ProviderClaude, 0.8,
		shift("2024-07-22", "09:00", "17:00"),
		shift("2024-07-20", "09:00", "17:00"),
	)
	b := success(model.ProviderMistral, 0.7,
		shift("2024-07-20", "10:00", "18:00"),
		shift("2024-07-21", "09:00", "17:00"),
		shift("2024-07-22", "09:00", "16:00"),
		shift("2024-07-23", "09:00", "17:00"),
	)

	got := DetectConflicts([]model.ProviderOutcome{a, b})
	assert.Equal(t, []string{
		"shiftCount",
		"startTime@2024-07-20",
		"endTime@2024-07-20",
		"endTime@2024-07-22",
	}, fields(got))
}

func TestDetectConflicts_SingleProviderDateIsNotCompared(t *testing.T) {
	// Split shift reported by one provider only.
	a := success(model.ProviderClaude, 0.8,
		shift("2024-07-20", "09:00", "12:00"),
		shift("2024-07-20", "17:00", "21:00"),
	)
	b := success(model.ProviderMistral, 0.7,
		shift("2024-07-21", "09:00", "17:00"),
	)
	assert.Empty(t, DetectConflicts([]model.ProviderOutcome{a, b}))
}

func TestDetectConflicts_AgreeingSplitShiftIsNotAConflict(t *testing.T) {
	a := success(model.ProviderClaude, 0.8,
		shift("2024-07-20", "09:00", "12:00"),
		shift("2024-07-20", "17:00", "21:00"),
	)
	b := success(model.ProviderMistral, 0.7,
		shift("2024-07-20", "17:00", "21:00"),
		shift("2024-07-20", "09:00", "12:00"),
	)
	assert.Empty(t, DetectConflicts([]model.ProviderOutcome{a, b}))

	// One provider missing half of the split shift still disagrees.
	c := success(model.ProviderTesseract, 0.5, shift("2024-07-20", "09:00", "12:00"))
	got := DetectConflicts([]model.ProviderOutcome{a, c})
	assert.Equal(t, []string{"startTime@2024-07-20", "endTime@2024-07-20"}, fields(got))
	require.Len(t, got[0].Observations, 3)
}

func TestDetectConflicts_ObservationsListEveryRecord(t *testing.T) {
	a := success(model.ProviderClaude, 0.8, shift("2024-07-20", "09:00", "17:00"))
	b := success(model.ProviderMistral, 0.7, shift("2024-07-20", "09:00", "17:00"))
	c := success(model.ProviderTesseract, 0.55, shift("2024-07-20", "09:00", "16:30"))

	got := DetectConflicts([]model.ProviderOutcome{a, b, c})
	require.Len(t, got, 1)
	assert.Equal(t, "endTime@2024-07-20", got[0].Field)
	assert.Equal(t, []model.Observation{
		{Provider: model.ProviderClaude, Value: "17:00", Confidence: 0.8},
		{Provider: model.ProviderMistral, Value: "17:00", Confidence: 0.7},
		{Provider: model.ProviderTesseract, Value: "16:30", Confidence: 0.55},
	}, got[0].Observations)
}

func TestDetectConflicts_CountConflictIsMonotonic(t *testing.T) {
	base := []model.ProviderOutcome{
		success(model.ProviderClaude, 0.8, shift("2024-07-20", "09:00", "17:00"), shift("2024-07-21", "09:00", "17:00")),
		success(model.ProviderMistral, 0.7, shift("2024-07-20", "09:00", "17:00"), shift("2024-07-21", "09:00", "17:00")),
	}
	assert.NotContains(t, fields(DetectConflicts(base)), model.FieldShiftCount)

	outlier := success(model.ProviderTesseract, 0.5,
		shift("2024-07-20", "09:00", "17:00"),
		shift("2024-07-21", "09:00", "17:00"),
		shift("2024-07-22", "09:00", "17:00"),
		shift("2024-07-23", "09:00", "17:00"),
		shift("2024-07-24", "09:00", "17:00"),
	)
	withOutlier := append(append([]model.ProviderOutcome{}, base...), outlier)
	assert.Contains(t, fields(DetectConflicts(withOutlier)), model.FieldShiftCount)

	more := append(append([]model.ProviderOutcome{}, withOutlier...),
		success("other", 0.5, shift("2024-07-20", "09:00", "17:00")))
	assert.Contains(t, fields(DetectConflicts(more)), model.FieldShiftCount)
}
