package model

// ProviderOutcome is the settled result of dispatching one image to one provider.
// A failed outcome never carries shifts and always has zero confidence.
type ProviderOutcome struct {
	Provider         ProviderID    `json:"provider"`
	Success          bool          `json:"success"`
	Confidence       float64       `json:"confidence"`
	ProcessingTimeMs int64         `json:"processing_time_ms"`
	Shifts           []ShiftRecord `json:"shifts"`
	ErrorMessage     string        `json:"error_message,omitempty"`
	Diagnostic       *RawPayload   `json:"diagnostic,omitempty"`
}

// FailedOutcome builds a failed outcome for provider with the given reason.
func FailedOutcome(provider ProviderID, reason string, elapsedMs int64) ProviderOutcome {
	return ProviderOutcome{
		Provider:         provider,
		Success:          false,
		Confidence:       0,
		ProcessingTimeMs: elapsedMs,
		Shifts:           []ShiftRecord{},
		ErrorMessage:     reason,
	}
}

// Observation is one provider's value for a disputed field.
type Observation struct {
	Provider   ProviderID `json:"provider"`
	Value      any        `json:"value"`
	Confidence float64    `json:"confidence"`
}

// ConflictRecord describes one disagreement between providers.
type ConflictRecord struct {
	Field        string        `json:"field"`
	Observations []Observation `json:"observations"`
}

// Conflict field keys.
const (
	FieldShiftCount = "shiftCount"
	FieldStartTime  = "startTime"
	FieldEndTime    = "endTime"
)

// ConsolidatedResult is the single reviewable answer of one session.
type ConsolidatedResult struct {
	RecommendedShifts   []ShiftRecord    `json:"recommended_shifts"`
	RecommendedProvider ProviderID       `json:"recommended_provider,omitempty"`
	Conflicts           []ConflictRecord `json:"conflicts"`
	OverallConfidence   float64          `json:"overall_confidence"`
	NeedsReview         bool             `json:"needs_review"`
}

// EmptyResult is the consolidated form returned when no provider produced shifts.
func EmptyResult() ConsolidatedResult {
	return ConsolidatedResult{
		RecommendedShifts: []ShiftRecord{},
		Conflicts:         []ConflictRecord{},
		OverallConfidence: 0,
		NeedsReview:       true,
	}
}
