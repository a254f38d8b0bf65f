package model

import "time"

// Run is the persisted history record of one processing session.
type Run struct {
	ID                  string              `json:"id"` // session ID
	UserID              string              `json:"user_id"`
	Status              SessionStatus       `json:"status"`
	Providers           []ProviderID        `json:"providers"`
	RecommendedProvider ProviderID          `json:"recommended_provider,omitempty"`
	OverallConfidence   float64             `json:"overall_confidence"`
	NeedsReview         bool                `json:"needs_review"`
	ConflictCount       int                 `json:"conflict_count"`
	ProcessingTimeMs    int64               `json:"processing_time_ms"`
	Error               string              `json:"error,omitempty"`
	Result              *ConsolidatedResult `json:"result,omitempty"`
	Outcomes            []OutcomeSummary    `json:"outcomes,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
}

// OutcomeSummary is the persisted part of a ProviderOutcome. Shifts and raw
// payloads are not kept.
type OutcomeSummary struct {
	Provider         ProviderID `json:"provider"`
	Success          bool       `json:"success"`
	Confidence       float64    `json:"confidence"`
	ShiftCount       int        `json:"shift_count"`
	ProcessingTimeMs int64      `json:"processing_time_ms"`
	ErrorMessage     string     `json:"error_message,omitempty"`
}

// Summarize reduces o to its persisted form.
func Summarize(o ProviderOutcome) OutcomeSummary {
	return OutcomeSummary{
		Provider:         o.Provider,
		Success:          o.Success,
		Confidence:       o.Confidence,
		ShiftCount:       len(o.Shifts),
		ProcessingTimeMs: o.ProcessingTimeMs,
		ErrorMessage:     o.ErrorMessage,
	}
}
