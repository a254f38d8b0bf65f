package model

import "time"

// SessionStatus represents the lifecycle state of a processing session.
type SessionStatus string

const (
	SessionProcessing SessionStatus = "processing"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// Options controls one consolidation run.
type Options struct {
	Providers              []ProviderID `json:"providers" validate:"required,min=1,dive,required"`
	CompareAcrossProviders bool         `json:"compare_across_providers"`
	ConfidenceThreshold    float64      `json:"confidence_threshold" validate:"gte=0,lte=1"`
}

// ProcessingSession is one consolidation run owned by a single user.
type ProcessingSession struct {
	ID        string              `json:"session_id"`
	UserID    string              `json:"user_id"`
	UserName  string              `json:"user_name,omitempty"`
	Options   Options             `json:"options"`
	Status    SessionStatus       `json:"status"`
	Result    *ConsolidatedResult `json:"result,omitempty"`
	Error     string              `json:"error,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// SessionView is the caller-facing projection of a session. Raw outcomes are
// only returned at submission time.
type SessionView struct {
	SessionID string        `json:"session_id"`
	Status    SessionStatus `json:"status"`
	Options   Options       `json:"options"`
	CreatedAt time.Time     `json:"created_at"`
}

// View projects s for lookup responses.
func (s *ProcessingSession) View() SessionView {
	return SessionView{
		SessionID: s.ID,
		Status:    s.Status,
		Options:   s.Options,
		CreatedAt: s.CreatedAt,
	}
}

// Image is the binary schedule image submitted by a caller.
type Image struct {
	Name      string `json:"name,omitempty"`
	MediaType string `json:"media_type"`
	Data      []byte `json:"-"`
}

// Hints are passed through to providers alongside the image.
type Hints struct {
	UserName      string `json:"user_name,omitempty"`
	ReferenceYear int    `json:"reference_year,omitempty"`
}

// SubmitResult is returned synchronously to the submitting caller.
type SubmitResult struct {
	SessionID        string                         `json:"session_id"`
	Outcomes         map[ProviderID]ProviderOutcome `json:"outcomes"`
	Consolidated     ConsolidatedResult             `json:"consolidated"`
	ProcessingTimeMs int64                          `json:"processing_time_ms"`
}
