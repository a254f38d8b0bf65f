package model

// ProviderID identifies one extraction backend.
type ProviderID string

const (
	ProviderClaude    ProviderID = "claude"
	ProviderMistral   ProviderID = "mistral"
	ProviderTesseract ProviderID = "tesseract"
)

// KnownProviders lists every provider identifier the engine recognizes, in
// the default dispatch order.
var KnownProviders = []ProviderID{ProviderClaude, ProviderMistral, ProviderTesseract}

// IsKnown reports whether id is one of KnownProviders.
func (id ProviderID) IsKnown() bool {
	for _, k := range KnownProviders {
		if k == id {
			return true
		}
	}
	return false
}

// Canonical formats for ShiftRecord date and time fields.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// ShiftRecord is one canonical, normalized work shift.
type ShiftRecord struct {
	Date          string  `json:"date"`       // YYYY-MM-DD
	StartTime     string  `json:"start_time"` // HH:MM, local
	EndTime       string  `json:"end_time"`   // HH:MM, local
	WorkplaceName string  `json:"workplace_name"`
	HourlyRate    float64 `json:"hourly_rate"`
	BreakMinutes  int     `json:"break_minutes"`
	IsConfirmed   bool    `json:"is_confirmed"`
}

// PayloadKind tags the shape of a RawPayload.
type PayloadKind string

const (
	PayloadJSON     PayloadKind = "json"
	PayloadMarkdown PayloadKind = "markdown"
	PayloadText     PayloadKind = "text"
)

// RawPayload is the opaque, backend-specific response of one provider. Only
// that provider's parser in the normalize package interprets Body.
type RawPayload struct {
	Provider ProviderID  `json:"provider"`
	Kind     PayloadKind `json:"kind"`
	Body     string      `json:"body"`

	// ReferenceYear resolves dates printed without a year (e.g. "7/20").
	ReferenceYear int `json:"reference_year,omitempty"`
}
