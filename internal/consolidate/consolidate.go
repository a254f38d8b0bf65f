package consolidate

import (
	"github.com/sells-group/shiftscan/internal/model"
)

// DefaultConsensusBonus is added once to the mean confidence when more than
// one provider produced shifts.
const DefaultConsensusBonus = 0.1

// Consolidator selects the recommended outcome of a session.
type Consolidator struct {
	consensusBonus float64
}

// New creates a Consolidator. A negative bonus is treated as zero.
func New(consensusBonus float64) *Consolidator {
	return &Consolidator{consensusBonus: max(consensusBonus, 0)}
}

// Consolidate uses DefaultConsensusBonus.
func Consolidate(outcomes []model.ProviderOutcome, threshold float64) model.ConsolidatedResult {
	return New(DefaultConsensusBonus).Consolidate(outcomes, threshold)
}

// Consolidate reduces outcomes, given in requested provider order, to one
// result. Only successful outcomes with shifts take part. The recommended
// shifts are the full list of the single most confident outcome; equal
// confidences go to the earliest outcome. The result needs review when the
// overall confidence is below threshold or any conflict was found.
func (c *Consolidator) Consolidate(outcomes []model.ProviderOutcome, threshold float64) model.ConsolidatedResult {
	usable := Usable(outcomes)
	if len(usable) == 0 {
		return model.EmptyResult()
	}

	best := usable[0]
	sum := 0.0
	for _, o := range usable {
		sum += o.Confidence
		if o.Confidence > best.Confidence {
			best = o
		}
	}

	overall := sum / float64(len(usable))
	if len(usable) > 1 {
		overall += c.consensusBonus
	}
	overall = min(overall, 1)

	conflicts := DetectConflicts(usable)

	shifts := make([]model.ShiftRecord, len(best.Shifts))
	copy(shifts, best.Shifts)

	return model.ConsolidatedResult{
		RecommendedShifts:   shifts,
		RecommendedProvider: best.Provider,
		Conflicts:           conflicts,
		OverallConfidence:   overall,
		NeedsReview:         overall < threshold || len(conflicts) > 0,
	}
}

// Usable returns the successful outcomes that carry at least one shift.
func Usable(outcomes []model.ProviderOutcome) []model.ProviderOutcome {
	out := make([]model.ProviderOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Success && len(o.Shifts) > 0 {
			out = append(out, o)
		}
	}
	return out
}
