// Package consolidate compares settled provider outcomes and picks the
// recommended answer of a session.
package consolidate

import (
	"maps"
	"sort"

	"github.com/sells-group/shiftscan/internal/model"
)

// DetectConflicts reports disagreements between successful outcomes, given
// in requested provider order. With fewer than two outcomes there is nothing
// to compare. The shift count check comes first, then start and end time
// checks per date in ascending date order.
func DetectConflicts(outcomes []model.ProviderOutcome) []model.ConflictRecord {
	conflicts := []model.ConflictRecord{}
	if len(outcomes) < 2 {
		return conflicts
	}

	if c, ok := shiftCountConflict(outcomes); ok {
		conflicts = append(conflicts, c)
	}

	byDate := groupByDate(outcomes)
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	for _, date := range dates {
		g := byDate[date]
		if len(g.providers) < 2 {
			continue
		}
		if c, ok := fieldConflict(model.FieldStartTime, date, g.starts); ok {
			conflicts = append(conflicts, c)
		}
		if c, ok := fieldConflict(model.FieldEndTime, date, g.ends); ok {
			conflicts = append(conflicts, c)
		}
	}
	return conflicts
}

func shiftCountConflict(outcomes []model.ProviderOutcome) (model.ConflictRecord, bool) {
	lo, hi := len(outcomes[0].Shifts), len(outcomes[0].Shifts)
	obs := make([]model.Observation, 0, len(outcomes))
	for _, o := range outcomes {
		n := len(o.Shifts)
		lo, hi = min(lo, n), max(hi, n)
		obs = append(obs, model.Observation{Provider: o.Provider, Value: n, Confidence: o.Confidence})
	}
	if hi-lo <= 1 {
		return model.ConflictRecord{}, false
	}
	return model.ConflictRecord{Field: model.FieldShiftCount, Observations: obs}, true
}

type dateGroup struct {
	providers map[model.ProviderID]bool
	starts    []model.Observation
	ends      []model.Observation
}

// groupByDate collects one start and one end observation per record, keeping
// outcome order and record order within each outcome.
func groupByDate(outcomes []model.ProviderOutcome) map[string]*dateGroup {
	groups := make(map[string]*dateGroup)
	for _, o := range outcomes {
		for _, s := range o.Shifts {
			g, ok := groups[s.Date]
			if !ok {
				g = &dateGroup{providers: make(map[model.ProviderID]bool)}
				groups[s.Date] = g
			}
			g.providers[o.Provider] = true
			g.starts = append(g.starts, model.Observation{Provider: o.Provider, Value: s.StartTime, Confidence: o.Confidence})
			g.ends = append(g.ends, model.Observation{Provider: o.Provider, Value: s.EndTime, Confidence: o.Confidence})
		}
	}
	return groups
}

// fieldConflict compares the set of values each provider reported for date.
// Providers that report the same split shift agree; any provider whose set
// differs from the first provider's makes the date a conflict.
func fieldConflict(field, date string, obs []model.Observation) (model.ConflictRecord, bool) {
	var order []model.ProviderID
	values := make(map[model.ProviderID]map[any]struct{})
	for _, o := range obs {
		set, ok := values[o.Provider]
		if !ok {
			set = make(map[any]struct{})
			values[o.Provider] = set
			order = append(order, o.Provider)
		}
		set[o.Value] = struct{}{}
	}

	first := values[order[0]]
	for _, p := range order[1:] {
		if !maps.Equal(first, values[p]) {
			return model.ConflictRecord{Field: field + "@" + date, Observations: obs}, true
		}
	}
	return model.ConflictRecord{}, false
}
