package normalize

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/shiftscan/internal/model"
)

// Key aliases observed in model-generated JSON. The first present key wins.
var (
	dateKeys      = []string{"date", "work_date", "workDate", "day"}
	startKeys     = []string{"start_time", "startTime", "start", "from"}
	endKeys       = []string{"end_time", "endTime", "end", "to"}
	rangeKeys     = []string{"time", "hours", "time_range"}
	workplaceKeys = []string{"workplace_name", "workplaceName", "workplace", "location", "store"}
	rateKeys      = []string{"hourly_rate", "hourlyRate", "rate", "wage"}
	breakKeys     = []string{"break_minutes", "breakMinutes", "break"}
	listKeys      = []string{"shifts", "entries", "schedule", "items"}
)

// parseJSONPayload reads a JSON document (optionally wrapped in markdown code
// fences or prose) holding either an array of shift objects or an object with
// a "shifts"-like array.
func parseJSONPayload(raw model.RawPayload) []entry {
	cleaned := cleanJSON(raw.Body)
	if cleaned == "" {
		return nil
	}

	var doc any
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		zap.L().Debug("normalize: payload is not valid JSON",
			zap.String("provider", string(raw.Provider)),
			zap.Error(err),
		)
		return nil
	}

	var items []any
	switch d := doc.(type) {
	case []any:
		items = d
	case map[string]any:
		for _, k := range listKeys {
			if arr, ok := d[k].([]any); ok {
				items = arr
				break
			}
		}
	}

	entries := make([]entry, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		e := entry{
			Date:      firstValue(obj, dateKeys),
			Start:     firstValue(obj, startKeys),
			End:       firstValue(obj, endKeys),
			Workplace: firstValue(obj, workplaceKeys),
			Rate:      firstValue(obj, rateKeys),
			Break:     firstValue(obj, breakKeys),
		}
		if e.Start == nil || e.End == nil {
			if rng, ok := firstValue(obj, rangeKeys).(string); ok {
				if m := rangeRe.FindStringSubmatch(rng); m != nil {
					e.Start, e.End = m[1], m[2]
				}
			}
		}
		entries = append(entries, e)
	}
	return entries
}

func firstValue(obj map[string]any, keys []string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// cleanJSON strips markdown code fences and surrounding prose from a model
// response, keeping the outermost JSON object or array.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	objStart := strings.Index(text, "{")
	arrStart := strings.Index(text, "[")
	switch {
	case arrStart >= 0 && (objStart < 0 || arrStart < objStart):
		if end := strings.LastIndex(text, "]"); end > arrStart {
			text = text[arrStart : end+1]
		}
	case objStart >= 0:
		if end := strings.LastIndex(text, "}"); end > objStart {
			text = text[objStart : end+1]
		}
	}

	return strings.TrimSpace(text)
}
