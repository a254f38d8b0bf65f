package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/shiftscan/internal/model"
)

// clockPattern matches one time of day: "9:00", "09:00:00", "9:00PM", "9時", "9時30分".
const clockPattern = `\d{1,2}(?::\d{2}(?::\d{2})?|時(?:\d{1,2}分)?)(?:\s*[AaPp][Mm])?`

var (
	isoDateRe   = regexp.MustCompile(`(\d{4})\s*[-/.]\s*(\d{1,2})\s*[-/.]\s*(\d{1,2})`)
	kanjiDateRe = regexp.MustCompile(`(?:(\d{4})\s*年\s*)?(\d{1,2})\s*月\s*(\d{1,2})\s*日`)
	shortDateRe = regexp.MustCompile(`(?:^|[^\d/])(\d{1,2})/(\d{1,2})(?:$|[^\d/])`)

	clockRe = regexp.MustCompile(`^(\d{1,2})(?::(\d{2})(?::\d{2})?|時(?:(\d{1,2})分)?)?\s*([AaPp][Mm])?$`)
	rangeRe = regexp.MustCompile(`(` + clockPattern + `)\s*(?:-|~|〜|–|—|to)\s*(` + clockPattern + `)`)
)

// parseDate finds a calendar date in s and returns it as YYYY-MM-DD. Dates
// printed without a year use refYear; with refYear 0 they are rejected.
func parseDate(s string, refYear int) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}

	if m := isoDateRe.FindStringSubmatch(s); m != nil {
		return buildDate(m[1], m[2], m[3], refYear)
	}
	if m := kanjiDateRe.FindStringSubmatch(s); m != nil {
		return buildDate(m[1], m[2], m[3], refYear)
	}
	if m := shortDateRe.FindStringSubmatch(s); m != nil {
		return buildDate("", m[1], m[2], refYear)
	}
	return "", false
}

func buildDate(yearStr, monthStr, dayStr string, refYear int) (string, bool) {
	year := refYear
	if yearStr != "" {
		y, err := strconv.Atoi(yearStr)
		if err != nil {
			return "", false
		}
		year = y
	}
	if year <= 0 {
		return "", false
	}
	month, err := strconv.Atoi(monthStr)
	if err != nil || month < 1 || month > 12 {
		return "", false
	}
	day, err := strconv.Atoi(dayStr)
	if err != nil || day < 1 || day > 31 {
		return "", false
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (Feb 30 -> Mar 2); reject those.
	if t.Day() != day || int(t.Month()) != month {
		return "", false
	}
	return t.Format(model.DateLayout), true
}

// parseClock parses a single time of day into HH:MM. Hours 24-29 written by
// overnight schedules ("25:00") wrap to the next day's clock time.
func parseClock(s string) (string, bool) {
	s = strings.TrimSpace(s)
	m := clockRe.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}

	hour, err := strconv.Atoi(m[1])
	if err != nil {
		return "", false
	}
	minute := 0
	minStr := m[2]
	if minStr == "" {
		minStr = m[3]
	}
	if minStr != "" {
		minute, err = strconv.Atoi(minStr)
		if err != nil || minute > 59 {
			return "", false
		}
	}

	if ampm := strings.ToLower(m[4]); ampm != "" {
		if hour < 1 || hour > 12 {
			return "", false
		}
		switch {
		case ampm == "pm" && hour != 12:
			hour += 12
		case ampm == "am" && hour == 12:
			hour = 0
		}
	}

	if hour > 29 {
		return "", false
	}
	if hour >= 24 {
		hour -= 24
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}

// asString renders loosely typed payload values for the string parsers.
func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		cleaned := strings.TrimSpace(n)
		for _, cut := range []string{",", "¥", "$", "円", "yen"} {
			cleaned = strings.ReplaceAll(cleaned, cut, "")
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(cleaned), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case string:
		cleaned := strings.TrimSpace(n)
		for _, cut := range []string{"分", "min", "mins", "minutes"} {
			cleaned = strings.TrimSuffix(cleaned, cut)
		}
		i, err := strconv.Atoi(strings.TrimSpace(cleaned))
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
