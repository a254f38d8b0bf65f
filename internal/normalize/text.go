package normalize

import (
	"regexp"
	"strings"

	"github.com/sells-group/shiftscan/internal/model"
)

var (
	rateRe    = regexp.MustCompile(`(?i)(?:(?:¥|\$|時給\s*:?)\s*([\d,]+(?:\.\d+)?)\s*(?:円)?)|(?:([\d,]+(?:\.\d+)?)\s*(?:円|yen|/h\b|/hr\b))`)
	breakRe   = regexp.MustCompile(`(?i)(?:休憩|break)\s*:?\s*(\d{1,3})\s*(?:分|mins?|minutes)?`)
	weekdayRe = regexp.MustCompile(`(?i)\(\s*(?:[月火水木金土日](?:曜日?)?|mon|tue|wed|thu|fri|sat|sun)[a-z]*\.?\s*\)`)
	tableSep  = regexp.MustCompile(`^\|?\s*:?-{2,}`)
	trimChars = " \t|,:;/-–—・"
)

// parseTextPayload scans OCR plain text line by line. A line becomes an entry
// when it carries a date and a time range; everything left over after the
// recognized tokens are removed is taken as the workplace name.
func parseTextPayload(raw model.RawPayload) []entry {
	var entries []entry
	for _, line := range strings.Split(raw.Body, "\n") {
		if e, ok := lineEntry(line, raw.ReferenceYear); ok {
			entries = append(entries, e)
		}
	}
	return entries
}

func lineEntry(line string, refYear int) (entry, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return entry{}, false
	}

	rng := rangeRe.FindStringSubmatchIndex(line)
	if rng == nil {
		return entry{}, false
	}
	start := line[rng[2]:rng[3]]
	end := line[rng[4]:rng[5]]
	rest := line[:rng[0]] + " " + line[rng[1]:]

	dateLoc := findDate(rest, refYear)
	if dateLoc == nil {
		return entry{}, false
	}
	date := rest[dateLoc[0]:dateLoc[1]]
	rest = rest[:dateLoc[0]] + " " + rest[dateLoc[1]:]

	e := entry{Date: date, Start: start, End: end}

	if m := breakRe.FindStringSubmatchIndex(rest); m != nil {
		e.Break = rest[m[2]:m[3]]
		rest = rest[:m[0]] + " " + rest[m[1]:]
	}
	if m := rateRe.FindStringSubmatchIndex(rest); m != nil {
		if m[2] >= 0 {
			e.Rate = rest[m[2]:m[3]]
		} else {
			e.Rate = rest[m[4]:m[5]]
		}
		rest = rest[:m[0]] + " " + rest[m[1]:]
	}

	rest = weekdayRe.ReplaceAllString(rest, " ")
	rest = strings.Join(strings.Fields(rest), " ")
	e.Workplace = strings.Trim(rest, trimChars)
	return e, true
}

// findDate returns the location of the first parsable date in s.
func findDate(s string, refYear int) []int {
	for _, re := range []*regexp.Regexp{isoDateRe, kanjiDateRe} {
		if loc := re.FindStringIndex(s); loc != nil {
			if _, ok := parseDate(s[loc[0]:loc[1]], refYear); ok {
				return loc
			}
		}
	}
	if m := shortDateRe.FindStringSubmatchIndex(s); m != nil {
		loc := []int{m[2], m[5]}
		if _, ok := parseDate(s[loc[0]:loc[1]], refYear); ok {
			return loc
		}
	}
	return nil
}

// column identifies what a markdown table column holds.
type column int

const (
	colUnknown column = iota
	colDate
	colStart
	colEnd
	colRange
	colWorkplace
	colRate
	colBreak
)

var headerHints = []struct {
	col   column
	words []string
}{
	{colDate, []string{"date", "日付", "日にち", "月日"}},
	{colStart, []string{"start", "開始", "出勤", "from"}},
	{colEnd, []string{"end", "終了", "退勤", "until"}},
	{colRange, []string{"time", "hours", "時間"}},
	{colWorkplace, []string{"workplace", "location", "store", "勤務先", "店舗", "場所"}},
	{colRate, []string{"rate", "wage", "時給"}},
	{colBreak, []string{"break", "休憩"}},
}

// parseMarkdownPayload reads OCR markdown. Tables with a recognizable header
// row are mapped column by column; all other lines go through the plain-text
// line scanner.
func parseMarkdownPayload(raw model.RawPayload) []entry {
	var entries []entry
	var header []column

	for _, line := range strings.Split(raw.Body, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "|") {
			header = nil
			if e, ok := lineEntry(trimmed, raw.ReferenceYear); ok {
				entries = append(entries, e)
			}
			continue
		}
		if tableSep.MatchString(trimmed) {
			continue
		}

		cells := splitRow(trimmed)
		if header == nil {
			if h, ok := detectHeader(cells); ok {
				header = h
				continue
			}
		}
		if header != nil {
			if e, ok := rowEntry(cells, header); ok {
				entries = append(entries, e)
				continue
			}
		}
		if e, ok := lineEntry(strings.Join(cells, " "), raw.ReferenceYear); ok {
			entries = append(entries, e)
		}
	}
	return entries
}

func splitRow(row string) []string {
	row = strings.Trim(strings.TrimSpace(row), "|")
	parts := strings.Split(row, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func detectHeader(cells []string) ([]column, bool) {
	cols := make([]column, len(cells))
	var hasDate, hasTime bool
	for i, c := range cells {
		lower := strings.ToLower(c)
		for _, h := range headerHints {
			if containsAny(lower, h.words) {
				cols[i] = h.col
				break
			}
		}
		switch cols[i] {
		case colDate:
			hasDate = true
		case colStart, colEnd, colRange:
			hasTime = true
		}
	}
	return cols, hasDate && hasTime
}

func rowEntry(cells []string, header []column) (entry, bool) {
	var e entry
	for i, c := range cells {
		if i >= len(header) || c == "" {
			continue
		}
		switch header[i] {
		case colDate:
			e.Date = c
		case colStart:
			e.Start = c
		case colEnd:
			e.End = c
		case colRange:
			if m := rangeRe.FindStringSubmatch(c); m != nil {
				e.Start, e.End = m[1], m[2]
			}
		case colWorkplace:
			e.Workplace = c
		case colRate:
			e.Rate = c
		case colBreak:
			e.Break = c
		}
	}
	return e, e.Date != nil && e.Start != nil && e.End != nil
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
