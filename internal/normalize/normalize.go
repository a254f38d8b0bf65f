// Package normalize converts provider-specific extraction payloads into
// canonical shift records.
package normalize

import (
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/width"

	"github.com/sells-group/shiftscan/internal/config"
	"github.com/sells-group/shiftscan/internal/model"
)

// Options controls defaulting of optional shift fields.
type Options struct {
	PlaceholderWorkplace string
	BaselineHourlyRate   float64
	MaxHourlyRate        float64
}

// DefaultOptions returns the built-in defaulting policy.
func DefaultOptions() Options {
	return Options{
		PlaceholderWorkplace: "Unknown workplace",
		BaselineHourlyRate:   1000,
		MaxHourlyRate:        10000,
	}
}

// OptionsFromConfig builds Options from config, keeping defaults for unset values.
func OptionsFromConfig(cfg config.ExtractConfig) Options {
	opts := DefaultOptions()
	if cfg.PlaceholderWorkplace != "" {
		opts.PlaceholderWorkplace = cfg.PlaceholderWorkplace
	}
	if cfg.BaselineHourlyRate > 0 {
		opts.BaselineHourlyRate = cfg.BaselineHourlyRate
	}
	if cfg.MaxHourlyRate > 0 {
		opts.MaxHourlyRate = cfg.MaxHourlyRate
	}
	return opts
}

// entry is one candidate shift found in a payload before validation. Values
// are left loosely typed because each backend reports them differently.
type entry struct {
	Date      any
	Start     any
	End       any
	Workplace any
	Rate      any
	Break     any
}

// parseFunc extracts candidate entries from one backend's payload.
type parseFunc func(raw model.RawPayload) []entry

// Normalizer turns RawPayloads into ShiftRecords using a parser per provider.
type Normalizer struct {
	opts    Options
	parsers map[model.ProviderID]parseFunc
}

// New creates a Normalizer with the built-in provider parsers.
func New(opts Options) *Normalizer {
	return &Normalizer{
		opts: opts,
		parsers: map[model.ProviderID]parseFunc{
			model.ProviderClaude:    parseJSONPayload,
			model.ProviderMistral:   parseMarkdownPayload,
			model.ProviderTesseract: parseTextPayload,
		},
	}
}

// Placeholder returns the workplace label substituted for missing names.
func (n *Normalizer) Placeholder() string {
	return n.opts.PlaceholderWorkplace
}

// Normalize converts raw into canonical shifts. Entries without a parsable
// date, start and end are dropped. It never fails: an unparsable payload
// yields an empty list.
func (n *Normalizer) Normalize(raw model.RawPayload, provider model.ProviderID) (shifts []model.ShiftRecord) {
	shifts = []model.ShiftRecord{}
	defer func() {
		if r := recover(); r != nil {
			zap.L().Warn("normalize: parser panicked",
				zap.String("provider", string(provider)),
				zap.Any("panic", r),
			)
			shifts = []model.ShiftRecord{}
		}
	}()

	parse, ok := n.parsers[provider]
	if !ok {
		parse = parserForKind(raw.Kind)
	}

	raw.Body = width.Fold.String(strings.ToValidUTF8(raw.Body, ""))
	for _, e := range parse(raw) {
		rec, ok := n.toRecord(e, raw.ReferenceYear)
		if !ok {
			continue
		}
		shifts = append(shifts, rec)
	}
	return shifts
}

// printable drops replacement and non-printing runes left by OCR and trims
// the result.
func printable(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == unicode.ReplacementChar || !unicode.IsPrint(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

func parserForKind(kind model.PayloadKind) parseFunc {
	switch kind {
	case model.PayloadJSON:
		return parseJSONPayload
	case model.PayloadMarkdown:
		return parseMarkdownPayload
	default:
		return parseTextPayload
	}
}

func (n *Normalizer) toRecord(e entry, refYear int) (model.ShiftRecord, bool) {
	date, ok := parseDate(asString(e.Date), refYear)
	if !ok {
		return model.ShiftRecord{}, false
	}
	start, ok := parseClock(asString(e.Start))
	if !ok {
		return model.ShiftRecord{}, false
	}
	end, ok := parseClock(asString(e.End))
	if !ok {
		return model.ShiftRecord{}, false
	}

	workplace := printable(asString(e.Workplace))
	if workplace == "" {
		workplace = n.opts.PlaceholderWorkplace
	}

	rate, ok := toFloat(e.Rate)
	if !ok || rate <= 0 || rate > n.opts.MaxHourlyRate {
		rate = n.opts.BaselineHourlyRate
	}

	breakMin, ok := toInt(e.Break)
	if !ok || breakMin < 0 {
		breakMin = 0
	}

	return model.ShiftRecord{
		Date:          date,
		StartTime:     start,
		EndTime:       end,
		WorkplaceName: workplace,
		HourlyRate:    rate,
		BreakMinutes:  breakMin,
		IsConfirmed:   false,
	}, true
}
