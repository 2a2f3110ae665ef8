package planner

import (
	"regexp"
	"strings"
)

// timeframeFormat is one entry of the timeframe grammar: a pattern and the
// extractor that maps its submatches to offsets.
type timeframeFormat struct {
	name    string
	re      *regexp.Regexp
	extract func(m []string) (Timeframe, bool)
}

const rangeSep = `\s*(?:-|–|to)\s*`

// timeframeFormats is tried in order; the first matching pattern wins even if
// its extractor rejects the values.
var timeframeFormats = []timeframeFormat{
	{
		name: "12h",
		re:   regexp.MustCompile(`^(\d{1,2})\s*(am|pm)` + rangeSep + `(\d{1,2})\s*(am|pm)$`),
		extract: func(m []string) (Timeframe, bool) {
			start, ok1 := offset12h(m[1], "", m[2])
			end, ok2 := offset12h(m[3], "", m[4])
			return Timeframe{Start: start, End: end}, ok1 && ok2
		},
	},
	{
		name: "24h",
		re:   regexp.MustCompile(`^(\d{1,2}):(\d{2})` + rangeSep + `(\d{1,2}):(\d{2})$`),
		extract: func(m []string) (Timeframe, bool) {
			start, ok1 := offset24h(m[1], m[2])
			end, ok2 := offset24h(m[3], m[4])
			return Timeframe{Start: start, End: end}, ok1 && ok2
		},
	},
	{
		name: "mixed",
		re:   regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(am|pm)` + rangeSep + `(\d{1,2})(?::(\d{2}))?\s*(am|pm)$`),
		extract: func(m []string) (Timeframe, bool) {
			start, ok1 := offset12h(m[1], m[2], m[3])
			end, ok2 := offset12h(m[4], m[5], m[6])
			return Timeframe{Start: start, End: end}, ok1 && ok2
		},
	},
}

// timeframePresets are matched case-insensitively after the patterns fail.
var timeframePresets = map[string]Timeframe{
	"morning":        {Start: 540, End: 720},
	"afternoon":      {Start: 780, End: 1020},
	"evening":        {Start: 1080, End: 1260},
	"workday":        {Start: 540, End: 1020},
	"business hours": {Start: 540, End: 1020},
}

// NormalizeTimeframe resolves a timeframe token to offsets and enforces the
// order and duration bounds regardless of which path resolved it.
func NormalizeTimeframe(raw string) (Timeframe, error) {
	tf, ok := resolveTimeframe(raw)
	if !ok {
		return Timeframe{}, &TimeframeError{Input: raw, Err: ErrTimeframeFormat}
	}
	switch d := tf.Duration(); {
	case d <= 0:
		return Timeframe{}, &TimeframeError{Input: raw, Window: tf, Err: ErrTimeframeOrder}
	case d < MinWindowMinutes:
		return Timeframe{}, &TimeframeError{Input: raw, Window: tf, Err: ErrTimeframeTooShort}
	case d > MaxWindowMinutes:
		return Timeframe{}, &TimeframeError{Input: raw, Window: tf, Err: ErrTimeframeTooLong}
	}
	return tf, nil
}

func resolveTimeframe(raw string) (Timeframe, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	for _, f := range timeframeFormats {
		if m := f.re.FindStringSubmatch(s); m != nil {
			return f.extract(m)
		}
	}
	tf, ok := timeframePresets[strings.Join(strings.Fields(s), " ")]
	return tf, ok
}
