package planner

import (
	"regexp"
	"strconv"
	"strings"
)

// clockFormat is one entry of the time-of-day grammar.
type clockFormat struct {
	name    string
	re      *regexp.Regexp
	extract func(m []string) (int, bool)
}

// clockFormats is tried in order; the first matching entry wins.
var clockFormats = []clockFormat{
	{
		name:    "12h",
		re:      regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(am|pm)$`),
		extract: func(m []string) (int, bool) { return offset12h(m[1], m[2], m[3]) },
	},
	{
		name:    "24h",
		re:      regexp.MustCompile(`^(\d{1,2}):(\d{2})$`),
		extract: func(m []string) (int, bool) { return offset24h(m[1], m[2]) },
	},
}

// parseClock converts a time of day ("9am", "9:30 PM", "14:00") to minutes since midnight.
func parseClock(s string) (int, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, f := range clockFormats {
		if m := f.re.FindStringSubmatch(s); m != nil {
			return f.extract(m)
		}
	}
	return 0, false
}

func offset12h(hour, minute, meridiem string) (int, bool) {
	h, err := strconv.Atoi(hour)
	if err != nil || h < 1 || h > 12 {
		return 0, false
	}
	m := 0
	if minute != "" {
		if m, err = strconv.Atoi(minute); err != nil || m > 59 {
			return 0, false
		}
	}
	off := (h%12)*60 + m
	if strings.ToLower(meridiem) == "pm" {
		off += 12 * 60
	}
	return off, true
}

func offset24h(hour, minute string) (int, bool) {
	h, err := strconv.Atoi(hour)
	if err != nil {
		return 0, false
	}
	m, err := strconv.Atoi(minute)
	if err != nil || m > 59 {
		return 0, false
	}
	// 24:00 is accepted as end of day.
	if h > 24 || (h == 24 && m != 0) {
		return 0, false
	}
	return h*60 + m, true
}
