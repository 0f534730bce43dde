package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

// HoursPatterns are coarse schedule flags derived from a per-day schedule.
type HoursPatterns struct {
	OpenLate      bool `json:"open_late"`
	OpenEarly     bool `json:"open_early"`
	OpenWeekends  bool `json:"open_weekends"`
	OpenBreakfast bool `json:"open_breakfast"`
	OpenLunch     bool `json:"open_lunch"`
	OpenDinner    bool `json:"open_dinner"`
	Open24h       bool `json:"open_24h"`
	ClosedMondays bool `json:"closed_mondays"`
}

var (
	twelveHour = regexp.MustCompile(`(?i)(\d{1,2})(?::\d{2})?\s*([ap])?\.?m?\.?\s*-\s*(\d{1,2})(?::\d{2})?\s*([ap])\.?m\.?`)
	twentyFour = regexp.MustCompile(`(\d{1,2}):\d{2}\s*-\s*(\d{1,2}):\d{2}`)
	bareRange  = regexp.MustCompile(`\b(\d{1,2})\s*-\s*(\d{1,2})\b`)
	allDay     = regexp.MustCompile(`\b24\b`)
)

// ParseHoursPatterns derives schedule flags from structured hours. Free-text
// hours yield no flags.
func ParseHoursPatterns(h Hours) HoursPatterns {
	var p HoursPatterns
	if !h.Structured() {
		return p
	}

	open := make(map[string]bool, len(h.Days))
	for _, d := range h.Days {
		text := strings.TrimSpace(d.Hours)
		if text == "" || strings.EqualFold(text, "closed") {
			continue
		}
		open[dayKey(d.Day)] = true

		if allDay.MatchString(text) {
			p.Open24h = true
			continue
		}

		opens, closes, ok := openClose(tightenRanges(CleanUnicode(text)))
		if !ok {
			continue
		}
		if opens <= 8 {
			p.OpenEarly = true
		}
		if opens <= 10 {
			p.OpenBreakfast = true
		}
		if opens <= 12 && closes >= 14 {
			p.OpenLunch = true
		}
		if closes >= 17 {
			p.OpenDinner = true
		}
		if closes >= 22 || closes <= 4 {
			p.OpenLate = true
		}
	}

	p.OpenWeekends = open["sat"] || open["sun"]
	p.ClosedMondays = !open["mon"]
	return p
}

// openClose extracts opening and closing hours on a 24-hour clock.
func openClose(text string) (int, int, bool) {
	if m := twelveHour.FindStringSubmatch(text); m != nil {
		openH, _ := strconv.Atoi(m[1])
		closeH, _ := strconv.Atoi(m[3])
		closeMer := strings.ToLower(m[4])
		openMer := strings.ToLower(m[2])
		inherited := openMer == ""
		if inherited {
			openMer = closeMer
		}
		opens := to24(openH, openMer)
		closes := to24(closeH, closeMer)
		// "11-3 PM" borrows PM from the close but still opens in the morning.
		if inherited && opens > closes {
			opens = to24(openH, "a")
		}
		return opens, closes, true
	}

	if m := twentyFour.FindStringSubmatch(text); m != nil {
		opens, _ := strconv.Atoi(m[1])
		closes, _ := strconv.Atoi(m[2])
		return opens, closes, true
	}

	if m := bareRange.FindStringSubmatch(text); m != nil {
		opens, _ := strconv.Atoi(m[1])
		closes, _ := strconv.Atoi(m[2])
		return opens, closes, true
	}

	return 0, 0, false
}

func to24(hour int, meridiem string) int {
	switch meridiem {
	case "p":
		if hour < 12 {
			return hour + 12
		}
	case "a":
		if hour == 12 {
			return 0
		}
	}
	return hour
}

// Summary lists the set flags as a short sentence, or "" when none are set.
func (p HoursPatterns) Summary() string {
	var parts []string
	if p.Open24h {
		parts = append(parts, "open 24 hours")
	}
	if p.OpenEarly {
		parts = append(parts, "opens early")
	}
	if p.OpenBreakfast {
		parts = append(parts, "serves breakfast")
	}
	if p.OpenLunch {
		parts = append(parts, "open for lunch")
	}
	if p.OpenDinner {
		parts = append(parts, "open for dinner")
	}
	if p.OpenLate {
		parts = append(parts, "open late")
	}
	if p.OpenWeekends {
		parts = append(parts, "open weekends")
	}
	if p.ClosedMondays {
		parts = append(parts, "closed Mondays")
	}
	if len(parts) == 0 {
		return ""
	}
	s := strings.Join(parts, ", ")
	return strings.ToUpper(s[:1]) + s[1:] + "."
}
