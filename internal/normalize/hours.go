package normalize

import (
	"encoding/json"
	"sort"
	"strings"
)

// DayHours is the opening-hours text for one day.
type DayHours struct {
	Day   string
	Hours string
}

// Hours is either a per-day schedule or, when no structure could be
// recovered, a single free-text status. The zero value is empty.
type Hours struct {
	Days []DayHours
	Text string
}

// IsEmpty reports whether no hours information is present.
func (h Hours) IsEmpty() bool {
	return len(h.Days) == 0 && strings.TrimSpace(h.Text) == ""
}

// Structured reports whether a per-day schedule is present.
func (h Hours) Structured() bool {
	return len(h.Days) > 0
}

// Get returns the hours text for a day, matched case-insensitively on the
// first three letters so "Mon" and "monday" both resolve.
func (h Hours) Get(day string) (string, bool) {
	key := dayKey(day)
	for _, d := range h.Days {
		if dayKey(d.Day) == key {
			return d.Hours, true
		}
	}
	return "", false
}

// MarshalJSON writes a schedule as an object in weekday order, free text as a
// string, and empty hours as {}.
func (h Hours) MarshalJSON() ([]byte, error) {
	if len(h.Days) == 0 {
		if h.Text != "" {
			return json.Marshal(h.Text)
		}
		return []byte("{}"), nil
	}

	var sb strings.Builder
	sb.WriteByte('{')
	for i, d := range h.Days {
		if i > 0 {
			sb.WriteByte(',')
		}
		k, err := json.Marshal(d.Day)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(d.Hours)
		if err != nil {
			return nil, err
		}
		sb.Write(k)
		sb.WriteByte(':')
		sb.Write(v)
	}
	sb.WriteByte('}')
	return []byte(sb.String()), nil
}

// UnmarshalJSON accepts the forms MarshalJSON produces.
func (h *Hours) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*h = hoursFromValue(Of(raw))
	return nil
}

// ParseHours reads opening hours from a map, a (possibly single-quoted) JSON
// object string, or a list of "Day: hours" lines. Text that cannot be
// structured is kept as the free-text fallback.
func (n *Normalizer) ParseHours(v Value) Hours {
	switch v.Kind() {
	case KindAbsent:
		return Hours{}

	case KindMap:
		return hoursFromValue(v)

	case KindList:
		if h, ok := hoursFromLines(v.Items()); ok {
			return h
		}
		lines := SplitList(v, "")
		return Hours{Text: CleanUnicode(strings.Join(lines, "; "))}

	case KindText:
		s, _ := v.Str()
		s = strings.TrimSpace(s)
		if s == "" {
			return Hours{}
		}

		normalized := strings.ReplaceAll(CleanUnicode(s), "'", `"`)
		var decoded any
		if err := json.Unmarshal([]byte(normalized), &decoded); err == nil {
			switch decoded.(type) {
			case map[string]any, []any:
				return n.ParseHours(Of(decoded))
			}
		}

		n.logger.Debug().Str("hours", s).Msg("hours are not structured, keeping raw text")
		return Hours{Text: CleanUnicode(s)}

	default:
		n.warn("hours", v, "unsupported hours shape, ignoring")
		return Hours{}
	}
}

func hoursFromValue(v Value) Hours {
	switch v.Kind() {
	case KindText:
		s, _ := v.Str()
		return Hours{Text: s}
	case KindMap:
		days := make([]DayHours, 0, len(v.Fields()))
		for day, hours := range v.Fields() {
			if hours.IsAbsent() {
				continue
			}
			text := hours.String()
			if hours.Kind() == KindList {
				text = strings.Join(SplitList(hours, ""), ", ")
			}
			days = append(days, DayHours{Day: day, Hours: tightenRanges(CleanUnicode(text))})
		}
		sortDays(days)
		return Hours{Days: days}
	default:
		return Hours{}
	}
}

func hoursFromLines(items []Value) (Hours, bool) {
	days := make([]DayHours, 0, len(items))
	for _, item := range items {
		line, ok := item.Str()
		if !ok {
			return Hours{}, false
		}
		day, hours, found := strings.Cut(line, ":")
		if !found || dayRank(day) < 0 {
			return Hours{}, false
		}
		days = append(days, DayHours{
			Day:   strings.TrimSpace(day),
			Hours: tightenRanges(CleanUnicode(strings.TrimSpace(hours))),
		})
	}
	if len(days) == 0 {
		return Hours{}, false
	}
	sortDays(days)
	return Hours{Days: days}, true
}

var weekdays = []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

func dayKey(day string) string {
	day = strings.ToLower(strings.TrimSpace(day))
	if len(day) > 3 {
		return day[:3]
	}
	return day
}

func dayRank(day string) int {
	key := dayKey(day)
	for i, d := range weekdays {
		if d == key {
			return i
		}
	}
	return -1
}

// sortDays orders weekdays Monday first; unknown keys follow alphabetically.
func sortDays(days []DayHours) {
	sort.SliceStable(days, func(i, j int) bool {
		ri, rj := dayRank(days[i].Day), dayRank(days[j].Day)
		switch {
		case ri >= 0 && rj >= 0:
			return ri < rj
		case ri >= 0:
			return true
		case rj >= 0:
			return false
		default:
			return days[i].Day < days[j].Day
		}
	})
}
