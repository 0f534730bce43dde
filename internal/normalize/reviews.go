package normalize

import (
	"encoding/json"
	"strings"
)

// Review sources.
const (
	SourceGoogle    = "google"
	SourceOpenTable = "opentable"
	SourceUnknown   = "unknown"
)

// Review is one review text with the source that supplied it.
type Review struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// ParseReviews accepts whatever a scraper stored in its reviews column and
// returns well-formed reviews. Blank entries are dropped.
func (n *Normalizer) ParseReviews(v Value) []Review {
	switch v.Kind() {
	case KindAbsent:
		return nil

	case KindList:
		if structured, ok := structuredReviews(v.Items()); ok {
			return structured
		}
		return wrapUnknown(v.Items())

	case KindText:
		s, _ := v.Str()
		if strings.TrimSpace(s) == "" {
			return nil
		}

		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			if items, isList := decoded.([]any); isList {
				return wrapUnknown(Of(items).Items())
			}
			return []Review{{Text: s, Source: SourceUnknown}}
		}

		if items, ok := parseListLiteral(s); ok {
			reviews := make([]Review, 0, len(items))
			for _, item := range items {
				if strings.TrimSpace(item) != "" {
					reviews = append(reviews, Review{Text: item, Source: SourceUnknown})
				}
			}
			return reviews
		}

		return []Review{{Text: s, Source: SourceUnknown}}

	case KindMap:
		if text := v.Field("text").String(); strings.TrimSpace(text) != "" {
			return []Review{{Text: text, Source: sourceOrUnknown(v.Field("source"))}}
		}
		n.warn("reviews", v, "review map without text, keeping encoded form")
		return []Review{{Text: v.String(), Source: SourceUnknown}}

	default:
		if text := v.String(); strings.TrimSpace(text) != "" {
			return []Review{{Text: text, Source: SourceUnknown}}
		}
		return nil
	}
}

// MergeReviews parses each source's reviews and stamps them with that source.
// Order follows the argument order.
func (n *Normalizer) MergeReviews(sources ...SourcedValue) []Review {
	var merged []Review
	for _, src := range sources {
		for _, r := range n.ParseReviews(src.Value) {
			r.Source = src.Source
			merged = append(merged, r)
		}
	}
	return merged
}

// SourcedValue pairs a raw value with the source name it came from.
type SourcedValue struct {
	Source string
	Value  Value
}

func structuredReviews(items []Value) ([]Review, bool) {
	reviews := make([]Review, 0, len(items))
	for _, item := range items {
		if !item.Truthy() {
			continue
		}
		if item.Kind() != KindMap {
			return nil, false
		}
		fields := item.Fields()
		_, hasText := fields["text"]
		_, hasSource := fields["source"]
		if !hasText || !hasSource {
			return nil, false
		}
		text := item.Field("text").String()
		if strings.TrimSpace(text) == "" {
			continue
		}
		reviews = append(reviews, Review{Text: text, Source: sourceOrUnknown(item.Field("source"))})
	}
	return reviews, true
}

func wrapUnknown(items []Value) []Review {
	reviews := make([]Review, 0, len(items))
	for _, item := range items {
		if !item.Truthy() {
			continue
		}
		reviews = append(reviews, Review{Text: item.String(), Source: SourceUnknown})
	}
	return reviews
}

func sourceOrUnknown(v Value) string {
	if s := strings.TrimSpace(v.String()); s != "" {
		return s
	}
	return SourceUnknown
}

// parseListLiteral reads a bracketed list of quoted strings written with
// either quote style, e.g. ['Great pasta', "Chef's kiss"].
func parseListLiteral(s string) ([]string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, false
	}

	body := []rune(s[1 : len(s)-1])
	var (
		items []string
		i     int
	)
	for {
		for i < len(body) && (body[i] == ' ' || body[i] == '\n' || body[i] == '\t') {
			i++
		}
		if i >= len(body) {
			return items, true
		}

		quote := body[i]
		if quote != '\'' && quote != '"' {
			return nil, false
		}
		i++

		var sb strings.Builder
		closed := false
		for i < len(body) {
			r := body[i]
			if r == '\\' && i+1 < len(body) {
				next := body[i+1]
				switch next {
				case 'n':
					sb.WriteRune('\n')
				case 't':
					sb.WriteRune('\t')
				default:
					sb.WriteRune(next)
				}
				i += 2
				continue
			}
			if r == quote {
				closed = true
				i++
				break
			}
			sb.WriteRune(r)
			i++
		}
		if !closed {
			return nil, false
		}
		items = append(items, sb.String())

		for i < len(body) && (body[i] == ' ' || body[i] == '\n' || body[i] == '\t') {
			i++
		}
		if i >= len(body) {
			return items, true
		}
		if body[i] != ',' {
			return nil, false
		}
		i++
	}
}
