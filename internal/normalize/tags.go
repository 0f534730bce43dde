package normalize

import (
	"encoding/json"
	"strings"
)

// ParseTags reads a tag list from a list, a JSON array string, a Postgres
// array literal, a comma-separated string or a single bare tag.
func (n *Normalizer) ParseTags(v Value) []string {
	switch v.Kind() {
	case KindAbsent:
		return nil

	case KindList:
		tags := make([]string, 0, len(v.Items()))
		for _, item := range v.Items() {
			if !item.Truthy() {
				continue
			}
			if tag := cleanTag(item.String()); tag != "" {
				tags = append(tags, tag)
			}
		}
		return tags

	case KindText:
		s, _ := v.Str()
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}

		if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
			var items []any
			if err := json.Unmarshal([]byte(s), &items); err == nil {
				return n.ParseTags(Of(items))
			}
			if items, ok := parseListLiteral(s); ok {
				return n.ParseTags(Of(items))
			}
			n.warn("tags", v, "bracketed tags are not a valid list, splitting on commas")
		}

		if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
			return splitTags(strings.Trim(s, "{}"))
		}

		if strings.Contains(s, ",") {
			return splitTags(s)
		}

		return []string{cleanTag(s)}

	case KindScalar:
		return []string{v.String()}

	default:
		n.warn("tags", v, "unsupported tags shape, ignoring")
		return nil
	}
}

// MergeTags unions tag groups case-insensitively. Output is lower-cased and
// keeps the order in which each tag was first seen.
func MergeTags(groups ...[]string) []string {
	seen := make(map[string]struct{})
	merged := make([]string, 0)
	for _, group := range groups {
		for _, tag := range group {
			tag = strings.ToLower(cleanTag(tag))
			if tag == "" {
				continue
			}
			if _, dup := seen[tag]; dup {
				continue
			}
			seen[tag] = struct{}{}
			merged = append(merged, tag)
		}
	}
	return merged
}

func splitTags(s string) []string {
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if tag := cleanTag(p); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// cleanTag strips whitespace, quotes and stray braces around a tag.
func cleanTag(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `{}"' `)
	return strings.TrimSpace(s)
}
