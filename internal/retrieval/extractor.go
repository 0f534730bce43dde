package retrieval

import (
	"regexp"
	"strings"
)

// MatchMethod records which rule located the neighborhood in a query.
type MatchMethod string

const (
	MatchNone        MatchMethod = ""
	MatchLandmark    MatchMethod = "landmark"
	MatchPreposition MatchMethod = "preposition"
	MatchEntity      MatchMethod = "entity"
	MatchAlias       MatchMethod = "alias"
)

// Entity labels treated as places.
const (
	EntityGeopolitical = "GPE"
	EntityLocation     = "LOC"
)

// Entity is a labeled span returned by an EntityRecognizer.
type Entity struct {
	Text  string
	Label string
}

// EntityRecognizer finds named entities in free text.
type EntityRecognizer interface {
	Recognize(text string) []Entity
}

// Extraction is the result of location extraction.
type Extraction struct {
	// Query is the input with the matched location span removed.
	Query        string      `json:"query"`
	Neighborhood string      `json:"neighborhood,omitempty"`
	Method       MatchMethod `json:"method,omitempty"`
}

// Found reports whether a neighborhood was extracted.
func (e Extraction) Found() bool {
	return e.Neighborhood != ""
}

var prepositionPatterns = func() []*regexp.Regexp {
	preps := []string{"in", "near", "around", "at", "by", "within"}
	patterns := make([]*regexp.Regexp, len(preps))
	for i, p := range preps {
		patterns[i] = regexp.MustCompile(`(?i)\b` + p + `\s+([a-z][a-z\s']*)`)
	}
	return patterns
}()

// Extractor pulls a neighborhood out of a free-text query.
type Extractor struct {
	recognizer EntityRecognizer
}

// NewExtractor creates an extractor. The recognizer is optional.
func NewExtractor(recognizer EntityRecognizer) *Extractor {
	return &Extractor{recognizer: recognizer}
}

// Extract returns the canonical neighborhood named in query, if any, and the
// query with that mention removed. Rules are tried in order: a landmark opening
// the query, a preposition phrase naming a known alias, a recognized place
// entity, then a bare alias.
func (e *Extractor) Extract(query string) Extraction {
	if strings.TrimSpace(query) == "" {
		return Extraction{Query: query}
	}

	lower := strings.ToLower(strings.TrimSpace(query))
	for _, landmark := range landmarkPrefixes {
		if strings.HasPrefix(lower, landmark) {
			return Extraction{Query: query, Neighborhood: neighborhoodAliases[landmark], Method: MatchLandmark}
		}
	}

	for _, pattern := range prepositionPatterns {
		for _, m := range pattern.FindAllStringSubmatchIndex(query, -1) {
			phrase := query[m[2]:m[3]]
			alias, loc, ok := findAlias(phrase)
			if !ok {
				continue
			}
			// Drop the preposition through the end of the alias.
			end := m[2] + loc[1]
			return Extraction{
				Query:        collapseSpaces(query[:m[0]] + " " + query[end:]),
				Neighborhood: alias.canonical,
				Method:       MatchPreposition,
			}
		}
	}

	if e.recognizer != nil {
		for _, ent := range e.recognizer.Recognize(query) {
			if ent.Label != EntityGeopolitical && ent.Label != EntityLocation {
				continue
			}
			alias, _, ok := findAlias(ent.Text)
			if !ok {
				continue
			}
			return Extraction{
				Query:        collapseSpaces(strings.Replace(query, ent.Text, " ", 1)),
				Neighborhood: alias.canonical,
				Method:       MatchEntity,
			}
		}
	}

	if alias, _, ok := findAlias(query); ok {
		return Extraction{
			Query:        collapseSpaces(alias.pattern.ReplaceAllString(query, " ")),
			Neighborhood: alias.canonical,
			Method:       MatchAlias,
		}
	}

	return Extraction{Query: query}
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var defaultExtractor = NewExtractor(nil)

// ExtractLocation runs extraction without an entity recognizer.
func ExtractLocation(query string) Extraction {
	return defaultExtractor.Extract(query)
}
