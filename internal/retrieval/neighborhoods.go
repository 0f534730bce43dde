package retrieval

import (
	"regexp"
	"sort"
	"strings"
)

// neighborhoodAliases maps lower-case aliases to canonical neighborhood names.
// It is never mutated after package initialization.
var neighborhoodAliases = map[string]string{
	// Boroughs and citywide
	"nyc":           "New York City",
	"new york":      "New York City",
	"new york city": "New York City",
	"manhattan":     "Manhattan",
	"brooklyn":      "Brooklyn",
	"queens":        "Queens",
	"bronx":         "Bronx",
	"staten island": "Staten Island",

	// Manhattan
	"soho":                 "SoHo",
	"greenpoint":           "Greenpoint",
	"east village":         "East Village",
	"west village":         "West Village",
	"lower east side":      "Lower East Side",
	"les":                  "Lower East Side",
	"upper east side":      "Upper East Side",
	"ues":                  "Upper East Side",
	"upper west side":      "Upper West Side",
	"uws":                  "Upper West Side",
	"chelsea":              "Chelsea District",
	"chinatown":            "Chinatown",
	"tribeca":              "Tribeca",
	"little italy":         "Little Italy",
	"nolita":               "Little Italy",
	"midtown":              "Midtown",
	"flatiron":             "Flatiron District",
	"gramercy":             "Gramercy",
	"noho":                 "NoHo",
	"fidi":                 "Financial District",
	"financial district":   "Financial District",
	"alphabet city":        "Alphabet City",
	"downtown":             "Manhattan",
	"hell's kitchen":       "Hell's Kitchen",
	"hells kitchen":        "Hell's Kitchen",
	"ktown":                "Koreatown",
	"korea town":           "Koreatown",
	"midtown east":         "Midtown East",
	"midtown west":         "Midtown West",
	"theatre district":     "Theater District",
	"theater district":     "Theater District",
	"meatpacking":          "Meatpacking District",
	"meatpacking district": "Meatpacking District",
	"meat packing":         "Meatpacking District",

	// Brooklyn
	"williamsburg":      "Brooklyn",
	"dumbo":             "Brooklyn",
	"downtown brooklyn": "Brooklyn",
	"bk heights":        "Brooklyn Heights",
	"boerum hill":       "Brooklyn",
	"fort greene":       "Brooklyn",
	"park slope":        "Brooklyn",
	"cobble hill":       "Brooklyn",
	"prospect heights":  "Brooklyn",

	// Landmarks and parks
	"central park":           "Upper East Side",
	"bryant park":            "Midtown",
	"washington square park": "Greenwich Village",
	"times square":           "Midtown",
	"union square":           "Flatiron District",
	"hudson yards":           "Chelsea District",
	"high line":              "Chelsea District",
}

// landmarkPrefixes are landmarks that keep the query intact when they open it.
var landmarkPrefixes = []string{
	"central park",
	"bryant park",
	"washington square park",
	"times square",
}

// adjacentNeighborhoods lists the neighborhoods searched when a primary
// neighborhood yields too few results.
var adjacentNeighborhoods = map[string][]string{
	"SoHo":              {"NoHo", "Little Italy", "Tribeca", "Greenwich Village"},
	"East Village":      {"NoHo", "Lower East Side", "Alphabet City", "Gramercy"},
	"West Village":      {"Greenwich Village", "Chelsea District", "Meatpacking District"},
	"Lower East Side":   {"East Village", "Chinatown", "Little Italy"},
	"Tribeca":           {"SoHo", "Financial District", "Chinatown"},
	"Midtown":           {"Chelsea District", "Midtown East", "Midtown West", "Theater District"},
	"Brooklyn":          {"Williamsburg", "Brooklyn Heights", "Greenpoint"},
	"Chinatown":         {"Little Italy", "Lower East Side", "Financial District"},
	"Chelsea District":  {"West Village", "Midtown", "Meatpacking District"},
	"Greenwich Village": {"West Village", "SoHo", "NoHo"},
}

type aliasMatcher struct {
	alias     string
	canonical string
	pattern   *regexp.Regexp
}

// aliasMatchers holds one word-bounded matcher per alias, longest alias first
// so "midtown east" wins over "midtown".
var aliasMatchers = buildAliasMatchers()

func buildAliasMatchers() []aliasMatcher {
	matchers := make([]aliasMatcher, 0, len(neighborhoodAliases))
	for alias, canonical := range neighborhoodAliases {
		matchers = append(matchers, aliasMatcher{
			alias:     alias,
			canonical: canonical,
			pattern:   regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(alias) + `\b`),
		})
	}
	sort.Slice(matchers, func(i, j int) bool {
		if len(matchers[i].alias) != len(matchers[j].alias) {
			return len(matchers[i].alias) > len(matchers[j].alias)
		}
		return matchers[i].alias < matchers[j].alias
	})
	return matchers
}

// findAlias returns the earliest alias mentioned in text, preferring the
// longest alias at that position, along with the byte span of the match.
func findAlias(text string) (aliasMatcher, []int, bool) {
	var best aliasMatcher
	var bestLoc []int
	for _, m := range aliasMatchers {
		loc := m.pattern.FindStringIndex(text)
		if loc == nil {
			continue
		}
		if bestLoc == nil || loc[0] < bestLoc[0] {
			best, bestLoc = m, loc
		}
	}
	return best, bestLoc, bestLoc != nil
}

// CanonicalNeighborhood resolves an alias such as "les" or "Hells Kitchen"
// to its canonical neighborhood name.
func CanonicalNeighborhood(alias string) (string, bool) {
	canonical, ok := neighborhoodAliases[strings.ToLower(strings.TrimSpace(alias))]
	return canonical, ok
}

// AdjacentNeighborhoods returns the neighborhoods adjacent to a canonical
// neighborhood. The returned slice is a copy.
func AdjacentNeighborhoods(neighborhood string) []string {
	adjacent := adjacentNeighborhoods[neighborhood]
	if len(adjacent) == 0 {
		return nil
	}
	out := make([]string, len(adjacent))
	copy(out, adjacent)
	return out
}
