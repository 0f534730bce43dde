package normalize

import (
	"regexp"
	"strings"
)

var unicodeReplacer = strings.NewReplacer(
	"\u200b", "", // zero-width space
	"\u200e", "", // left-to-right mark
	"\u200f", "", // right-to-left mark
	"\ufeff", "", // byte order mark
	"\u2009", " ", // thin space
	"\u202f", " ", // narrow no-break space
	"\u00a0", " ",
	"\u2010", "-", // hyphen
	"\u2011", "-", // non-breaking hyphen
	"\u2012", "-", // figure dash
	"\u2013", "-",
	"\u2014", "-",
	"\u2015", "-", // horizontal bar
	"\u2212", "-", // minus sign
	"\ufe63", "-",
	"\uff0d", "-",
	"\u201c", `"`,
	"\u201d", `"`,
	"\u201e", `"`,
	"\u201f", `"`,
	"\u00ab", `"`,
	"\u00bb", `"`,
	"\u2033", `"`, // double prime
	"\u2018", "'",
	"\u2019", "'",
	"\u201a", "'",
	"\u201b", "'",
	"\u2039", "'",
	"\u203a", "'",
	"\u2032", "'", // prime
	"\u2026", "...",
	"\ufe69", "$",
	"\uff04", "$",
	"\u00e2\u20ac\u201c", "-", // en dash read through the wrong codepage
)

var digitDash = regexp.MustCompile(`(\d+)\s*-\s*(\d+)`)

// CleanUnicode folds the typographic characters scraped pages are full of
// into plain ASCII equivalents.
func CleanUnicode(s string) string {
	if s == "" {
		return s
	}
	return unicodeReplacer.Replace(s)
}

// tightenRanges rewrites "10 - 20" as "10-20".
func tightenRanges(s string) string {
	return digitDash.ReplaceAllString(s, "$1-$2")
}
