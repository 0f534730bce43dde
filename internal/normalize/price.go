package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

// Price is a cleaned price string annotated with a 1-4 tier.
// Tier is 0 when no price text is present.
type Price struct {
	Text  string `json:"text"`
	Tier  int    `json:"tier"`
	Label string `json:"label"`
}

var tierLabels = map[int]string{
	1: "Budget-friendly, inexpensive spot",
	2: "Moderately priced, mid-range spot",
	3: "Higher-end, upscale pricing",
	4: "Fine dining, expensive",
}

// TierLabel returns the descriptive phrase for a tier, or "" for tier 0.
func TierLabel(tier int) string {
	return tierLabels[tier]
}

var (
	priceRange  = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*-\s*\$?\s*(\d+(?:\.\d+)?)`)
	priceSingle = regexp.MustCompile(`(\d+(?:\.\d+)?)`)
)

// ParsePrice cleans price text to ASCII and derives its tier: the number of
// dollar signs when present, otherwise a bucketed average of a numeric range
// or single amount, otherwise tier 2.
func (n *Normalizer) ParsePrice(v Value) Price {
	if !v.Truthy() {
		return Price{}
	}

	text := strings.TrimSpace(tightenRanges(CleanUnicode(v.String())))
	if text == "" {
		return Price{}
	}

	tier := priceTier(text)
	if tier == 0 {
		n.warn("price", v, "price text has no recognizable amount, assuming mid-range")
		tier = 2
	}

	return Price{Text: text, Tier: tier, Label: TierLabel(tier)}
}

func priceTier(text string) int {
	if dollars := strings.Count(text, "$"); dollars > 0 && !priceSingle.MatchString(text) {
		return clampTier(dollars)
	}

	if m := priceRange.FindStringSubmatch(text); m != nil {
		lo, errLo := strconv.ParseFloat(m[1], 64)
		hi, errHi := strconv.ParseFloat(m[2], 64)
		if errLo == nil && errHi == nil {
			return bucket((lo + hi) / 2)
		}
	}

	if m := priceSingle.FindStringSubmatch(text); m != nil {
		if amount, err := strconv.ParseFloat(m[1], 64); err == nil {
			return bucket(amount)
		}
	}

	if dollars := strings.Count(text, "$"); dollars > 0 {
		return clampTier(dollars)
	}
	return 0
}

func bucket(amount float64) int {
	switch {
	case amount < 15:
		return 1
	case amount < 30:
		return 2
	case amount < 60:
		return 3
	default:
		return 4
	}
}

func clampTier(n int) int {
	if n < 1 {
		return 1
	}
	if n > 4 {
		return 4
	}
	return n
}
