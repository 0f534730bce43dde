package reconcile

import (
	"strings"

	"github.com/corner-places/venue-engine/internal/normalize"
)

// Clean fills absent collections with empty ones and repairs review entries.
// Running it twice changes nothing.
func Clean(v *Venue) {
	if v == nil {
		return
	}

	reviews := make([]normalize.Review, 0, len(v.Reviews))
	for _, r := range v.Reviews {
		if strings.TrimSpace(r.Text) == "" {
			continue
		}
		if strings.TrimSpace(r.Source) == "" {
			r.Source = normalize.SourceUnknown
		}
		reviews = append(reviews, r)
	}
	v.Reviews = reviews

	v.Metadata.Tags = nonEmpty(v.Metadata.Tags)
	v.Metadata.Cuisines = nonEmpty(v.Metadata.Cuisines)

	if v.Hours.Hours.IsEmpty() {
		v.Hours = SourcedHours{}
	}

	if v.Location.Address.Fields != nil && len(v.Location.Address.Fields) == 0 {
		v.Location.Address.Fields = nil
	}
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, s := range values {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
