package reconcile

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/corner-places/venue-engine/internal/embedding"
	"github.com/corner-places/venue-engine/internal/normalize"
)

// Venue is the canonical record for one corner_place_id.
type Venue struct {
	CornerPlaceID        string                  `json:"corner_place_id"`
	GoogleID             string                  `json:"google_id"`
	Name                 string                  `json:"name"`
	Neighborhood         string                  `json:"neighborhood"`
	Category             string                  `json:"category"`
	PriceRange           string                  `json:"price_range"`
	PriceTier            int                     `json:"price_tier"`
	PriceLabel           string                  `json:"price_label"`
	Hours                SourcedHours            `json:"hours"`
	HoursPatterns        normalize.HoursPatterns `json:"hours_patterns"`
	HoursSummary         string                  `json:"hours_summary"`
	Description          string                  `json:"description"`
	Reviews              []normalize.Review      `json:"reviews"`
	Location             Location                `json:"location"`
	Metadata             Metadata                `json:"metadata"`
	Notes                Notes                   `json:"notes"`
	EmbeddingContentHash string                  `json:"embedding_content_hash"`
}

// SourcedHours tags hours with the source that supplied them.
type SourcedHours struct {
	Source string          `json:"source,omitempty"`
	Hours  normalize.Hours `json:"hours"`
}

// MarshalJSON writes {} when no source supplied hours.
func (s SourcedHours) MarshalJSON() ([]byte, error) {
	if s.Hours.IsEmpty() {
		return []byte("{}"), nil
	}
	type plain SourcedHours
	return json.Marshal(plain(s))
}

// Location is where the venue is.
type Location struct {
	Address Address  `json:"address"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
}

// Address is either a display string or a structured address.
type Address struct {
	Text   string
	Fields map[string]string
}

// addressOrder is the print order for structured address parts.
var addressOrder = []string{
	"house_number", "road", "neighbourhood", "suburb", "city_district",
	"city", "county", "state", "postcode", "country",
}

// IsEmpty reports whether no address is present.
func (a Address) IsEmpty() bool {
	return strings.TrimSpace(a.Text) == "" && len(a.Fields) == 0
}

// String renders the address on one line.
func (a Address) String() string {
	if len(a.Fields) == 0 {
		return a.Text
	}

	seen := make(map[string]bool, len(a.Fields))
	var parts []string
	add := func(key string) {
		if v := strings.TrimSpace(a.Fields[key]); v != "" && !seen[key] {
			parts = append(parts, v)
		}
		seen[key] = true
	}

	if num, road := a.Fields["house_number"], a.Fields["road"]; num != "" && road != "" {
		parts = append(parts, strings.TrimSpace(num)+" "+strings.TrimSpace(road))
		seen["house_number"], seen["road"] = true, true
	}
	for _, key := range addressOrder {
		add(key)
	}

	rest := make([]string, 0)
	for key := range a.Fields {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		add(key)
	}
	return strings.Join(parts, ", ")
}

// MarshalJSON writes structured addresses as objects and the rest as strings.
func (a Address) MarshalJSON() ([]byte, error) {
	if len(a.Fields) > 0 {
		return json.Marshal(a.Fields)
	}
	return json.Marshal(a.Text)
}

// UnmarshalJSON accepts a string or an object.
func (a *Address) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = addressFromValue(normalize.Of(raw))
	return nil
}

func addressFromValue(v normalize.Value) Address {
	switch v.Kind() {
	case normalize.KindMap:
		fields := make(map[string]string, len(v.Fields()))
		for k, f := range v.Fields() {
			if f.Truthy() {
				fields[k] = f.String()
			}
		}
		if len(fields) == 0 {
			return Address{}
		}
		return Address{Fields: fields}
	case normalize.KindAbsent:
		return Address{}
	default:
		return Address{Text: strings.TrimSpace(v.String())}
	}
}

// Metadata holds links and the merged tag sets.
type Metadata struct {
	Website   string   `json:"website"`
	Instagram string   `json:"instagram"`
	Tags      []string `json:"tags"`
	Cuisines  []string `json:"cuisines"`
}

// Notes is curated editorial text.
type Notes struct {
	WhyWeLikeIt string `json:"why_we_like_it,omitempty"`
	About       string `json:"about,omitempty"`
	NeedToKnow  string `json:"need_to_know,omitempty"`
}

// Price returns the annotated price.
func (v *Venue) Price() normalize.Price {
	return normalize.Price{Text: v.PriceRange, Tier: v.PriceTier, Label: v.PriceLabel}
}

// Document converts the venue into embedding input.
func (v *Venue) Document() embedding.Document {
	reviews := make([]string, 0, len(v.Reviews))
	for _, r := range v.Reviews {
		reviews = append(reviews, r.Text)
	}
	return embedding.Document{
		Name:         v.Name,
		Neighborhood: v.Neighborhood,
		Price:        v.Price(),
		Address:      v.Location.Address.String(),
		Hours:        v.Hours.Hours,
		Description:  v.Description,
		Tags:         v.Metadata.Tags,
		Notes: embedding.Notes{
			WhyWeLikeIt: v.Notes.WhyWeLikeIt,
			About:       v.Notes.About,
			NeedToKnow:  v.Notes.NeedToKnow,
		},
		Reviews: reviews,
	}
}
