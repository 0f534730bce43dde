// Package reconcile merges per-source scrape records into one canonical venue.
package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/corner-places/venue-engine/internal/embedding"
	"github.com/corner-places/venue-engine/internal/normalize"
	"github.com/corner-places/venue-engine/internal/observability"
	"github.com/corner-places/venue-engine/internal/sources"
)

var (
	// ErrMissingIdentifier is returned for base rows without a corner_place_id.
	ErrMissingIdentifier = errors.New("missing corner_place_id")
	// ErrMissingName is returned for base rows without a name.
	ErrMissingName = errors.New("missing venue name")
)

// osmTagKeys are the OSM extratags that carry venue type information.
var osmTagKeys = []string{"cuisine", "amenity", "shop", "leisure"}

// Reconciler builds canonical venues from a base row and its matching source rows.
type Reconciler struct {
	norm   *normalize.Normalizer
	logger *observability.Logger
}

// New creates a Reconciler.
func New(logger *observability.Logger) *Reconciler {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Reconciler{
		norm:   normalize.New(logger),
		logger: logger.WithOperation("reconcile"),
	}
}

// matched holds the per-source rows joined to one base row. Missing sources are nil.
type matched struct {
	google    normalize.Record
	openTable normalize.Record
	osm       normalize.Record
	website   normalize.Record
	resy      normalize.Record
}

func lookup(p sources.Provider, id string) normalize.Record {
	if p == nil || id == "" {
		return nil
	}
	rec, ok := p.Lookup(id)
	if !ok {
		return nil
	}
	return rec
}

// Reconcile merges one venue. The result has already been through Clean and
// carries its embedding content hash.
func (r *Reconciler) Reconcile(base normalize.Record, set *sources.Set) (*Venue, error) {
	id := sources.KeyOf(base.Get("corner_place_id"))
	if id == "" {
		return nil, ErrMissingIdentifier
	}
	name := strings.TrimSpace(base.Get("name").String())
	if name == "" {
		return nil, fmt.Errorf("venue %s: %w", id, ErrMissingName)
	}

	if set == nil {
		set = &sources.Set{}
	}
	googleID := sources.KeyOf(base.Get("google_id"))
	website := sources.KeyOf(base.Get("website"))

	m := matched{
		google:    lookup(set.Google, googleID),
		openTable: lookup(set.OpenTable, id),
		osm:       lookup(set.OSM, id),
		website:   lookup(set.Website, website),
		resy:      lookup(set.Resy, id),
	}

	baseTags := r.norm.ParseTags(base.Get("tags"))

	v := &Venue{
		CornerPlaceID: id,
		GoogleID:      googleID,
		Name:          name,
		Neighborhood:  text(base.Get("neighborhood")),
		Category: firstNonEmpty(
			text(m.google.Get("category")),
			text(m.openTable.Get("cuisine")),
			firstOf(baseTags),
		),
		Hours:       r.hours(m),
		Description: joinNonEmpty(m.google.Get("description"), m.openTable.Get("description"), m.website.Get("meta_description")),
		Reviews: r.norm.MergeReviews(
			normalize.SourcedValue{Source: normalize.SourceGoogle, Value: m.google.Get("reviews")},
			normalize.SourcedValue{Source: normalize.SourceOpenTable, Value: m.openTable.Get("reviews")},
		),
		Location: r.location(m.osm),
		Metadata: Metadata{
			Website:   website,
			Instagram: text(base.Get("instagram_handle")),
		},
		Notes: resyNotes(m.resy),
	}

	price := r.norm.ParsePrice(firstTruthy(m.google.Get("price"), m.openTable.Get("price_range")))
	v.PriceRange, v.PriceTier, v.PriceLabel = price.Text, price.Tier, price.Label

	v.HoursPatterns = normalize.ParseHoursPatterns(v.Hours.Hours)
	v.HoursSummary = v.HoursPatterns.Summary()

	otCuisines := normalize.SplitList(m.openTable.Get("cuisine"), ",")
	osmTags, osmCuisines := r.osmTags(m.osm)
	v.Metadata.Tags = normalize.MergeTags(
		baseTags,
		normalize.SplitList(m.website.Get("meta_keywords"), ","),
		otCuisines,
		osmTags,
	)
	v.Metadata.Cuisines = normalize.MergeTags(otCuisines, osmCuisines)

	Clean(v)

	if content, err := embedding.BuildContent(v.Document()); err == nil {
		v.EmbeddingContentHash = embedding.ContentHash(content)
	} else {
		r.logger.Debug().Str("corner_place_id", id).Err(err).Msg("Venue has no embeddable content yet")
	}

	return v, nil
}

// hours picks the first source with usable hours: Google, then OSM, then the
// venue website.
func (r *Reconciler) hours(m matched) SourcedHours {
	candidates := []struct {
		source string
		value  normalize.Value
	}{
		{sources.Google, m.google.Get("hours")},
		{sources.OSM, m.osm.Get("opening_hours")},
		{sources.Website, m.website.Get("business_hours")},
	}
	for _, c := range candidates {
		if h := r.norm.ParseHours(c.value); !h.IsEmpty() {
			return SourcedHours{Source: c.source, Hours: h}
		}
	}
	return SourcedHours{}
}

func (r *Reconciler) location(osm normalize.Record) Location {
	var loc Location

	loc.Address = addressFromValue(decodeObject(osm.Get("address")))
	if loc.Address.IsEmpty() {
		loc.Address = addressFromValue(osm.Get("display_name"))
	}

	if lat, ok := normalize.ParseFloat(osm.Get("lat")); ok {
		loc.Lat = &lat
	}
	if lon, ok := normalize.ParseFloat(osm.Get("lon")); ok {
		loc.Lon = &lon
	}
	return loc
}

// osmTags returns every type tag from OSM extratags and, separately, the cuisines.
func (r *Reconciler) osmTags(osm normalize.Record) ([]string, []string) {
	extra := decodeObject(osm.Get("extratags"))
	if extra.Kind() != normalize.KindMap {
		if extra.Truthy() {
			r.logger.Warn().Str("extratags", extra.String()).Msg("OSM extratags are not an object, ignoring")
		}
		return nil, nil
	}

	var tags, cuisines []string
	for _, key := range osmTagKeys {
		values := normalize.SplitList(extra.Field(key), ";")
		tags = append(tags, values...)
		if key == "cuisine" {
			cuisines = values
		}
	}
	return tags, cuisines
}

// resyNotes reads the curated fields directly or from the labelled details map.
func resyNotes(resy normalize.Record) Notes {
	if resy == nil {
		return Notes{}
	}
	details := map[string]string{}
	for label, v := range resy.Get("details").Fields() {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(label)), " ", "_")
		details[key] = text(v)
	}
	pick := func(field string) string {
		return firstNonEmpty(text(resy.Get(field)), details[field])
	}
	return Notes{
		WhyWeLikeIt: pick("why_we_like_it"),
		About:       pick("about"),
		NeedToKnow:  pick("need_to_know"),
	}
}

// decodeObject decodes text that holds a JSON object (single quotes allowed).
// Other values pass through unchanged.
func decodeObject(v normalize.Value) normalize.Value {
	s, ok := v.Str()
	if !ok {
		return v
	}
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return v
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err == nil {
		return normalize.Of(raw)
	}
	if err := json.Unmarshal([]byte(strings.ReplaceAll(s, "'", `"`)), &raw); err == nil {
		return normalize.Of(raw)
	}
	return v
}

func text(v normalize.Value) string {
	if !v.Truthy() {
		return ""
	}
	return strings.TrimSpace(v.String())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstTruthy(values ...normalize.Value) normalize.Value {
	for _, v := range values {
		if v.Truthy() {
			return v
		}
	}
	return normalize.Absent()
}

func firstOf(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func joinNonEmpty(values ...normalize.Value) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if s := text(v); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
