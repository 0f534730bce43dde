// Package storage provides database models and repositories for the venue engine.
package storage

import (
	"encoding/json"
	"time"

	"github.com/corner-places/venue-engine/internal/normalize"
)

// EmbeddingStatusKind is the outcome recorded after an embedding attempt.
type EmbeddingStatusKind string

const (
	EmbeddingStatusSuccess EmbeddingStatusKind = "success"
	EmbeddingStatusUpdated EmbeddingStatusKind = "updated"
	EmbeddingStatusFailed  EmbeddingStatusKind = "failed"
)

// DefaultContentType is the content type of the single per-venue embedding.
const DefaultContentType = "combined"

// Place is one row of the places table.
type Place struct {
	ID                  int64           `json:"id"`
	CornerPlaceID       string          `json:"corner_place_id"`
	GoogleID            string          `json:"google_id"`
	Name                string          `json:"name"`
	Neighborhood        string          `json:"neighborhood"`
	Website             string          `json:"website"`
	InstagramHandle     string          `json:"instagram_handle"`
	Category            string          `json:"category"`
	PriceRange          string          `json:"price_range"`
	CombinedDescription string          `json:"combined_description"`
	Tags                []string        `json:"tags"`
	Address             string          `json:"address"`
	Hours               json.RawMessage `json:"hours"`
	Attributes          json.RawMessage `json:"attributes"`
	Metadata            json.RawMessage `json:"metadata"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Review is one row of the reviews table.
type Review struct {
	ID       int64     `json:"id"`
	PlaceID  int64     `json:"place_id"`
	Source   string    `json:"source"`
	Text     string    `json:"review_text"`
	PostedAt time.Time `json:"posted_at"`
}

// EmbeddingStatus is stored under places.metadata.embedding_status.
type EmbeddingStatus struct {
	Status    EmbeddingStatusKind `json:"status"`
	Timestamp time.Time           `json:"timestamp"`
	Message   string              `json:"message,omitempty"`
}

// PlaceMetadata is the decoded places.metadata document.
type PlaceMetadata struct {
	EmbeddingStatus *EmbeddingStatus `json:"embedding_status,omitempty"`
}

// DecodeMetadata parses the metadata column. Empty metadata decodes to the zero value.
func (p *Place) DecodeMetadata() (PlaceMetadata, error) {
	var m PlaceMetadata
	if len(p.Metadata) == 0 {
		return m, nil
	}
	err := json.Unmarshal(p.Metadata, &m)
	return m, err
}

// PlaceNotes is curated editorial text kept with a place.
type PlaceNotes struct {
	WhyWeLikeIt string `json:"why_we_like_it,omitempty"`
	About       string `json:"about,omitempty"`
	NeedToKnow  string `json:"need_to_know,omitempty"`
}

// PlaceAttributes is the places.attributes document: canonical venue fields
// that have no column of their own.
type PlaceAttributes struct {
	Cuisines             []string                `json:"cuisines"`
	Lat                  *float64                `json:"lat"`
	Lon                  *float64                `json:"lon"`
	AddressFields        map[string]string       `json:"address_fields,omitempty"`
	PriceTier            int                     `json:"price_tier,omitempty"`
	PriceLabel           string                  `json:"price_label,omitempty"`
	HoursSource          string                  `json:"hours_source,omitempty"`
	HoursPatterns        normalize.HoursPatterns `json:"hours_patterns"`
	HoursSummary         string                  `json:"hours_summary,omitempty"`
	Notes                PlaceNotes              `json:"notes"`
	EmbeddingContentHash string                  `json:"embedding_content_hash,omitempty"`
}

// DecodeAttributes parses the attributes column.
func (p *Place) DecodeAttributes() (PlaceAttributes, error) {
	var a PlaceAttributes
	if len(p.Attributes) == 0 {
		return a, nil
	}
	err := json.Unmarshal(p.Attributes, &a)
	return a, err
}

// DecodeHours parses the hours column.
func (p *Place) DecodeHours() (normalize.Hours, error) {
	var h normalize.Hours
	if len(p.Hours) == 0 {
		return h, nil
	}
	err := json.Unmarshal(p.Hours, &h)
	return h, err
}

// VectorRecord is one stored embedding.
type VectorRecord struct {
	PlaceID      int64     `json:"place_id"`
	Vector       []float32 `json:"vector"`
	ContentType  string    `json:"content_type"`
	ContentHash  string    `json:"content_hash"`
	Neighborhood string    `json:"neighborhood"`
	LastUpdated  time.Time `json:"last_updated"`
}

// VectorState is the freshness information for a stored embedding.
type VectorState struct {
	ContentHash string
	LastUpdated time.Time
}

// VectorMatch is one similarity search hit. Similarity is 1 - cosine distance.
type VectorMatch struct {
	PlaceID    int64
	Similarity float64
}

// VectorFilter narrows a similarity search. Neighborhood matches
// case-insensitively as a substring of the place's neighborhood.
type VectorFilter struct {
	Neighborhood string
}
