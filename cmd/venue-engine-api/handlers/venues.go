package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/corner-places/venue-engine/internal/normalize"
	"github.com/corner-places/venue-engine/internal/observability"
	"github.com/corner-places/venue-engine/internal/storage"
)

// PlaceReader reads stored venues.
type PlaceReader interface {
	GetByCornerPlaceID(ctx context.Context, cornerPlaceID string) (*storage.Place, error)
	List(ctx context.Context, limit, offset int) ([]*storage.Place, error)
	Count(ctx context.Context) (int, error)
}

// ReviewReader reads the reviews kept with a venue.
type ReviewReader interface {
	ListByPlace(ctx context.Context, placeID int64) ([]storage.Review, error)
}

// VenueHandler serves stored venue records.
type VenueHandler struct {
	logger  *observability.Logger
	places  PlaceReader
	reviews ReviewReader
}

// NewVenueHandler creates a new venue handler.
func NewVenueHandler(logger *observability.Logger, places PlaceReader, reviews ReviewReader) *VenueHandler {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &VenueHandler{
		logger:  logger,
		places:  places,
		reviews: reviews,
	}
}

// VenueDTO is a stored venue with its decoded documents.
type VenueDTO struct {
	ID                  int64                    `json:"id"`
	CornerPlaceID       string                   `json:"corner_place_id"`
	GoogleID            string                   `json:"google_id,omitempty"`
	Name                string                   `json:"name"`
	Neighborhood        string                   `json:"neighborhood"`
	Website             string                   `json:"website,omitempty"`
	InstagramHandle     string                   `json:"instagram_handle,omitempty"`
	Category            string                   `json:"category,omitempty"`
	PriceRange          string                   `json:"price_range,omitempty"`
	CombinedDescription string                   `json:"combined_description,omitempty"`
	Tags                []string                 `json:"tags"`
	Address             string                   `json:"address,omitempty"`
	Hours               *normalize.Hours         `json:"hours,omitempty"`
	Attributes          *storage.PlaceAttributes `json:"attributes,omitempty"`
	EmbeddingStatus     *storage.EmbeddingStatus `json:"embedding_status,omitempty"`
	Reviews             []ReviewDTO              `json:"reviews,omitempty"`
	UpdatedAt           time.Time                `json:"updated_at"`
}

// ReviewDTO is one stored review.
type ReviewDTO struct {
	Source   string    `json:"source"`
	Text     string    `json:"text"`
	PostedAt time.Time `json:"posted_at"`
}

// ListResponse is a page of venues.
type ListResponse struct {
	Venues []VenueDTO `json:"venues"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Get handles GET /v1/venues/{cornerPlaceID}.
func (h *VenueHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "cornerPlaceID")

	place, err := h.places.GetByCornerPlaceID(ctx, id)
	if err != nil {
		h.fail(w, r, err, "venue lookup failed")
		return
	}

	dto := h.toDTO(place)
	reviews, err := h.reviews.ListByPlace(ctx, place.ID)
	if err != nil {
		h.fail(w, r, err, "review lookup failed")
		return
	}
	dto.Reviews = make([]ReviewDTO, 0, len(reviews))
	for _, rv := range reviews {
		dto.Reviews = append(dto.Reviews, ReviewDTO{Source: rv.Source, Text: rv.Text, PostedAt: rv.PostedAt})
	}

	writeJSON(w, h.logger, http.StatusOK, dto)
}

// List handles GET /v1/venues?limit=...&offset=...
func (h *VenueHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, ok := intParam(r, "limit", defaultPageSize)
	if !ok || limit <= 0 {
		writeError(w, h.logger, http.StatusBadRequest, "invalid limit", r.URL.Query().Get("limit"))
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, ok := intParam(r, "offset", 0)
	if !ok || offset < 0 {
		writeError(w, h.logger, http.StatusBadRequest, "invalid offset", r.URL.Query().Get("offset"))
		return
	}

	places, err := h.places.List(ctx, limit, offset)
	if err != nil {
		h.fail(w, r, err, "venue list failed")
		return
	}
	total, err := h.places.Count(ctx)
	if err != nil {
		h.fail(w, r, err, "venue count failed")
		return
	}

	resp := ListResponse{
		Venues: make([]VenueDTO, 0, len(places)),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	for _, p := range places {
		resp.Venues = append(resp.Venues, h.toDTO(p))
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}

func (h *VenueHandler) fail(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithContext(r.Context()).Error().Err(err).Msg(message)
	}
	writeError(w, h.logger, status, message, err.Error())
}

// toDTO decodes the JSON columns. A column that fails to decode is left out
// rather than failing the request.
func (h *VenueHandler) toDTO(p *storage.Place) VenueDTO {
	dto := VenueDTO{
		ID:                  p.ID,
		CornerPlaceID:       p.CornerPlaceID,
		GoogleID:            p.GoogleID,
		Name:                p.Name,
		Neighborhood:        p.Neighborhood,
		Website:             p.Website,
		InstagramHandle:     p.InstagramHandle,
		Category:            p.Category,
		PriceRange:          p.PriceRange,
		CombinedDescription: p.CombinedDescription,
		Tags:                p.Tags,
		Address:             p.Address,
		UpdatedAt:           p.UpdatedAt,
	}
	if dto.Tags == nil {
		dto.Tags = []string{}
	}

	if hours, err := p.DecodeHours(); err == nil && !hours.IsEmpty() {
		dto.Hours = &hours
	} else if err != nil {
		h.logger.Warn().Err(err).Str("corner_place_id", p.CornerPlaceID).Msg("Undecodable hours column")
	}
	if attrs, err := p.DecodeAttributes(); err == nil {
		dto.Attributes = &attrs
	} else {
		h.logger.Warn().Err(err).Str("corner_place_id", p.CornerPlaceID).Msg("Undecodable attributes column")
	}
	if meta, err := p.DecodeMetadata(); err == nil {
		dto.EmbeddingStatus = meta.EmbeddingStatus
	}
	return dto
}

func intParam(r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}
