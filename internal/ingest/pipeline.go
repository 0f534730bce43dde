// Package ingest persists canonical venues into the record store.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/corner-places/venue-engine/internal/observability"
	"github.com/corner-places/venue-engine/internal/reconcile"
	"github.com/corner-places/venue-engine/internal/storage"
)

// PlaceStore is the subset of the place repository the pipeline writes through.
type PlaceStore interface {
	Upsert(ctx context.Context, place *storage.Place, reviews []storage.Review) (int64, error)
}

// Pipeline writes venues and their reviews to the store, one transaction per venue.
type Pipeline struct {
	logger  *observability.Logger
	places  PlaceStore
	metrics *observability.Metrics
}

// Result summarizes one persistence run.
type Result struct {
	JobID       uuid.UUID
	Processed   int
	Created     int
	Updated     int
	Failed      int
	Errors      []string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
}

// Succeeded returns the number of venues written.
func (r *Result) Succeeded() int {
	return r.Created + r.Updated
}

// ProgressFunc is called after each venue.
type ProgressFunc func(done, total int)

// NewPipeline creates a new persistence pipeline. metrics may be nil.
func NewPipeline(logger *observability.Logger, places PlaceStore, metrics *observability.Metrics) *Pipeline {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Pipeline{
		logger:  logger.WithOperation("persist"),
		places:  places,
		metrics: metrics,
	}
}

// Persist upserts every venue. A venue that fails is recorded and skipped;
// cancellation aborts the run.
func (p *Pipeline) Persist(ctx context.Context, venues []*reconcile.Venue, progress ProgressFunc) (*Result, error) {
	result := &Result{
		JobID:     uuid.New(),
		StartedAt: time.Now(),
	}
	log := p.logger.WithRun(result.JobID.String())
	log.Info().Int("venues", len(venues)).Msg("Starting persistence job")

	finish := func() {
		result.CompletedAt = time.Now()
		result.Duration = result.CompletedAt.Sub(result.StartedAt)
	}

	for i, v := range venues {
		if err := ctx.Err(); err != nil {
			finish()
			return result, fmt.Errorf("persist cancelled after %d venues: %w", i, err)
		}
		result.Processed++

		created, err := p.persistOne(ctx, v)
		switch {
		case err != nil && isContextErr(err):
			finish()
			return result, fmt.Errorf("persist venue %s: %w", v.CornerPlaceID, err)
		case err != nil:
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s (%s): %v", v.Name, v.CornerPlaceID, err))
			log.Error().Err(err).Str("venue", v.Name).Str("corner_place_id", v.CornerPlaceID).Msg("Failed to persist venue")
			p.metrics.VenuePersisted("failed")
		case created:
			result.Created++
			p.metrics.VenuePersisted("created")
		default:
			result.Updated++
			p.metrics.VenuePersisted("updated")
		}

		if progress != nil {
			progress(i+1, len(venues))
		}
	}

	finish()
	log.Info().
		Int("processed", result.Processed).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("Persistence job complete")

	return result, nil
}

func (p *Pipeline) persistOne(ctx context.Context, v *reconcile.Venue) (bool, error) {
	place, reviews, err := ToPlace(v)
	if err != nil {
		return false, err
	}
	if _, err := p.places.Upsert(ctx, place, reviews); err != nil {
		return false, err
	}
	return place.CreatedAt.Equal(place.UpdatedAt), nil
}

// ToPlace maps a canonical venue onto the places row and its review rows.
func ToPlace(v *reconcile.Venue) (*storage.Place, []storage.Review, error) {
	if v == nil {
		return nil, nil, fmt.Errorf("%w: nil venue", storage.ErrInvalid)
	}
	reconcile.Clean(v)

	hours, err := json.Marshal(v.Hours.Hours)
	if err != nil {
		return nil, nil, fmt.Errorf("encode hours: %w", err)
	}

	attrs := storage.PlaceAttributes{
		Cuisines:      v.Metadata.Cuisines,
		Lat:           v.Location.Lat,
		Lon:           v.Location.Lon,
		AddressFields: v.Location.Address.Fields,
		PriceTier:     v.PriceTier,
		PriceLabel:    v.PriceLabel,
		HoursSource:   v.Hours.Source,
		HoursPatterns: v.HoursPatterns,
		HoursSummary:  v.HoursSummary,
		Notes: storage.PlaceNotes{
			WhyWeLikeIt: v.Notes.WhyWeLikeIt,
			About:       v.Notes.About,
			NeedToKnow:  v.Notes.NeedToKnow,
		},
		EmbeddingContentHash: v.EmbeddingContentHash,
	}
	attributes, err := json.Marshal(attrs)
	if err != nil {
		return nil, nil, fmt.Errorf("encode attributes: %w", err)
	}

	place := &storage.Place{
		CornerPlaceID:       v.CornerPlaceID,
		GoogleID:            v.GoogleID,
		Name:                v.Name,
		Neighborhood:        v.Neighborhood,
		Website:             v.Metadata.Website,
		InstagramHandle:     v.Metadata.Instagram,
		Category:            v.Category,
		PriceRange:          v.PriceRange,
		CombinedDescription: v.Description,
		Tags:                v.Metadata.Tags,
		Address:             v.Location.Address.String(),
		Hours:               hours,
		Attributes:          attributes,
	}

	reviews := make([]storage.Review, 0, len(v.Reviews))
	for _, r := range v.Reviews {
		reviews = append(reviews, storage.Review{Source: r.Source, Text: r.Text})
	}
	return place, reviews, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
