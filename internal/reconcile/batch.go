package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/corner-places/venue-engine/internal/normalize"
	"github.com/corner-places/venue-engine/internal/observability"
	"github.com/corner-places/venue-engine/internal/sources"
)

// BatchResult summarizes one reconciliation run.
type BatchResult struct {
	RunID     uuid.UUID
	Processed int
	Succeeded int
	Failed    int
	Errors    []string
	Duration  time.Duration
}

// ProgressFunc is called after each base row with the count handled so far.
type ProgressFunc func(done, total int)

// Batch runs the reconciler over every base row.
type Batch struct {
	reconciler *Reconciler
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// NewBatch creates a batch runner. metrics may be nil.
func NewBatch(reconciler *Reconciler, logger *observability.Logger, metrics *observability.Metrics) *Batch {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Batch{reconciler: reconciler, logger: logger, metrics: metrics}
}

// Run reconciles venues one at a time. A failing venue is logged and skipped;
// only cancellation stops the batch early.
func (b *Batch) Run(ctx context.Context, set *sources.Set, progress ProgressFunc) ([]*Venue, *BatchResult, error) {
	start := time.Now()
	result := &BatchResult{RunID: uuid.New()}
	log := b.logger.WithRun(result.RunID.String())

	var records []normalize.Record
	if set != nil {
		records = set.Base
	}
	total := len(records)
	log.Info().Int("venues", total).Msg("Starting reconciliation")

	venues := make([]*Venue, 0, total)
	for i, base := range records {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return venues, result, fmt.Errorf("reconcile cancelled after %d venues: %w", i, err)
		}

		result.Processed++
		v, err := b.reconcileOne(base, set)
		if err != nil {
			result.Failed++
			name := base.Get("name").String()
			id := base.Get("corner_place_id").String()
			result.Errors = append(result.Errors, fmt.Sprintf("%s (%s): %v", name, id, err))
			log.Error().Err(err).Str("venue", name).Str("corner_place_id", id).Msg("Failed to reconcile venue")
			b.metrics.VenueReconciled("failed")
		} else {
			result.Succeeded++
			venues = append(venues, v)
			log.Debug().Str("venue", v.Name).Str("corner_place_id", v.CornerPlaceID).Msg("Reconciled venue")
			b.metrics.VenueReconciled("ok")
		}

		if progress != nil {
			progress(i+1, total)
		}
	}

	result.Duration = time.Since(start)
	log.Info().
		Int("processed", result.Processed).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("Reconciliation complete")

	return venues, result, nil
}

func (b *Batch) reconcileOne(base normalize.Record, set *sources.Set) (v *Venue, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			v, err = nil, fmt.Errorf("panic while reconciling: %v", rec)
		}
	}()
	return b.reconciler.Reconcile(base, set)
}

// WriteJSON writes venues as an indented JSON array without HTML escaping.
func WriteJSON(w io.Writer, venues []*Venue) error {
	if venues == nil {
		venues = []*Venue{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(venues); err != nil {
		return fmt.Errorf("encode venues: %w", err)
	}
	return nil
}

// WriteFile writes venues to path.
func WriteFile(path string, venues []*Venue) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := WriteJSON(f, venues); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadFile loads venues previously written by WriteFile.
func ReadFile(path string) ([]*Venue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open venues file: %w", err)
	}
	defer f.Close()

	var venues []*Venue
	if err := json.NewDecoder(f).Decode(&venues); err != nil {
		return nil, fmt.Errorf("decode venues file: %w", err)
	}
	for _, v := range venues {
		Clean(v)
	}
	return venues, nil
}
