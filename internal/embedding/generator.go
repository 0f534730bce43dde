package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/corner-places/venue-engine/internal/normalize"
	"github.com/corner-places/venue-engine/internal/observability"
	"github.com/corner-places/venue-engine/internal/storage"
)

// costPer1KTokens is the ada-002 list price used for the run estimate.
const costPer1KTokens = 0.0001

// PlaceSource lists places and records their embedding status.
type PlaceSource interface {
	List(ctx context.Context, limit, offset int) ([]*storage.Place, error)
	UpdateEmbeddingStatus(ctx context.Context, placeID int64, status storage.EmbeddingStatusKind, message string) error
}

// ReviewSource lists the reviews of one place.
type ReviewSource interface {
	ListByPlace(ctx context.Context, placeID int64) ([]storage.Review, error)
}

// GeneratorConfig holds generator settings.
type GeneratorConfig struct {
	ContentType   string
	CallDelay     time.Duration
	SkipUnchanged bool
	Retry         RetryPolicy
}

// Generator brings stored embeddings up to date with the places table.
type Generator struct {
	logger   *observability.Logger
	metrics  *observability.Metrics
	places   PlaceSource
	reviews  ReviewSource
	vectors  storage.VectorStore
	embedder Embedder
	retrier  *Retrier
	cfg      GeneratorConfig
	now      func() time.Time
}

// Report summarizes one generation run.
type Report struct {
	RunID         uuid.UUID
	Considered    int
	New           int
	Stale         int
	UpToDate      int
	Unchanged     int
	Succeeded     int
	Updated       int
	Failed        int
	Tokens        int
	EstimatedCost float64
	Errors        []string
	Duration      time.Duration
}

// ProgressFunc is called after each place that needed work.
type ProgressFunc func(done, total int)

// NewGenerator creates a generator. logger and metrics may be nil.
func NewGenerator(
	logger *observability.Logger,
	metrics *observability.Metrics,
	places PlaceSource,
	reviews ReviewSource,
	vectors storage.VectorStore,
	embedder Embedder,
	cfg GeneratorConfig,
) *Generator {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if cfg.ContentType == "" {
		cfg.ContentType = storage.DefaultContentType
	}

	g := &Generator{
		logger:   logger.WithOperation("embed"),
		metrics:  metrics,
		places:   places,
		reviews:  reviews,
		vectors:  vectors,
		embedder: embedder,
		retrier:  NewRetrier(cfg.Retry),
		cfg:      cfg,
		now:      time.Now,
	}
	g.retrier.OnRetry = func(attempt int, wait time.Duration, err error) {
		g.metrics.EmbeddingRetried()
		g.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", g.retrier.Policy().MaxAttempts).
			Dur("wait", wait).
			Msg("Error generating embedding, retrying")
	}
	return g
}

// Retrier exposes the retry machine so callers can replace its sleep.
func (g *Generator) Retrier() *Retrier {
	return g.retrier
}

type pending struct {
	place *storage.Place
	state storage.VectorState
	stale bool
}

// Run embeds every place that has no embedding or was updated after its
// embedding. Per-place failures are recorded as a failed status; the run
// continues. Cancellation stops the run between places and during waits.
func (g *Generator) Run(ctx context.Context, progress ProgressFunc) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: uuid.New()}
	log := g.logger.WithRun(report.RunID.String())

	places, err := g.places.List(ctx, 0, 0)
	if err != nil {
		return report, fmt.Errorf("list places: %w", err)
	}

	if !g.vectors.Available() {
		log.Warn().Int("places", len(places)).Msg("Vector storage not available, marking places as failed")
		g.markUnavailable(ctx, places, report)
		report.Duration = time.Since(start)
		return report, nil
	}
	states, err := g.vectors.States(ctx, g.cfg.ContentType)
	if err != nil {
		return report, fmt.Errorf("load embedding states: %w", err)
	}

	var work []pending
	for _, p := range places {
		report.Considered++
		st, ok := states[p.ID]
		switch {
		case !ok:
			report.New++
			work = append(work, pending{place: p})
		case p.UpdatedAt.After(st.LastUpdated):
			report.Stale++
			work = append(work, pending{place: p, state: st, stale: true})
		default:
			report.UpToDate++
		}
	}

	if len(work) == 0 {
		log.Info().Int("places", report.Considered).Msg("No places need embeddings. All up to date")
		report.Duration = time.Since(start)
		return report, nil
	}
	log.Info().Int("new", report.New).Int("stale", report.Stale).Msg("Generating embeddings")

	for i, item := range work {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, fmt.Errorf("embedding cancelled after %d places: %w", i, err)
		}

		if err := g.process(ctx, item, report); err != nil {
			report.Duration = time.Since(start)
			return report, err
		}

		if progress != nil {
			progress(i+1, len(work))
		}
	}

	report.EstimatedCost = float64(report.Tokens) / 1000 * costPer1KTokens
	report.Duration = time.Since(start)
	log.Info().
		Int("succeeded", report.Succeeded).
		Int("updated", report.Updated).
		Int("unchanged", report.Unchanged).
		Int("failed", report.Failed).
		Int("tokens", report.Tokens).
		Float64("estimated_cost_usd", report.EstimatedCost).
		Dur("duration", report.Duration).
		Msg("Embedding generation complete")

	return report, nil
}

// process embeds one place. Only context errors are returned; everything
// else is recorded on the report and the place's status.
func (g *Generator) process(ctx context.Context, item pending, report *Report) error {
	p := item.place
	log := g.logger.WithVenue(p.CornerPlaceID, p.Name)

	fail := func(message string, cause error) {
		report.Failed++
		report.Errors = append(report.Errors, fmt.Sprintf("%s (%s): %s", p.Name, p.CornerPlaceID, message))
		log.Error().Err(cause).Msg(message)
		g.metrics.EmbeddingGenerated(string(storage.EmbeddingStatusFailed))
		g.setStatus(ctx, p.ID, storage.EmbeddingStatusFailed, message)
	}

	reviews, err := g.reviews.ListByPlace(ctx, p.ID)
	if err != nil {
		if isContextErr(err) {
			return err
		}
		fail("Failed to load reviews", err)
		return nil
	}

	content, err := BuildContent(DocumentFromPlace(p, reviews))
	if err != nil {
		fail("No valid content for embedding", err)
		return nil
	}
	hash := ContentHash(content)

	if item.stale && g.cfg.SkipUnchanged && item.state.ContentHash == hash {
		report.Unchanged++
		log.Debug().Str("content_hash", hash).Msg("Content unchanged, keeping existing embedding")
		return nil
	}

	var (
		vector []float32
		usage  Usage
	)
	err = g.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		vector, usage, err = g.embedder.EmbedSingle(ctx, content)
		return err
	})
	if err != nil {
		if isContextErr(err) {
			return err
		}
		fail("Failed to generate embedding", err)
		return nil
	}

	report.Tokens += usage.TotalTokens
	g.metrics.TokensUsed(usage.TotalTokens)

	err = g.vectors.Upsert(ctx, storage.VectorRecord{
		PlaceID:      p.ID,
		Vector:       vector,
		ContentType:  g.cfg.ContentType,
		ContentHash:  hash,
		Neighborhood: p.Neighborhood,
		LastUpdated:  g.now().UTC(),
	})
	if err != nil {
		if isContextErr(err) {
			return err
		}
		msg := "Failed to store embedding"
		if item.stale {
			msg = "Failed to update embedding"
		}
		fail(msg, err)
		return nil
	}

	status := storage.EmbeddingStatusSuccess
	if item.stale {
		status = storage.EmbeddingStatusUpdated
		report.Updated++
	} else {
		report.Succeeded++
	}
	g.metrics.EmbeddingGenerated(string(status))
	g.setStatus(ctx, p.ID, status, fmt.Sprintf("Used %d tokens", usage.TotalTokens))
	log.Info().Int("tokens", usage.TotalTokens).Str("content_hash", hash).Msg("Generated embedding")

	if g.cfg.CallDelay > 0 {
		if err := g.retrier.Sleep(ctx, g.cfg.CallDelay); err != nil {
			return err
		}
	}
	return nil
}

// markUnavailable records a failed status on every place when no vector
// storage exists. Without stored vectors every place counts as new.
func (g *Generator) markUnavailable(ctx context.Context, places []*storage.Place, report *Report) {
	const message = "vector storage unavailable"
	for _, p := range places {
		report.Considered++
		report.New++
		report.Failed++
		report.Errors = append(report.Errors, fmt.Sprintf("%s (%s): %s", p.Name, p.CornerPlaceID, message))
		g.metrics.EmbeddingGenerated(string(storage.EmbeddingStatusFailed))
		g.setStatus(ctx, p.ID, storage.EmbeddingStatusFailed, message)
	}
}

func (g *Generator) setStatus(ctx context.Context, placeID int64, status storage.EmbeddingStatusKind, message string) {
	if err := g.places.UpdateEmbeddingStatus(ctx, placeID, status, message); err != nil {
		g.logger.Warn().Err(err).Int64("place_id", placeID).Msg("Failed to update embedding status")
	}
}

// DocumentFromPlace rebuilds the embedding document from a stored place.
func DocumentFromPlace(p *storage.Place, reviews []storage.Review) Document {
	attrs, _ := p.DecodeAttributes()
	hours, _ := p.DecodeHours()

	label := attrs.PriceLabel
	if label == "" && attrs.PriceTier > 0 {
		label = normalize.TierLabel(attrs.PriceTier)
	}

	texts := make([]string, 0, len(reviews))
	for _, r := range reviews {
		texts = append(texts, r.Text)
	}

	return Document{
		Name:         p.Name,
		Neighborhood: p.Neighborhood,
		Price:        normalize.Price{Text: p.PriceRange, Tier: attrs.PriceTier, Label: label},
		Address:      p.Address,
		Hours:        hours,
		Description:  p.CombinedDescription,
		Tags:         p.Tags,
		Notes: Notes{
			WhyWeLikeIt: attrs.Notes.WhyWeLikeIt,
			About:       attrs.Notes.About,
			NeedToKnow:  attrs.Notes.NeedToKnow,
		},
		Reviews: texts,
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
