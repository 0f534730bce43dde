// Package retrieval answers free-text venue queries with neighborhood-aware
// vector search.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/corner-places/venue-engine/internal/cache"
	"github.com/corner-places/venue-engine/internal/config"
	"github.com/corner-places/venue-engine/internal/embedding"
	"github.com/corner-places/venue-engine/internal/observability"
	"github.com/corner-places/venue-engine/internal/storage"
)

var (
	// ErrEmptyQuery is returned when a query has no text.
	ErrEmptyQuery = errors.New("query text is required")
	// ErrInvalidBoost is returned when a query boost is set but not above 1.0.
	ErrInvalidBoost = errors.New("boost must be greater than 1.0")
)

// Fallback names the widest search stage a query needed.
type Fallback string

const (
	FallbackNone       Fallback = "none"
	FallbackPrimary    Fallback = "primary"
	FallbackAdjacent   Fallback = "adjacent"
	FallbackUnfiltered Fallback = "unfiltered"
)

// Query is a venue search request.
type Query struct {
	Text string `json:"query"`
	// Neighborhood overrides extraction when set.
	Neighborhood string  `json:"neighborhood,omitempty"`
	Limit        int     `json:"limit,omitempty"`
	Boost        float64 `json:"boost,omitempty"`
}

// Result is one ranked venue.
type Result struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	Neighborhood string   `json:"neighborhood"`
	Tags         []string `json:"tags"`
	Price        string   `json:"price"`
	Description  string   `json:"description"`
	Similarity   float64  `json:"similarity"`
}

// Response holds ranked results and how they were found.
type Response struct {
	Query        string   `json:"query"`
	SearchText   string   `json:"search_text"`
	Neighborhood string   `json:"neighborhood,omitempty"`
	Method       string   `json:"method,omitempty"`
	Fallback     Fallback `json:"fallback"`
	Results      []Result `json:"results"`
	Cached       bool     `json:"cached"`
	LatencyMs    int64    `json:"latency_ms"`
}

// PlaceLookup hydrates vector matches into venues.
type PlaceLookup interface {
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*storage.Place, error)
}

// SearcherConfig holds searcher configuration.
type SearcherConfig struct {
	DefaultLimit      int
	MaxLimit          int
	NeighborhoodBoost float64
	AdjacentBoost     float64
	MinResults        int
	ContentType       string
	CacheResults      bool
	CacheTTL          time.Duration
}

// SearcherConfigFrom builds searcher settings from application config.
func SearcherConfigFrom(cfg *config.Config) SearcherConfig {
	return SearcherConfig{
		DefaultLimit:      cfg.Retrieval.DefaultLimit,
		MaxLimit:          cfg.Retrieval.MaxLimit,
		NeighborhoodBoost: cfg.Retrieval.NeighborhoodBoost,
		AdjacentBoost:     cfg.Retrieval.AdjacentBoost,
		MinResults:        cfg.Retrieval.MinResults,
		ContentType:       cfg.Embedding.ContentType,
		CacheResults:      cfg.Retrieval.CacheResults,
		CacheTTL:          cfg.Retrieval.CacheTTL,
	}
}

// Searcher ranks venues for a free-text query.
type Searcher struct {
	logger    *observability.Logger
	metrics   *observability.Metrics
	extractor *Extractor
	embedder  embedding.Embedder
	vectors   storage.VectorStore
	places    PlaceLookup
	cache     *ResponseCache
	config    SearcherConfig
}

// NewSearcher creates a searcher. The cache client and extractor may be nil.
func NewSearcher(
	logger *observability.Logger,
	metrics *observability.Metrics,
	embedder embedding.Embedder,
	vectors storage.VectorStore,
	places PlaceLookup,
	client cache.Client,
	extractor *Extractor,
	cfg SearcherConfig,
) *Searcher {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if extractor == nil {
		extractor = defaultExtractor
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 5
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = 50
	}
	if cfg.NeighborhoodBoost <= 0 {
		cfg.NeighborhoodBoost = 1.5
	}
	if cfg.AdjacentBoost <= 0 {
		cfg.AdjacentBoost = 1.2
	}
	if cfg.MinResults <= 0 {
		cfg.MinResults = 3
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	var responses *ResponseCache
	if client != nil {
		responses = NewResponseCache(client, logger, ResponseCacheConfig{
			TTL:     cfg.CacheTTL,
			Enabled: cfg.CacheResults,
		})
	}

	return &Searcher{
		logger:    logger.WithOperation("search"),
		metrics:   metrics,
		extractor: extractor,
		embedder:  embedder,
		vectors:   vectors,
		places:    places,
		cache:     responses,
		config:    cfg,
	}
}

// Cache returns the response cache, or nil when caching is off.
func (s *Searcher) Cache() *ResponseCache {
	return s.cache
}

// candidate is a raw vector match before boosting.
type candidate struct {
	placeID    int64
	similarity float64
}

// Search extracts a neighborhood from the query (unless one is given), then
// ranks venues by similarity with neighborhood boosting. When the neighborhood
// yields fewer than MinResults venues the search widens to adjacent
// neighborhoods and finally to all venues.
func (s *Searcher) Search(ctx context.Context, q Query) (*Response, error) {
	start := time.Now()

	if strings.TrimSpace(q.Text) == "" {
		return nil, ErrEmptyQuery
	}
	if q.Limit <= 0 {
		q.Limit = s.config.DefaultLimit
	}
	if q.Limit > s.config.MaxLimit {
		q.Limit = s.config.MaxLimit
	}
	switch {
	case q.Boost == 0:
		q.Boost = s.config.NeighborhoodBoost
	case q.Boost <= 1.0:
		return nil, fmt.Errorf("%w: got %g", ErrInvalidBoost, q.Boost)
	}

	resp := &Response{Query: q.Text, SearchText: q.Text, Fallback: FallbackNone}
	if q.Neighborhood != "" {
		resp.Neighborhood = q.Neighborhood
		if canonical, ok := CanonicalNeighborhood(q.Neighborhood); ok {
			resp.Neighborhood = canonical
		}
		resp.Method = "override"
	} else if ext := s.extractor.Extract(q.Text); ext.Found() {
		resp.Neighborhood = ext.Neighborhood
		resp.Method = string(ext.Method)
		if strings.TrimSpace(ext.Query) != "" {
			resp.SearchText = ext.Query
		}
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, q, resp.Neighborhood); ok {
			cached.Cached = true
			cached.LatencyMs = time.Since(start).Milliseconds()
			return cached, nil
		}
	}

	s.logger.Debug().
		Str("query", q.Text).
		Str("search_text", resp.SearchText).
		Str("neighborhood", resp.Neighborhood).
		Str("method", resp.Method).
		Msg("Searching venues")

	vector, _, err := s.embedder.EmbedSingle(ctx, resp.SearchText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	found := make(map[int64]float64)
	var order []int64
	merge := func(matches []storage.VectorMatch) {
		for _, m := range matches {
			if _, ok := found[m.PlaceID]; ok {
				continue
			}
			found[m.PlaceID] = m.Similarity
			order = append(order, m.PlaceID)
		}
	}
	search := func(neighborhood string) error {
		matches, err := s.vectors.Search(ctx, vector, s.config.ContentType, storage.VectorFilter{Neighborhood: neighborhood}, q.Limit)
		if err != nil {
			return fmt.Errorf("vector search (neighborhood=%q): %w", neighborhood, err)
		}
		merge(matches)
		return nil
	}

	if resp.Neighborhood != "" {
		resp.Fallback = FallbackPrimary
		if err := search(resp.Neighborhood); err != nil {
			return nil, err
		}

		if len(found) < s.config.MinResults {
			resp.Fallback = FallbackAdjacent
			for _, adjacent := range AdjacentNeighborhoods(resp.Neighborhood) {
				if err := search(adjacent); err != nil {
					return nil, err
				}
			}
		}
		if len(found) < s.config.MinResults {
			resp.Fallback = FallbackUnfiltered
			if err := search(""); err != nil {
				return nil, err
			}
		}
	} else if err := search(""); err != nil {
		return nil, err
	}

	candidates := make([]candidate, 0, len(order))
	for _, id := range order {
		candidates = append(candidates, candidate{placeID: id, similarity: found[id]})
	}

	results, err := s.rank(ctx, candidates, resp.Neighborhood, q.Boost, q.Limit)
	if err != nil {
		return nil, err
	}
	resp.Results = results
	resp.LatencyMs = time.Since(start).Milliseconds()

	s.metrics.ObserveSearch(string(resp.Fallback), time.Since(start))
	s.logger.Info().
		Str("neighborhood", resp.Neighborhood).
		Str("fallback", string(resp.Fallback)).
		Int("results", len(results)).
		Int64("latency_ms", resp.LatencyMs).
		Msg("Search completed")

	if s.cache != nil {
		_ = s.cache.Set(ctx, q, resp.Neighborhood, resp)
	}

	return resp, nil
}

// rank hydrates candidates, applies neighborhood boosts, and returns the top
// limit results. Candidates whose venue no longer exists are dropped.
func (s *Searcher) rank(ctx context.Context, candidates []candidate, neighborhood string, boost float64, limit int) ([]Result, error) {
	if len(candidates) == 0 {
		return []Result{}, nil
	}

	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.placeID
	}
	places, err := s.places.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load venues: %w", err)
	}

	adjacent := AdjacentNeighborhoods(neighborhood)
	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		p, ok := places[c.placeID]
		if !ok {
			continue
		}
		tags := p.Tags
		if tags == nil {
			tags = []string{}
		}
		results = append(results, Result{
			ID:           p.ID,
			Name:         p.Name,
			Neighborhood: p.Neighborhood,
			Tags:         tags,
			Price:        p.PriceRange,
			Description:  p.CombinedDescription,
			Similarity:   c.similarity * s.boostFor(p.Neighborhood, neighborhood, adjacent, boost),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// boostFor returns the multiplier for a venue in venueNeighborhood given the
// target neighborhood and its adjacent neighborhoods.
func (s *Searcher) boostFor(venueNeighborhood, target string, adjacent []string, boost float64) float64 {
	if target == "" {
		return 1.0
	}
	venue := strings.ToLower(venueNeighborhood)
	if strings.Contains(venue, strings.ToLower(target)) {
		return boost
	}
	for _, a := range adjacent {
		if strings.Contains(venue, strings.ToLower(a)) {
			return adjacentBoost(s.config.AdjacentBoost, boost)
		}
	}
	return 1.0
}

// adjacentBoost keeps adjacent venues boosted strictly less than the primary
// neighborhood. A configured value at or above boost is pulled down to the
// midpoint between 1.0 and boost.
func adjacentBoost(configured, boost float64) float64 {
	if configured >= 1.0 && configured < boost {
		return configured
	}
	return 1.0 + (boost-1.0)/2
}
