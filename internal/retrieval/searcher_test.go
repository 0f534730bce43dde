package retrieval

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corner-places/venue-engine/internal/cache"
	"github.com/corner-places/venue-engine/internal/config"
	"github.com/corner-places/venue-engine/internal/embedding"
	"github.com/corner-places/venue-engine/internal/storage"
)

// fixedEmbedder returns the same unit vector for every input.
type fixedEmbedder struct {
	vector []float32
	calls  int
}

func (e *fixedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, embedding.Usage, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vector
	}
	e.calls += len(texts)
	return out, embedding.Usage{}, nil
}

func (e *fixedEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, embedding.Usage, error) {
	e.calls++
	return e.vector, embedding.Usage{}, nil
}

func (e *fixedEmbedder) Model() string  { return "fixed" }
func (e *fixedEmbedder) Dimension() int { return len(e.vector) }

type searchFixture struct {
	repos    *storage.Repositories
	vectors  *storage.BoltVectorStore
	embedder *fixedEmbedder
}

func newSearchFixture(t *testing.T) *searchFixture {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(ctx, config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: ":memory:", MaxOpenConns: 1},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.Migrate(ctx, db))

	vectors, err := storage.NewBoltVectorStore(filepath.Join(t.TempDir(), "vectors.db"), 2)
	require.NoError(t, err)
	t.Cleanup(func() { vectors.Close() })

	return &searchFixture{
		repos:    storage.NewRepositories(db),
		vectors:  vectors,
		embedder: &fixedEmbedder{vector: []float32{1, 0}},
	}
}

// add stores a venue whose vector has the given cosine similarity to the
// fixed query vector.
func (f *searchFixture) add(t *testing.T, id, name, neighborhood string, similarity float32) int64 {
	t.Helper()
	ctx := context.Background()
	pid, err := f.repos.Places.Upsert(ctx, &storage.Place{
		CornerPlaceID:       id,
		Name:                name,
		Neighborhood:        neighborhood,
		PriceRange:          "$$",
		CombinedDescription: name + " description",
		Tags:                []string{"wine"},
	}, nil)
	require.NoError(t, err)

	other := float32(math.Sqrt(float64(1 - similarity*similarity)))
	require.NoError(t, f.vectors.Upsert(ctx, storage.VectorRecord{
		PlaceID:      pid,
		Vector:       []float32{similarity, other},
		Neighborhood: neighborhood,
		LastUpdated:  time.Now(),
	}))
	return pid
}

func (f *searchFixture) searcher(client cache.Client) *Searcher {
	return NewSearcher(nil, nil, f.embedder, f.vectors, f.repos.Places, client, nil, SearcherConfig{
		CacheResults: client != nil,
	})
}

func names(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Name
	}
	return out
}

func TestSearch_AdjacentFallback(t *testing.T) {
	f := newSearchFixture(t)
	f.add(t, "1", "Soho Wine", "SoHo", 0.9)
	f.add(t, "2", "Noho Cellar", "NoHo", 0.7)
	f.add(t, "3", "Tribeca Tavern", "Tribeca", 0.6)
	f.add(t, "4", "Queens Corner", "Queens", 0.95)

	resp, err := f.searcher(nil).Search(context.Background(), Query{Text: "natural wine in SoHo", Limit: 5})
	require.NoError(t, err)

	assert.Equal(t, "SoHo", resp.Neighborhood)
	assert.Equal(t, "natural wine", resp.SearchText)
	assert.Equal(t, FallbackAdjacent, resp.Fallback)
	assert.ElementsMatch(t, []string{"Soho Wine", "Noho Cellar", "Tribeca Tavern"}, names(resp.Results))
	assert.Equal(t, "Soho Wine", resp.Results[0].Name)
	assert.InDelta(t, 0.9*1.5, resp.Results[0].Similarity, 1e-3)
}

func TestSearch_UnfilteredFallback(t *testing.T) {
	f := newSearchFixture(t)
	f.add(t, "1", "Soho Wine", "SoHo", 0.6)
	f.add(t, "2", "Queens Corner", "Queens", 0.8)
	f.add(t, "3", "Bronx Bistro", "Bronx", 0.5)

	resp, err := f.searcher(nil).Search(context.Background(), Query{Text: "wine in soho", Limit: 5})
	require.NoError(t, err)

	assert.Equal(t, FallbackUnfiltered, resp.Fallback)
	require.Len(t, resp.Results, 3)
	// The boost lifts the SoHo venue above the closer Queens match.
	assert.Equal(t, []string{"Soho Wine", "Queens Corner", "Bronx Bistro"}, names(resp.Results))
	assert.InDelta(t, 0.9, resp.Results[0].Similarity, 1e-3)
	assert.InDelta(t, 0.8, resp.Results[1].Similarity, 1e-3)
}

func TestSearch_NoNeighborhood(t *testing.T) {
	f := newSearchFixture(t)
	f.add(t, "1", "Soho Wine", "SoHo", 0.6)
	f.add(t, "2", "Queens Corner", "Queens", 0.8)

	resp, err := f.searcher(nil).Search(context.Background(), Query{Text: "Matcha", Limit: 1})
	require.NoError(t, err)

	assert.Empty(t, resp.Neighborhood)
	assert.Equal(t, FallbackNone, resp.Fallback)
	assert.Equal(t, []string{"Queens Corner"}, names(resp.Results))
	assert.Equal(t, []string{"wine"}, resp.Results[0].Tags)
	assert.Equal(t, "$$", resp.Results[0].Price)
}

func TestSearch_NeighborhoodOverrideAndBoost(t *testing.T) {
	f := newSearchFixture(t)
	f.add(t, "1", "LES Dive", "Lower East Side", 0.5)
	f.add(t, "2", "Queens Corner", "Queens", 0.8)

	resp, err := f.searcher(nil).Search(context.Background(), Query{Text: "dive bar", Neighborhood: "les", Boost: 2})
	require.NoError(t, err)

	assert.Equal(t, "Lower East Side", resp.Neighborhood)
	assert.Equal(t, "override", resp.Method)
	assert.Equal(t, "LES Dive", resp.Results[0].Name)
	assert.InDelta(t, 1.0, resp.Results[0].Similarity, 1e-3)
}

func TestSearch_RejectsBoostNotAboveOne(t *testing.T) {
	f := newSearchFixture(t)
	f.add(t, "1", "Soho Wine", "SoHo", 0.9)
	s := f.searcher(nil)

	for _, boost := range []float64{-1, 0.5, 1.0} {
		_, err := s.Search(context.Background(), Query{Text: "wine in SoHo", Boost: boost})
		assert.ErrorIs(t, err, ErrInvalidBoost, "boost %g", boost)
	}
	assert.Zero(t, f.embedder.calls)
}

func TestSearch_LowBoostKeepsAdjacentBelowPrimary(t *testing.T) {
	f := newSearchFixture(t)
	f.add(t, "1", "Soho Wine", "SoHo", 0.8)
	f.add(t, "2", "Noho Cellar", "NoHo", 0.8)

	resp, err := f.searcher(nil).Search(context.Background(), Query{Text: "wine in SoHo", Boost: 1.1})
	require.NoError(t, err)

	require.Len(t, resp.Results, 2)
	assert.Equal(t, []string{"Soho Wine", "Noho Cellar"}, names(resp.Results))
	assert.InDelta(t, 0.8*1.1, resp.Results[0].Similarity, 1e-3)
	assert.InDelta(t, 0.8*1.05, resp.Results[1].Similarity, 1e-3)
}

func TestAdjacentBoost(t *testing.T) {
	assert.Equal(t, 1.2, adjacentBoost(1.2, 1.5))
	assert.Equal(t, 1.0, adjacentBoost(1.0, 1.5))
	assert.InDelta(t, 1.05, adjacentBoost(1.2, 1.1), 1e-9)
	assert.InDelta(t, 1.1, adjacentBoost(1.2, 1.2), 1e-9)
}

func TestSearch_CachesResponses(t *testing.T) {
	ctx := context.Background()
	f := newSearchFixture(t)
	f.add(t, "1", "Soho Wine", "SoHo", 0.9)

	client := cache.NewMemoryClient(10)
	defer client.Close()
	s := f.searcher(client)

	first, err := s.Search(ctx, Query{Text: "wine in SoHo"})
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := s.Search(ctx, Query{Text: "wine  in soho"})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, names(first.Results), names(second.Results))
	assert.Equal(t, 1, f.embedder.calls)

	require.NoError(t, s.Cache().Invalidate(ctx))
	third, err := s.Search(ctx, Query{Text: "wine in SoHo"})
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, 2, f.embedder.calls)
}

func TestSearch_EmptyQuery(t *testing.T) {
	f := newSearchFixture(t)
	_, err := f.searcher(nil).Search(context.Background(), Query{Text: "  "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearch_LimitCapped(t *testing.T) {
	f := newSearchFixture(t)
	for i, n := range []string{"a", "b", "c", "d"} {
		f.add(t, n, "Venue "+n, "Queens", float32(0.5+0.1*float64(i)))
	}
	s := NewSearcher(nil, nil, f.embedder, f.vectors, f.repos.Places, nil, nil, SearcherConfig{DefaultLimit: 2, MaxLimit: 3})

	resp, err := s.Search(context.Background(), Query{Text: "anything"})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)

	resp, err = s.Search(context.Background(), Query{Text: "anything", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"Venue d", "Venue c", "Venue b"}, names(resp.Results))
}

func TestSearch_VectorsUnavailable(t *testing.T) {
	f := newSearchFixture(t)
	s := NewSearcher(nil, nil, f.embedder, unavailableVectors{}, f.repos.Places, nil, nil, SearcherConfig{})

	_, err := s.Search(context.Background(), Query{Text: "wine"})
	assert.ErrorIs(t, err, storage.ErrVectorsUnavailable)
}

type unavailableVectors struct{ storage.VectorStore }

func (unavailableVectors) Search(context.Context, []float32, string, storage.VectorFilter, int) ([]storage.VectorMatch, error) {
	return nil, storage.ErrVectorsUnavailable
}

type chanNotifier struct {
	ch chan []byte
}

func (n *chanNotifier) Publish(ctx context.Context, channel string, message interface{}) error {
	n.ch <- []byte(channel)
	return nil
}

func (n *chanNotifier) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	return n.ch, func() {}, nil
}

func TestResponseCache_WatchInvalidations(t *testing.T) {
	client := cache.NewMemoryClient(10)
	defer client.Close()
	rc := NewResponseCache(client, nil, ResponseCacheConfig{Enabled: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := Query{Text: "wine", Limit: 5, Boost: 1.5}
	require.NoError(t, rc.Set(ctx, q, "SoHo", &Response{Query: "wine"}))
	_, ok := rc.Get(ctx, q, "SoHo")
	require.True(t, ok)

	notifier := &chanNotifier{ch: make(chan []byte, 1)}
	done := make(chan error, 1)
	go func() { done <- rc.WatchInvalidations(ctx, notifier) }()

	require.NoError(t, NotifyVenuesUpdated(ctx, notifier, VenuesUpdated{Stage: "persist", Count: 1}))
	assert.Eventually(t, func() bool {
		_, ok := rc.Get(ctx, q, "SoHo")
		return !ok
	}, time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
