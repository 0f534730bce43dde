package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corner-places/venue-engine/internal/config"
	"github.com/corner-places/venue-engine/internal/normalize"
	"github.com/corner-places/venue-engine/internal/reconcile"
	"github.com/corner-places/venue-engine/internal/storage"
)

func testVenue(id, name string) *reconcile.Venue {
	lat := 40.7233
	return &reconcile.Venue{
		CornerPlaceID: id,
		GoogleID:      "g-" + id,
		Name:          name,
		Neighborhood:  "SoHo",
		Category:      "Wine bar",
		PriceRange:    "$$",
		PriceTier:     2,
		PriceLabel:    normalize.TierLabel(2),
		Hours: reconcile.SourcedHours{
			Source: "google",
			Hours: normalize.Hours{Days: []normalize.DayHours{
				{Day: "Monday", Hours: "Closed"},
				{Day: "Saturday", Hours: "5-11 PM"},
			}},
		},
		Description: "Natural wine.",
		Reviews: []normalize.Review{
			{Text: "Great list", Source: normalize.SourceGoogle},
			{Text: "Lovely staff", Source: normalize.SourceOpenTable},
		},
		Location: reconcile.Location{
			Address: reconcile.Address{Text: "12 Prince St"},
			Lat:     &lat,
		},
		Metadata: reconcile.Metadata{
			Website:   "https://example.com",
			Instagram: "example",
			Tags:      []string{"wine", "cozy"},
			Cuisines:  []string{"wine"},
		},
		Notes: reconcile.Notes{NeedToKnow: "Walk-ins only."},
	}
}

func openStore(t *testing.T) *storage.Repositories {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(ctx, config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: ":memory:", MaxOpenConns: 1},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.Migrate(ctx, db))
	return storage.NewRepositories(db)
}

func TestToPlace(t *testing.T) {
	place, reviews, err := ToPlace(testVenue("101", "Cafe Example"))
	require.NoError(t, err)

	assert.Equal(t, "101", place.CornerPlaceID)
	assert.Equal(t, "https://example.com", place.Website)
	assert.Equal(t, "example", place.InstagramHandle)
	assert.Equal(t, "Natural wine.", place.CombinedDescription)
	assert.Equal(t, "12 Prince St", place.Address)
	assert.Equal(t, []string{"wine", "cozy"}, place.Tags)
	assert.JSONEq(t, `{"Monday":"Closed","Saturday":"5-11 PM"}`, string(place.Hours))

	var attrs storage.PlaceAttributes
	require.NoError(t, json.Unmarshal(place.Attributes, &attrs))
	assert.Equal(t, 2, attrs.PriceTier)
	assert.Equal(t, "google", attrs.HoursSource)
	assert.Equal(t, "Walk-ins only.", attrs.Notes.NeedToKnow)
	require.NotNil(t, attrs.Lat)
	assert.Nil(t, attrs.Lon)

	require.Len(t, reviews, 2)
	assert.Equal(t, storage.Review{Source: "opentable", Text: "Lovely staff"}, reviews[1])

	_, _, err = ToPlace(nil)
	assert.ErrorIs(t, err, storage.ErrInvalid)
}

func TestPipeline_PersistCreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	repos := openStore(t)
	p := NewPipeline(nil, repos.Places, nil)

	venues := []*reconcile.Venue{testVenue("1", "One"), testVenue("2", "Two")}
	var calls int
	result, err := p.Persist(ctx, venues, func(done, total int) { calls++ })
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 2, calls)

	venues[0].Name = "One Renamed"
	result, err = p.Persist(ctx, venues, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 2, result.Succeeded())

	n, err := repos.Places.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := repos.Places.GetByCornerPlaceID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "One Renamed", got.Name)

	reviews, err := repos.Reviews.ListByPlace(ctx, got.ID)
	require.NoError(t, err)
	assert.Len(t, reviews, 2, "reviews are replaced, not appended")
}

type flakyStore struct {
	failFor string
	err     error
	calls   int
}

func (f *flakyStore) Upsert(_ context.Context, place *storage.Place, _ []storage.Review) (int64, error) {
	f.calls++
	if place.CornerPlaceID == f.failFor {
		return 0, f.err
	}
	return int64(f.calls), nil
}

func TestPipeline_ContinuesPastFailures(t *testing.T) {
	store := &flakyStore{failFor: "2", err: errors.New("constraint violation")}
	p := NewPipeline(nil, store, nil)

	result, err := p.Persist(context.Background(), []*reconcile.Venue{
		testVenue("1", "One"), testVenue("2", "Two"), testVenue("3", "Three"),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Two (2)")
	assert.Equal(t, 3, store.calls)
}

func TestPipeline_CancelledStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := &flakyStore{}

	result, err := NewPipeline(nil, store, nil).Persist(ctx, []*reconcile.Venue{testVenue("1", "One")}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, 0, store.calls)
}

func TestPipeline_ContextErrorFromStoreAborts(t *testing.T) {
	store := &flakyStore{failFor: "1", err: context.DeadlineExceeded}

	_, err := NewPipeline(nil, store, nil).Persist(context.Background(), []*reconcile.Venue{
		testVenue("1", "One"), testVenue("2", "Two"),
	}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, store.calls)
}
