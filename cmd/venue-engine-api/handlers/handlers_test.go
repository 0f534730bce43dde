package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corner-places/venue-engine/internal/config"
	"github.com/corner-places/venue-engine/internal/retrieval"
	"github.com/corner-places/venue-engine/internal/storage"
)

type fakeSearcher struct {
	got  retrieval.Query
	resp *retrieval.Response
	err  error
}

func (f *fakeSearcher) Search(ctx context.Context, q retrieval.Query) (*retrieval.Response, error) {
	f.got = q
	return f.resp, f.err
}

func TestSearchHandler_Get(t *testing.T) {
	s := &fakeSearcher{resp: &retrieval.Response{
		Query:        "wine in soho",
		Neighborhood: "SoHo",
		Fallback:     retrieval.FallbackPrimary,
		Results:      []retrieval.Result{{ID: 1, Name: "Soho Wine", Similarity: 1.2}},
	}}
	h := NewSearchHandler(nil, s)

	rec := httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/v1/search?q=wine+in+soho&limit=3&boost=2", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, retrieval.Query{Text: "wine in soho", Limit: 3, Boost: 2}, s.got)

	var resp retrieval.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "SoHo", resp.Neighborhood)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Soho Wine", resp.Results[0].Name)
}

func TestSearchHandler_Post(t *testing.T) {
	s := &fakeSearcher{resp: &retrieval.Response{}}
	h := NewSearchHandler(nil, s)

	body := strings.NewReader(`{"query":"dive bar","neighborhood":"les","limit":2}`)
	rec := httptest.NewRecorder()
	h.Post(rec, httptest.NewRequest(http.MethodPost, "/v1/search", body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, retrieval.Query{Text: "dive bar", Neighborhood: "les", Limit: 2}, s.got)
}

func TestSearchHandler_Errors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		status int
	}{
		{"bad limit", "/v1/search?q=wine&limit=abc", nil, http.StatusBadRequest},
		{"negative boost", "/v1/search?q=wine&boost=-1", nil, http.StatusBadRequest},
		{"empty query", "/v1/search", retrieval.ErrEmptyQuery, http.StatusBadRequest},
		{"boost not above one", "/v1/search?q=wine&boost=1", retrieval.ErrInvalidBoost, http.StatusBadRequest},
		{"no vectors", "/v1/search?q=wine", storage.ErrVectorsUnavailable, http.StatusServiceUnavailable},
		{"embedder down", "/v1/search?q=wine", errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewSearchHandler(nil, &fakeSearcher{err: tc.err})
			rec := httptest.NewRecorder()
			h.Get(rec, httptest.NewRequest(http.MethodGet, tc.target, nil))

			assert.Equal(t, tc.status, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestSearchHandler_PostInvalidBody(t *testing.T) {
	h := NewSearchHandler(nil, &fakeSearcher{})
	rec := httptest.NewRecorder()
	h.Post(rec, httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func newVenueRouter(t *testing.T) (http.Handler, *storage.Repositories) {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(ctx, config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: ":memory:", MaxOpenConns: 1},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.Migrate(ctx, db))

	repos := storage.NewRepositories(db)
	h := NewVenueHandler(nil, repos.Places, repos.Reviews)

	r := chi.NewRouter()
	r.Get("/v1/venues", h.List)
	r.Get("/v1/venues/{cornerPlaceID}", h.Get)
	return r, repos
}

func TestVenueHandler_Get(t *testing.T) {
	r, repos := newVenueRouter(t)
	posted := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := repos.Places.Upsert(context.Background(), &storage.Place{
		CornerPlaceID: "cp-1",
		Name:          "Soho Wine",
		Neighborhood:  "SoHo",
		Tags:          []string{"wine", "date night"},
		Attributes:    json.RawMessage(`{"cuisines":["french"],"lat":40.72,"lon":-74.0,"hours_patterns":{"open_late":true},"notes":{}}`),
	}, []storage.Review{{Source: "google", Text: "Great list", PostedAt: posted}})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/venues/cp-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var dto VenueDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&dto))
	assert.Equal(t, "Soho Wine", dto.Name)
	assert.Equal(t, []string{"wine", "date night"}, dto.Tags)
	require.NotNil(t, dto.Attributes)
	assert.Equal(t, []string{"french"}, dto.Attributes.Cuisines)
	assert.True(t, dto.Attributes.HoursPatterns.OpenLate)
	require.Len(t, dto.Reviews, 1)
	assert.Equal(t, "Great list", dto.Reviews[0].Text)
	assert.True(t, posted.Equal(dto.Reviews[0].PostedAt))
}

func TestVenueHandler_GetMissing(t *testing.T) {
	r, _ := newVenueRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/venues/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVenueHandler_List(t *testing.T) {
	r, repos := newVenueRouter(t)
	for _, id := range []string{"a", "b", "c"} {
		_, err := repos.Places.Upsert(context.Background(), &storage.Place{CornerPlaceID: id, Name: "Venue " + id}, nil)
		require.NoError(t, err)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/venues?limit=2&offset=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 2, resp.Limit)
	assert.Len(t, resp.Venues, 2)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/venues?offset=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
