package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(ClientConfig{BaseURL: srv.URL + "/", APIKey: "secret"})
	require.NoError(t, err)
	return c
}

func TestClient_Search(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/search", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req SearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, SearchRequest{Query: "wine in soho", Limit: 3}, req)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"query":"wine in soho","search_text":"wine","neighborhood":"SoHo","fallback":"primary",
			"results":[{"id":7,"name":"Soho Wine","similarity":1.35,"tags":["wine"]}]}`))
	})

	resp, err := c.Search(context.Background(), SearchRequest{Query: "wine in soho", Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, "SoHo", resp.Neighborhood)
	assert.Equal(t, "primary", resp.Fallback)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, int64(7), resp.Results[0].ID)
	assert.InDelta(t, 1.35, resp.Results[0].Similarity, 1e-9)
}

func TestClient_GetVenueNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/venues/cp%201", r.URL.EscapedPath())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"venue lookup failed","message":"venue lookup failed","detail":"record not found"}`))
	})

	_, err := c.GetVenue(context.Background(), "cp 1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "venue lookup failed", apiErr.Message)
	assert.Equal(t, "record not found", apiErr.Detail)
}

func TestClient_ListVenues(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		assert.Equal(t, "4", r.URL.Query().Get("offset"))
		w.Write([]byte(`{"venues":[{"corner_place_id":"a","name":"A","tags":[]}],"total":5,"limit":2,"offset":4}`))
	})

	page, err := c.ListVenues(context.Background(), 2, 4)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Venues, 1)
	assert.Equal(t, "a", page.Venues[0].CornerPlaceID)
}

func TestClient_PlainTextError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})

	_, err := c.Health(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream exploded", apiErr.Message)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestClient_Health(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Write([]byte(`{"status":"healthy","service":"venue-engine"}`))
	})

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
}
