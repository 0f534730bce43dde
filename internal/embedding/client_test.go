package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corner-places/venue-engine/internal/config"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL, Dimension: 3, MaxChars: 10})
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)

	c, err := NewClient(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-ada-002", c.Model())
	assert.Equal(t, 1536, c.Dimension())
}

func TestClient_EmbedSingle(t *testing.T) {
	var got EmbeddingRequest
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_ = json.NewEncoder(w).Encode(EmbeddingResponse{
			Data:  []EmbeddingData{{Embedding: []float32{0.1, 0.2, 0.3}, Index: 0}},
			Usage: Usage{PromptTokens: 7, TotalTokens: 7},
		})
	})

	vec, usage, err := c.EmbedSingle(context.Background(), "short")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, 7, usage.TotalTokens)
	assert.Equal(t, []string{"short"}, got.Input)
	assert.Equal(t, "text-embedding-ada-002", got.Model)
}

func TestClient_TruncatesLongInput(t *testing.T) {
	var got EmbeddingRequest
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(EmbeddingResponse{
			Data: []EmbeddingData{{Embedding: []float32{1, 0, 0}}},
		})
	})

	_, _, err := c.EmbedSingle(context.Background(), strings.Repeat("é", 25))
	require.NoError(t, err)
	require.Len(t, got.Input, 1)
	assert.Equal(t, strings.Repeat("é", 10)+"...", got.Input[0])
}

func TestClient_APIError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad input","type":"invalid_request_error"}}`))
	})

	_, _, err := c.EmbedSingle(context.Background(), "x")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "bad input", apiErr.Message)
	assert.False(t, apiErr.Retryable())
	assert.False(t, retryable(err))
}

func TestClient_RateLimitIsRetryable(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	})

	_, _, err := c.EmbedSingle(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, retryable(err))
	assert.Contains(t, err.Error(), "slow down")
}

func TestClient_EmptyData(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	})

	_, _, err := c.EmbedSingle(context.Background(), "x")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestMockClient_Deterministic(t *testing.T) {
	m := NewMockClient(8)
	a, usage, err := m.EmbedSingle(context.Background(), "cozy wine bar")
	require.NoError(t, err)
	b, _, err := m.EmbedSingle(context.Background(), "cozy wine bar")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 8)
	assert.Positive(t, usage.TotalTokens)

	var norm float32
	for _, x := range a {
		norm += x * x
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}

func TestNew_SelectsProvider(t *testing.T) {
	emb, err := New(config.EmbeddingConfig{Provider: "mock", Dimension: 8}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MockClient{}, emb)
	assert.Equal(t, 8, emb.Dimension())

	emb, err = New(config.EmbeddingConfig{Provider: "openai", Dimension: 8}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MockClient{}, emb, "no API key falls back to the mock")

	emb, err = New(config.EmbeddingConfig{Provider: "openai", APIKey: "k", Model: "m", Dimension: 8}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Client{}, emb)
	assert.Equal(t, "m", emb.Model())
}

func TestGeneratorConfigFrom(t *testing.T) {
	got := GeneratorConfigFrom(config.DefaultConfig().Embedding)
	assert.Equal(t, "combined", got.ContentType)
	assert.Equal(t, 3, got.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, got.Retry.InitialBackoff)
}
