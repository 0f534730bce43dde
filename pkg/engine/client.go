// Package engine provides the public Go SDK for the Venue Engine API.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when the API answers 404.
var ErrNotFound = errors.New("not found")

// Client is the public SDK client for the Venue Engine.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ClientConfig holds client configuration.
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewClient creates a new Venue Engine client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8090"
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}, nil
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
	Detail     string `json:"detail,omitempty"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("venue engine: %d %s: %s", e.StatusCode, e.Message, e.Detail)
	}
	return fmt.Sprintf("venue engine: %d %s", e.StatusCode, e.Message)
}

// Unwrap lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// SearchRequest represents a venue search.
type SearchRequest struct {
	Query        string  `json:"query"`
	Neighborhood string  `json:"neighborhood,omitempty"`
	Limit        int     `json:"limit,omitempty"`
	Boost        float64 `json:"boost,omitempty"`
}

// SearchResponse represents ranked search results.
type SearchResponse struct {
	Query        string        `json:"query"`
	SearchText   string        `json:"search_text"`
	Neighborhood string        `json:"neighborhood,omitempty"`
	Method       string        `json:"method,omitempty"`
	Fallback     string        `json:"fallback"`
	Results      []VenueResult `json:"results"`
	Cached       bool          `json:"cached"`
	LatencyMs    int64         `json:"latency_ms"`
}

// VenueResult is one ranked venue.
type VenueResult struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	Neighborhood string   `json:"neighborhood"`
	Tags         []string `json:"tags"`
	Price        string   `json:"price"`
	Description  string   `json:"description"`
	Similarity   float64  `json:"similarity"`
}

// Search runs a location-aware venue search.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	var resp SearchResponse
	if err := c.do(ctx, http.MethodPost, "/v1/search", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Venue is a stored venue record.
type Venue struct {
	ID                  int64                  `json:"id"`
	CornerPlaceID       string                 `json:"corner_place_id"`
	GoogleID            string                 `json:"google_id,omitempty"`
	Name                string                 `json:"name"`
	Neighborhood        string                 `json:"neighborhood"`
	Website             string                 `json:"website,omitempty"`
	InstagramHandle     string                 `json:"instagram_handle,omitempty"`
	Category            string                 `json:"category,omitempty"`
	PriceRange          string                 `json:"price_range,omitempty"`
	CombinedDescription string                 `json:"combined_description,omitempty"`
	Tags                []string               `json:"tags"`
	Address             string                 `json:"address,omitempty"`
	Hours               json.RawMessage        `json:"hours,omitempty"`
	Attributes          map[string]interface{} `json:"attributes,omitempty"`
	EmbeddingStatus     *EmbeddingStatus       `json:"embedding_status,omitempty"`
	Reviews             []Review               `json:"reviews,omitempty"`
	UpdatedAt           time.Time              `json:"updated_at"`
}

// EmbeddingStatus is the outcome of the last embedding attempt for a venue.
type EmbeddingStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`
}

// Review is one review kept with a venue.
type Review struct {
	Source   string    `json:"source"`
	Text     string    `json:"text"`
	PostedAt time.Time `json:"posted_at"`
}

// GetVenue fetches one venue by its corner place id.
func (c *Client) GetVenue(ctx context.Context, cornerPlaceID string) (*Venue, error) {
	var v Venue
	if err := c.do(ctx, http.MethodGet, "/v1/venues/"+url.PathEscape(cornerPlaceID), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// VenuePage is one page of venues.
type VenuePage struct {
	Venues []Venue `json:"venues"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// ListVenues pages through stored venues.
func (c *Client) ListVenues(ctx context.Context, limit, offset int) (*VenuePage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/v1/venues"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page VenuePage
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service,omitempty"`
}

// Health checks the service health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var h HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
			if apiErr.Message == "" {
				apiErr.Message = http.StatusText(resp.StatusCode)
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
