package embedding

import (
	"context"
	"math"
	"unicode/utf8"
)

// MockClient provides a deterministic offline embedder for development and tests.
type MockClient struct {
	dimension int
}

// NewMockClient creates a mock client that derives embeddings from the text.
func NewMockClient(dimension int) *MockClient {
	if dimension <= 0 {
		dimension = 1536
	}
	return &MockClient{dimension: dimension}
}

// Embed generates mock embeddings. Equal texts get equal vectors.
func (c *MockClient) Embed(ctx context.Context, texts []string) ([][]float32, Usage, error) {
	if err := ctx.Err(); err != nil {
		return nil, Usage{}, err
	}
	embeddings := make([][]float32, len(texts))
	var usage Usage
	for i, text := range texts {
		v := make([]float32, c.dimension)
		j := 0
		for _, char := range text {
			v[j%c.dimension] += float32(char) / 1000.0
			j++
		}
		embeddings[i] = unit(v)
		tokens := utf8.RuneCountInString(text)/4 + 1
		usage.PromptTokens += tokens
		usage.TotalTokens += tokens
	}
	return embeddings, usage, nil
}

// EmbedSingle generates a mock embedding for a single text.
func (c *MockClient) EmbedSingle(ctx context.Context, text string) ([]float32, Usage, error) {
	embeddings, usage, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, usage, err
	}
	return embeddings[0], usage, nil
}

// Model returns the mock model name.
func (c *MockClient) Model() string {
	return "mock-embedding-model"
}

// Dimension returns the embedding dimension.
func (c *MockClient) Dimension() int {
	return c.dimension
}

func unit(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * norm)
	}
	return v
}
