// Package embedding converts document segments and queries into fixed-length
// vectors via the OpenAI embedding API, batching and pacing requests to stay
// inside provider rate limits.
package embedding

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/lexichat/backend/internal/pkg/errs"
)

const (
	// Model is the OpenAI model used for all embeddings.
	Model = "text-embedding-3-small"

	// Dimension is the vector size produced by Model. Matches
	// vectorstore.VectorDimension.
	Dimension = 1536
)

// Client wraps the OpenAI client for embedding generation.
type Client struct {
	client *openai.Client
}

// NewClient creates an embedding client with the given API key.
func NewClient(apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key not set", errs.ErrAuth)
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Client{client: &client}, nil
}

// OpenAI returns the underlying client for reuse by other consumers of the
// same account (answer generation).
func (c *Client) OpenAI() *openai.Client {
	return c.client
}

// CreateEmbeddings issues one provider call for the given texts and returns
// one vector per input, in order.
func (c *Client) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: Model,
	})
	if err != nil {
		return nil, errs.FromOpenAI(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("provider returned %d embeddings for %d inputs",
			len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		vectors[i] = toFloat32(data.Embedding)
	}
	return vectors, nil
}

// toFloat32 narrows the API's float64 vectors for storage.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
