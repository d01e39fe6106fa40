package providers

import (
	"context"
	"fmt"
	"time"
)

// EmbeddingClient implements search.EmbeddingClient against a remote
// embedding endpoint: single string in, single unit-norm float vector out,
// over a generic "POST /embeddings" contract.
type EmbeddingClient struct {
	base  baseClient
	model string
}

func NewEmbeddingClient(baseURL, apiKey, model string, timeout time.Duration) *EmbeddingClient {
	return &EmbeddingClient{base: newBaseClient(baseURL, apiKey, timeout), model: model}
}

type embeddingRequest struct {
	Model string `json:"model,omitempty"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed satisfies search.EmbeddingClient.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp embeddingResponse
	if err := c.base.postJSON(ctx, "/embeddings", embeddingRequest{Model: c.model, Input: text}, &resp); err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	return resp.Embedding, nil
}
