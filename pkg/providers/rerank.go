package providers

import (
	"context"
	"fmt"
	"time"
)

// RerankClient implements rerank.Transport against a remote reranker
// endpoint. It returns the decoded response as `any`, leaving the
// map/pair/bare-score normalization to rerank.Client: this
// client's only job is the HTTP round-trip.
type RerankClient struct {
	base baseClient
}

func NewRerankClient(baseURL, apiKey string, timeout time.Duration) *RerankClient {
	return &RerankClient{base: newBaseClient(baseURL, apiKey, timeout)}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopK      int      `json:"top_k"`
}

// Rerank satisfies rerank.Transport.
func (c *RerankClient) Rerank(ctx context.Context, query string, documents []string, topK int) (any, error) {
	var resp any
	req := rerankRequest{Query: query, Documents: documents, TopK: topK}
	if err := c.base.postJSON(ctx, "/rerank", req, &resp); err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	return resp, nil
}
