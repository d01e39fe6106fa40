package rerank

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTransport struct {
	raw any
	err error

	gotQuery string
	gotTopK  int
}

func (s *stubTransport) Rerank(_ context.Context, query string, _ []string, topK int) (any, error) {
	s.gotQuery = query
	s.gotTopK = topK
	return s.raw, s.err
}

func docs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "doc"
	}
	return out
}

func TestRerankObjectShape(t *testing.T) {
	c := New(&stubTransport{raw: []any{
		map[string]any{"index": float64(2), "score": 0.9},
		map[string]any{"index": float64(0), "score": 0.7},
	}})
	pairs, err := c.Rerank(context.Background(), "q", docs(3), 2)
	require.NoError(t, err)
	assert.Equal(t, []Pair{{Index: 2, Score: 0.9}, {Index: 0, Score: 0.7}}, pairs)
}

func TestRerankPairShape(t *testing.T) {
	c := New(&stubTransport{raw: []any{
		[]any{float64(1), 0.4},
		[]any{float64(0), 0.8},
	}})
	pairs, err := c.Rerank(context.Background(), "q", docs(2), 2)
	require.NoError(t, err)
	// Sorted descending regardless of upstream order.
	assert.Equal(t, []Pair{{Index: 0, Score: 0.8}, {Index: 1, Score: 0.4}}, pairs)
}

func TestRerankBareScoreShape(t *testing.T) {
	c := New(&stubTransport{raw: []any{0.2, 0.9, 0.5}})
	pairs, err := c.Rerank(context.Background(), "q", docs(3), 3)
	require.NoError(t, err)
	assert.Equal(t, []Pair{{Index: 1, Score: 0.9}, {Index: 2, Score: 0.5}, {Index: 0, Score: 0.2}}, pairs)
}

func TestRerankResultsEnvelope(t *testing.T) {
	c := New(&stubTransport{raw: map[string]any{"results": []any{
		map[string]any{"index": float64(0), "score": 0.5},
	}}})
	pairs, err := c.Rerank(context.Background(), "q", docs(1), 1)
	require.NoError(t, err)
	assert.Equal(t, []Pair{{Index: 0, Score: 0.5}}, pairs)
}

func TestRerankTopKClippedToDocumentCount(t *testing.T) {
	tr := &stubTransport{raw: []any{0.1, 0.2}}
	c := New(tr)
	pairs, err := c.Rerank(context.Background(), "q", docs(2), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, tr.gotTopK)
	assert.Len(t, pairs, 2)
}

func TestRerankTruncatesToTopK(t *testing.T) {
	c := New(&stubTransport{raw: []any{0.1, 0.9, 0.5}})
	pairs, err := c.Rerank(context.Background(), "q", docs(3), 2)
	require.NoError(t, err)
	assert.Equal(t, []Pair{{Index: 1, Score: 0.9}, {Index: 2, Score: 0.5}}, pairs)
}

func TestRerankRejectsBadShapes(t *testing.T) {
	for name, raw := range map[string]any{
		"not a list":        "nope",
		"out of range":      []any{map[string]any{"index": float64(9), "score": 0.5}},
		"duplicate index":   []any{0.1, []any{float64(0), 0.2}},
		"missing score":     []any{map[string]any{"index": float64(0)}},
		"mis-sized pair":    []any{[]any{float64(0)}},
		"unsupported items": []any{true},
	} {
		t.Run(name, func(t *testing.T) {
			c := New(&stubTransport{raw: raw})
			_, err := c.Rerank(context.Background(), "q", docs(2), 2)
			assert.ErrorIs(t, err, ErrRerank)
		})
	}
}

func TestRerankScoresMonotonicallyNonIncreasing(t *testing.T) {
	c := New(&stubTransport{raw: []any{0.3, 0.9, 0.1, 0.9}})
	pairs, err := c.Rerank(context.Background(), "q", docs(4), 4)
	require.NoError(t, err)
	for i := 1; i < len(pairs); i++ {
		assert.GreaterOrEqual(t, pairs[i-1].Score, pairs[i].Score)
	}
}
