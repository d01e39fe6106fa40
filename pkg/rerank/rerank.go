// Package rerank is a thin proxy to a remote reranker that
// tolerates several upstream response shapes and normalizes them into
// sorted, deduplicated (index, score) pairs.
package rerank

import (
	"context"
	"fmt"
	"sort"

	"github.com/creatorindex/creatord/pkg/apperr"
)

// Pair is one ranked document.
type Pair struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Transport is the raw HTTP collaborator; Client normalizes its response.
type Transport interface {
	Rerank(ctx context.Context, query string, documents []string, topK int) (any, error)
}

// Client wraps a Transport and guarantees the normalized output contract:
// sorted descending by score, length <= topK, indices unique and in range.
type Client struct {
	transport Transport
}

func New(t Transport) *Client { return &Client{transport: t} }

// ErrRerank indicates the upstream response could not be normalized.
var ErrRerank = fmt.Errorf("%w: unrecognized reranker response shape", apperr.ErrExternalPermanent)

func (c *Client) Rerank(ctx context.Context, query string, documents []string, topK int) ([]Pair, error) {
	if topK <= 0 || topK > len(documents) {
		topK = len(documents)
	}
	raw, err := c.transport.Rerank(ctx, query, documents, topK)
	if err != nil {
		return nil, err
	}

	pairs, err := normalize(raw, len(documents))
	if err != nil {
		return nil, err
	}

	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Score > pairs[j].Score })
	if len(pairs) > topK {
		pairs = pairs[:topK]
	}
	return pairs, nil
}

// normalize accepts: a list of {index, score} maps; a list of [index, score]
// pairs; or a list of bare scores aligned to input order. An upstream that
// wraps its list in a {"results": [...]} or {"data": [...]} envelope is
// unwrapped first.
func normalize(raw any, numDocuments int) ([]Pair, error) {
	if m, ok := raw.(map[string]any); ok {
		if v, ok := m["results"]; ok {
			raw = v
		} else if v, ok := m["data"]; ok {
			raw = v
		}
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, ErrRerank
	}

	seen := make(map[int]bool, len(list))
	out := make([]Pair, 0, len(list))
	appendPair := func(idx int, score float64) error {
		if idx < 0 || idx >= numDocuments || seen[idx] {
			return ErrRerank
		}
		seen[idx] = true
		out = append(out, Pair{Index: idx, Score: score})
		return nil
	}

	for i, item := range list {
		switch v := item.(type) {
		case map[string]any:
			idx, idxOK := asInt(v["index"])
			score, scoreOK := asFloat(v["score"])
			if !idxOK || !scoreOK {
				return nil, ErrRerank
			}
			if err := appendPair(idx, score); err != nil {
				return nil, err
			}
		case []any:
			if len(v) != 2 {
				return nil, ErrRerank
			}
			idx, idxOK := asInt(v[0])
			score, scoreOK := asFloat(v[1])
			if !idxOK || !scoreOK {
				return nil, ErrRerank
			}
			if err := appendPair(idx, score); err != nil {
				return nil, err
			}
		case float64, int:
			score, _ := asFloat(v)
			if err := appendPair(i, score); err != nil {
				return nil, err
			}
		default:
			return nil, ErrRerank
		}
	}
	return out, nil
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}
