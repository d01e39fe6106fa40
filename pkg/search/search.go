// Package search is the query-side facade over the vector store:
// dense/lexical/hybrid search plus profile lookup by handle/URL. Hybrid
// scoring combines per-facet cosine similarities with a normalized lexical
// score under re-normalized weights; similar-creator lookup reuses the
// anchor's profile vector against both facets (see DESIGN.md).
package search

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/creatorindex/creatord/pkg/apperr"
	"github.com/creatorindex/creatord/pkg/domain"
	"github.com/creatorindex/creatord/pkg/vectorstore"
)

// Method selects the search strategy.
type Method string

const (
	MethodLexical  Method = "lexical"
	MethodSemantic Method = "semantic"
	MethodHybrid   Method = "hybrid"
)

// Filters narrows results; zero-valued fields are dropped.
type Filters struct {
	MinFollowers, MaxFollowers   *int64
	MinEngagement, MaxEngagement *float64
	LocationSubstring            string
	CategorySubstring            string
	IsVerified, IsBusiness       *bool
}

// Request is one search call's parameters.
type Request struct {
	Query        string
	Method       Method
	Limit        int
	Filters      Filters
	LexicalScope string // "bio" | "bio_posts"
}

// EmbeddingClient embeds text into a unit-norm float32 vector.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the slice of the vector store the engine needs: dense
// k-NN search per facet plus payload-filtered full-text lookup.
// *vectorstore.Store satisfies it.
type VectorIndex interface {
	Search(ctx context.Context, facet vectorstore.Facet, embedding []float32, topK int, filters []vectorstore.Filter) ([]vectorstore.Hit, error)
	LexicalSearch(ctx context.Context, facet vectorstore.Facet, query string, topK int, filters []vectorstore.Filter) ([]vectorstore.Hit, error)
}

// ProfileLoader resolves a vector-store hit's payload back into a full
// CanonicalProfile (the vector store itself stores only facet payloads, not
// the complete record).
type ProfileLoader interface {
	LoadByLanceID(ctx context.Context, lanceID string) (*domain.CanonicalProfile, error)
	LoadByUsername(ctx context.Context, username string) (*domain.CanonicalProfile, error)
	LoadByProfileURL(ctx context.Context, url string) (*domain.CanonicalProfile, error)
}

const (
	defaultWProfile = 0.40
	defaultWPosts   = 0.25
	defaultWKeyword = 0.35
)

func weightsFor(method Method) (wProfile, wPosts, wKeyword float64) {
	switch method {
	case MethodLexical:
		return 0, 0, 1
	case MethodSemantic:
		return 0.6, 0.4, 0
	default:
		return defaultWProfile, defaultWPosts, defaultWKeyword
	}
}

// Engine is the search facade.
type Engine struct {
	store     VectorIndex
	embedding EmbeddingClient
	loader    ProfileLoader
}

func New(store VectorIndex, embedding EmbeddingClient, loader ProfileLoader) *Engine {
	return &Engine{store: store, embedding: embedding, loader: loader}
}

type candidate struct {
	lanceID    string
	profileSim float64
	postsSim   float64
	lexicalRaw float64
}

// Search executes one search request and returns profiles sorted by
// combined_score descending, truncated to Limit.
func (e *Engine) Search(ctx context.Context, req Request) ([]*domain.CanonicalProfile, error) {
	wProfile, wPosts, wKeyword := weightsFor(req.Method)
	sum := wProfile + wPosts + wKeyword
	if sum > 0 {
		wProfile, wPosts, wKeyword = wProfile/sum, wPosts/sum, wKeyword/sum
	}

	candidates := make(map[string]*candidate)
	upsert := func(lanceID string) *candidate {
		c, ok := candidates[lanceID]
		if !ok {
			c = &candidate{lanceID: lanceID}
			candidates[lanceID] = c
		}
		return c
	}

	filters := buildFilters(req.Filters)
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	fanOutLimit := limit * 4
	if fanOutLimit < 50 {
		fanOutLimit = 50
	}

	if wProfile > 0 || wPosts > 0 {
		if e.embedding == nil {
			return nil, apperr.Config("semantic search requires a configured embedding client")
		}
		vec, err := e.embedding.Embed(ctx, req.Query)
		if err != nil {
			return nil, err
		}
		if wProfile > 0 {
			hits, err := e.store.Search(ctx, vectorstore.FacetProfile, vec, fanOutLimit, filters)
			if err != nil {
				return nil, err
			}
			for _, h := range hits {
				sim := math.Max(0, 1-float64(h.Score))
				c := upsert(lanceIDOf(h))
				if sim > c.profileSim {
					c.profileSim = sim
				}
			}
		}
		if wPosts > 0 {
			hits, err := e.store.Search(ctx, vectorstore.FacetPosts, vec, fanOutLimit, filters)
			if err != nil {
				return nil, err
			}
			for _, h := range hits {
				sim := math.Max(0, 1-float64(h.Score))
				c := upsert(lanceIDOf(h))
				if sim > c.postsSim {
					c.postsSim = sim
				}
			}
		}
	}

	if wKeyword > 0 {
		scope := []vectorstore.Facet{vectorstore.FacetProfile}
		if req.LexicalScope == "bio_posts" {
			scope = append(scope, vectorstore.FacetPosts)
		}
		terms := queryTerms(req.Query)
		for _, facet := range scope {
			hits, err := e.store.LexicalSearch(ctx, facet, req.Query, fanOutLimit, filters)
			if err != nil {
				return nil, err
			}
			for _, h := range hits {
				raw := lexicalScore(terms, h.Payload)
				if raw <= 0 {
					continue
				}
				c := upsert(lanceIDOf(h))
				if raw > c.lexicalRaw {
					c.lexicalRaw = raw
				}
			}
		}
	}

	type scored struct {
		lanceID string
		combined float64
		c       *candidate
	}
	maxLexical := 0.0
	for _, c := range candidates {
		if c.lexicalRaw > maxLexical {
			maxLexical = c.lexicalRaw
		}
	}
	scoredList := make([]scored, 0, len(candidates))
	for id, c := range candidates {
		lexNorm := 0.0
		if maxLexical > 0 {
			lexNorm = c.lexicalRaw / maxLexical
		}
		combined := wProfile*c.profileSim + wPosts*c.postsSim + wKeyword*lexNorm
		scoredList = append(scoredList, scored{lanceID: id, combined: combined, c: c})
	}
	sort.SliceStable(scoredList, func(i, j int) bool { return scoredList[i].combined > scoredList[j].combined })
	if len(scoredList) > limit {
		scoredList = scoredList[:limit]
	}

	out := make([]*domain.CanonicalProfile, 0, len(scoredList))
	for _, s := range scoredList {
		p, err := e.loader.LoadByLanceID(ctx, s.lanceID)
		if err != nil {
			continue
		}
		p.BM25 = domain.Some(s.c.lexicalRaw)
		p.ProfileSim = domain.Some(s.c.profileSim)
		p.PostsSim = domain.Some(s.c.postsSim)
		p.CombinedScore = domain.Some(s.combined)
		out = append(out, p)
	}
	return out, nil
}

// FindSimilar resolves the account's profile vector and searches the
// profile and posts facets with it (weights 0.2 and 0.3), removing the
// anchor itself from the results. The posts-facet search deliberately
// reuses the profile anchor vector; see DESIGN.md.
func (e *Engine) FindSimilar(ctx context.Context, account string, limit int) ([]*domain.CanonicalProfile, error) {
	anchor, err := e.loader.LoadByUsername(ctx, account)
	if err != nil {
		return nil, apperr.NotFound("account %q not found", account)
	}
	anchorVec, err := e.anchorVector(ctx, anchor)
	if err != nil {
		return nil, err
	}

	const wProfile, wPosts = 0.2, 0.3
	fanOut := limit + 1
	if fanOut < 20 {
		fanOut = 20
	}

	candidates := make(map[string]*candidate)
	profileHits, err := e.store.Search(ctx, vectorstore.FacetProfile, anchorVec, fanOut, nil)
	if err != nil {
		return nil, err
	}
	for _, h := range profileHits {
		id := lanceIDOf(h)
		c := &candidate{lanceID: id, profileSim: math.Max(0, 1-float64(h.Score))}
		candidates[id] = c
	}
	postsHits, err := e.store.Search(ctx, vectorstore.FacetPosts, anchorVec, fanOut, nil)
	if err != nil {
		return nil, err
	}
	for _, h := range postsHits {
		id := lanceIDOf(h)
		c, ok := candidates[id]
		if !ok {
			c = &candidate{lanceID: id}
			candidates[id] = c
		}
		c.postsSim = math.Max(0, 1-float64(h.Score))
	}

	type scored struct {
		lanceID  string
		combined float64
	}
	list := make([]scored, 0, len(candidates))
	for id, c := range candidates {
		if id == anchor.LanceID {
			continue
		}
		list = append(list, scored{lanceID: id, combined: wProfile*c.profileSim + wPosts*c.postsSim})
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].combined > list[j].combined })
	if len(list) > limit {
		list = list[:limit]
	}

	out := make([]*domain.CanonicalProfile, 0, len(list))
	for _, s := range list {
		p, err := e.loader.LoadByLanceID(ctx, s.lanceID)
		if err != nil {
			continue
		}
		p.CombinedScore = domain.Some(s.combined)
		out = append(out, p)
	}
	return out, nil
}

// anchorVector re-embeds the anchor's biography as a stand-in profile
// vector; production deployments should instead read the stored vector
// back from the vector store by point id.
func (e *Engine) anchorVector(ctx context.Context, anchor *domain.CanonicalProfile) ([]float32, error) {
	if e.embedding == nil {
		return nil, apperr.Config("similar-creator lookup requires a configured embedding client")
	}
	return e.embedding.Embed(ctx, anchor.Biography)
}

func (e *Engine) LookupByUsername(ctx context.Context, username string) (*domain.CanonicalProfile, error) {
	p, err := e.loader.LoadByUsername(ctx, username)
	if err != nil {
		return nil, apperr.NotFound("username %q not found", username)
	}
	return p, nil
}

func (e *Engine) LookupByURL(ctx context.Context, url string) (*domain.CanonicalProfile, error) {
	p, err := e.loader.LoadByProfileURL(ctx, url)
	if err != nil {
		return nil, apperr.NotFound("url %q not found", url)
	}
	return p, nil
}

func queryTerms(q string) []string {
	return strings.Fields(strings.ToLower(q))
}

// lexicalScore is a term-frequency score over the hit's stored "text"
// payload, standing in for the raw full-text score the underlying store
// does not return; callers normalize it by the maximum seen in the result
// set, so only relative magnitude matters.
func lexicalScore(terms []string, payload map[string]any) float64 {
	text, _ := payload["text"].(string)
	if text == "" || len(terms) == 0 {
		return 0
	}
	text = strings.ToLower(text)
	score := 0.0
	for _, t := range terms {
		score += float64(strings.Count(text, t))
	}
	return score
}

func lanceIDOf(h vectorstore.Hit) string {
	if v, ok := h.Payload["lance_id"].(string); ok {
		return v
	}
	return h.ID
}

func buildFilters(f Filters) []vectorstore.Filter {
	var out []vectorstore.Filter
	if f.MinFollowers != nil || f.MaxFollowers != nil {
		var min, max *float64
		if f.MinFollowers != nil {
			v := float64(*f.MinFollowers)
			min = &v
		}
		if f.MaxFollowers != nil {
			v := float64(*f.MaxFollowers)
			max = &v
		}
		out = append(out, vectorstore.Filter{Key: "followers", MinValue: min, MaxValue: max})
	}
	if f.MinEngagement != nil || f.MaxEngagement != nil {
		out = append(out, vectorstore.Filter{Key: "engagement_rate", MinValue: f.MinEngagement, MaxValue: f.MaxEngagement})
	}
	if f.LocationSubstring != "" {
		out = append(out, vectorstore.Filter{Key: "location", Substring: strings.ToLower(f.LocationSubstring)})
	}
	if f.CategorySubstring != "" {
		out = append(out, vectorstore.Filter{Key: "category", Substring: strings.ToLower(f.CategorySubstring)})
	}
	if f.IsVerified != nil {
		out = append(out, vectorstore.Filter{Key: "is_verified", Equals: *f.IsVerified})
	}
	if f.IsBusiness != nil {
		out = append(out, vectorstore.Filter{Key: "is_commerce_user", Equals: *f.IsBusiness})
	}
	return out
}
