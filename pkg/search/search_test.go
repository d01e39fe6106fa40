package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorindex/creatord/pkg/apperr"
	"github.com/creatorindex/creatord/pkg/domain"
	"github.com/creatorindex/creatord/pkg/vectorstore"
)

// fakeIndex serves canned per-facet dense hits and lexical hits. Dense hit
// scores are cosine distances (similarity = 1 - distance).
type fakeIndex struct {
	dense   map[vectorstore.Facet][]vectorstore.Hit
	lexical map[vectorstore.Facet][]vectorstore.Hit
}

func (f *fakeIndex) Search(_ context.Context, facet vectorstore.Facet, _ []float32, _ int, _ []vectorstore.Filter) ([]vectorstore.Hit, error) {
	return f.dense[facet], nil
}

func (f *fakeIndex) LexicalSearch(_ context.Context, facet vectorstore.Facet, _ string, _ int, _ []vectorstore.Filter) ([]vectorstore.Hit, error) {
	return f.lexical[facet], nil
}

type fakeLoader struct {
	profiles map[string]*domain.CanonicalProfile
}

func (f *fakeLoader) load(id string) (*domain.CanonicalProfile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return nil, apperr.NotFound("no profile %s", id)
	}
	cp := *p
	return &cp, nil
}

func (f *fakeLoader) LoadByLanceID(_ context.Context, id string) (*domain.CanonicalProfile, error) {
	return f.load(id)
}

func (f *fakeLoader) LoadByUsername(_ context.Context, username string) (*domain.CanonicalProfile, error) {
	for _, p := range f.profiles {
		if p.Username == username {
			return f.load(p.LanceID)
		}
	}
	return nil, apperr.NotFound("no profile %s", username)
}

func (f *fakeLoader) LoadByProfileURL(_ context.Context, url string) (*domain.CanonicalProfile, error) {
	return nil, apperr.NotFound("no profile %s", url)
}

type fixedEmbedding struct{}

func (fixedEmbedding) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func hit(id string, distance float32, text string) vectorstore.Hit {
	return vectorstore.Hit{ID: id, Score: distance, Payload: map[string]any{"lance_id": id, "text": text}}
}

func threeProfiles() *fakeLoader {
	return &fakeLoader{profiles: map[string]*domain.CanonicalProfile{
		"1": {LanceID: "1", Username: "alice"},
		"2": {LanceID: "2", Username: "bob_warning"},
		"3": {LanceID: "3", Username: "carol"},
	}}
}

func TestHybridSearchCombinedScoreFormula(t *testing.T) {
	idx := &fakeIndex{
		dense: map[vectorstore.Facet][]vectorstore.Hit{
			vectorstore.FacetProfile: {hit("1", 0.1, ""), hit("3", 0.5, "")},
			vectorstore.FacetPosts:   {hit("1", 0.4, ""), hit("3", 0.2, "")},
		},
		lexical: map[vectorstore.Facet][]vectorstore.Hit{
			vectorstore.FacetProfile: {
				hit("1", 0, "skincare routine skincare"),
				hit("2", 0, "one skincare mention"),
			},
		},
	}
	e := New(idx, fixedEmbedding{}, threeProfiles())

	out, err := e.Search(context.Background(), Request{Query: "skincare", Method: MethodHybrid, Limit: 5})
	require.NoError(t, err)
	require.Len(t, out, 3)

	// alice: profile_sim 0.9, posts_sim 0.6, lexical 2/2=1.0
	// combined = 0.4*0.9 + 0.25*0.6 + 0.35*1.0 = 0.86
	assert.Equal(t, "alice", out[0].Username)
	combined, ok := out[0].CombinedScore.Get()
	require.True(t, ok)
	assert.InDelta(t, 0.86, combined, 1e-6)

	for _, p := range out {
		c, ok := p.CombinedScore.Get()
		require.True(t, ok)
		assert.GreaterOrEqual(t, c, 0.0)
		assert.LessOrEqual(t, c, 1.0)
		profileSim, _ := p.ProfileSim.Get()
		postsSim, _ := p.PostsSim.Get()
		bm25, _ := p.BM25.Get()
		lexNorm := 0.0
		if bm25 > 0 {
			lexNorm = bm25 / 2.0 // max raw lexical score in this fixture
		}
		assert.InDelta(t, 0.40*profileSim+0.25*postsSim+0.35*lexNorm, c, 1e-6)
	}

	// Descending by combined score.
	for i := 1; i < len(out); i++ {
		prev, _ := out[i-1].CombinedScore.Get()
		cur, _ := out[i].CombinedScore.Get()
		assert.GreaterOrEqual(t, prev, cur)
	}
}

func TestLexicalSearchUsesOnlyKeywordWeight(t *testing.T) {
	idx := &fakeIndex{
		lexical: map[vectorstore.Facet][]vectorstore.Hit{
			vectorstore.FacetProfile: {
				hit("1", 0, "skincare skincare"),
				hit("3", 0, "skincare"),
			},
		},
	}
	// No embedding client configured: lexical method must still work.
	e := New(idx, nil, threeProfiles())

	out, err := e.Search(context.Background(), Request{Query: "skincare", Method: MethodLexical, Limit: 5})
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "alice", out[0].Username)
	top, _ := out[0].CombinedScore.Get()
	assert.InDelta(t, 1.0, top, 1e-6)
	second, _ := out[1].CombinedScore.Get()
	assert.InDelta(t, 0.5, second, 1e-6)
}

func TestSemanticSearchWithoutEmbeddingFails(t *testing.T) {
	e := New(&fakeIndex{}, nil, threeProfiles())
	_, err := e.Search(context.Background(), Request{Query: "x", Method: MethodSemantic})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrConfigError)
}

func TestSearchTruncatesToLimit(t *testing.T) {
	idx := &fakeIndex{
		lexical: map[vectorstore.Facet][]vectorstore.Hit{
			vectorstore.FacetProfile: {
				hit("1", 0, "skincare skincare skincare"),
				hit("2", 0, "skincare skincare"),
				hit("3", 0, "skincare"),
			},
		},
	}
	e := New(idx, nil, threeProfiles())
	out, err := e.Search(context.Background(), Request{Query: "skincare", Method: MethodLexical, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestFindSimilarRemovesAnchorAndWeightsFacets(t *testing.T) {
	idx := &fakeIndex{
		dense: map[vectorstore.Facet][]vectorstore.Hit{
			vectorstore.FacetProfile: {hit("1", 0, ""), hit("2", 0.2, ""), hit("3", 0.6, "")},
			vectorstore.FacetPosts:   {hit("1", 0, ""), hit("2", 0.8, ""), hit("3", 0.1, "")},
		},
	}
	loader := threeProfiles()
	e := New(idx, fixedEmbedding{}, loader)

	out, err := e.FindSimilar(context.Background(), "alice", 5)
	require.NoError(t, err)

	require.Len(t, out, 2)
	for _, p := range out {
		assert.NotEqual(t, "alice", p.Username, "anchor must be removed")
	}
	// carol: 0.2*0.4 + 0.3*0.9 = 0.35; bob: 0.2*0.8 + 0.3*0.2 = 0.22
	assert.Equal(t, "carol", out[0].Username)
	carol, _ := out[0].CombinedScore.Get()
	assert.InDelta(t, 0.35, carol, 1e-6)
	assert.Equal(t, "bob_warning", out[1].Username)
}

func TestFindSimilarUnknownAccount(t *testing.T) {
	e := New(&fakeIndex{}, fixedEmbedding{}, threeProfiles())
	_, err := e.FindSimilar(context.Background(), "nobody", 5)
	assert.ErrorIs(t, err, apperr.ErrProfileNotFound)
}

func TestLookupByUsername(t *testing.T) {
	e := New(&fakeIndex{}, nil, threeProfiles())

	p, err := e.LookupByUsername(context.Background(), "carol")
	require.NoError(t, err)
	assert.Equal(t, "3", p.LanceID)

	_, err = e.LookupByUsername(context.Background(), "nobody")
	assert.ErrorIs(t, err, apperr.ErrProfileNotFound)
}

func TestWeightsPerMethodSumToOne(t *testing.T) {
	for _, m := range []Method{MethodLexical, MethodSemantic, MethodHybrid} {
		wp, ws, wk := weightsFor(m)
		sum := wp + ws + wk
		assert.InDelta(t, 1.0, sum, 1e-9, string(m))
	}
}
