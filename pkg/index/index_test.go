package index

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorindex/creatord/pkg/apperr"
	"github.com/creatorindex/creatord/pkg/domain"
	"github.com/creatorindex/creatord/pkg/vectorstore"
)

// memStore keeps upserted records per facet and answers Fetch by exact
// payload equality.
type memStore struct {
	records map[vectorstore.Facet][]vectorstore.Record
}

func newMemStore() *memStore {
	return &memStore{records: map[vectorstore.Facet][]vectorstore.Record{}}
}

func (m *memStore) Upsert(_ context.Context, facet vectorstore.Facet, records []vectorstore.Record) error {
	m.records[facet] = append(m.records[facet], records...)
	return nil
}

func (m *memStore) Fetch(_ context.Context, facet vectorstore.Facet, filters []vectorstore.Filter) (vectorstore.Hit, bool, error) {
	for _, r := range m.records[facet] {
		match := true
		for _, f := range filters {
			if r.Payload[f.Key] != f.Equals {
				match = false
				break
			}
		}
		if match {
			return vectorstore.Hit{ID: r.ID, Payload: r.Payload}, true, nil
		}
	}
	return vectorstore.Hit{}, false, nil
}

type countingEmbedding struct {
	calls int
	err   error
}

func (c *countingEmbedding) Embed(context.Context, string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []float32{0.5, 0.5}, nil
}

func sampleProfile() *domain.CanonicalProfile {
	return &domain.CanonicalProfile{
		LanceID:   "ds_000001",
		Platform:  domain.PlatformInstagram,
		Username:  "Alice",
		Biography: "skincare reviews",
		ProfileURL: "https://www.instagram.com/alice",
		Followers: domain.Some[int64](5000),
		Posts: []domain.PostRecord{
			{Caption: "morning glow", Hashtags: []string{"skincare"}},
		},
	}
}

func TestUpsertWritesBothFacets(t *testing.T) {
	store := newMemStore()
	emb := &countingEmbedding{}
	ix := New(store, emb)

	written, err := ix.Upsert(context.Background(), []*domain.CanonicalProfile{sampleProfile()})
	require.NoError(t, err)
	assert.Equal(t, 1, written)
	assert.Equal(t, 2, emb.calls, "one embedding per facet")
	assert.Len(t, store.records[vectorstore.FacetProfile], 1)
	assert.Len(t, store.records[vectorstore.FacetPosts], 1)

	payload := store.records[vectorstore.FacetProfile][0].Payload
	assert.Equal(t, "ds_000001", payload["lance_id"])
	assert.Equal(t, "alice", payload["username"], "username key is lowercased")
	assert.Equal(t, float64(5000), payload["followers"])
	assert.Contains(t, payload["text"], "skincare reviews")
	assert.Contains(t, payload["text"], "morning glow")
}

func TestUpsertSkipsProfilesWhoseEmbeddingFails(t *testing.T) {
	store := newMemStore()
	ix := New(store, &countingEmbedding{err: errors.New("embedding down")})

	written, err := ix.Upsert(context.Background(), []*domain.CanonicalProfile{sampleProfile()})
	require.NoError(t, err)
	assert.Zero(t, written)
	assert.Empty(t, store.records[vectorstore.FacetProfile])
}

func TestLoadByLanceIDRoundTrip(t *testing.T) {
	store := newMemStore()
	ix := New(store, &countingEmbedding{})
	_, err := ix.Upsert(context.Background(), []*domain.CanonicalProfile{sampleProfile()})
	require.NoError(t, err)

	p, err := ix.LoadByLanceID(context.Background(), "ds_000001")
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.Username)
	assert.Equal(t, "skincare reviews", p.Biography)
	followers, ok := p.Followers.Get()
	require.True(t, ok)
	assert.Equal(t, int64(5000), followers)
}

func TestLoadByUsernameIsCaseInsensitive(t *testing.T) {
	store := newMemStore()
	ix := New(store, &countingEmbedding{})
	_, err := ix.Upsert(context.Background(), []*domain.CanonicalProfile{sampleProfile()})
	require.NoError(t, err)

	p, err := ix.LoadByUsername(context.Background(), "ALICE")
	require.NoError(t, err)
	assert.Equal(t, "ds_000001", p.LanceID)
}

func TestLoadByProfileURLNormalizesVariants(t *testing.T) {
	store := newMemStore()
	ix := New(store, &countingEmbedding{})
	_, err := ix.Upsert(context.Background(), []*domain.CanonicalProfile{sampleProfile()})
	require.NoError(t, err)

	for _, u := range []string{
		"https://www.instagram.com/alice",
		"https://instagram.com/alice/",
		"http://www.instagram.com/alice",
	} {
		p, err := ix.LoadByProfileURL(context.Background(), u)
		require.NoError(t, err, u)
		assert.Equal(t, "ds_000001", p.LanceID)
	}
}

func TestLoadMissReturnsNotFound(t *testing.T) {
	ix := New(newMemStore(), &countingEmbedding{})
	_, err := ix.LoadByLanceID(context.Background(), "nope")
	assert.ErrorIs(t, err, apperr.ErrProfileNotFound)
}
