// Package index turns a CanonicalProfile into its two facet records (a
// bio-centric "profile" row and an aggregated "posts" row), writes them to
// the vector store, and implements search.ProfileLoader by scrolling the
// same collections back out by lance_id/username/profile_url.
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/creatorindex/creatord/pkg/apperr"
	"github.com/creatorindex/creatord/pkg/domain"
	"github.com/creatorindex/creatord/pkg/vectorstore"
)

// EmbeddingClient embeds text into a unit-norm float32 vector; the same
// narrow contract search.EmbeddingClient declares, so a single providers.EmbeddingClient
// instance can satisfy both.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// PointStore is the slice of the vector store the indexer needs: facet
// upserts plus exact payload lookup. *vectorstore.Store satisfies it.
type PointStore interface {
	Upsert(ctx context.Context, facet vectorstore.Facet, records []vectorstore.Record) error
	Fetch(ctx context.Context, facet vectorstore.Facet, filters []vectorstore.Filter) (vectorstore.Hit, bool, error)
}

// Indexer turns CanonicalProfiles into vector-store rows and back. It is the
// only component that knows the payload schema shared by both facets.
type Indexer struct {
	store     PointStore
	embedding EmbeddingClient
}

func New(store PointStore, embedding EmbeddingClient) *Indexer {
	return &Indexer{store: store, embedding: embedding}
}

// Upsert embeds and writes both facets for every profile. Profiles whose
// embedding call fails are skipped (logged by the caller via the returned
// count), matching the ingestion pipeline's "never let one bad row abort
// the batch" posture.
func (ix *Indexer) Upsert(ctx context.Context, profiles []*domain.CanonicalProfile) (int, error) {
	written := 0
	for _, p := range profiles {
		if err := ix.upsertOne(ctx, p); err != nil {
			continue
		}
		written++
	}
	return written, nil
}

func (ix *Indexer) upsertOne(ctx context.Context, p *domain.CanonicalProfile) error {
	payload, err := profilePayload(p)
	if err != nil {
		return err
	}

	profileVec, err := ix.embedding.Embed(ctx, profileText(p))
	if err != nil {
		return fmt.Errorf("embed profile facet for %s: %w", p.Username, err)
	}
	if err := ix.store.Upsert(ctx, vectorstore.FacetProfile, []vectorstore.Record{
		{ID: p.LanceID, Embedding: profileVec, Payload: payload},
	}); err != nil {
		return err
	}

	postsVec, err := ix.embedding.Embed(ctx, postsText(p))
	if err != nil {
		return fmt.Errorf("embed posts facet for %s: %w", p.Username, err)
	}
	return ix.store.Upsert(ctx, vectorstore.FacetPosts, []vectorstore.Record{
		{ID: p.LanceID, Embedding: postsVec, Payload: payload},
	})
}

// profilePayload is what both facets store: enough scalar fields to serve
// as lexical/filter predicates, plus the full
// profile serialized once so LoadByLanceID/LoadByUsername/LoadByProfileURL
// can reconstruct it without a second round-trip to any other store.
func profilePayload(p *domain.CanonicalProfile) (map[string]any, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal profile %s: %w", p.LanceID, err)
	}
	payload := map[string]any{
		"lance_id":    p.LanceID,
		"username":    strings.ToLower(p.Username),
		"profile_url": normalizeURLKey(p.ProfileURL),
		"text":        profileText(p) + " " + postsText(p),
		"profile":     string(raw),
	}
	if v, ok := p.Followers.Get(); ok {
		payload["followers"] = float64(v)
	}
	if v, ok := p.Engagement.Get(); ok {
		payload["engagement_rate"] = v
	}
	if p.Location != "" {
		payload["location"] = strings.ToLower(p.Location)
	}
	if p.Occupation != "" {
		payload["category"] = strings.ToLower(p.Occupation)
	}
	if p.IsVerified != domain.Unknown {
		payload["is_verified"] = p.IsVerified == domain.True
	}
	if p.IsCommerce != domain.Unknown {
		payload["is_commerce_user"] = p.IsCommerce == domain.True
	}
	return payload, nil
}

func profileText(p *domain.CanonicalProfile) string {
	return p.DisplayName + " " + p.Biography
}

func postsText(p *domain.CanonicalProfile) string {
	var b strings.Builder
	for _, post := range p.Posts {
		b.WriteString(post.Caption)
		b.WriteString(" ")
		for _, h := range post.Hashtags {
			b.WriteString("#")
			b.WriteString(h)
			b.WriteString(" ")
		}
	}
	return b.String()
}

func normalizeURLKey(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	u = strings.TrimSuffix(u, "/")
	u = strings.TrimPrefix(u, "https://www.")
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://www.")
	u = strings.TrimPrefix(u, "http://")
	return u
}

func (ix *Indexer) loadBy(ctx context.Context, key string, value string) (*domain.CanonicalProfile, error) {
	hit, ok, err := ix.store.Fetch(ctx, vectorstore.FacetProfile, []vectorstore.Filter{{Key: key, Equals: value}})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("%s %q not found", key, value)
	}
	raw, _ := hit.Payload["profile"].(string)
	if raw == "" {
		return nil, apperr.NotFound("%s %q has no stored profile payload", key, value)
	}
	var p domain.CanonicalProfile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode stored profile for %s %q: %w", key, value, err)
	}
	return &p, nil
}

// LoadByLanceID satisfies search.ProfileLoader.
func (ix *Indexer) LoadByLanceID(ctx context.Context, lanceID string) (*domain.CanonicalProfile, error) {
	return ix.loadBy(ctx, "lance_id", lanceID)
}

// LoadByUsername satisfies search.ProfileLoader.
func (ix *Indexer) LoadByUsername(ctx context.Context, username string) (*domain.CanonicalProfile, error) {
	return ix.loadBy(ctx, "username", strings.ToLower(username))
}

// LoadByProfileURL satisfies search.ProfileLoader.
func (ix *Indexer) LoadByProfileURL(ctx context.Context, url string) (*domain.CanonicalProfile, error) {
	return ix.loadBy(ctx, "profile_url", normalizeURLKey(url))
}
