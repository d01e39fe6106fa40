// Package vectorstore wraps github.com/qdrant/go-client for the search
// facade: cosine-distance k-NN search plus payload filters, maintained as
// two collections (profile facet, posts facet) so each profile carries two
// logical rows, each with its own dense vector.
package vectorstore

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Store owns a gRPC connection to Qdrant and the two facet collections.
type Store struct {
	conn              *grpc.ClientConn
	points            pb.PointsClient
	collections       pb.CollectionsClient
	profileCollection string
	postsCollection   string
}

// New dials Qdrant at addr and prepares a Store scoped to the given
// namespace's profile/posts collections.
func New(addr, namespace string) (*Store, error) {
	return NewWithCollections(addr, namespace+"_profile", namespace+"_posts")
}

// NewWithCollections is New with explicitly named collections, for
// deployments whose collection names do not follow the namespace
// convention.
func NewWithCollections(addr, profileCollection, postsCollection string) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("vectorstore: dial qdrant %s: %w", addr, err)
	}
	return &Store{
		conn:              conn,
		points:            pb.NewPointsClient(conn),
		collections:       pb.NewCollectionsClient(conn),
		profileCollection: profileCollection,
		postsCollection:   postsCollection,
	}, nil
}

func (s *Store) Close() error { return s.conn.Close() }

// Healthy reports whether Qdrant answers a trivial ListCollections call,
// used by the HTTP health endpoint to surface dataset reachability.
func (s *Store) Healthy(ctx context.Context) bool {
	_, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	return err == nil
}

// Collections returns the profile and posts collection names this Store is
// scoped to, so callers (the health endpoint) can report them without
// duplicating the namespace convention.
func (s *Store) Collections() (profile, posts string) {
	return s.profileCollection, s.postsCollection
}

// EnsureCollections creates both facet collections if missing.
func (s *Store) EnsureCollections(ctx context.Context, dims int) error {
	for _, name := range []string{s.profileCollection, s.postsCollection} {
		if err := s.ensureCollection(ctx, name, dims); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ensureCollection(ctx context.Context, name string, dims int) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("vectorstore: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == name {
			return nil
		}
	}
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{Size: uint64(dims), Distance: pb.Distance_Cosine},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorstore: create collection %s: %w", name, err)
	}
	return nil
}

// Facet selects which collection an operation targets.
type Facet string

const (
	FacetProfile Facet = "profile"
	FacetPosts   Facet = "posts"
)

func (s *Store) collectionFor(f Facet) string {
	if f == FacetPosts {
		return s.postsCollection
	}
	return s.profileCollection
}

// Record is one point to upsert.
type Record struct {
	ID        string
	Embedding []float32
	Payload   map[string]any
}

func (s *Store) Upsert(ctx context.Context, facet Facet, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		payload := make(map[string]*pb.Value, len(r.Payload))
		for k, v := range r.Payload {
			payload[k] = toQdrantValue(v)
		}
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: r.Embedding}}},
			Payload: payload,
		}
	}
	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{CollectionName: s.collectionFor(facet), Wait: &wait, Points: points})
	if err != nil {
		return fmt.Errorf("vectorstore: upsert %d points into %s: %w", len(records), facet, err)
	}
	return nil
}

func toQdrantValue(v any) *pb.Value {
	switch t := v.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: t}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(t)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: t}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: t}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: t}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(t)}}
	}
}

// Filter is one predicate over a payload field.
type Filter struct {
	Key       string
	Equals    any
	Substring string
	MinValue  *float64
	MaxValue  *float64
}

// Hit is one search result.
type Hit struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// Search performs cosine k-NN search against one facet with optional
// payload filters.
func (s *Store) Search(ctx context.Context, facet Facet, embedding []float32, topK int, filters []Filter) ([]Hit, error) {
	req := &pb.SearchPoints{
		CollectionName: s.collectionFor(facet),
		Vector:         embedding,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if must := buildConditions(filters); len(must) > 0 {
		req.Filter = &pb.Filter{Must: must}
	}
	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search %s: %w", facet, err)
	}
	out := make([]Hit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		payload := make(map[string]any, len(r.GetPayload()))
		for k, v := range r.GetPayload() {
			payload[k] = fromQdrantValue(v)
		}
		out[i] = Hit{ID: r.GetId().GetUuid(), Score: r.GetScore(), Payload: payload}
	}
	return out, nil
}

// LexicalSearch scrolls a facet for points whose full-text "text" payload
// matches query, returning up to topK hits. Qdrant does not expose a
// BM25-style score through this API, so hits come back unscored and the
// caller derives a lexical score from the returned payload text.
func (s *Store) LexicalSearch(ctx context.Context, facet Facet, query string, topK int, filters []Filter) ([]Hit, error) {
	if topK <= 0 {
		topK = 10
	}
	conds := buildConditions(append(append([]Filter(nil), filters...), Filter{Key: "text", Substring: query}))
	req := &pb.ScrollPoints{
		CollectionName: s.collectionFor(facet),
		Limit:          ptrUint32(uint32(topK)),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		Filter:         &pb.Filter{Must: conds},
	}
	resp, err := s.points.Scroll(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: lexical scroll %s: %w", facet, err)
	}
	out := make([]Hit, len(resp.GetResult()))
	for i, p := range resp.GetResult() {
		payload := make(map[string]any, len(p.GetPayload()))
		for k, v := range p.GetPayload() {
			payload[k] = fromQdrantValue(v)
		}
		out[i] = Hit{ID: p.GetId().GetUuid(), Payload: payload}
	}
	return out, nil
}

// Fetch scrolls a facet for the first point whose payload matches every
// filter exactly (no vector involved), used to resolve a profile by
// lance_id/username/profile_url rather than by similarity.
func (s *Store) Fetch(ctx context.Context, facet Facet, filters []Filter) (Hit, bool, error) {
	req := &pb.ScrollPoints{
		CollectionName: s.collectionFor(facet),
		Limit:          ptrUint32(1),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if must := buildConditions(filters); len(must) > 0 {
		req.Filter = &pb.Filter{Must: must}
	}
	resp, err := s.points.Scroll(ctx, req)
	if err != nil {
		return Hit{}, false, fmt.Errorf("vectorstore: scroll %s: %w", facet, err)
	}
	points := resp.GetResult()
	if len(points) == 0 {
		return Hit{}, false, nil
	}
	p := points[0]
	payload := make(map[string]any, len(p.GetPayload()))
	for k, v := range p.GetPayload() {
		payload[k] = fromQdrantValue(v)
	}
	return Hit{ID: p.GetId().GetUuid(), Payload: payload}, true, nil
}

func ptrUint32(v uint32) *uint32 { return &v }

func fromQdrantValue(v *pb.Value) any {
	switch k := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return k.StringValue
	case *pb.Value_IntegerValue:
		return k.IntegerValue
	case *pb.Value_DoubleValue:
		return k.DoubleValue
	case *pb.Value_BoolValue:
		return k.BoolValue
	default:
		return nil
	}
}

func buildConditions(filters []Filter) []*pb.Condition {
	var must []*pb.Condition
	for _, f := range filters {
		switch {
		case f.Equals != nil:
			must = append(must, fieldMatch(f.Key, f.Equals))
		case f.Substring != "":
			must = append(must, &pb.Condition{ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
				Key: f.Key, Match: &pb.Match{MatchValue: &pb.Match_Text{Text: f.Substring}},
			}}})
		case f.MinValue != nil || f.MaxValue != nil:
			r := &pb.Range{}
			if f.MinValue != nil {
				r.Gte = f.MinValue
			}
			if f.MaxValue != nil {
				r.Lte = f.MaxValue
			}
			must = append(must, &pb.Condition{ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
				Key: f.Key, Range: r,
			}}})
		}
	}
	return must
}

func fieldMatch(key string, value any) *pb.Condition {
	switch v := value.(type) {
	case bool:
		return &pb.Condition{ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
			Key: key, Match: &pb.Match{MatchValue: &pb.Match_Boolean{Boolean: v}},
		}}}
	default:
		return &pb.Condition{ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
			Key: key, Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: fmt.Sprint(v)}},
		}}}
	}
}
