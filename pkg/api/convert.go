package api

import (
	"github.com/creatorindex/creatord/pkg/pipeline"
	"github.com/creatorindex/creatord/pkg/search"
)

func (b FiltersBody) toDomain() search.Filters {
	return search.Filters{
		MinFollowers:      b.MinFollowers,
		MaxFollowers:      b.MaxFollowers,
		MinEngagement:     b.MinEngagement,
		MaxEngagement:     b.MaxEngagement,
		LocationSubstring: b.LocationSubstring,
		CategorySubstring: b.CategorySubstring,
		IsVerified:        b.IsVerified,
		IsBusiness:        b.IsBusiness,
	}
}

func (b SearchRequestBody) toDomain() search.Request {
	return search.Request{
		Query:        b.Query,
		Method:       search.Method(b.Method),
		Limit:        b.Limit,
		Filters:      b.Filters.toDomain(),
		LexicalScope: b.LexicalScope,
	}
}

func (b CategoryRequestBody) toSearchRequest() search.Request {
	filters := b.Filters.toDomain()
	filters.CategorySubstring = b.Category
	return search.Request{
		Query:        b.Category,
		Method:       search.Method(b.Method),
		Limit:        b.Limit,
		Filters:      filters,
		LexicalScope: "bio_posts",
	}
}

func (b PipelineRequestBody) toDomain() pipeline.Request {
	return pipeline.Request{
		Search: b.Search.toDomain(),

		RunRerank:  b.RunRerank,
		RerankTopK: b.RerankTopK,
		RerankMode: pipeline.RerankMode(b.RerankMode),

		RunBrightdata: b.RunBrightdata,

		RunLLM:           b.RunLLM,
		BusinessFitQuery: b.BusinessFitQuery,
		MaxPosts:         b.MaxPosts,
		Model:            b.Model,
		Verbosity:        b.Verbosity,
		Concurrency:      b.Concurrency,

		MaxProfiles: b.MaxProfiles,
	}
}
