package api

import "github.com/creatorindex/creatord/pkg/domain"

// SearchRequestBody is the JSON body of POST /search/, mapped 1:1 onto
// search.Request.
type SearchRequestBody struct {
	Query        string         `json:"query"`
	Method       string         `json:"method"`
	Limit        int            `json:"limit"`
	Filters      FiltersBody    `json:"filters"`
	LexicalScope string         `json:"lexical_scope"`
}

// FiltersBody mirrors search.Filters with JSON-friendly pointer fields.
type FiltersBody struct {
	MinFollowers      *int64   `json:"min_followers,omitempty"`
	MaxFollowers      *int64   `json:"max_followers,omitempty"`
	MinEngagement     *float64 `json:"min_engagement,omitempty"`
	MaxEngagement     *float64 `json:"max_engagement,omitempty"`
	LocationSubstring string   `json:"location_substring,omitempty"`
	CategorySubstring string   `json:"category_substring,omitempty"`
	IsVerified        *bool    `json:"is_verified,omitempty"`
	IsBusiness        *bool    `json:"is_business,omitempty"`
}

// SimilarRequestBody is the JSON body of POST /search/similar.
type SimilarRequestBody struct {
	Account string `json:"account"`
	Limit   int    `json:"limit"`
}

// CategoryRequestBody is the JSON body of POST /search/category: a search
// request scoped to a category substring filter (category is just another
// substring filter, not a distinct search mode).
type CategoryRequestBody struct {
	Category string      `json:"category"`
	Limit    int         `json:"limit"`
	Method   string      `json:"method"`
	Filters  FiltersBody `json:"filters"`
}

// PipelineRequestBody is the JSON body of POST /search/pipeline.
type PipelineRequestBody struct {
	Search SearchRequestBody `json:"search"`

	RunRerank  bool   `json:"run_rerank"`
	RerankTopK int    `json:"rerank_top_k"`
	RerankMode string `json:"rerank_mode"`

	RunBrightdata bool `json:"run_brightdata"`

	RunLLM           bool   `json:"run_llm"`
	BusinessFitQuery string `json:"business_fit_query"`
	MaxPosts         int    `json:"max_posts"`
	Model            string `json:"model"`
	Verbosity        string `json:"verbosity"`
	Concurrency      int    `json:"concurrency"`

	MaxProfiles int `json:"max_profiles"`
}

// ProfilesOnlyRequestBody is the JSON body of POST /search/pipeline/brightdata
// and POST /search/pipeline/llm: both act on a caller-supplied profile list
// rather than running SEARCH first.
type ProfilesOnlyRequestBody struct {
	Profiles []*domain.CanonicalProfile `json:"profiles"`

	// Only read by /search/pipeline/llm.
	BusinessFitQuery string `json:"business_fit_query"`
	MaxPosts         int    `json:"max_posts"`
	Model            string `json:"model"`
	Verbosity        string `json:"verbosity"`
	Concurrency      int    `json:"concurrency"`
}
