// Package pipeline composes search, rerank, vendor enrichment, and
// fit-scoring into one orchestrated run with per-stage progress events and
// optional-stage gating: SEARCH is unconditional, RERANK runs only when
// requested AND a client is configured, BRIGHTDATA runs only when
// requested, a BRIGHTDATA_FILTERED event is always emitted before the LLM
// gate, and LLM_FIT requires business_fit_query and short-circuits on
// empty input.
package pipeline

import (
	"context"
	"strings"

	"github.com/creatorindex/creatord/pkg/apperr"
	"github.com/creatorindex/creatord/pkg/domain"
	"github.com/creatorindex/creatord/pkg/fitscore"
	"github.com/creatorindex/creatord/pkg/rerank"
	"github.com/creatorindex/creatord/pkg/search"
	"github.com/creatorindex/creatord/pkg/brightdata"
)

// Stage event names, canonical and uppercase.
const (
	StageSearch             = "SEARCH"
	StageSearchStarted      = "SEARCH_STARTED"
	StageSearchCompleted    = "SEARCH_COMPLETED"
	StageRerankStarted      = "RERANK_STARTED"
	StageRerankCompleted    = "RERANK_COMPLETED"
	StageRerankFailed       = "RERANK_FAILED"
	StageRerankSkipped      = "RERANK_SKIPPED"
	StageBrightdataStarted  = "BRIGHTDATA_STARTED"
	StageBrightdataComplete = "BRIGHTDATA_COMPLETED"
	StageBrightdataFiltered = "BRIGHTDATA_FILTERED"
	StageLLMFitStarted      = "LLM_FIT_STARTED"
	StageLLMFitProgress     = "LLM_FIT_PROGRESS"
	StageLLMFitCompleted    = "LLM_FIT_COMPLETED"
)

// RerankMode selects which document fields feed the reranker.
type RerankMode string

const (
	RerankBio       RerankMode = "bio"
	RerankPosts     RerankMode = "posts"
	RerankBioPosts  RerankMode = "bio+posts"
)

// Request is the full pipeline request.
type Request struct {
	Search search.Request

	RunRerank   bool
	RerankTopK  int
	RerankMode  RerankMode

	RunBrightdata bool

	RunLLM           bool
	BusinessFitQuery string
	MaxPosts         int
	Model            string
	Verbosity        string
	Concurrency      int

	MaxProfiles int
}

// Debug carries the orchestrator's secondary outputs for introspection.
type Debug struct {
	BrightdataResults *brightdata.BatchResult
	ProfileFit        []fitscore.Result
}

// ProgressFunc receives one stage event with its StageIO envelope.
type ProgressFunc func(stage string, io domain.StageIO)

// Searcher is the slice of the search facade the orchestrator and the
// profiles-only executors need. *search.Engine satisfies it.
type Searcher interface {
	Search(ctx context.Context, req search.Request) ([]*domain.CanonicalProfile, error)
	FindSimilar(ctx context.Context, account string, limit int) ([]*domain.CanonicalProfile, error)
}

// Orchestrator wires the search engine, reranker, vendor refresh worker,
// and fit-scoring assessor together.
type Orchestrator struct {
	SearchEngine Searcher
	Reranker     *rerank.Client // nil if no rerank client is configured
	Vendor       *brightdata.Worker
	Assessor     *fitscore.Assessor
}

// Run executes the staged pipeline for req, invoking progress for every
// stage transition, and returns the final profile list plus debug outputs.
func (o *Orchestrator) Run(ctx context.Context, req Request, progress ProgressFunc) ([]*domain.CanonicalProfile, Debug, error) {
	if progress == nil {
		progress = func(string, domain.StageIO) {}
	}
	var debug Debug
	if o.SearchEngine == nil {
		return nil, debug, apperr.Config("no search engine is configured")
	}

	// 1. SEARCH — unconditional.
	progress(StageSearchStarted, domain.StageIO{Inputs: nil})
	profiles, err := o.SearchEngine.Search(ctx, req.Search)
	if err != nil {
		return nil, debug, err
	}
	if req.MaxProfiles > 0 && len(profiles) > req.MaxProfiles {
		profiles = profiles[:req.MaxProfiles]
	}
	progress(StageSearchCompleted, domain.StageIO{Outputs: refsOf(profiles)})

	// 2. RERANK — conditional on run_rerank AND a configured client.
	if req.RunRerank {
		if o.Reranker == nil {
			progress(StageRerankSkipped, domain.StageIO{Meta: map[string]any{"reason": "no rerank client configured"}})
		} else {
			progress(StageRerankStarted, domain.StageIO{Inputs: refsOf(profiles)})
			reranked, err := o.rerank(ctx, req, profiles)
			if err != nil {
				progress(StageRerankFailed, domain.StageIO{Meta: map[string]any{"error": err.Error()}})
			} else {
				profiles = reranked
				progress(StageRerankCompleted, domain.StageIO{Outputs: refsOf(profiles)})
			}
		}
	}

	// 3. BRIGHTDATA — conditional on run_brightdata.
	successKeys := map[string]bool{}
	ranBrightdata := false
	if req.RunBrightdata {
		if o.Vendor == nil {
			return nil, debug, apperr.Config("vendor refresh requested but no BrightData client is configured")
		}
		ranBrightdata = true
		progress(StageBrightdataStarted, domain.StageIO{Inputs: refsOf(profiles)})
		batch, err := o.enrich(ctx, profiles, progress)
		if err != nil {
			return nil, debug, err
		}
		debug.BrightdataResults = batch
		for _, r := range batch.Results {
			if r.Success {
				key := domain.NormalizedHandleKey(string(r.Handle.Platform), r.Handle.Username, "")
				successKeys[key] = true
			}
		}
		progress(StageBrightdataComplete, domain.StageIO{Outputs: refsOf(profiles), Meta: map[string]any{
			"total": batch.Total, "successful": batch.Successful, "failed": batch.Failed,
		}})
	}

	// 4. Post-BrightData filter — always emitted, even when BrightData did
	// not run (survivors == len(profiles), dropped == 0).
	survivors := profiles
	dropped := 0
	if ranBrightdata {
		survivors = make([]*domain.CanonicalProfile, 0, len(profiles))
		for _, p := range profiles {
			if successKeys[p.NormalizedHandleKey()] {
				survivors = append(survivors, p)
			} else {
				dropped++
			}
		}
	}
	progress(StageBrightdataFiltered, domain.StageIO{
		Outputs: refsOf(survivors),
		Meta:    map[string]any{"survivors": len(survivors), "dropped": dropped},
	})
	profiles = survivors

	// 5. LLM_FIT — conditional on run_llm; requires business_fit_query.
	if req.RunLLM {
		if o.Assessor == nil {
			return nil, debug, apperr.Config("fit scoring requested but no LLM provider is configured")
		}
		if strings.TrimSpace(req.BusinessFitQuery) == "" {
			return nil, debug, apperr.Invalid("business_fit_query is required when run_llm is set")
		}
		if len(profiles) == 0 {
			progress(StageLLMFitCompleted, domain.StageIO{Meta: map[string]any{"count": 0}})
		} else {
			progress(StageLLMFitStarted, domain.StageIO{Inputs: refsOf(profiles)})
			results := o.Assessor.ScoreAll(ctx, req.BusinessFitQuery, profiles, fitscore.Options{
				MaxPosts: req.MaxPosts, Model: req.Model, Verbosity: req.Verbosity, Concurrency: req.Concurrency,
			})
			debug.ProfileFit = results
			byAccount := make(map[string]fitscore.Result, len(results))
			for _, r := range results {
				byAccount[r.Account] = r
			}
			for _, p := range profiles {
				r, ok := byAccount[p.Username]
				if !ok {
					continue
				}
				p.FitScore = r.Score
				p.FitRationale = r.Rationale
				p.FitError = r.Error
			}
			progress(StageLLMFitProgress, domain.StageIO{Meta: map[string]any{"scored": len(results)}})
			progress(StageLLMFitCompleted, domain.StageIO{Outputs: refsOf(profiles), Meta: map[string]any{"count": len(results)}})
		}
	}

	return profiles, debug, nil
}

func (o *Orchestrator) rerank(ctx context.Context, req Request, profiles []*domain.CanonicalProfile) ([]*domain.CanonicalProfile, error) {
	docs := make([]string, len(profiles))
	for i, p := range profiles {
		docs[i] = buildDocument(p, req.RerankMode)
	}
	topK := req.RerankTopK
	if topK <= 0 || topK > len(profiles) {
		topK = len(profiles)
	}
	query := req.Search.Query
	if strings.TrimSpace(query) == "" {
		query = req.BusinessFitQuery
	}
	pairs, err := o.Reranker.Rerank(ctx, query, docs, topK)
	if err != nil {
		return nil, err
	}

	ranked := make([]*domain.CanonicalProfile, 0, len(profiles))
	used := make(map[int]bool, len(pairs))
	for _, pair := range pairs {
		p := profiles[pair.Index]
		p.RerankScore = domain.Some(pair.Score)
		ranked = append(ranked, p)
		used[pair.Index] = true
	}
	for i, p := range profiles {
		if !used[i] {
			ranked = append(ranked, p)
		}
	}
	return ranked, nil
}

func buildDocument(p *domain.CanonicalProfile, mode RerankMode) string {
	var b strings.Builder
	if mode != RerankPosts {
		b.WriteString(p.Biography)
	}
	if mode != RerankBio {
		for _, post := range p.Posts {
			b.WriteString(" ")
			b.WriteString(post.Caption)
		}
	}
	return b.String()
}

func (o *Orchestrator) enrich(ctx context.Context, profiles []*domain.CanonicalProfile, progress ProgressFunc) (*brightdata.BatchResult, error) {
	handles := make([]domain.Handle, len(profiles))
	for i, p := range profiles {
		handles[i] = domain.Handle{Username: p.Username, Platform: p.Platform}
	}
	batch, err := o.Vendor.Refresh(ctx, handles, func(stage string, data map[string]any) {
		progress(stage, domain.StageIO{Meta: data})
	})
	if err != nil {
		return nil, err
	}
	byUsername := make(map[string]brightdata.ProfileResult, len(batch.Results))
	for _, r := range batch.Results {
		byUsername[strings.ToLower(r.Handle.Username)] = r
	}
	for _, p := range profiles {
		r, ok := byUsername[strings.ToLower(p.Username)]
		if !ok || !r.Success {
			continue
		}
		if r.ProfileImageURL != "" {
			p.ProfileImageURL = r.ProfileImageURL
		}
	}
	return batch, nil
}

func refsOf(profiles []*domain.CanonicalProfile) []domain.ProfileRef {
	out := make([]domain.ProfileRef, len(profiles))
	for i, p := range profiles {
		out[i] = p.Ref()
	}
	return out
}
