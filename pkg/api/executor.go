// Package api is the gin-gonic/gin HTTP surface plus the jobs.Executor
// that actually runs each queued request: a thin HTTP layer that enqueues,
// and an executor that dispatches to the search engine, orchestrator,
// refresh worker, or assessor by FuncID.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/creatorindex/creatord/pkg/apperr"
	"github.com/creatorindex/creatord/pkg/domain"
	"github.com/creatorindex/creatord/pkg/fitscore"
	"github.com/creatorindex/creatord/pkg/jobs"
	"github.com/creatorindex/creatord/pkg/pipeline"
	"github.com/creatorindex/creatord/pkg/search"
	"github.com/creatorindex/creatord/pkg/brightdata"
)

// FuncID names, one per queueable POST endpoint.
const (
	FuncSearch             = "search"
	FuncSimilar            = "similar"
	FuncCategory           = "category"
	FuncPipeline           = "pipeline"
	FuncPipelineBrightdata = "pipeline_brightdata"
	FuncPipelineLLM        = "pipeline_llm"
)

// Executor dispatches a queued Job to the right component by FuncID. It
// implements jobs.Executor.
type Executor struct {
	Orchestrator *pipeline.Orchestrator
	Vendor       *brightdata.Worker
	Assessor     *fitscore.Assessor
}

var _ jobs.Executor = (*Executor)(nil)

func (e *Executor) Execute(ctx context.Context, job *jobs.Job, emit jobs.Emitter) jobs.Result {
	result, err := e.dispatch(ctx, job, emit)
	if err != nil {
		return jobs.Result{Status: "failed", Error: err.Error()}
	}
	return jobs.Result{Status: "finished", Payload: result}
}

func (e *Executor) dispatch(ctx context.Context, job *jobs.Job, emit jobs.Emitter) (any, error) {
	switch job.FuncID {
	case FuncSearch:
		var req SearchRequestBody
		if err := json.Unmarshal(job.Payload, &req); err != nil {
			return nil, fmt.Errorf("decode search payload: %w", err)
		}
		return e.runSearch(ctx, req.toDomain(), emit)

	case FuncSimilar:
		var req SimilarRequestBody
		if err := json.Unmarshal(job.Payload, &req); err != nil {
			return nil, fmt.Errorf("decode similar payload: %w", err)
		}
		if e.Orchestrator.SearchEngine == nil {
			return nil, apperr.Config("no search engine is configured")
		}
		emit.Emit(pipeline.StageSearchStarted, domain.StageIO{})
		profiles, err := e.Orchestrator.SearchEngine.FindSimilar(ctx, req.Account, req.Limit)
		if err != nil {
			return nil, err
		}
		emit.Emit(pipeline.StageSearchCompleted, domain.StageIO{Outputs: refsOf(profiles)})
		return profiles, nil

	case FuncCategory:
		var req CategoryRequestBody
		if err := json.Unmarshal(job.Payload, &req); err != nil {
			return nil, fmt.Errorf("decode category payload: %w", err)
		}
		return e.runSearch(ctx, req.toSearchRequest(), emit)

	case FuncPipeline:
		var req PipelineRequestBody
		if err := json.Unmarshal(job.Payload, &req); err != nil {
			return nil, fmt.Errorf("decode pipeline payload: %w", err)
		}
		profiles, debug, err := e.Orchestrator.Run(ctx, req.toDomain(), func(stage string, io domain.StageIO) {
			emit.Emit(stage, io)
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"profiles": profiles, "debug": debug}, nil

	case FuncPipelineBrightdata:
		var req ProfilesOnlyRequestBody
		if err := json.Unmarshal(job.Payload, &req); err != nil {
			return nil, fmt.Errorf("decode brightdata payload: %w", err)
		}
		return e.runBrightdataOnly(ctx, req.Profiles, emit)

	case FuncPipelineLLM:
		var req ProfilesOnlyRequestBody
		if err := json.Unmarshal(job.Payload, &req); err != nil {
			return nil, fmt.Errorf("decode llm payload: %w", err)
		}
		return e.runLLMOnly(ctx, req, emit)

	default:
		return nil, apperr.Invalid("unknown job function %q", job.FuncID)
	}
}

func (e *Executor) runSearch(ctx context.Context, req search.Request, emit jobs.Emitter) (any, error) {
	if e.Orchestrator.SearchEngine == nil {
		return nil, apperr.Config("no search engine is configured")
	}
	emit.Emit(pipeline.StageSearchStarted, domain.StageIO{})
	profiles, err := e.Orchestrator.SearchEngine.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	emit.Emit(pipeline.StageSearchCompleted, domain.StageIO{Outputs: refsOf(profiles)})
	return profiles, nil
}

func refsOf(profiles []*domain.CanonicalProfile) []domain.ProfileRef {
	out := make([]domain.ProfileRef, len(profiles))
	for i, p := range profiles {
		out[i] = p.Ref()
	}
	return out
}

func (e *Executor) runBrightdataOnly(ctx context.Context, profiles []*domain.CanonicalProfile, emit jobs.Emitter) (any, error) {
	if e.Vendor == nil {
		return nil, apperr.Config("no BrightData client is configured")
	}
	handles := make([]domain.Handle, len(profiles))
	for i, p := range profiles {
		handles[i] = domain.Handle{Username: p.Username, Platform: p.Platform}
	}
	emit.Emit(pipeline.StageBrightdataStarted, domain.StageIO{Inputs: refsOf(profiles)})
	batch, err := e.Vendor.Refresh(ctx, handles, func(stage string, data map[string]any) {
		emit.Emit(stage, domain.StageIO{Meta: data})
	})
	if err != nil {
		return nil, err
	}
	byUsername := make(map[string]brightdata.ProfileResult, len(batch.Results))
	for _, r := range batch.Results {
		byUsername[strings.ToLower(r.Handle.Username)] = r
	}
	for _, p := range profiles {
		if r, ok := byUsername[strings.ToLower(p.Username)]; ok && r.Success && r.ProfileImageURL != "" {
			p.ProfileImageURL = r.ProfileImageURL
		}
	}
	emit.Emit(pipeline.StageBrightdataComplete, domain.StageIO{
		Outputs: refsOf(profiles),
		Meta:    map[string]any{"total": batch.Total, "successful": batch.Successful, "failed": batch.Failed},
	})
	return map[string]any{"profiles": profiles, "brightdata_results": batch}, nil
}

func (e *Executor) runLLMOnly(ctx context.Context, req ProfilesOnlyRequestBody, emit jobs.Emitter) (any, error) {
	if e.Assessor == nil {
		return nil, apperr.Config("no LLM provider is configured")
	}
	if strings.TrimSpace(req.BusinessFitQuery) == "" {
		return nil, apperr.Invalid("business_fit_query is required")
	}
	if len(req.Profiles) == 0 {
		emit.Emit(pipeline.StageLLMFitCompleted, domain.StageIO{Meta: map[string]any{"count": 0}})
		return map[string]any{"profiles": req.Profiles, "profile_fit": []fitscore.Result{}}, nil
	}
	emit.Emit(pipeline.StageLLMFitStarted, domain.StageIO{Inputs: refsOf(req.Profiles)})
	results := e.Assessor.ScoreAll(ctx, req.BusinessFitQuery, req.Profiles, fitscore.Options{
		MaxPosts: req.MaxPosts, Model: req.Model, Verbosity: req.Verbosity, Concurrency: req.Concurrency,
	})
	byAccount := make(map[string]fitscore.Result, len(results))
	for _, r := range results {
		byAccount[r.Account] = r
	}
	for _, p := range req.Profiles {
		if r, ok := byAccount[p.Username]; ok {
			p.FitScore = r.Score
			p.FitRationale = r.Rationale
			p.FitError = r.Error
		}
	}
	emit.Emit(pipeline.StageLLMFitCompleted, domain.StageIO{Outputs: refsOf(req.Profiles), Meta: map[string]any{"count": len(results)}})
	return map[string]any{"profiles": req.Profiles, "profile_fit": results}, nil
}
