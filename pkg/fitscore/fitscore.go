// Package fitscore scores profiles against a business brief: for each
// profile, build a compact prompt from bio + recent posts, call the LLM
// with bounded concurrency, and parse a numeric score + rationale. The
// assessor never raises: every input profile yields exactly one Result,
// in input order, errors captured per-item rather than failing the stage.
package fitscore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/creatorindex/creatord/pkg/apperr"
	"github.com/creatorindex/creatord/pkg/domain"
	"github.com/creatorindex/creatord/pkg/fnkit"
)

// LLMClient is the external collaborator: prompt in, raw text out.
type LLMClient interface {
	Complete(ctx context.Context, model string, prompt string) (string, error)
}

// Options configures one scoring run.
type Options struct {
	MaxPosts    int
	Model       string
	Verbosity   string
	Concurrency int
	MaxRetries  int
}

const hardConcurrencyCap = 64

func (o Options) withDefaults() Options {
	if o.MaxPosts <= 0 {
		o.MaxPosts = 5
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 8
	}
	if o.Concurrency > hardConcurrencyCap {
		o.Concurrency = hardConcurrencyCap
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	return o
}

// Result is one profile's scoring outcome. Score is absent iff Error is set.
type Result struct {
	Account   string
	Score     domain.Optional[int]
	Rationale string
	Error     string
}

// Assessor scores profiles against a business brief.
type Assessor struct {
	client LLMClient
}

func New(client LLMClient) *Assessor { return &Assessor{client: client} }

// ScoreAll issues one bounded-concurrency LLM call per profile and returns
// one Result per input, in input order.
func (a *Assessor) ScoreAll(ctx context.Context, businessBrief string, profiles []*domain.CanonicalProfile, opts Options) []Result {
	opts = opts.withDefaults()
	if len(profiles) == 0 {
		return nil
	}

	type indexed struct {
		i int
		p *domain.CanonicalProfile
	}
	items := make([]indexed, len(profiles))
	for i, p := range profiles {
		items[i] = indexed{i: i, p: p}
	}

	out := make([]Result, len(profiles))
	fnkit.ParEach(ctx, items, opts.Concurrency, func(ctx context.Context, it indexed) {
		out[it.i] = a.scoreOne(ctx, businessBrief, it.p, opts)
	})
	return out
}

func (a *Assessor) scoreOne(ctx context.Context, businessBrief string, p *domain.CanonicalProfile, opts Options) Result {
	prompt := buildPrompt(businessBrief, p, opts.MaxPosts)

	text, err := fnkit.Do(ctx, opts.MaxRetries, isRetriable, func(ctx context.Context) (string, error) {
		return a.client.Complete(ctx, opts.Model, prompt)
	})
	if err != nil {
		return Result{Account: p.Username, Error: err.Error()}
	}

	score, rationale, ok := parseResponse(text)
	if !ok {
		return Result{Account: p.Username, Error: "missing_scores", Rationale: text}
	}
	return Result{Account: p.Username, Score: domain.Some(score), Rationale: rationale}
}

// buildPrompt produces a stable, deterministic prompt: no unordered sets are
// serialized directly (posts and their hashtags stay in the profile's
// existing, already-ordered slice form).
func buildPrompt(businessBrief string, p *domain.CanonicalProfile, maxPosts int) string {
	var b strings.Builder
	b.WriteString(businessBrief)
	b.WriteString("\n\n--- Candidate ---\n")
	fmt.Fprintf(&b, "account: %s\n", p.Username)
	if followers, ok := p.Followers.Get(); ok {
		fmt.Fprintf(&b, "followers: %d\n", followers)
	}
	if p.Biography != "" {
		fmt.Fprintf(&b, "biography: %s\n", p.Biography)
	}
	n := maxPosts
	if n > len(p.Posts) {
		n = len(p.Posts)
	}
	for i := 0; i < n; i++ {
		post := p.Posts[i]
		caption := post.Caption
		if len(caption) > 280 {
			caption = caption[:280]
		}
		fmt.Fprintf(&b, "post[%d]: %s %s\n", i, caption, strings.Join(post.Hashtags, " "))
	}
	b.WriteString("\nRespond with JSON: {\"score\": <0-10 integer>, \"rationale\": \"...\"}")
	return b.String()
}

type llmResponse struct {
	Score     *float64 `json:"score"`
	Rationale string   `json:"rationale"`
}

func parseResponse(text string) (int, string, bool) {
	var resp llmResponse
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return 0, "", false
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &resp); err != nil || resp.Score == nil {
		return 0, "", false
	}
	score := int(*resp.Score + 0.5)
	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	return score, resp.Rationale, true
}

// isRetriable honors the provider clients' error classification: only
// rate limits, 5xx, and network failures are worth another attempt; a 4xx
// or a malformed request fails the same way every time.
func isRetriable(err error) bool {
	return errors.Is(err, apperr.ErrExternalTransient)
}
