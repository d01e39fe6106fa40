package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/creatorindex/creatord/pkg/domain"
	"github.com/creatorindex/creatord/pkg/langdetect"
)

// Options configures one end-to-end Ingest run.
type Options struct {
	WorkDir         string
	PlatformHint    string
	ChunkSize       int
	MinTextChars    int
	Model           string
	PollInterval    time.Duration
	MaxPollAttempts int
	Force           bool
}

func (o Options) withDefaults() Options {
	if o.WorkDir == "" {
		o.WorkDir = "./ingest-work"
	}
	return o
}

// Result is Ingest's outcome for one invocation: it may complete the whole
// dataset, or halt partway through Step 2 pending an external batch API's
// completion window — callers re-invoke Ingest to resume.
type Result struct {
	Namespace       string
	LanguageFilter  *LanguageFilterResult
	Prepare         *PrepareResult
	Collect         *CollectSummary
	DatasetPath     string
	ProfileCount    int
	Complete        bool
}

// Ingest runs the three-step resumable batch ingestion pipeline over one
// platform's CSV export: language filter, batch prepare, batch
// submit/collect, and — once every chunk has completed — merge into one
// canonical dataset. Each step's own idempotence (cache-hit by content
// hash, resumable chunk state) makes repeated Ingest calls over an
// unchanged input and prompt a no-op beyond the first successful run.
func Ingest(ctx context.Context, csvPath, promptPath string, client BatchAPIClient, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	namespace := Namespace(csvPath)
	stepDir := func(step string) string { return filepath.Join(opts.WorkDir, namespace, step) }

	if err := os.MkdirAll(opts.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	result := &Result{Namespace: namespace}

	lfRes, err := LanguageFilter(ctx, csvPath, LanguageFilterOptions{
		OutDir:       stepDir("langfilter"),
		MinTextChars: opts.MinTextChars,
		PlatformHint: opts.PlatformHint,
		Force:        opts.Force,
	}, langdetect.NewHeuristic())
	if err != nil {
		return nil, fmt.Errorf("step 0 language filter: %w", err)
	}
	result.LanguageFilter = lfRes

	prepRes, err := Prepare(lfRes.EnglishCSVPath, PrepareOptions{
		OutDir:     stepDir("prepare"),
		Namespace:  namespace,
		ChunkSize:  opts.ChunkSize,
		PromptPath: promptPath,
		Model:      opts.Model,
		Force:      opts.Force,
	})
	if err != nil {
		return nil, fmt.Errorf("step 1 batch prepare: %w", err)
	}
	result.Prepare = prepRes

	if len(prepRes.Chunks) == 0 {
		slog.Info("ingestion produced no chunks to submit", "namespace", namespace)
		result.Complete = true
		result.DatasetPath = filepath.Join(opts.WorkDir, namespace+"_canonical.csv")
		if err := WriteCanonicalDataset(result.DatasetPath, nil); err != nil {
			return nil, err
		}
		return result, nil
	}

	collectSummary, err := SubmitAndCollect(ctx, client, prepRes.Chunks, SubmitOptions{
		StateDir:        stepDir("prepare"),
		Namespace:       namespace,
		PollInterval:    opts.PollInterval,
		MaxPollAttempts: opts.MaxPollAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("step 2 batch submit/collect: %w", err)
	}
	result.Collect = collectSummary

	if collectSummary.Halted {
		slog.Info("ingestion halted pending external batch completion", "namespace", namespace)
		return result, nil
	}

	allComplete := len(collectSummary.Outcomes) == len(prepRes.Chunks)
	var labelPaths []string
	for _, outcome := range collectSummary.Outcomes {
		if outcome.Status != domain.BatchCompleted {
			allComplete = false
			continue
		}
		labelPaths = append(labelPaths, outcome.ResultPath)
	}
	if !allComplete {
		slog.Warn("ingestion has unrecoverable chunks; dataset will omit their rows", "namespace", namespace)
	}

	profiles, err := MergeDataset(prepRes.AssignedPath, labelPaths, opts.PlatformHint)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	result.DatasetPath = filepath.Join(opts.WorkDir, namespace+"_canonical.csv")
	if err := WriteCanonicalDataset(result.DatasetPath, profiles); err != nil {
		return nil, fmt.Errorf("write canonical dataset: %w", err)
	}
	result.ProfileCount = len(profiles)
	result.Complete = true
	return result, nil
}

// CombineAndWrite merges already-ingested platform datasets into one
// dataset, reassigning lance_ids so the combined set is globally unique.
func CombineAndWrite(outPath, combinedNamespace string, datasets ...[]*domain.CanonicalProfile) error {
	combined := CombineDatasets(combinedNamespace, datasets...)
	return WriteCanonicalDataset(outPath, combined)
}
