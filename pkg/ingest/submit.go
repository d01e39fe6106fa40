package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/creatorindex/creatord/pkg/domain"
)

// BatchAPIClient is the external-batch-API collaborator Step 2 depends on
// for: upload a request file, create a batch against it, poll its
// status, and download the completed output. providers.BatchAPIClient
// satisfies this structurally.
type BatchAPIClient interface {
	UploadFile(ctx context.Context, filename string, content []byte) (string, error)
	CreateBatch(ctx context.Context, inputFileID string) (id, status string, err error)
	RetrieveBatch(ctx context.Context, batchID string) (status, outputFileID string, err error)
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

// SubmitOptions configures Step 2.
type SubmitOptions struct {
	StateDir        string
	Namespace       string
	PollInterval    time.Duration
	MaxPollAttempts int
}

func (o SubmitOptions) withDefaults() SubmitOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = 30 * time.Second
	}
	if o.MaxPollAttempts <= 0 {
		o.MaxPollAttempts = 10
	}
	return o
}

// ChunkOutcome reports what Step 2 did with one chunk in this invocation.
type ChunkOutcome struct {
	ChunkNumber int
	Status      domain.BatchStatus
	ResultPath  string
	Submitted   bool // true if this invocation created a brand new batch
	StillPending bool
}

// CollectSummary is Step 2's overall result for one run.
type CollectSummary struct {
	Outcomes []ChunkOutcome
	// Halted is true if the run stopped early — either because it just
	// submitted a fresh batch or because
	// an in-flight chunk is still pending after MaxPollAttempts.
	Halted bool
}

// SubmitAndCollect drives Step 2 for a set of prepared chunks, sequentially
// and resumably: a chunk already completed with its result
// file present is skipped; a chunk already submitted resumes polling by its
// stored batch_id; any other chunk is uploaded and submitted once, after
// which the run halts so a future invocation can resume polling rather
// than blocking for up to the batch API's full completion window.
func SubmitAndCollect(ctx context.Context, client BatchAPIClient, chunks []ChunkFile, opts SubmitOptions) (*CollectSummary, error) {
	opts = opts.withDefaults()
	state, err := loadBatchJobsState(opts.StateDir, opts.Namespace)
	if err != nil {
		return nil, fmt.Errorf("load batch jobs state: %w", err)
	}

	summary := &CollectSummary{}
	for _, chunk := range chunks {
		entry, ok := state.Chunks[chunk.ChunkNumber]
		if !ok {
			entry = &domain.BatchJobState{
				ChunkNumber:       chunk.ChunkNumber,
				ProfileCount:      chunk.RowCount,
				Status:            domain.BatchCreated,
				PromptFingerprint: mustReadChunkFingerprint(chunk),
			}
			state.Chunks[chunk.ChunkNumber] = entry
		}

		switch entry.Status {
		case domain.BatchCompleted:
			if entry.ResultPath != "" {
				if _, err := os.Stat(entry.ResultPath); err == nil {
					summary.Outcomes = append(summary.Outcomes, ChunkOutcome{ChunkNumber: chunk.ChunkNumber, Status: entry.Status, ResultPath: entry.ResultPath})
					continue
				}
			}
			// Result file missing despite a completed marker: fall through
			// and treat it as needing a fresh submission.
			entry.Status = domain.BatchCreated

		case domain.BatchSubmitted:
			outcome, err := pollChunk(ctx, client, opts, chunk, entry)
			if err != nil {
				return summary, fmt.Errorf("poll chunk %d: %w", chunk.ChunkNumber, err)
			}
			if err := state.save(); err != nil {
				return summary, fmt.Errorf("persist batch state: %w", err)
			}
			summary.Outcomes = append(summary.Outcomes, outcome)
			if outcome.StillPending {
				summary.Halted = true
				return summary, nil
			}
			continue
		}

		// entry.Status is BatchCreated or BatchFailed: submit fresh.
		outcome, err := submitChunk(ctx, client, chunk, entry)
		if err != nil {
			return summary, fmt.Errorf("submit chunk %d: %w", chunk.ChunkNumber, err)
		}
		if err := state.save(); err != nil {
			return summary, fmt.Errorf("persist batch state: %w", err)
		}
		summary.Outcomes = append(summary.Outcomes, outcome)
		summary.Halted = true
		return summary, nil
	}

	if err := state.save(); err != nil {
		return summary, fmt.Errorf("persist batch state: %w", err)
	}
	return summary, nil
}

func mustReadChunkFingerprint(chunk ChunkFile) string {
	var meta chunkMetadata
	if ok, _ := readJSON(chunk.MetadataPath, &meta); ok {
		return meta.PromptFingerprint
	}
	return ""
}

func submitChunk(ctx context.Context, client BatchAPIClient, chunk ChunkFile, entry *domain.BatchJobState) (ChunkOutcome, error) {
	content, err := os.ReadFile(chunk.Path)
	if err != nil {
		return ChunkOutcome{}, fmt.Errorf("read chunk file: %w", err)
	}
	inputFileID, err := client.UploadFile(ctx, filepath.Base(chunk.Path), content)
	if err != nil {
		return ChunkOutcome{}, fmt.Errorf("upload chunk: %w", err)
	}
	batchID, _, err := client.CreateBatch(ctx, inputFileID)
	if err != nil {
		return ChunkOutcome{}, fmt.Errorf("create batch: %w", err)
	}

	now := time.Now()
	entry.InputFileID = inputFileID
	entry.BatchID = batchID
	entry.Status = domain.BatchSubmitted
	entry.SubmittedAt = &now

	slog.Info("submitted ingestion batch", "chunk", chunk.ChunkNumber, "batch_id", batchID)
	return ChunkOutcome{ChunkNumber: chunk.ChunkNumber, Status: entry.Status, Submitted: true}, nil
}

// pollChunk polls an already-submitted chunk's batch until it reaches a
// terminal status or MaxPollAttempts is exhausted.
func pollChunk(ctx context.Context, client BatchAPIClient, opts SubmitOptions, chunk ChunkFile, entry *domain.BatchJobState) (ChunkOutcome, error) {
	for attempt := 0; attempt < opts.MaxPollAttempts; attempt++ {
		status, outputFileID, err := client.RetrieveBatch(ctx, entry.BatchID)
		if err != nil {
			return ChunkOutcome{}, err
		}
		switch status {
		case "completed":
			return completeChunk(ctx, client, chunk, entry, outputFileID)
		case "failed", "expired", "cancelled":
			entry.Status = domain.BatchFailed
			slog.Warn("ingestion batch ended unsuccessfully", "chunk", chunk.ChunkNumber, "batch_id", entry.BatchID, "status", status)
			return ChunkOutcome{ChunkNumber: chunk.ChunkNumber, Status: entry.Status}, nil
		}

		if attempt < opts.MaxPollAttempts-1 {
			select {
			case <-ctx.Done():
				return ChunkOutcome{}, ctx.Err()
			case <-time.After(opts.PollInterval):
			}
		}
	}
	return ChunkOutcome{ChunkNumber: chunk.ChunkNumber, Status: entry.Status, StillPending: true}, nil
}

func completeChunk(ctx context.Context, client BatchAPIClient, chunk ChunkFile, entry *domain.BatchJobState, outputFileID string) (ChunkOutcome, error) {
	content, err := client.DownloadFile(ctx, outputFileID)
	if err != nil {
		return ChunkOutcome{}, fmt.Errorf("download output file: %w", err)
	}
	rows := ParseBatchOutput(content)

	resultPath := chunk.Path + ".labels.csv"
	if err := writeLabelRowsCSV(resultPath, rows); err != nil {
		return ChunkOutcome{}, fmt.Errorf("write label csv: %w", err)
	}

	now := time.Now()
	entry.OutputFileID = outputFileID
	entry.Status = domain.BatchCompleted
	entry.CompletedAt = &now
	entry.ResultPath = resultPath

	slog.Info("collected ingestion batch", "chunk", chunk.ChunkNumber, "rows", len(rows))
	return ChunkOutcome{ChunkNumber: chunk.ChunkNumber, Status: entry.Status, ResultPath: resultPath}, nil
}

// ClearChunkState removes one chunk's persisted state so a failed batch
// can be re-submitted from scratch.
func ClearChunkState(stateDir, namespace string, chunkNumber int) error {
	state, err := loadBatchJobsState(stateDir, namespace)
	if err != nil {
		return err
	}
	if _, ok := state.Chunks[chunkNumber]; !ok {
		return fmt.Errorf("chunk %s: %w", strconv.Itoa(chunkNumber), errors.New("no state entry"))
	}
	delete(state.Chunks, chunkNumber)
	return state.save()
}
