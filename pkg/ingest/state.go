// Package ingest is the resumable three-step batch ingestion pipeline
// (language filter -> batch prepare -> batch submit/collect) that
// transforms per-platform CSV exports into a normalized, LLM-labeled
// dataset. Every step persists its progress as a local JSON state file,
// written atomically (temp file + os.Rename) so a crash mid-write never
// corrupts the resume point; every transition rewrites the whole file.
package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/creatorindex/creatord/pkg/domain"
)

// writeJSONAtomic marshals v and writes it to path via a temp file in the
// same directory followed by os.Rename, so readers never observe a
// partially-written file. A byte-identical rewrite is skipped so re-running
// an unchanged step is a true no-op on disk.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if existing, err := os.ReadFile(path); err == nil && bytesEqual(existing, data) {
		return nil
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file into %s: %w", path, err)
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}

// BatchJobsState is the persisted `{namespace}_batch_jobs_state.json`
// mapping chunk_number -> BatchJobState.
type BatchJobsState struct {
	path   string
	Chunks map[int]*domain.BatchJobState `json:"chunks"`
}

func loadBatchJobsState(dir, namespace string) (*BatchJobsState, error) {
	st := &BatchJobsState{
		path:   filepath.Join(dir, namespace+"_batch_jobs_state.json"),
		Chunks: make(map[int]*domain.BatchJobState),
	}
	if _, err := readJSON(st.path, st); err != nil {
		return nil, err
	}
	if st.Chunks == nil {
		st.Chunks = make(map[int]*domain.BatchJobState)
	}
	return st, nil
}

func (s *BatchJobsState) save() error {
	return writeJSONAtomic(s.path, s)
}

// ProcessedFileEntry is one record in `{namespace}_processed_files.json`:
// history of a source CSV's processing, keyed by its absolute path.
type ProcessedFileEntry struct {
	Hash              string `json:"hash"`
	PromptFingerprint string `json:"prompt_fingerprint"`
	Stage             string `json:"stage"`
	Timestamp         string `json:"timestamp"`
	Rows              int    `json:"rows"`
	BatchSize         int    `json:"batch_size"`
}

// ProcessedFiles is the persisted history used to decide cache-hit vs.
// fresh-run for Step 0 and Step 1.
type ProcessedFiles struct {
	path    string
	Entries map[string]ProcessedFileEntry `json:"entries"`
}

func loadProcessedFiles(dir, namespace string) (*ProcessedFiles, error) {
	pf := &ProcessedFiles{
		path:    filepath.Join(dir, namespace+"_processed_files.json"),
		Entries: make(map[string]ProcessedFileEntry),
	}
	if _, err := readJSON(pf.path, pf); err != nil {
		return nil, err
	}
	if pf.Entries == nil {
		pf.Entries = make(map[string]ProcessedFileEntry)
	}
	return pf, nil
}

func (p *ProcessedFiles) save() error {
	return writeJSONAtomic(p.path, p)
}

// matches reports whether a prior entry for key matches the given
// {hash, prompt_fingerprint, batch_size} fingerprint and thus qualifies as
// a cache hit for the given stage.
func (p *ProcessedFiles) matches(key, stage, hash, promptFingerprint string, batchSize int) bool {
	e, ok := p.Entries[key]
	if !ok {
		return false
	}
	return e.Stage == stage && e.Hash == hash && e.PromptFingerprint == promptFingerprint && e.BatchSize == batchSize
}
