package domain

import "time"

// BatchStatus is the lifecycle state of one ingestion chunk.
type BatchStatus string

const (
	BatchCreated   BatchStatus = "created"
	BatchSubmitted BatchStatus = "submitted"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
)

// BatchJobState is the persisted, crash-resumable state of one ingestion
// chunk, keyed by ChunkNumber in the state file's outer map.
type BatchJobState struct {
	ChunkNumber       int         `json:"chunk_number"`
	BatchID           string      `json:"batch_id,omitempty"`
	InputFileID       string      `json:"input_file_id,omitempty"`
	OutputFileID      string      `json:"output_file_id,omitempty"`
	ProfileCount      int         `json:"profile_count"`
	Status            BatchStatus `json:"status"`
	SubmittedAt       *time.Time  `json:"submitted_at,omitempty"`
	CompletedAt       *time.Time  `json:"completed_at,omitempty"`
	PromptFingerprint string      `json:"prompt_fingerprint"`
	ResultPath        string      `json:"result_path,omitempty"`
}
