package domain

import (
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle state of a JobRecord.
type JobStatus string

const (
	JobQueued   JobStatus = "queued"
	JobRunning  JobStatus = "running"
	JobFinished JobStatus = "finished"
	JobFailed   JobStatus = "failed"
)

func (s JobStatus) Terminal() bool {
	return s == JobFinished || s == JobFailed
}

// ProgressEvent is one typed update emitted by a running job. Stage is the
// canonical uppercase stage name (see pkg/pipeline).
type ProgressEvent struct {
	Seq       int64           `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Stage     string          `json:"stage"`
	Data      json.RawMessage `json:"data"`
}

// JobRecord is the full record of one background job: its payload, its
// terminal result (once reached), and a bounded, append-only event history.
type JobRecord struct {
	JobID      string          `json:"job_id"`
	QueueName  string          `json:"queue_name"`
	Status     JobStatus       `json:"status"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	EndedAt    *time.Time      `json:"ended_at,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	Events     []ProgressEvent `json:"events"`
}

// StageIO is the envelope carried by every progress event so a subscriber
// can reconstruct which profiles entered and left a stage without the full
// records.
type StageIO struct {
	Inputs  []ProfileRef   `json:"inputs"`
	Outputs []ProfileRef   `json:"outputs"`
	Meta    map[string]any `json:"meta,omitempty"`
}
