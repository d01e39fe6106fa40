// Package jobs provides the background-job runtime: enqueueing, executing,
// and introspecting jobs, with progress delivered via both a durable
// snapshot and a best-effort publish/subscribe channel. The worker
// lifecycle is claim, execute, terminal status, cleanup; claiming is a
// FIFO channel pop guarded by the same store mutex that protects
// terminal-status updates, so a claimed job has exactly one owner.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNoJobsAvailable is returned by ClaimNext when a queue is momentarily empty, triggering the worker's
// jittered poll-interval sleep rather than a busy loop.
var ErrNoJobsAvailable = errors.New("no jobs available")

// ErrQueueUnknown is returned when Enqueue is given a queue name that was
// not declared at configuration load; callers fall back to "default".
var ErrQueueUnknown = errors.New("unknown queue name")

// ErrJobTerminal is returned by AppendEvent once a job has reached a
// terminal status; the event history is sealed from that point on.
var ErrJobTerminal = errors.New("job already terminal")

// Executor owns the entire lifecycle of running one job: it receives the
// job's payload, must write progress via the supplied Emitter, and returns a
// terminal result. The worker around it only handles claiming, timeout
// enforcement, and persisting the terminal status.
type Executor interface {
	Execute(ctx context.Context, job *Job, emit Emitter) Result
}

// Emitter is the single-method progress callback handed to stage functions,
// decoupling them from any particular delivery mechanism.
type Emitter interface {
	Emit(stage string, data any)
}

// Result is what an Executor returns on completion (success or failure).
type Result struct {
	Status  string // "finished" | "failed"
	Payload any
	Error   string
}

// Job is the in-flight unit of work handed to an Executor.
type Job struct {
	JobID     string
	Queue     string
	FuncID    string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// Envelope is what Store.Enqueue actually persists as a JobRecord's payload:
// the caller-chosen FuncID alongside the opaque request body, so a worker
// that only ever sees raw bytes can still recover which function to run
// without the jobs package knowing anything about the api package's request
// types.
type Envelope struct {
	FuncID string          `json:"func_id"`
	Body   json.RawMessage `json:"body"`
}
