package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorindex/creatord/pkg/apperr"
	"github.com/creatorindex/creatord/pkg/domain"
	"github.com/creatorindex/creatord/pkg/events"
)

func newTestStore() *Store {
	return NewStore([]string{"default", "search", "pipeline"}, 5, 100)
}

func TestEnqueueAndSnapshot(t *testing.T) {
	s := newTestStore()

	rec, err := s.Enqueue("search", "search", map[string]any{"query": "skincare"})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.JobID)
	assert.Equal(t, "search", rec.QueueName)
	assert.Equal(t, domain.JobQueued, rec.Status)

	snap, err := s.Snapshot(rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, rec.JobID, snap.JobID)

	var env Envelope
	require.NoError(t, json.Unmarshal(snap.Payload, &env))
	assert.Equal(t, "search", env.FuncID)
}

func TestEnqueueUnknownQueueFallsBackToDefault(t *testing.T) {
	s := newTestStore()
	rec, err := s.Enqueue("nope", "search", nil)
	require.NoError(t, err)
	assert.Equal(t, "default", rec.QueueName)
}

func TestSnapshotUnknownJob(t *testing.T) {
	s := newTestStore()
	_, err := s.Snapshot("missing")
	assert.ErrorIs(t, err, apperr.ErrJobNotFound)
}

func TestClaimNextTransitionsToRunning(t *testing.T) {
	s := newTestStore()
	rec, err := s.Enqueue("default", "f", nil)
	require.NoError(t, err)

	claimed, err := s.ClaimNext("default")
	require.NoError(t, err)
	assert.Equal(t, rec.JobID, claimed.JobID)
	assert.Equal(t, domain.JobRunning, claimed.Status)
	assert.NotNil(t, claimed.StartedAt)

	_, err = s.ClaimNext("default")
	assert.ErrorIs(t, err, ErrNoJobsAvailable)
}

func TestAppendEventCapsHistoryAndKeepsSeq(t *testing.T) {
	s := newTestStore() // history limit 5
	rec, err := s.Enqueue("default", "f", nil)
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		_, err := s.AppendEvent(rec.JobID, "STAGE", map[string]int{"i": i})
		require.NoError(t, err)
	}

	snap, err := s.Snapshot(rec.JobID)
	require.NoError(t, err)
	require.Len(t, snap.Events, 5)
	// Oldest events dropped; Seq keeps counting monotonically.
	assert.Equal(t, int64(3), snap.Events[0].Seq)
	assert.Equal(t, int64(7), snap.Events[4].Seq)
	for i := 1; i < len(snap.Events); i++ {
		assert.False(t, snap.Events[i].Timestamp.Before(snap.Events[i-1].Timestamp))
	}
}

func TestNoEventsAfterTerminal(t *testing.T) {
	s := newTestStore()
	rec, err := s.Enqueue("default", "f", nil)
	require.NoError(t, err)
	_, err = s.AppendEvent(rec.JobID, "STAGE", nil)
	require.NoError(t, err)
	require.NoError(t, s.Finish(rec.JobID, domain.JobFinished, "done", ""))

	_, err = s.AppendEvent(rec.JobID, "LATE", nil)
	assert.ErrorIs(t, err, ErrJobTerminal)

	snap, err := s.Snapshot(rec.JobID)
	require.NoError(t, err)
	assert.Len(t, snap.Events, 1)
	assert.Equal(t, domain.JobFinished, snap.Status)
	assert.NotNil(t, snap.EndedAt)
}

func TestFinishFailureRecordsError(t *testing.T) {
	s := newTestStore()
	rec, err := s.Enqueue("default", "f", nil)
	require.NoError(t, err)
	require.NoError(t, s.Finish(rec.JobID, domain.JobFailed, nil, "timeout"))

	snap, err := s.Snapshot(rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, snap.Status)
	assert.Equal(t, "timeout", snap.Error)
	assert.Empty(t, snap.Result)
}

func TestEvictionDropsOldestTerminalRecords(t *testing.T) {
	s := NewStore([]string{"default"}, 5, 3)

	var ids []string
	for i := 0; i < 5; i++ {
		rec, err := s.Enqueue("default", "f", nil)
		require.NoError(t, err)
		require.NoError(t, s.Finish(rec.JobID, domain.JobFinished, nil, ""))
		ids = append(ids, rec.JobID)
	}

	_, err := s.Snapshot(ids[0])
	assert.ErrorIs(t, err, apperr.ErrJobNotFound)
	_, err = s.Snapshot(ids[4])
	assert.NoError(t, err)
}

func TestEvictExpiredRemovesOnlyOldTerminalJobs(t *testing.T) {
	s := newTestStore()

	done, err := s.Enqueue("default", "f", nil)
	require.NoError(t, err)
	require.NoError(t, s.Finish(done.JobID, domain.JobFinished, nil, ""))

	running, err := s.Enqueue("default", "f", nil)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	removed := s.EvictExpired(time.Millisecond)
	assert.Equal(t, 1, removed)

	_, err = s.Snapshot(done.JobID)
	assert.ErrorIs(t, err, apperr.ErrJobNotFound)
	_, err = s.Snapshot(running.JobID)
	assert.NoError(t, err)
}

// scriptedExecutor lets tests control what a job run does.
type scriptedExecutor struct {
	run func(ctx context.Context, job *Job, emit Emitter) Result
}

func (s *scriptedExecutor) Execute(ctx context.Context, job *Job, emit Emitter) Result {
	return s.run(ctx, job, emit)
}

func waitForStatus(t *testing.T, s *Store, jobID string, want domain.JobStatus) *domain.JobRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := s.Snapshot(jobID)
		require.NoError(t, err)
		if snap.Status == want {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %s", jobID, want)
	return nil
}

func TestPoolExecutesJobAndRecordsEvents(t *testing.T) {
	store := newTestStore()
	bus := events.NewBroadcaster()
	exec := &scriptedExecutor{run: func(_ context.Context, job *Job, emit Emitter) Result {
		emit.Emit("SEARCH_STARTED", domain.StageIO{})
		emit.Emit("SEARCH_COMPLETED", domain.StageIO{})
		return Result{Status: "finished", Payload: map[string]string{"ok": "yes"}}
	}}
	pool := NewPool(store, exec, bus, Config{
		WorkerCount: 1,
		QueueNames:  []string{"default", "search", "pipeline"},
		PollInterval: 5 * time.Millisecond,
	})
	pool.Start(context.Background())
	defer pool.Stop()

	rec, err := store.Enqueue("search", "search", nil)
	require.NoError(t, err)

	snap := waitForStatus(t, store, rec.JobID, domain.JobFinished)
	require.Len(t, snap.Events, 2)
	assert.Equal(t, "SEARCH_STARTED", snap.Events[0].Stage)
	assert.Equal(t, "SEARCH_COMPLETED", snap.Events[1].Stage)
	assert.NotEmpty(t, snap.Result)

	// Every event sits inside the job's lifetime bounds.
	for _, e := range snap.Events {
		assert.False(t, e.Timestamp.Before(snap.EnqueuedAt))
		assert.False(t, e.Timestamp.After(*snap.EndedAt))
	}
}

func TestPoolTimesOutSlowJob(t *testing.T) {
	store := newTestStore()
	bus := events.NewBroadcaster()
	exec := &scriptedExecutor{run: func(ctx context.Context, _ *Job, _ Emitter) Result {
		<-ctx.Done()
		return Result{} // executor gave up without a result
	}}
	pool := NewPool(store, exec, bus, Config{
		WorkerCount: 1,
		QueueNames:  []string{"default"},
		JobTimeout:  20 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	})
	pool.Start(context.Background())
	defer pool.Stop()

	rec, err := store.Enqueue("default", "f", nil)
	require.NoError(t, err)

	snap := waitForStatus(t, store, rec.JobID, domain.JobFailed)
	assert.Equal(t, "timeout", snap.Error)
}

func TestPoolExecutorFailureMarksJobFailed(t *testing.T) {
	store := newTestStore()
	exec := &scriptedExecutor{run: func(context.Context, *Job, Emitter) Result {
		return Result{Status: "failed", Error: "boom"}
	}}
	pool := NewPool(store, exec, events.NewBroadcaster(), Config{
		WorkerCount: 1, QueueNames: []string{"default"}, PollInterval: 5 * time.Millisecond,
	})
	pool.Start(context.Background())
	defer pool.Stop()

	rec, err := store.Enqueue("default", "f", nil)
	require.NoError(t, err)
	snap := waitForStatus(t, store, rec.JobID, domain.JobFailed)
	assert.Equal(t, "boom", snap.Error)
}
