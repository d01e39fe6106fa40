package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorindex/creatord/pkg/domain"
)

// memQuerier is an in-memory CatchupQuerier: a fixed backlog plus status.
type memQuerier struct {
	events []domain.ProgressEvent
	status domain.JobStatus
}

func (m *memQuerier) EventsFrom(_ string, sinceSeq int64) ([]domain.ProgressEvent, domain.JobStatus, error) {
	var out []domain.ProgressEvent
	for _, e := range m.events {
		if e.Seq >= sinceSeq {
			out = append(out, e)
		}
	}
	return out, m.status, nil
}

func backlog(n int) []domain.ProgressEvent {
	out := make([]domain.ProgressEvent, n)
	for i := range out {
		out[i] = domain.ProgressEvent{Seq: int64(i), Stage: "STAGE", Timestamp: time.Now().UTC()}
	}
	return out
}

func collect(t *testing.T, ch <-chan domain.ProgressEvent, n int) []domain.ProgressEvent {
	t.Helper()
	var out []domain.ProgressEvent
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case e, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, e)
		case <-timeout:
			t.Fatalf("collected only %d of %d events", len(out), n)
		}
	}
	return out
}

func TestStreamReplaysBacklogThenLive(t *testing.T) {
	b := NewBroadcaster()
	q := &memQuerier{events: backlog(3), status: domain.JobRunning}

	result, err := b.Stream(context.Background(), "job-1", q, 0)
	require.NoError(t, err)
	defer result.Detach()

	got := collect(t, result.Events, 3)
	assert.Equal(t, int64(0), got[0].Seq)
	assert.Equal(t, int64(2), got[2].Seq)

	b.PublishEvent("job-1", domain.ProgressEvent{Seq: 3, Stage: "LIVE"})
	live := collect(t, result.Events, 1)
	assert.Equal(t, "LIVE", live[0].Stage)
}

func TestStreamTerminalJobClosesAfterHistory(t *testing.T) {
	// A subscriber attaching after the job completed receives the full
	// historical prefix, then the channel closes promptly.
	b := NewBroadcaster()
	q := &memQuerier{events: backlog(4), status: domain.JobFinished}

	result, err := b.Stream(context.Background(), "job-1", q, 0)
	require.NoError(t, err)
	defer result.Detach()

	got := collect(t, result.Events, 4)
	require.Len(t, got, 4)

	select {
	case _, ok := <-result.Events:
		assert.False(t, ok, "channel must close, not deliver more")
	case <-time.After(time.Second):
		t.Fatal("channel never closed after terminal history replay")
	}
}

func TestStreamDeduplicatesReplayedSeqs(t *testing.T) {
	// An event published while the backlog was being read must not be
	// delivered twice.
	b := NewBroadcaster()
	q := &memQuerier{events: backlog(2), status: domain.JobRunning}

	result, err := b.Stream(context.Background(), "job-1", q, 0)
	require.NoError(t, err)
	defer result.Detach()

	// Re-publish seq 1 (already in the backlog) then a genuinely new event.
	b.PublishEvent("job-1", domain.ProgressEvent{Seq: 1, Stage: "DUP"})
	b.PublishEvent("job-1", domain.ProgressEvent{Seq: 2, Stage: "NEW"})

	got := collect(t, result.Events, 3)
	assert.Equal(t, int64(0), got[0].Seq)
	assert.Equal(t, int64(1), got[1].Seq)
	assert.Equal(t, "STAGE", got[1].Stage, "backlog copy wins; live duplicate dropped")
	assert.Equal(t, "NEW", got[2].Stage)
}

func TestStreamResumesFromSinceSeq(t *testing.T) {
	b := NewBroadcaster()
	q := &memQuerier{events: backlog(5), status: domain.JobRunning}

	result, err := b.Stream(context.Background(), "job-1", q, 3)
	require.NoError(t, err)
	defer result.Detach()

	got := collect(t, result.Events, 2)
	assert.Equal(t, int64(3), got[0].Seq)
	assert.Equal(t, int64(4), got[1].Seq)
}

func TestStreamOverflowFlag(t *testing.T) {
	b := NewBroadcaster()
	q := &memQuerier{events: backlog(catchupLimit + 50), status: domain.JobRunning}

	result, err := b.Stream(context.Background(), "job-1", q, 0)
	require.NoError(t, err)
	defer result.Detach()

	assert.True(t, result.Overflow)
	got := collect(t, result.Events, catchupLimit)
	// Only the most recent catchupLimit events are replayed.
	assert.Equal(t, int64(50), got[0].Seq)
}

func TestTerminalClosesLiveSubscribers(t *testing.T) {
	b := NewBroadcaster()
	q := &memQuerier{status: domain.JobRunning}

	result, err := b.Stream(context.Background(), "job-1", q, 0)
	require.NoError(t, err)
	defer result.Detach()

	b.Terminal("job-1")

	select {
	case _, ok := <-result.Events:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("stream did not close on terminal")
	}
}

func TestPublishToAbsentJobIsNoOp(t *testing.T) {
	b := NewBroadcaster()
	assert.NotPanics(t, func() {
		b.PublishEvent("nobody-listening", domain.ProgressEvent{Seq: 0})
	})
}

func TestStreamCancellationStopsForwarding(t *testing.T) {
	b := NewBroadcaster()
	q := &memQuerier{status: domain.JobRunning}

	ctx, cancel := context.WithCancel(context.Background())
	result, err := b.Stream(ctx, "job-1", q, 0)
	require.NoError(t, err)
	defer result.Detach()

	cancel()
	select {
	case _, ok := <-result.Events:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("stream did not close on context cancellation")
	}
}
