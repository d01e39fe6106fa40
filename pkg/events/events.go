// Package events implements the live-delivery half of job progress. The
// durable half is the JobRecord.Events append log kept by pkg/jobs.Store;
// this package only adds best-effort fan-out over in-process channels to
// whatever connections happen to be attached at publish time.
package events

import (
	"context"
	"sync"

	"github.com/creatorindex/creatord/pkg/domain"
)

// catchupLimit bounds how many backlog events a newly attached subscriber
// is replayed before being told to fall back to a full REST reload.
const catchupLimit = 200

// liveBuffer is the per-subscriber channel depth; a slow consumer that falls
// this far behind live publishes starts dropping events rather than
// blocking the publishing worker (progress delivery is best-effort by
// design — the durable log is what GET /job/{id} falls back to).
const liveBuffer = 64

// CatchupQuerier resolves a job's durable event backlog, implemented by
// pkg/jobs.Store.EventsFrom.
type CatchupQuerier interface {
	EventsFrom(jobID string, sinceSeq int64) ([]domain.ProgressEvent, domain.JobStatus, error)
}

// Broadcaster fans out live progress events to whatever subscribers are
// attached to a job at publish time. It holds no durable state of its own.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[string]map[int]chan domain.ProgressEvent
	next int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]map[int]chan domain.ProgressEvent)}
}

// subscribe registers a new live channel for jobID and returns it along with
// a detach function. Must be called before reading the durable backlog so no
// publish can land in the gap between backlog read and live attach.
func (b *Broadcaster) subscribe(jobID string) (chan domain.ProgressEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[int]chan domain.ProgressEvent)
	}
	id := b.next
	b.next++
	ch := make(chan domain.ProgressEvent, liveBuffer)
	b.subs[jobID][id] = ch

	detach := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if m, ok := b.subs[jobID]; ok {
			delete(m, id)
			if len(m) == 0 {
				delete(b.subs, jobID)
			}
		}
	}
	return ch, detach
}

// PublishEvent delivers an already-persisted event (with its durable Seq) to
// every connection currently attached to jobID. Publish never blocks: a
// subscriber whose buffer is full simply misses this event and recovers it
// from the durable log on reconnect.
func (b *Broadcaster) PublishEvent(jobID string, ev domain.ProgressEvent) {
	b.mu.RLock()
	subs := b.subs[jobID]
	chans := make([]chan domain.ProgressEvent, 0, len(subs))
	for _, ch := range subs {
		chans = append(chans, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chans {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Terminal closes every live connection attached to jobID, signaling
// end-of-stream to subscribers (the SSE/websocket handler closes the
// response once its channel closes).
func (b *Broadcaster) Terminal(jobID string) {
	b.mu.Lock()
	subs := b.subs[jobID]
	delete(b.subs, jobID)
	b.mu.Unlock()
	for _, ch := range subs {
		close(ch)
	}
}

// StreamResult is what Stream hands the caller: a channel of events to
// forward to the transport (SSE or websocket), an overflow flag meaning the
// backlog exceeded catchupLimit and the client should be told to reload via
// REST instead of trusting the replay, and a detach function to call once
// the caller's transport loop exits.
type StreamResult struct {
	Events   <-chan domain.ProgressEvent
	Overflow bool
	Status   domain.JobStatus
	Detach   func()
}

// Stream attaches a live subscriber for jobID, replays its durable backlog
// since sinceSeq, then forwards further live events until ctx is canceled or
// the job reaches a terminal status. Subscribing happens before the backlog
// read so no publish can land unseen in the gap between the two.
func (b *Broadcaster) Stream(ctx context.Context, jobID string, querier CatchupQuerier, sinceSeq int64) (StreamResult, error) {
	liveCh, detach := b.subscribe(jobID)

	backlog, status, err := querier.EventsFrom(jobID, sinceSeq)
	if err != nil {
		detach()
		return StreamResult{}, err
	}
	overflow := len(backlog) > catchupLimit
	if overflow {
		backlog = backlog[len(backlog)-catchupLimit:]
	}

	out := make(chan domain.ProgressEvent, liveBuffer)
	lastSeq := sinceSeq - 1
	if len(backlog) > 0 {
		lastSeq = backlog[len(backlog)-1].Seq
	}

	go func() {
		defer close(out)
		for _, e := range backlog {
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
		if status.Terminal() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-liveCh:
				if !ok {
					return
				}
				if e.Seq <= lastSeq {
					continue
				}
				lastSeq = e.Seq
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return StreamResult{Events: out, Overflow: overflow, Status: status, Detach: detach}, nil
}
