package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/creatorindex/creatord/pkg/domain"
	"github.com/creatorindex/creatord/pkg/events"
)

// Config bounds one worker pool's timing: job timeout, poll interval,
// and worker count.
type Config struct {
	WorkerCount  int
	QueueNames   []string
	JobTimeout   time.Duration
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 4
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 900 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	return c
}

// Pool runs a fixed number of worker goroutines across the declared queues,
// keeping an active-job cancel-func registry so in-flight jobs can be
// cancelled on timeout and counted for the health endpoint.
type Pool struct {
	store    *Store
	executor Executor
	bus      *events.Broadcaster
	cfg      Config

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewPool(store *Store, executor Executor, bus *events.Broadcaster, cfg Config) *Pool {
	return &Pool{
		store:    store,
		executor: executor,
		bus:      bus,
		cfg:      cfg.withDefaults(),
		cancels:  make(map[string]context.CancelFunc),
		stopCh:   make(chan struct{}),
	}
}

// Start spawns cfg.WorkerCount workers, each cycling across every declared
// queue.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.WorkerCount; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Stop signals all workers and waits for in-flight jobs to finish (graceful:
// a worker currently executing a job completes it before exiting).
func (p *Pool) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, workerID int) {
	defer p.wg.Done()
	log := slog.With("worker", workerID)
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		claimed := false
		for _, q := range p.cfg.QueueNames {
			rec, err := p.store.ClaimNext(q)
			if err != nil {
				if !errors.Is(err, ErrNoJobsAvailable) {
					log.Warn("claim failed", "queue", q, "error", err)
				}
				continue
			}
			claimed = true
			p.process(ctx, rec.JobID, rec.QueueName)
		}
		if !claimed {
			select {
			case <-time.After(p.pollInterval()):
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *Pool) pollInterval() time.Duration {
	base := p.cfg.PollInterval
	jitter := time.Duration(rand.Int64N(int64(base)))
	return base/2 + jitter
}

func (p *Pool) process(parentCtx context.Context, jobID, queueName string) {
	rec, err := p.store.Snapshot(jobID)
	if err != nil {
		return
	}

	jobCtx, cancel := context.WithTimeout(parentCtx, p.cfg.JobTimeout)
	p.mu.Lock()
	p.cancels[jobID] = cancel
	p.mu.Unlock()
	defer func() {
		cancel()
		p.mu.Lock()
		delete(p.cancels, jobID)
		p.mu.Unlock()
	}()

	emit := emitterFunc(func(stage string, data any) {
		ev, err := p.store.AppendEvent(jobID, stage, data)
		if err != nil {
			return
		}
		p.bus.PublishEvent(jobID, ev)
	})

	var env Envelope
	if err := json.Unmarshal(rec.Payload, &env); err != nil {
		_ = p.store.Finish(jobID, domain.JobFailed, nil, "corrupt job payload: "+err.Error())
		p.bus.Terminal(jobID)
		return
	}
	job := &Job{JobID: jobID, Queue: queueName, FuncID: env.FuncID, Payload: env.Body, CreatedAt: rec.EnqueuedAt}
	result := p.executor.Execute(jobCtx, job, emit)

	if result.Status == "" {
		switch {
		case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
			result = Result{Status: "failed", Error: "timeout"}
		case errors.Is(jobCtx.Err(), context.Canceled):
			result = Result{Status: "failed", Error: "canceled"}
		default:
			result = Result{Status: "failed", Error: "executor returned no result"}
		}
	}

	status := domain.JobFinished
	if result.Status == "failed" {
		status = domain.JobFailed
	}
	_ = p.store.Finish(jobID, status, result.Payload, result.Error)
	p.bus.Terminal(jobID)
}

// ActiveCount reports how many jobs this pool is currently executing,
// for the health endpoint's worker-pool summary.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cancels)
}

// WorkerCount reports the configured size of this pool.
func (p *Pool) WorkerCount() int { return p.cfg.WorkerCount }

// CancelJob cancels a running job's context, used for timeout enforcement;
// there is no user-initiated cancel operation in the public API.
func (p *Pool) CancelJob(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	cancel, ok := p.cancels[jobID]
	if ok {
		cancel()
	}
	return ok
}

type emitterFunc func(stage string, data any)

func (f emitterFunc) Emit(stage string, data any) { f(stage, data) }
