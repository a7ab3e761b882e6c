// Package worker provides the concurrency plumbing for batch extraction: a
// worker pool whose producer and consumer sides run concurrently, and a
// per-key rate limiter for oracle calls.
package worker

import (
	"context"
	"sync"
)

// Job is one unit of pool work.
type Job interface {
	Execute(ctx context.Context) Result
}

// Result is the outcome of one executed job.
type Result interface {
	GetError() error
}

// Pool runs jobs on a fixed number of workers. The channels hold only a
// small buffer, so the producer submits and calls Close while a consumer
// drains Wait; a batch far larger than the worker count never blocks as
// long as both sides run.
type Pool struct {
	workers int
	jobs    chan Job
	results chan Result
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	closeJobs    sync.Once
	closeResults sync.Once
}

// NewPool creates a pool of the given size. Workers inherit ctx, so a
// caller timeout cancels jobs in flight and unblocks Submit.
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Pool{
		workers: workers,
		jobs:    make(chan Job, workers),
		results: make(chan Result, workers),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			result := job.Execute(p.ctx)
			select {
			case p.results <- result:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// Submit queues one job. It blocks only until a worker frees buffer space
// or the pool context ends.
func (p *Pool) Submit(job Job) {
	select {
	case <-p.ctx.Done():
	case p.jobs <- job:
	}
}

// Close tells the pool no more jobs are coming. The producer must call it
// exactly when submission is done; Wait cannot return before then.
func (p *Pool) Close() {
	p.closeJobs.Do(func() {
		close(p.jobs)
	})
}

// Wait drains results until every worker has exited. It must run
// concurrently with submission whenever the batch exceeds the buffers.
func (p *Pool) Wait() []Result {
	go func() {
		p.wg.Wait()
		p.closeResults.Do(func() {
			close(p.results)
		})
	}()

	var results []Result
	for result := range p.results {
		results = append(results, result)
	}
	return results
}

// Shutdown cancels in-flight work and releases the workers.
func (p *Pool) Shutdown() {
	p.cancel()
	p.wg.Wait()
	p.closeResults.Do(func() {
		close(p.results)
	})
}
