// Package worker bounds how much work is in flight at once.
package worker

import (
	"context"
	"sync"
)

// Job is a unit of work executed by the pool
type Job interface {
	Execute(ctx context.Context) Result
}

// Result is what a job produces
type Result interface {
	GetError() error
}

type queuedJob struct {
	index int
	job   Job
}

// Pool runs jobs on a fixed number of workers and returns results in submission order.
// Once ctx is cancelled no queued job is started; jobs already running finish normally.
type Pool struct {
	workers int
	ctx     context.Context
	queue   chan queuedJob

	mu      sync.Mutex
	results []Result
	skipped int

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewPool creates a pool bound to ctx
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	return &Pool{
		workers: workers,
		ctx:     ctx,
		queue:   make(chan queuedJob, workers*2),
	}
}

// Start launches the workers
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for q := range p.queue {
		if p.ctx.Err() != nil {
			p.mu.Lock()
			p.skipped++
			p.mu.Unlock()
			continue
		}

		result := q.job.Execute(p.ctx)

		p.mu.Lock()
		p.results[q.index] = result
		p.mu.Unlock()
	}
}

// Submit queues a job. It returns false when the pool context is already done.
func (p *Pool) Submit(job Job) bool {
	if p.ctx.Err() != nil {
		return false
	}

	p.mu.Lock()
	index := len(p.results)
	p.results = append(p.results, nil)
	p.mu.Unlock()

	select {
	case p.queue <- queuedJob{index: index, job: job}:
		return true
	case <-p.ctx.Done():
		p.mu.Lock()
		p.skipped++
		p.mu.Unlock()
		return false
	}
}

// Wait closes the queue and blocks until every worker exits.
// The slice is indexed by submission order; jobs skipped after cancellation are nil.
func (p *Pool) Wait() []Result {
	p.closeOnce.Do(func() { close(p.queue) })
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.results
}

// Skipped returns how many submitted jobs never ran because of cancellation
func (p *Pool) Skipped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.skipped
}
