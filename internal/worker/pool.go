package worker

import (
	"context"
	"sync"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// Pool manages workers that execute jobs concurrently. Each result
// lands in the slot its Submit call established, so Wait hands back
// results in submission order no matter when jobs complete.
type Pool struct {
	workers  int
	jobQueue chan indexedJob
	wg       sync.WaitGroup
	mu       sync.Mutex
	results  []Result
	ctx      context.Context
	cancel   context.CancelFunc
}

type indexedJob struct {
	index int
	job   Job
}

// NewPool creates a worker pool running under the parent context
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	poolCtx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:  workers,
		jobQueue: make(chan indexedJob, workers*2), // Buffered to prevent blocking
		ctx:      poolCtx,
		cancel:   cancel,
	}
}

// Start starts the worker pool
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// worker is the worker goroutine that processes jobs
func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case ij, ok := <-p.jobQueue:
			if !ok {
				return
			}
			result := ij.job.Execute(p.ctx)
			p.mu.Lock()
			p.results[ij.index] = result
			p.mu.Unlock()
		}
	}
}

// Submit queues a job and reserves its result slot
func (p *Pool) Submit(job Job) {
	p.mu.Lock()
	index := len(p.results)
	p.results = append(p.results, nil)
	p.mu.Unlock()

	select {
	case <-p.ctx.Done():
	case p.jobQueue <- indexedJob{index: index, job: job}:
	}
}

// Wait blocks until all submitted jobs complete and returns results in
// submission order. Jobs the context cancelled before execution leave a
// nil slot. Call Wait at most once.
func (p *Pool) Wait() []Result {
	close(p.jobQueue)
	p.wg.Wait()
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.results
}

// Shutdown shuts down the worker pool immediately without draining the
// queue
func (p *Pool) Shutdown() {
	p.cancel()
	p.wg.Wait()
}
