package worker

import (
	"context"
	"fmt"
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

// panicResult stands in for the result of a job that panicked
type panicResult struct {
	err error
}

func (r *panicResult) GetError() error {
	return r.err
}

type queued struct {
	index int
	job   Job
}

// Pool runs jobs on a fixed set of goroutines. Each job gets a result slot
// at submission, so Wait returns results in submission order.
type Pool struct {
	workers int
	ctx     context.Context
	cancel  context.CancelFunc
	queue   chan queued
	wg      sync.WaitGroup
	sending sync.WaitGroup
	once    sync.Once

	mu      sync.Mutex
	closed  bool
	results []Result
	onDone  func(index int, r Result)
}

// NewPool creates a worker pool bound to ctx
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
		queue:   make(chan queued, workers*2),
	}
}

// OnDone registers fn to be called as each job finishes. It runs on the
// worker goroutine, so it must be safe for concurrent use. Set it before Start.
func (p *Pool) OnDone(fn func(index int, r Result)) {
	p.mu.Lock()
	p.onDone = fn
	p.mu.Unlock()
}

// Start starts the workers
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
		case q, ok := <-p.queue:
			if !ok {
				return
			}
			p.finish(q.index, p.run(q.job))
		}
	}
}

// run executes job, turning a panic into an error result
func (p *Pool) run(job Job) (r Result) {
	defer func() {
		if v := recover(); v != nil {
			r = &panicResult{err: fmt.Errorf("job panicked: %v", v)}
		}
	}()
	return job.Execute(p.ctx)
}

func (p *Pool) finish(index int, r Result) {
	p.mu.Lock()
	p.results[index] = r
	fn := p.onDone
	p.mu.Unlock()

	if fn != nil {
		fn(index, r)
	}
}

// Submit queues a job. It reports false when the pool is closed or its
// context is done; a rejected job keeps its slot with a nil result.
func (p *Pool) Submit(job Job) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	index := len(p.results)
	p.results = append(p.results, nil)
	p.sending.Add(1)
	p.mu.Unlock()
	defer p.sending.Done()

	select {
	case <-p.ctx.Done():
		return false
	case p.queue <- queued{index: index, job: job}:
		return true
	}
}

// Wait closes the pool, waits for queued jobs and returns one result per
// Submit call in submission order. Jobs abandoned by cancellation have a
// nil result.
func (p *Pool) Wait() []Result {
	p.close()
	p.wg.Wait()
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Result(nil), p.results...)
}

// Shutdown cancels running jobs and stops the workers
func (p *Pool) Shutdown() {
	p.cancel()
	p.close()
	p.wg.Wait()
}

// close rejects further submissions and closes the queue once every
// in-flight Submit has returned
func (p *Pool) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.sending.Wait()
	p.once.Do(func() { close(p.queue) })
}
