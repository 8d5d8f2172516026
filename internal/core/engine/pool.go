package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/feedmeta/feedmeta/internal/core"
)

// Errors returned by WorkerPool.Submit.
var (
	ErrPoolClosed = errors.New("worker pool is closed")
	ErrPoolFull   = errors.New("worker pool is full")
)

// FetchOutcome is what a worker reports back for one task.
type FetchOutcome struct {
	Task     Task
	Result   core.ProfileResult
	Err      error
	Duration time.Duration
}

type fetchJob struct {
	task Task
	req  FetchRequest
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start
	// If zero or negative, defaults to MaxConcurrency
	WorkerCount int

	// FetchTimeout bounds fetches whose request carries no Timeout
	FetchTimeout time.Duration
}

// WorkerPool runs fetches on a fixed set of goroutines and reports each
// outcome on Results. The scheduler never submits more jobs than workers,
// so Submit does not block.
type WorkerPool struct {
	fetcher     Fetcher
	workerCount int
	timeout     time.Duration

	jobs    chan fetchJob
	results chan FetchOutcome

	// wg tracks active worker goroutines for clean shutdown
	wg sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	closed  bool

	logger Logger
}

// NewWorkerPool creates a new worker pool with the specified configuration
func NewWorkerPool(fetcher Fetcher, config WorkerPoolConfig, logger Logger) *WorkerPool {
	logger = loggerOrNop(logger)

	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = MaxConcurrency
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		fetcher:     fetcher,
		workerCount: workerCount,
		timeout:     config.FetchTimeout,
		jobs:        make(chan fetchJob, workerCount),
		results:     make(chan FetchOutcome, workerCount),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
	}
}

// Start launches the worker goroutines. Calling it twice is a no-op.
func (p *WorkerPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit hands a task to the next free worker.
func (p *WorkerPool) Submit(task Task, req FetchRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.jobs <- fetchJob{task: task, req: req}:
		return nil
	default:
		return fmt.Errorf("%w: capacity %d reached", ErrPoolFull, cap(p.jobs))
	}
}

// Results delivers one outcome per submitted task.
func (p *WorkerPool) Results() <-chan FetchOutcome {
	return p.results
}

// Stop cancels in-flight fetches and waits for the workers to exit.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("starting fetch worker", zap.Int("worker_id", id))

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("stopping fetch worker", zap.Int("worker_id", id))
			return
		case job := <-p.jobs:
			outcome := p.process(job)
			select {
			case p.results <- outcome:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

func (p *WorkerPool) process(job fetchJob) FetchOutcome {
	timeout := job.req.Timeout
	if timeout <= 0 {
		timeout = p.timeout
	}
	started := time.Now()
	result, err := runFetch(p.ctx, p.fetcher, job.req, timeout)
	outcome := FetchOutcome{
		Task:     job.task,
		Result:   result,
		Err:      err,
		Duration: time.Since(started),
	}
	if err != nil {
		p.logger.Debug("fetch failed",
			zap.String("key", job.task.Key),
			zap.Duration("duration", outcome.Duration),
			zap.Error(err))
	}
	return outcome
}
