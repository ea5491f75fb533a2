package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/papercomputeco/recall/pkg/record"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is one pattern waiting to be embedded.
type Job struct {
	Pattern *record.Pattern

	// Hash is the pattern's content hash, computed at enqueue time.
	Hash string
}

// PoolConfig configures a Pool.
type PoolConfig struct {
	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	Logger *slog.Logger
}

// Pool runs embedding jobs on a fixed set of workers.
type Pool struct {
	config *PoolConfig
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger
	handle func(context.Context, Job)
	ctx    context.Context
}

// NewPool starts the pool's workers. Jobs run with ctx; handle must not panic.
func NewPool(ctx context.Context, c *PoolConfig, handle func(context.Context, Job)) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}
	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	p := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
		handle: handle,
		ctx:    ctx,
	}

	p.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go p.worker(i)
	}
	return p, nil
}

// Enqueue submits a job without blocking. It returns false, dropping the
// job, when the queue is full.
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("job queued", "pattern_id", job.Pattern.ID)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped", "pattern_id", job.Pattern.ID)
		return false
	}
}

// Submit blocks until the job is queued or ctx is done.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	select {
	case p.queue <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits for queued ones to drain.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("ingest worker started", "worker_id", id)

	for job := range p.queue {
		p.handle(p.ctx, job)
	}

	p.logger.Debug("ingest worker stopped", "worker_id", id)
}
