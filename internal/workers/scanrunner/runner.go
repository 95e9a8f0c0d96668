package scanrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"

	"cloudauditor/internal/ports"
)

var ErrPoolClosed = errors.New("scan pool is shut down")

var _ ports.JobQueue = (*Pool)(nil)

// Pool runs scan jobs on a fixed number of workers. Jobs are queued in
// memory; a process restart loses whatever was still queued.
type Pool struct {
	workers int
	log     *slog.Logger

	mu      sync.Mutex
	queue   []ports.ScanJob
	closed  bool
	started bool
	active  map[string]context.CancelFunc

	wake chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
}

func NewPool(workers int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		workers: workers,
		log:     logger,
		active:  make(map[string]context.CancelFunc),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
}

// Start launches the workers. Job contexts derive from ctx, so callers that
// want Shutdown to drain should pass a context that outlives the signal
// handler's.
func (p *Pool) Start(ctx context.Context, processor ports.ScanProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(idx int) {
			defer p.wg.Done()
			for {
				job, ok := p.next(ctx)
				if !ok {
					return
				}
				p.run(ctx, idx, processor, job)
			}
		}(i)
	}
}

// Submit enqueues job without waiting for a worker.
func (p *Pool) Submit(job ports.ScanJob) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.queue = append(p.queue, job)
	p.mu.Unlock()
	p.signal()
	return nil
}

func (p *Pool) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pool) next(ctx context.Context) (ports.ScanJob, bool) {
	for {
		p.mu.Lock()
		if len(p.queue) > 0 {
			job := p.queue[0]
			p.queue = p.queue[1:]
			more := len(p.queue) > 0
			p.mu.Unlock()
			if more {
				p.signal()
			}
			return job, true
		}
		closed := p.closed
		p.mu.Unlock()
		if closed {
			return ports.ScanJob{}, false
		}

		select {
		case <-p.wake:
		case <-p.stop:
		case <-ctx.Done():
			return ports.ScanJob{}, false
		}
	}
}

func (p *Pool) run(ctx context.Context, worker int, processor ports.ScanProcessor, job ports.ScanJob) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	p.active[job.ScanID] = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.active, job.ScanID)
		p.mu.Unlock()
	}()

	if err := ProcessInline(jobCtx, processor, job.ScanID); err != nil {
		p.log.Warn("scan job failed", "worker", worker, "scan_id", job.ScanID, "err", err)
		return
	}
	p.log.Debug("scan job done", "worker", worker, "scan_id", job.ScanID)
}

// Active lists the scan ids currently being processed.
func (p *Pool) Active() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.active))
	for id := range p.active {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// cancel stops a running scan. Nothing calls it over the API yet.
func (p *Pool) cancel(scanID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.active[scanID]
	if ok {
		c()
	}
	return ok
}

// Shutdown stops accepting jobs and waits for queued and running ones. When
// ctx ends first, queued jobs are dropped and running ones cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	started := p.started
	p.mu.Unlock()
	close(p.stop)

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}

	p.mu.Lock()
	dropped := len(p.queue)
	p.queue = nil
	for _, c := range p.active {
		c()
	}
	running := len(p.active)
	p.mu.Unlock()

	p.log.Warn("scan pool shutdown interrupted", "dropped", dropped, "cancelled", running)
	return ctx.Err()
}

// ProcessInline runs processor for scanID on the caller's goroutine. A panic
// in the processor is returned as an error.
func ProcessInline(ctx context.Context, processor ports.ScanProcessor, scanID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scan %s panicked: %v\n%s", scanID, r, debug.Stack())
		}
	}()
	return processor.Process(ctx, scanID)
}
