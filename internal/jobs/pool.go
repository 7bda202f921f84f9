package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var errPoolClosed = errors.New("worker pool is shutting down")

// pool runs tasks on a fixed number of goroutines fed by a bounded queue.
// submit blocks while the queue is full.
type pool struct {
	tasks   chan func()
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	pending atomic.Int64
	onDepth func(int)
}

func newPool(workers, queueSize int, onDepth func(int)) *pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if onDepth == nil {
		onDepth = func(int) {}
	}
	p := &pool{
		tasks:   make(chan func(), queueSize),
		onDepth: onDepth,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
		p.onDepth(int(p.pending.Add(-1)))
	}
}

// submit queues task, waiting for room until ctx ends.
func (p *pool) submit(ctx context.Context, task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errPoolClosed
	}
	p.onDepth(int(p.pending.Add(1)))
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		p.onDepth(int(p.pending.Add(-1)))
		return ctx.Err()
	}
}

// close stops accepting work and waits for queued tasks to finish or ctx to
// end, whichever comes first.
func (p *pool) close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
