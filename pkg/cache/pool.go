package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// refreshTask is one scheduled background revalidation. abandon runs when
// the task is discarded without executing (queue overflow or pool
// shutdown) and must release any lock the task holds.
type refreshTask struct {
	key     string
	run     func(ctx context.Context)
	abandon func()
}

// RevalidationPool executes background refresh tasks on a fixed set of
// workers over a bounded queue. Refresh work is best-effort: when the
// queue is full the oldest queued task is dropped, never the caller
// blocked. Memory stays bounded under sustained load.
type RevalidationPool struct {
	logger zerolog.Logger
	tasks  chan *refreshTask

	mu     sync.Mutex
	closed bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRevalidationPool starts workers goroutines consuming a queue of
// queueSize pending refreshes.
func NewRevalidationPool(workers, queueSize int, logger zerolog.Logger) *RevalidationPool {
	if workers <= 0 {
		panic("cache: workers must be > 0")
	}
	if queueSize <= 0 {
		panic("cache: queueSize must be > 0")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &RevalidationPool{
		logger: logger,
		tasks:  make(chan *refreshTask, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Submit enqueues a refresh task, dropping the oldest queued task when
// the queue is full. Returns false if the pool is shut down; the task's
// abandon hook has run in that case.
func (p *RevalidationPool) Submit(task *refreshTask) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		task.abandon()
		return false
	}

	for {
		select {
		case p.tasks <- task:
			return true
		default:
		}
		// Queue full: drop the oldest task to make room. Submissions are
		// serialized under p.mu, so the retry cannot starve.
		select {
		case old := <-p.tasks:
			old.abandon()
			RefreshQueueDrops.Inc()
			p.logger.Warn().
				Str("key", old.key).
				Msg("Refresh queue full, dropped oldest task")
		default:
			// A worker drained the queue between the two selects.
		}
	}
}

// Shutdown stops accepting work and waits up to grace for queued and
// in-flight refreshes to finish, then cancels whatever remains.
func (p *RevalidationPool) Shutdown(grace time.Duration) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		p.logger.Warn().
			Dur("grace", grace).
			Msg("Revalidation pool shutdown grace exceeded, abandoning in-flight refreshes")
	}
	p.cancel()
}

func (p *RevalidationPool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		select {
		case <-p.ctx.Done():
			task.abandon()
		default:
			task.run(p.ctx)
		}
	}
}
