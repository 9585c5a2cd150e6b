package stage3d

import (
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ThreadPool runs fire-and-forget tasks on a fixed number of worker goroutines. Submitting never blocks: tasks
// wait in an unbounded queue until a worker is free.
type ThreadPool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []func()
	stopping bool
	stopped  bool

	workers errgroup.Group
}

// NewThreadPool starts a pool with the given number of workers; size <= 0 uses one worker per CPU.
func NewThreadPool(size int) *ThreadPool {
	if size <= 0 {
		size = runtime.NumCPU()
	}

	pool := &ThreadPool{}
	pool.cond = sync.NewCond(&pool.mu)

	for i := 0; i < size; i++ {
		pool.workers.Go(pool.work)
	}

	Logger().Debug("thread pool started", zap.Int("workers", size))

	return pool
}

// Submit queues a task. Tasks submitted after Stop are dropped with a warning.
func (pool *ThreadPool) Submit(task func()) {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	if pool.stopping {
		Logger().Warn("task submitted to a stopped thread pool was dropped")
		return
	}

	pool.queue = append(pool.queue, task)
	pool.cond.Signal()
}

// Stop lets the workers finish the queued tasks and waits for them to exit.
func (pool *ThreadPool) Stop() {
	pool.mu.Lock()
	if pool.stopped {
		pool.mu.Unlock()
		return
	}
	pool.stopping = true
	pool.stopped = true
	pool.cond.Broadcast()
	pool.mu.Unlock()

	_ = pool.workers.Wait()
}

func (pool *ThreadPool) work() error {
	for {
		pool.mu.Lock()
		for len(pool.queue) == 0 && !pool.stopping {
			pool.cond.Wait()
		}
		if len(pool.queue) == 0 {
			pool.mu.Unlock()
			return nil
		}
		task := pool.queue[0]
		pool.queue[0] = nil
		pool.queue = pool.queue[1:]
		pool.mu.Unlock()

		task()
	}
}
