package channel

import (
	"fmt"
	"sync"
)

// workerPool executes blocking endpoint calls off the caller's goroutine.
// Workers hold only transient per-request state; results travel back through
// the inbound queue.
type workerPool struct {
	tasks chan func()
	wg    sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

func newWorkerPool(workers, backlog int) *workerPool {
	if workers <= 0 {
		workers = 1
	}
	if backlog <= 0 {
		backlog = workers
	}
	p := &workerPool{tasks: make(chan func(), backlog)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}
	return p
}

// submit hands a task to the pool without blocking; a full backlog is
// reported as an error so the caller can apply backpressure.
func (p *workerPool) submit(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return fmt.Errorf("worker pool stopped")
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return fmt.Errorf("worker backlog full")
	}
}

// stop closes the pool and waits for in-flight tasks to finish.
func (p *workerPool) stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
