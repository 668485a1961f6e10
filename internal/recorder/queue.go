package recorder

import (
	"sync"
)

// Queue is a process-owned pool of delivery workers.
//
// Submit never blocks the caller: when every worker is busy and the buffer is
// full, the job runs on its own goroutine instead. Jobs are fire-and-forget;
// Queue never reports their outcome.
type Queue struct {
	workCh chan func()

	mu     sync.RWMutex
	closed bool

	workers  sync.WaitGroup
	overflow sync.WaitGroup
	stopOnce sync.Once
}

// NewQueue starts workers goroutines reading from a buffer of depth jobs.
func NewQueue(workers, depth int) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if depth < 0 {
		depth = 0
	}
	q := &Queue{workCh: make(chan func(), depth)}
	for i := 0; i < workers; i++ {
		q.workers.Add(1)
		go func() {
			defer q.workers.Done()
			for job := range q.workCh {
				run(job)
			}
		}()
	}
	return q
}

// Submit schedules job. It returns false, without running job, once the
// queue is closed.
func (q *Queue) Submit(job func()) bool {
	if job == nil {
		return true
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.workCh <- job:
	default:
		q.overflow.Add(1)
		go func() {
			defer q.overflow.Done()
			run(job)
		}()
	}
	return true
}

// Close stops accepting jobs and waits for every accepted job to finish.
// It is safe to call more than once.
func (q *Queue) Close() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.workCh)
	})
	q.workers.Wait()
	q.overflow.Wait()
}

// run executes job, containing any panic so one bad job cannot kill a worker.
func run(job func()) {
	defer func() {
		_ = recover()
	}()
	job()
}
