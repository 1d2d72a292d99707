package bus

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"tradecore/internal/obs"
)

// Lane is the task FIFO of one listener. At most one of its tasks runs at a
// time, so a stalled listener holds a single worker and its backlog waits in
// the lane instead of in the consumer.
type Lane struct {
	tasks     []func()
	scheduled bool
}

// Pool runs lane tasks on at most size goroutines. Ready lanes are served
// round robin, one task per turn. Submit never waits on a running task.
type Pool struct {
	g       errgroup.Group
	size    int
	metrics *obs.Metrics

	mu      sync.Mutex
	ready   []*Lane
	workers int
	queued  int
	pending sync.WaitGroup
}

// NewPool creates a pool. A size <= 0 means unbounded.
func NewPool(size int, metrics *obs.Metrics) *Pool {
	p := &Pool{size: size, metrics: metrics}
	if size > 0 {
		p.g.SetLimit(size)
	}
	return p
}

// Submit appends task to l and starts a worker when l became ready and a
// slot is free.
func (p *Pool) Submit(l *Lane, task func()) {
	p.pending.Add(1)

	p.mu.Lock()
	l.tasks = append(l.tasks, task)
	p.queued++
	spawn := false
	if !l.scheduled {
		l.scheduled = true
		p.ready = append(p.ready, l)
		spawn = p.size <= 0 || p.workers < p.size
		if spawn {
			p.workers++
		}
	}
	p.mu.Unlock()

	// A slot is free or about to be: an exiting worker releases it right
	// after decrementing workers.
	if spawn {
		p.g.Go(p.work)
	}
}

// Queued returns the number of tasks waiting in lanes.
func (p *Pool) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queued
}

func (p *Pool) work() error {
	for {
		p.mu.Lock()
		if len(p.ready) == 0 {
			p.workers--
			p.mu.Unlock()
			return nil
		}
		l := p.ready[0]
		p.ready[0] = nil
		p.ready = p.ready[1:]
		task := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		p.queued--
		p.mu.Unlock()

		p.run(task)

		p.mu.Lock()
		if len(l.tasks) > 0 {
			p.ready = append(p.ready, l)
		} else {
			l.scheduled = false
		}
		p.mu.Unlock()
	}
}

func (p *Pool) run(task func()) {
	p.metrics.DispatchStarted()
	defer p.metrics.DispatchDone()
	defer p.pending.Done()
	task()
}

// Wait blocks until every submitted task has finished. No task may be
// submitted concurrently with Wait.
func (p *Pool) Wait() {
	p.pending.Wait()
	_ = p.g.Wait()
}
