package hci

import (
	"sync"
)

// Dispatcher runs posted tasks one at a time, in the order they were posted,
// on a single goroutine. Posting never blocks.
type Dispatcher struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool
	done   chan struct{}
}

func NewDispatcher() *Dispatcher {
	d := &Dispatcher{done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.tasks) == 0 && !d.closed {
			d.cond.Wait()
		}
		if d.closed {
			d.mu.Unlock()
			return
		}
		task := d.tasks[0]
		d.tasks[0] = nil
		d.tasks = d.tasks[1:]
		d.mu.Unlock()

		task()
	}
}

// Post queues f and reports whether it was accepted.
func (d *Dispatcher) Post(f func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.tasks = append(d.tasks, f)
	d.cond.Signal()
	return true
}

// Close drops queued tasks. The task currently running, if any, finishes.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.tasks = nil
	d.cond.Broadcast()
	d.mu.Unlock()
}

// Done is closed once the dispatch goroutine has exited.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}
