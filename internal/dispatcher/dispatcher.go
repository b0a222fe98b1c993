// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dispatcher is a reference implementation of gameconn.Dispatcher: a
// single goroutine draining a FIFO task queue, plus time.Timer-backed delayed
// posting. It exists so gameconn is runnable and testable standalone; a real
// game server is expected to supply its own Dispatcher wired into its
// existing world tick queue.
package dispatcher

import (
	"sync"
	"time"
)

// Dispatcher serializes task execution onto one worker goroutine, the same
// role boost::asio::io_service::strand / a single-threaded world tick queue
// plays in the system this was distilled from.
type Dispatcher struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

// New starts a Dispatcher with the given task queue depth. A depth of 0
// means unbuffered: AddTask blocks the caller until the worker is free to
// accept the task.
func New(queueDepth int) *Dispatcher {
	d := &Dispatcher{
		tasks: make(chan func(), queueDepth),
		done:  make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case task := <-d.tasks:
			task()
		case <-d.done:
			d.drain()
			return
		}
	}
}

// drain runs any tasks already queued before Stop was called, so that a task
// posted just before shutdown (e.g. a final release) still executes.
func (d *Dispatcher) drain() {
	for {
		select {
		case task := <-d.tasks:
			task()
		default:
			return
		}
	}
}

// AddTask implements gameconn.Dispatcher.
func (d *Dispatcher) AddTask(task func()) {
	select {
	case d.tasks <- task:
	case <-d.done:
	}
}

// AddEvent implements gameconn.Dispatcher.
func (d *Dispatcher) AddEvent(delay time.Duration, task func()) (cancel func()) {
	timer := time.AfterFunc(delay, func() { d.AddTask(task) })
	return func() { timer.Stop() }
}

// Stop signals the worker to finish any already-queued tasks and exit, then
// waits for it to do so. It does not accept new tasks posted concurrently
// with the call; callers that need that guarantee must stop posting first.
func (d *Dispatcher) Stop() {
	d.once.Do(func() { close(d.done) })
	d.wg.Wait()
}
