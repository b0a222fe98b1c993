// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dispatcher

import (
	"sync"
	"testing"
	"time"
)

func TestDispatcherRunsTasksFIFO(t *testing.T) {
	d := New(16)
	defer d.Stop()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(5)

	for i := 0; i < 5; i++ {
		i := i
		d.AddTask(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tasks to run")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want strictly increasing from 0", order)
		}
	}
}

func TestDispatcherAddEventFiresAfterDelay(t *testing.T) {
	d := New(16)
	defer d.Stop()

	fired := make(chan struct{})
	d.AddEvent(20*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("AddEvent task never fired")
	}
}

func TestDispatcherAddEventCancel(t *testing.T) {
	d := New(16)
	defer d.Stop()

	fired := make(chan struct{}, 1)
	cancel := d.AddEvent(50*time.Millisecond, func() { fired <- struct{}{} })
	cancel()

	select {
	case <-fired:
		t.Fatal("cancelled event fired anyway")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestDispatcherStopDrainsQueuedTasks(t *testing.T) {
	d := New(16)

	ran := make(chan struct{}, 1)
	d.AddTask(func() { ran <- struct{}{} })
	d.Stop()

	select {
	case <-ran:
	default:
		t.Fatal("a task queued before Stop should still run during drain")
	}
}

func TestDispatcherStopIsIdempotent(t *testing.T) {
	d := New(4)
	d.Stop()
	d.Stop()
}
