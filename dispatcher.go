// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gameconn

import "time"

// Dispatcher is the single serial task queue gameconn posts teardown and
// release work onto, so that those observations are serialized with the rest
// of a game server's work. gameconn treats it as opaque: it only enqueues.
//
// A reference implementation is provided by internal/dispatcher; a real
// server is free to supply its own (e.g. one backed by its existing world
// tick queue).
type Dispatcher interface {
	// AddTask enqueues task for FIFO execution on the dispatcher's single
	// worker.
	AddTask(task func())

	// AddEvent schedules task to be enqueued after delay elapses. It
	// returns a cancel function; calling it before task has been enqueued
	// prevents that from happening.
	AddEvent(delay time.Duration, task func()) (cancel func())
}
