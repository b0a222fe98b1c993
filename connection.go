// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gameconn

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// closeState mirrors spec.md §4.3's three-state close state machine. It only
// ever advances NONE → REQUESTED → CLOSING.
type closeState int32

const (
	closeStateNone closeState = iota
	closeStateRequested
	closeStateClosing
)

func (s closeState) String() string {
	switch s {
	case closeStateNone:
		return "none"
	case closeStateRequested:
		return "requested"
	case closeStateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Connection owns one TCP socket: it implements the framed read loop, the
// outbound write queue, and the close state machine described in spec.md
// §4.3. A Connection is created by a ConnectionManager and is never
// constructed directly.
//
// Lifetime: a Connection is kept alive by ordinary Go references (the
// manager's registry, its read-loop goroutine, any in-flight write
// goroutine) rather than an explicit refcount. See SPEC_FULL.md §4.3 for the
// rationale.
type Connection struct {
	id         uuid.UUID
	conn       net.Conn
	port       ServicePort
	manager    *ConnectionManager
	dispatcher Dispatcher
	cfg        Config
	log        *zap.Logger

	mu sync.Mutex

	message NetworkMessage

	outputQueue []*OutputMessage
	protocol    Protocol

	started       bool
	receivedFirst bool
	closeState    closeState

	pendingRead  int
	pendingWrite int
	refCount     int

	readError    bool
	writeError   bool
	socketClosed bool

	releaseScheduled bool
	releaseOnce      sync.Once
	released         chan struct{}

	pendingTasks []func()
}

func newConnection(conn net.Conn, port ServicePort, manager *ConnectionManager, dispatcher Dispatcher, cfg Config, log *zap.Logger) *Connection {
	if log == nil {
		log = zap.NewNop()
	}
	return &Connection{
		id:         uuid.New(),
		conn:       conn,
		port:       port,
		manager:    manager,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log,
		released:   make(chan struct{}),
	}
}

// ID identifies this Connection for logging; it has no wire meaning.
func (c *Connection) ID() uuid.UUID { return c.id }

// Released is closed exactly once, after the Connection has torn down: every
// outstanding read and write has retired and the socket is closed. Tests use
// it to observe the "destroyed exactly once" invariant (spec.md §8, property
// 1) without a destructor to assert against.
func (c *Connection) Released() <-chan struct{} { return c.released }

// Handle installs a preselected Protocol, invokes OnConnect, then arms the
// first read. Valid only once, before Start/Handle has run and before
// Close. Used by ServicePorts with a fixed protocol (spec.md §9's
// "preinstalled protocol" case); ServicePorts that pick a Protocol from the
// first packet use Start instead.
func (c *Connection) Handle(protocol Protocol) error {
	if protocol == nil {
		return ErrInvalidArgument
	}
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.protocol = protocol
	c.mu.Unlock()

	protocol.SetConnection(c)
	protocol.OnConnect()
	c.startReadLoop()
	return nil
}

// Start arms the first read without installing a Protocol; the ServicePort
// chooses one once the first frame arrives. This is the common path.
func (c *Connection) Start() error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	c.startReadLoop()
	return nil
}

func (c *Connection) startReadLoop() {
	go c.readLoop()
}

// GetIP returns the current remote IPv4 address in network byte order, or 0
// if it cannot be determined (spec.md §4.3).
func (c *Connection) GetIP() uint32 {
	addr, ok := c.conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return 0
	}
	ip4 := addr.IP.To4()
	if ip4 == nil {
		return 0
	}
	return binary.BigEndian.Uint32(ip4)
}

// Close requests shutdown. It may be called from any goroutine and any
// number of times; only the first call has any effect (spec.md §4.3,
// testable property 5).
func (c *Connection) Close() {
	c.mu.Lock()
	c.requestCloseLocked()
	c.mu.Unlock()
	c.flushPendingTasks()
}

// queueTaskLocked defers posting task to the Dispatcher until c.mu has been
// released. Posting while the lock is held would deadlock against a
// Dispatcher whose AddTask can run task synchronously before returning
// (spec.md §4.3; original_source/connection.cpp:382-383 releases its lock
// before scheduling). Must be called with c.mu held; every caller's unlock
// must be followed by flushPendingTasks.
func (c *Connection) queueTaskLocked(task func()) {
	c.pendingTasks = append(c.pendingTasks, task)
}

// flushPendingTasks posts every task queued by queueTaskLocked since the
// last flush. Must be called without c.mu held.
func (c *Connection) flushPendingTasks() {
	c.mu.Lock()
	tasks := c.pendingTasks
	c.pendingTasks = nil
	c.mu.Unlock()

	for _, task := range tasks {
		c.dispatcher.AddTask(task)
	}
}

// requestCloseLocked implements the NONE → REQUESTED transition. Must be
// called with c.mu held; the caller must flush after unlocking.
func (c *Connection) requestCloseLocked() {
	if c.closeState != closeStateNone {
		return
	}
	c.closeState = closeStateRequested
	c.refCount++
	c.queueTaskLocked(c.closeConnectionTask)
}

// closeConnectionTask implements the REQUESTED → CLOSING transition. It runs
// on the Dispatcher, matching the original's "dispatcher thread" requirement
// so teardown observations are serialized with other dispatcher-posted work.
func (c *Connection) closeConnectionTask() {
	c.mu.Lock()
	defer func() {
		c.refCount--
		c.maybeReleaseLocked()
		c.mu.Unlock()
		c.flushPendingTasks()
	}()

	if c.closeState != closeStateRequested {
		c.log.Warn("closeConnectionTask called from unexpected state",
			zap.Stringer("state", c.closeState))
		return
	}
	c.closeState = closeStateClosing

	if proto := c.protocol; proto != nil {
		c.protocol = nil
		proto.SetConnection(nil)
		c.refCount++
		c.queueTaskLocked(func() { c.releaseProtocolTask(proto) })
	}

	c.progressTeardownLocked()
}

func (c *Connection) releaseProtocolTask(proto Protocol) {
	proto.ReleaseProtocol()
	c.mu.Lock()
	c.refCount--
	c.maybeReleaseLocked()
	c.mu.Unlock()
	c.flushPendingTasks()
}

// progressTeardownLocked is the re-architected spec.md §4.3 write(): it
// always runs with c.mu held and always returns with c.mu still held (the
// caller unlocks it), so unlike the original there is no
// "caller must not unlock" signal to interpret.
func (c *Connection) progressTeardownLocked() {
	if c.pendingWrite != 0 && !c.writeError {
		return
	}
	if !c.socketClosed {
		if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.log.Warn("closing socket", zap.Error(err))
		}
		c.socketClosed = true
	}
	if c.pendingRead == 0 {
		c.maybeReleaseLocked()
	}
}

// maybeReleaseLocked queues the one-time release task once every outstanding
// read, write, and external reference has retired and the socket is closed
// (spec.md §3, Connection invariant 3). Must be called with c.mu held; the
// caller must flush after unlocking.
func (c *Connection) maybeReleaseLocked() {
	if c.releaseScheduled {
		return
	}
	if c.pendingRead != 0 || c.pendingWrite != 0 || c.refCount != 0 || !c.socketClosed {
		return
	}
	c.releaseScheduled = true
	c.queueTaskLocked(c.release)
}

// release is the replacement for the original's deleteConnection: it has no
// destructor to call, only observable side effects, and sync.Once makes it
// run exactly once regardless of how many times it was posted.
func (c *Connection) release() {
	c.releaseOnce.Do(func() {
		c.manager.releaseConnection(c)
		close(c.released)
	})
}

// readLoop runs spec.md §4.3's numbered read state machine in a single
// goroutine for the Connection's lifetime. Because it is sequential code in
// one goroutine, "at most one read outstanding" holds without any extra
// bookkeeping.
func (c *Connection) readLoop() {
	for {
		c.mu.Lock()
		if c.closeState == closeStateClosing {
			c.progressTeardownLocked()
			c.mu.Unlock()
			c.flushPendingTasks()
			return
		}
		c.pendingRead++
		c.mu.Unlock()

		_, err := io.ReadFull(c.conn, c.message.headerBuf())

		c.mu.Lock()
		c.pendingRead--
		if c.closeState == closeStateClosing {
			c.progressTeardownLocked()
			c.mu.Unlock()
			c.flushPendingTasks()
			return
		}
		if err != nil {
			c.handleReadErrorLocked(err)
			c.mu.Unlock()
			c.flushPendingTasks()
			return
		}

		size := c.message.decodeHeaderLength()
		if !validBodyLength(size) {
			c.handleReadErrorLocked(ErrFrameTooLarge)
			c.mu.Unlock()
			c.flushPendingTasks()
			return
		}
		c.pendingRead++
		c.mu.Unlock()

		_, err = io.ReadFull(c.conn, c.message.bodyBuf(size))

		c.mu.Lock()
		c.pendingRead--
		if c.closeState == closeStateClosing {
			c.progressTeardownLocked()
			c.mu.Unlock()
			c.flushPendingTasks()
			return
		}
		if err != nil {
			c.handleReadErrorLocked(err)
			c.mu.Unlock()
			c.flushPendingTasks()
			return
		}

		cont := c.dispatchLocked()
		c.mu.Unlock()
		c.flushPendingTasks()
		if !cont {
			return
		}
	}
}

// dispatchLocked handles checksum verification and protocol selection for
// one decoded frame, then delivers it. It is called with c.mu held and
// releases it for the duration of the Protocol callback, since Go mutexes
// (unlike the original's recursive one) are not safely re-entered if the
// callback calls back into Send or Close. It reports whether the read loop
// should continue.
func (c *Connection) dispatchLocked() bool {
	checksumEnabled := c.message.verifyChecksum()
	if checksumEnabled {
		c.message.SkipBytes(checksumLength)
	}

	if !c.receivedFirst {
		c.receivedFirst = true
		if c.protocol == nil {
			proto := c.port.MakeProtocol(checksumEnabled, &c.message)
			if proto == nil {
				c.requestCloseLocked()
				return false
			}
			proto.SetConnection(c)
			c.protocol = proto
		} else {
			// A preinstalled protocol: the leading byte is an opaque tag,
			// never validated (spec.md §9, left as an open question and
			// decided in DESIGN.md).
			c.message.SkipBytes(1)
		}
		proto := c.protocol
		c.mu.Unlock()
		proto.OnRecvFirstMessage(&c.message)
		c.mu.Lock()
		return true
	}

	proto := c.protocol
	c.mu.Unlock()
	proto.OnRecvMessage(&c.message)
	c.mu.Lock()
	return true
}

// Send enqueues or transmits one outbound frame (spec.md §4.3). Returns
// false if the connection is already closing or has a sticky write error;
// true does not imply the frame reached the wire, only that it was
// accepted.
//
// Send holds the connection lock for the duration of the call, including
// the OnSendMessage callback, to preserve strict send-order FIFO under
// concurrent callers; see Protocol's doc comment for the resulting
// constraint on OnSendMessage.
func (c *Connection) Send(msg *OutputMessage) bool {
	c.mu.Lock()
	defer func() {
		c.mu.Unlock()
		c.flushPendingTasks()
	}()

	if c.closeState == closeStateClosing || c.writeError {
		return false
	}

	if proto := msg.Protocol(); proto != nil {
		proto.OnSendMessage(msg)
	}

	if c.pendingWrite == 0 {
		c.internalSendLocked(msg)
		return true
	}

	c.outputQueue = append(c.outputQueue, msg)
	c.pendingWrite++
	if c.pendingWrite > c.cfg.MaxOutputQueueDepth && c.cfg.ForceCloseSlowConnection {
		c.log.Warn("forcing slow connection to disconnect", zap.Int("queueDepth", c.pendingWrite))
		c.requestCloseLocked()
	}
	return true
}

// internalSendLocked starts an asynchronous write of msg: a short-lived
// goroutine performs the blocking net.Conn.Write and reports completion to
// onWrite, the direct translation of async_write(...).then(onWrite).
func (c *Connection) internalSendLocked(msg *OutputMessage) {
	c.pendingWrite++
	msg.Seal()
	go c.writeFrame(msg)
}

func (c *Connection) writeFrame(msg *OutputMessage) {
	buf := make([]byte, msg.wireLength())
	msg.writeFrame(buf)
	_, err := c.conn.Write(buf)
	c.onWrite(msg, err)
}

// onWrite is the completion handler for one asynchronous write (spec.md
// §4.3). The pending counter is a combined "outstanding or queued frames"
// tally: popping the next queued frame reuses one of the counted slots, so
// only one decrement nets out both the completed write and the dequeue.
func (c *Connection) onWrite(msg *OutputMessage, err error) {
	c.mu.Lock()
	defer func() {
		c.mu.Unlock()
		c.flushPendingTasks()
	}()

	msg.Release()

	if err == nil {
		if c.pendingWrite > 0 {
			if len(c.outputQueue) > 0 {
				next := c.outputQueue[0]
				c.outputQueue = c.outputQueue[1:]
				c.pendingWrite--
				c.internalSendLocked(next)
			}
			c.pendingWrite--
		} else {
			c.log.Warn("onWrite: unexpected notification with no pending writes")
		}
	} else {
		c.pendingWrite--
		c.handleWriteErrorLocked(err)
	}

	if c.closeState == closeStateClosing {
		c.progressTeardownLocked()
	}
}

// transportErrorKind classifies a read/write error into the three buckets of
// spec.md §7.
type transportErrorKind int

const (
	errKindAborted transportErrorKind = iota
	errKindRemoteClosed
	errKindOther
)

func classifyTransportError(err error) transportErrorKind {
	if errors.Is(err, net.ErrClosed) {
		return errKindAborted
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED) {
		return errKindRemoteClosed
	}
	return errKindOther
}

// handleReadErrorLocked implements spec.md §7's read error policy. Must be
// called with c.mu held.
func (c *Connection) handleReadErrorLocked(err error) {
	c.readError = true
	switch classifyTransportError(err) {
	case errKindAborted:
		c.log.Debug("read aborted by local close", zap.Error(err))
	case errKindRemoteClosed:
		c.requestCloseLocked()
	default:
		c.log.Warn("read error", zap.Error(err))
		c.requestCloseLocked()
	}
}

// handleWriteErrorLocked implements spec.md §7's write error policy. Must be
// called with c.mu held.
func (c *Connection) handleWriteErrorLocked(err error) {
	c.writeError = true
	switch classifyTransportError(err) {
	case errKindAborted:
		c.log.Debug("write aborted by local close", zap.Error(err))
	case errKindRemoteClosed:
		c.requestCloseLocked()
	default:
		c.log.Warn("write error", zap.Error(err))
		c.requestCloseLocked()
	}
}
