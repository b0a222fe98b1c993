// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gameconn

import (
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// connectionBlock is the single per-IP throttle record, matching
// original_source/connection.cpp's ConnectionBlock: one entry per clientIP,
// never one per (protocol, ip) pair.
type connectionBlock struct {
	lastLogin    time.Time
	loginsAmount int
	lastProtocol uint32
}

// ConnectionManager is the registry and login-throttle authority described
// in spec.md §4.4: it creates and tracks every live Connection, and answers
// isDisabled/addAttempt for whatever Protocol implements login.
//
// Throttle state is kept one record per IP (not per protocol ID): a record
// remembers the protocol ID of its most recent attempt, and IsDisabled only
// fires when the current attempt's protocol differs from that one (spec.md
// §4.4; original_source/connection.cpp:77-79).
type ConnectionManager struct {
	cfg        Config
	dispatcher Dispatcher
	log        *zap.Logger

	mu          sync.Mutex
	connections map[*Connection]struct{}
	loginBlocks map[uint32]*connectionBlock
	closed      bool

	pruneCancel func()
}

// NewConnectionManager builds a ConnectionManager that posts its periodic
// throttle-table prune onto dispatcher. dispatcher and log must outlive the
// manager.
func NewConnectionManager(cfg Config, dispatcher Dispatcher, log *zap.Logger) *ConnectionManager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &ConnectionManager{
		cfg:         cfg,
		dispatcher:  dispatcher,
		log:         log,
		connections: make(map[*Connection]struct{}),
		loginBlocks: make(map[uint32]*connectionBlock),
	}
	m.scheduleNextPrune()
	return m
}

// CreateConnection registers a new Connection over conn, to be driven by
// port once its first frame arrives. The caller is responsible for calling
// Start (or Handle, for a preinstalled protocol).
func (m *ConnectionManager) CreateConnection(conn net.Conn, port ServicePort) (*Connection, error) {
	if conn == nil || port == nil {
		return nil, ErrInvalidArgument
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	c := newConnection(conn, port, m, m.dispatcher, m.cfg, m.log)
	m.connections[c] = struct{}{}
	m.mu.Unlock()

	return c, nil
}

// releaseConnection drops c from the registry. Called exactly once, from
// Connection.release.
func (m *ConnectionManager) releaseConnection(c *Connection) {
	m.mu.Lock()
	delete(m.connections, c)
	m.mu.Unlock()
}

// Count reports the number of currently registered connections.
func (m *ConnectionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.connections)
}

// CloseAll requests Close on every registered connection. Unlike the
// original, it does not reach into each connection's socket directly: it
// drives the same Close state machine every caller uses, so there is only
// one code path that ever shuts a socket down. Registry entries drop as each
// connection's own release task runs, not synchronously with this call.
func (m *ConnectionManager) CloseAll() {
	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.connections))
	for c := range m.connections {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// IsDisabled reports whether clientIP is currently throttled against
// protocolID (spec.md §4.4). A zero LoginTries in Config disables throttling
// entirely, matching the original's "LOGIN_TRIES == 0" escape hatch.
//
// A record only disables its IP when all three hold (original_source/
// connection.cpp:77-79): the attempt's protocol differs from the one the
// record last saw, the failure count has climbed past LoginTries, and
// LoginTimeout has not yet elapsed since the last attempt. Same-protocol
// retries are never throttled by this check; AddAttempt's own increment/
// reset logic is what keeps a same-protocol attacker's count bounded.
func (m *ConnectionManager) IsDisabled(clientIP uint32, protocolID uint32) bool {
	if clientIP == 0 || m.cfg.LoginTries == 0 {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.loginBlocks[clientIP]
	if b == nil {
		return false
	}
	return b.lastProtocol != protocolID &&
		b.loginsAmount > m.cfg.LoginTries &&
		time.Now().Before(b.lastLogin.Add(m.cfg.LoginTimeout))
}

// AddAttempt records one login attempt from clientIP against protocolID
// (original_source/connection.cpp:82-110). The record is never deleted, not
// even on success: lastLogin and lastProtocol are refreshed on every
// attempt. RetryTimeout governs only whether this attempt extends the
// failure streak (it does, on any failure, or on a success that arrives
// before RetryTimeout has elapsed since the last attempt) or clears it (a
// success after RetryTimeout has elapsed). Once the streak has climbed past
// LoginTries, it is reset to zero first, opening a fresh penalty window
// before this attempt is counted.
func (m *ConnectionManager) AddAttempt(clientIP uint32, protocolID uint32, success bool) {
	if clientIP == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.loginBlocks[clientIP]
	if b == nil {
		b = &connectionBlock{}
		m.loginBlocks[clientIP] = b
	}

	if b.loginsAmount > m.cfg.LoginTries {
		b.loginsAmount = 0
	}

	now := time.Now()
	if !success || now.Before(b.lastLogin.Add(m.cfg.RetryTimeout)) {
		b.loginsAmount++
	} else {
		b.loginsAmount = 0
	}

	b.lastLogin = now
	b.lastProtocol = protocolID
}

// scheduleNextPrune posts the next throttle-table sweep onto the dispatcher,
// then reschedules itself. This bounds the memory the throttle table can
// grow to, which the original left unbounded; see DESIGN.md.
func (m *ConnectionManager) scheduleNextPrune() {
	m.pruneCancel = m.dispatcher.AddEvent(m.cfg.SchedulerMinTick, m.pruneExpiredAttempts)
}

func (m *ConnectionManager) pruneExpiredAttempts() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	now := time.Now()
	for ip, b := range m.loginBlocks {
		if now.After(b.lastLogin.Add(m.cfg.LoginTimeout)) {
			delete(m.loginBlocks, ip)
		}
	}
	m.mu.Unlock()

	m.scheduleNextPrune()
}

// Stop cancels the periodic prune. It does not close any Connection; call
// CloseAll first if that is wanted.
func (m *ConnectionManager) Stop() {
	m.mu.Lock()
	m.closed = true
	cancel := m.pruneCancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
