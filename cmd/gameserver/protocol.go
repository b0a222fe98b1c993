// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"

	"go.uber.org/zap"

	"code.hybscloud.com/gameconn"
)

// loginProtocolID tags this command's single login flow for
// ConnectionManager's per-protocol throttle table.
const loginProtocolID = 1

func newLoginGatedPort(manager *gameconn.ConnectionManager, log *zap.Logger) gameconn.ServicePort {
	return gameconn.ServicePortFunc(func(checksumPresent bool, msg *gameconn.NetworkMessage) gameconn.Protocol {
		return &sessionProtocol{manager: manager, log: log}
	})
}

// sessionProtocol requires a first frame of exactly "ok" to log in, then
// echoes every frame after that. It exists to exercise
// ConnectionManager.IsDisabled/AddAttempt end to end, not as a real login
// scheme.
type sessionProtocol struct {
	conn     *gameconn.Connection
	manager  *gameconn.ConnectionManager
	log      *zap.Logger
	loggedIn bool
}

func (p *sessionProtocol) OnConnect() {}

func (p *sessionProtocol) SetConnection(c *gameconn.Connection) { p.conn = c }

func (p *sessionProtocol) ReleaseProtocol() {}

func (p *sessionProtocol) OnSendMessage(*gameconn.OutputMessage) {}

func (p *sessionProtocol) OnRecvFirstMessage(msg *gameconn.NetworkMessage) {
	ip := p.conn.GetIP()
	if p.manager.IsDisabled(ip, loginProtocolID) {
		p.log.Warn("rejecting login from throttled ip", zap.Uint32("ip", ip))
		p.conn.Close()
		return
	}

	ok := bytes.Equal(msg.Remaining(), []byte("ok"))
	p.manager.AddAttempt(ip, loginProtocolID, ok)
	if !ok {
		p.conn.Close()
		return
	}

	p.loggedIn = true
	p.conn.Send(gameconn.NewOutputMessage(p, []byte("welcome")))
}

func (p *sessionProtocol) OnRecvMessage(msg *gameconn.NetworkMessage) {
	if !p.loggedIn {
		return
	}
	payload := append([]byte(nil), msg.Remaining()...)
	p.conn.Send(gameconn.NewOutputMessage(p, payload))
}
