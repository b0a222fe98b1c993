// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gameconn

import (
	"context"
	"errors"
	"net"

	"go.uber.org/zap"
)

// ServicePort chooses the Protocol for a freshly accepted Connection once
// its first frame has been decoded (spec.md §4.4, createConnection /
// makeProtocol). Returning nil rejects the connection; the Connection closes
// itself without ever calling OnConnect.
//
// checksumPresent reports whether the frame's leading 4 bytes were consumed
// as an Adler-32 checksum (spec.md §9: presence is inferred per frame, never
// declared up front).
type ServicePort interface {
	MakeProtocol(checksumPresent bool, msg *NetworkMessage) Protocol
}

// ServicePortFunc adapts a plain function to a ServicePort, the same role
// http.HandlerFunc plays for http.Handler.
type ServicePortFunc func(checksumPresent bool, msg *NetworkMessage) Protocol

func (f ServicePortFunc) MakeProtocol(checksumPresent bool, msg *NetworkMessage) Protocol {
	return f(checksumPresent, msg)
}

// Listener is a reference accept loop wiring net.Listener connections into
// ConnectionManager.CreateConnection. gameconn's core never listens on a
// socket itself; Listener exists so the module is runnable end to end, the
// same role the "examples" build tag plays for framer's Reader/Writer pair.
type Listener struct {
	ln      net.Listener
	manager *ConnectionManager
	port    ServicePort
	log     *zap.Logger
}

// NewListener wraps an already-bound net.Listener. Serve closes ln once the
// context passed to it is cancelled; until then, closing ln is the caller's
// responsibility.
func NewListener(ln net.Listener, manager *ConnectionManager, port ServicePort, log *zap.Logger) *Listener {
	if log == nil {
		log = zap.NewNop()
	}
	return &Listener{ln: ln, manager: manager, port: port, log: log}
}

// Serve accepts connections until ctx is cancelled or the listener errors.
// Each accepted connection is registered with the Listener's
// ConnectionManager and started immediately.
func (l *Listener) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = l.ln.Close()
	}()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			l.log.Warn("accept failed", zap.Error(err))
			return err
		}

		c, err := l.manager.CreateConnection(conn, l.port)
		if err != nil {
			l.log.Warn("connection rejected", zap.Error(err))
			_ = conn.Close()
			continue
		}
		if err := c.Start(); err != nil {
			l.log.Warn("connection failed to start", zap.Error(err))
		}
	}
}
