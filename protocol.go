// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gameconn

// Protocol is the application-layer capability a Connection drives. It is an
// external collaborator: gameconn never implements game logic, only the
// callback sequence a concrete protocol must support.
//
// Call sequence, per Connection: SetConnection(c) happens once, before any
// OnRecv* call. A Protocol installed via Connection.Handle then gets OnConnect,
// also before any OnRecv* call; a Protocol chosen by a ServicePort from the
// first frame does not get OnConnect. OnRecvFirstMessage fires exactly
// once; OnRecvMessage fires for every frame after it, in wire order.
// OnSendMessage fires once per outbound frame, synchronously inside Send,
// before the frame reaches the socket. ReleaseProtocol fires exactly once,
// after SetConnection(nil), when the Connection begins tearing down.
type Protocol interface {
	// OnConnect is called once by Connection.Handle, immediately after the
	// preselected Protocol is attached. It is not called for a Protocol that
	// a ServicePort chooses from the first packet.
	OnConnect()

	// OnRecvFirstMessage is called exactly once, with the first decoded
	// frame. Its read cursor is positioned past any optional leading
	// checksum, and past the one-byte tag of a preinstalled protocol.
	OnRecvFirstMessage(msg *NetworkMessage)

	// OnRecvMessage is called for every frame after the first, in wire
	// order.
	OnRecvMessage(msg *NetworkMessage)

	// OnSendMessage is called from Send, before the frame is queued or
	// written, so the Protocol can finish framing the outbound message
	// (e.g. outbound encryption). It runs with the Connection's internal
	// lock held to keep outbound frame order strict under concurrent
	// callers: it must not call Send or Close on its own Connection.
	OnSendMessage(msg *OutputMessage)

	// ReleaseProtocol is posted as a dispatcher task when the Connection
	// transitions to closing. It is the Protocol's cue to drop its own
	// state; the Connection has already cleared its back-reference.
	ReleaseProtocol()

	// SetConnection installs (c != nil) or clears (c == nil) the Protocol's
	// back-reference to its Connection.
	SetConnection(c *Connection)
}
