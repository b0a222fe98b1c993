// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gameconn

import (
	"encoding/binary"

	"go.uber.org/atomic"
)

// OutputMessage is an owned send frame: a byte buffer plus an optional
// back-pointer to the Protocol that produced it. It is sealed once, by the
// Connection, when its write begins; after sealing its wire bytes must not
// change. Ownership is shared: a Connection holds one reference
// while the frame is queued or in flight, and the originating Protocol may
// hold another until it releases its own reference.
type OutputMessage struct {
	protocol Protocol
	payload  []byte
	sealed   atomic.Bool
	refs     atomic.Int32
}

// NewOutputMessage allocates an OutputMessage carrying payload as its body.
// protocol may be nil for frames with no originating Protocol (e.g. ones
// built directly by a ServicePort).
func NewOutputMessage(protocol Protocol, payload []byte) *OutputMessage {
	msg := &OutputMessage{protocol: protocol, payload: payload}
	msg.refs.Store(1)
	return msg
}

// Protocol returns the Protocol that produced this message, or nil.
func (m *OutputMessage) Protocol() Protocol { return m.protocol }

// Payload returns the message body, excluding the wire length prefix.
func (m *OutputMessage) Payload() []byte { return m.payload }

// Seal freezes the message: after Seal, Payload's contents must not change.
// Connection.Send calls this implicitly via internalSend; Protocols that
// need to finish framing (e.g. appending a checksum) must do so in
// OnSendMessage, which Send calls before the frame is queued or written.
func (m *OutputMessage) Seal() { m.sealed.Store(true) }

// Retain adds a reference, for a Protocol that keeps its own hold on the
// message (e.g. for a retransmit buffer) past the point Connection releases
// its reference. The count is bookkeeping only: it does not affect when the
// message is garbage collected.
func (m *OutputMessage) Retain() { m.refs.Inc() }

// Release drops a reference. It is safe to call from any goroutine. Nothing
// is freed or pooled when the count reaches zero; the buffer is garbage
// collected like any other value once nothing refers to it.
func (m *OutputMessage) Release() { m.refs.Dec() }

// wireLength is the total number of bytes this message occupies on the wire,
// header included.
func (m *OutputMessage) wireLength() int { return HeaderLength + len(m.payload) }

// writeFrame encodes this message's wire representation (2-byte
// little-endian length prefix followed by the payload) into dst, which must
// be at least wireLength() bytes.
func (m *OutputMessage) writeFrame(dst []byte) int {
	binary.LittleEndian.PutUint16(dst, uint16(len(m.payload)))
	return HeaderLength + copy(dst[HeaderLength:], m.payload)
}
