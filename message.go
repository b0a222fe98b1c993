// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gameconn

import (
	"encoding/binary"
	"hash/adler32"
)

const (
	// NetworkMessageMaxSize is the fixed capacity of a NetworkMessage buffer,
	// matching the historical NETWORKMESSAGE_MAXSIZE this layout was
	// distilled from.
	NetworkMessageMaxSize = 24590

	// HeaderLength is the width, in bytes, of the wire length prefix.
	HeaderLength = 2

	// checksumLength is the width, in bytes, of the optional leading Adler-32
	// field inside a message body.
	checksumLength = 4

	// maxBodyLength is the exclusive upper bound on the body length a header
	// may declare: the largest accepted length is maxBodyLength-1. Mirrors original_source/connection.cpp's "size < NETWORKMESSAGE_MAXSIZE
	// - 16" comparison (strict); see DESIGN.md for the boundary discussion.
	maxBodyLength = NetworkMessageMaxSize - 16
)

// NetworkMessage is a fixed-capacity inbound frame buffer: one header slot,
// one body slot, and a read cursor into the body. A Connection owns exactly
// one NetworkMessage and reuses it across frames; at most one read is ever
// outstanding, so there is no concurrent access to worry about.
type NetworkMessage struct {
	header  [HeaderLength]byte
	body    [maxBodyLength]byte
	bodyLen int
	pos     int
}

// headerBuf returns the header slot as a read target.
func (m *NetworkMessage) headerBuf() []byte { return m.header[:] }

// decodeHeaderLength interprets the header slot as an unsigned little-endian
// 16-bit length.
func (m *NetworkMessage) decodeHeaderLength() int {
	return int(binary.LittleEndian.Uint16(m.header[:]))
}

// validBodyLength reports whether size is an acceptable declared body length:
// greater than zero and strictly less than maxBodyLength.
func validBodyLength(size int) bool {
	return size > 0 && size < maxBodyLength
}

// bodyBuf returns the body slot sized to hold exactly n bytes, as a read
// target, and records n as the message's body length.
func (m *NetworkMessage) bodyBuf(n int) []byte {
	m.bodyLen = n
	m.pos = 0
	return m.body[:n]
}

// Body returns the full decoded body of the current message.
func (m *NetworkMessage) Body() []byte { return m.body[:m.bodyLen] }

// Remaining returns the body bytes from the read cursor onward: what a
// Protocol sees when handed this message.
func (m *NetworkMessage) Remaining() []byte { return m.body[m.pos:m.bodyLen] }

// PeekUint32 reads the 4 bytes at the current cursor as a little-endian
// uint32 without advancing the cursor. The second return is false if fewer
// than 4 bytes remain.
func (m *NetworkMessage) PeekUint32() (uint32, bool) {
	if m.bodyLen-m.pos < checksumLength {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.body[m.pos : m.pos+checksumLength]), true
}

// SkipBytes advances the read cursor by n bytes. It is a no-op past the end
// of the body rather than an error: callers only ever skip a bounded, known
// amount (the checksum field, or the preinstalled-protocol tag byte).
func (m *NetworkMessage) SkipBytes(n int) {
	m.pos += n
	if m.pos > m.bodyLen {
		m.pos = m.bodyLen
	}
}

// verifyChecksum computes the Adler-32 checksum of the body past the leading
// 4 bytes and compares it against the uint32 encoded in those 4 bytes. It
// reports whether they match; on a match the caller is expected to skip the
// 4 checksum bytes before handing the message to a Protocol.
//
// A body of exactly checksumLength bytes leaves nothing to sum: the original
// special-cases that as a literal checksum of 0 (original_source/
// connection.cpp:304-305), not hash/adler32's empty-input value of 1, so
// that case is compared separately here.
func (m *NetworkMessage) verifyChecksum() bool {
	received, ok := m.PeekUint32()
	if !ok {
		return false
	}
	rest := m.body[m.pos+checksumLength : m.bodyLen]
	if len(rest) == 0 {
		return received == 0
	}
	return adler32.Checksum(rest) == received
}
