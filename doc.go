// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package gameconn is the connection layer for a long-lived game server: it
// accepts framed binary packets over many concurrent TCP sockets, validates
// them, dispatches them to a pluggable application-level Protocol, and
// serializes outbound messages back to the wire. It also enforces per-IP
// login throttling on the authentication path.
//
// The hard part is not the I/O itself but the lifecycle layered over it: a
// socket, its read and write completions, an owning Protocol, and a
// server-wide dispatch queue race against each other. A Connection is
// released exactly once, only after every outstanding read and write has
// retired, regardless of the order in which remote close, local close, read
// failure, and write failure arrive.
//
// Wire format: a 2-byte little-endian length prefix followed by a body of
// that many bytes. The body may begin with a 4-byte Adler-32 checksum
// computed over the remainder of the body; a frame is checksummed if and
// only if those four bytes equal that checksum, so the choice is inferred
// per frame rather than declared.
//
//	[ length uint16 LE ] [ body ... ]
//	body := [ checksum uint32 LE ]? payload
//
// Concrete application protocols, the task dispatcher, and configuration
// loading are external collaborators; gameconn consumes them through the
// Protocol, ServicePort, and Dispatcher interfaces and the Config type.
package gameconn
