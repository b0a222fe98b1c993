// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gameconn

import "errors"

var (
	// ErrInvalidArgument reports a nil socket or port passed to
	// CreateConnection, or a nil protocol passed to Handle.
	ErrInvalidArgument = errors.New("gameconn: invalid argument")

	// ErrFrameTooLarge reports a decoded header length that is zero,
	// negative, or not strictly less than maxBodyLength. A
	// Connection that observes it closes itself; it is never returned to a
	// caller directly.
	ErrFrameTooLarge = errors.New("gameconn: frame too large")

	// ErrAlreadyStarted is returned by Handle/Start when called more than
	// once on the same Connection.
	ErrAlreadyStarted = errors.New("gameconn: connection already started")

	// ErrManagerClosed is returned by CreateConnection once Stop has been
	// called on the ConnectionManager.
	ErrManagerClosed = errors.New("gameconn: connection manager closed")
)
