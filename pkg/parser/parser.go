// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package parser

import (
	"errors"

	"github.com/DazB/TFM-Delta-Utility-App/pkg/command"
)

// ErrInvalidEncoding is returned when a payload is not valid text.
var ErrInvalidEncoding = errors.New("payload is not valid UTF-8 text")

// Parser recognizes commands in raw upstream payloads.
//
// Parse is called once per read on an upstream connection with the bytes of
// that read. It must be safe for concurrent use by multiple connections.
//
// Implementations must:
//   - Return command.None with a nil error for text that carries no command.
//     Most upstream traffic is control chatter, not commands.
//   - Return command.None with ErrInvalidEncoding (or an error wrapping it)
//     when the payload cannot be decoded. Callers log it and keep reading;
//     it never terminates the connection.
//   - Never panic on arbitrary input.
type Parser interface {
	Parse(payload []byte) (command.Command, error)
}
