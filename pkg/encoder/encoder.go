// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package encoder turns recognized commands into downstream wire frames.
package encoder

import (
	"time"

	"github.com/DazB/TFM-Delta-Utility-App/pkg/command"
)

// Frame is a single downstream write.
type Frame struct {
	// Data is written to the connection as-is.
	Data []byte

	// Delay is how long to wait after the previous frame before writing
	// this one. The first frame of a sequence ignores it.
	Delay time.Duration
}

// Encoder maps a command to the sequence of frames that performs it on the
// downstream server. An empty sequence means the command is not supported.
type Encoder interface {
	Encode(cmd command.Command) []Frame
}
