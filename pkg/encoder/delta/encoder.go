// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package delta encodes commands for the 7th Sense Delta media server.
//
// Delta accepts plain text commands terminated by a carriage return over a
// persistent TCP connection. Compound actions are split into several writes
// with a pause between them so the server can settle on the new position
// before the next instruction arrives.
package delta

import (
	"time"

	"github.com/DazB/TFM-Delta-Utility-App/pkg/command"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/encoder"
)

// DefaultCompoundDelay is the pause between the writes of a compound command.
const DefaultCompoundDelay = 500 * time.Millisecond

const terminator = "\r"

var _ encoder.Encoder = (*Encoder)(nil)

// Encoder produces Delta protocol frames.
type Encoder struct {
	// CompoundDelay overrides DefaultCompoundDelay when non-zero.
	CompoundDelay time.Duration
}

// Encode returns the frames for cmd, or nil if cmd has no Delta equivalent.
func (e *Encoder) Encode(cmd command.Command) []encoder.Frame {
	delay := e.CompoundDelay
	if delay == 0 {
		delay = DefaultCompoundDelay
	}

	switch cmd {
	case command.Play:
		return []encoder.Frame{line("PLAY", 0)}
	case command.Stop:
		return []encoder.Frame{line("STOP", 0)}
	case command.DisplayGrid:
		return []encoder.Frame{line("GOTOMARKER 'Grid'", 0)}
	case command.CueShow:
		return []encoder.Frame{
			line("GOTOFRAME 1", 0),
			line("CUE", delay),
		}
	default:
		return nil
	}
}

func line(s string, delay time.Duration) encoder.Frame {
	return encoder.Frame{Data: []byte(s + terminator), Delay: delay}
}
