// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package command defines the closed set of show commands the bridge
// understands.
package command

// Command identifies a show action. It carries no payload.
type Command int

const (
	// None is the zero value and means no command was recognized.
	None Command = iota
	Play
	Stop
	DisplayGrid
	CueShow
)

// String returns the canonical upper-case name of the command.
func (c Command) String() string {
	switch c {
	case Play:
		return "PLAY"
	case Stop:
		return "STOP"
	case DisplayGrid:
		return "DISPLAY_GRID"
	case CueShow:
		return "CUE_SHOW"
	case None:
		return "NONE"
	default:
		return "unknown"
	}
}

// Valid reports whether c is one of the recognized commands.
func (c Command) Valid() bool {
	return c >= Play && c <= CueShow
}

// All returns every command in delivery priority order.
func All() []Command {
	return []Command{Play, Stop, DisplayGrid, CueShow}
}
