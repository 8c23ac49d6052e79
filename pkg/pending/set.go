// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package pending holds the coalescing "requested since last delivery" state
// shared by the upstream server and the downstream forwarder.
package pending

import (
	"sync"

	"github.com/DazB/TFM-Delta-Utility-App/pkg/command"
)

// Set records at most one outstanding request per command kind.
//
// It is not a queue: setting a kind that is already pending is a no-op, and
// no ordering is kept between kinds. Set and Take are each atomic per kind,
// so a Set that lands after a Take has cleared the flag is never lost.
type Set struct {
	mu    sync.Mutex
	flags map[command.Command]bool
	wake  chan struct{}
}

// New returns an empty set.
func New() *Set {
	return &Set{
		flags: make(map[command.Command]bool),
		wake:  make(chan struct{}, 1),
	}
}

// Set flags cmd as pending. It reports whether the flag was newly raised;
// false means the request coalesced into one already pending. Invalid
// commands are ignored.
func (s *Set) Set(cmd command.Command) bool {
	if !cmd.Valid() {
		return false
	}

	s.mu.Lock()
	raised := !s.flags[cmd]
	s.flags[cmd] = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}

	return raised
}

// Take clears the flag for cmd and reports whether it was set.
func (s *Set) Take(cmd command.Command) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	was := s.flags[cmd]
	s.flags[cmd] = false
	return was
}

// Pending reports whether cmd is flagged without clearing it.
func (s *Set) Pending(cmd command.Command) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags[cmd]
}

// Snapshot returns the pending kinds in delivery priority order.
func (s *Set) Snapshot() []command.Command {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []command.Command
	for _, cmd := range command.All() {
		if s.flags[cmd] {
			out = append(out, cmd)
		}
	}
	return out
}

// Wake returns a channel that receives after any Set. Several Sets may
// collapse into one receive, so consumers must re-check every kind.
func (s *Set) Wake() <-chan struct{} {
	return s.wake
}
