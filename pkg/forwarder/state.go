// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package forwarder

import (
	"sync"
	"time"
)

// State is the media server link state.
type State int

const (
	// StateDisconnected is the initial state: dialing, or waiting to redial.
	StateDisconnected State = iota
	// StateConnected means a connection is open and pending commands are
	// being drained into it.
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// link tracks the state machine and its counters. Transitions happen only
// on the forwarder's own goroutine; readers may be anywhere.
type link struct {
	mu              sync.RWMutex
	state           State
	dialFailures    int
	delivered       int
	lastStateChange time.Time
	onStateChange   func(from, to State)
}

func newLink() *link {
	return &link{
		state:           StateDisconnected,
		lastStateChange: time.Now(),
	}
}

// setState changes the state and notifies the registered callback after
// the lock is released. Setting the current state is a no-op.
func (l *link) setState(newState State) {
	l.mu.Lock()
	if l.state == newState {
		l.mu.Unlock()
		return
	}

	oldState := l.state
	l.state = newState
	l.lastStateChange = time.Now()
	if newState == StateConnected {
		l.dialFailures = 0
	}
	fn := l.onStateChange
	l.mu.Unlock()

	if fn != nil {
		fn(oldState, newState)
	}
}

func (l *link) dialFailed() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dialFailures++
	return l.dialFailures
}

func (l *link) commandDelivered() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.delivered++
}

// Stats is a point-in-time view of the link.
type Stats struct {
	State State
	// DialFailures counts consecutive failed attempts since the last
	// successful connect.
	DialFailures int
	// Delivered counts commands fully written since start.
	Delivered int
	// Since is when the current state was entered.
	Since time.Time
}

func (l *link) stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Stats{
		State:        l.state,
		DialFailures: l.dialFailures,
		Delivered:    l.delivered,
		Since:        l.lastStateChange,
	}
}
