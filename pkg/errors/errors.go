// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package errors provides structured error handling for the bridge.
package errors

import (
	"errors"
	"fmt"
)

// Common error types
var (
	// ErrBindFailed indicates the inbound listener could not be opened.
	// It is the only fatal error at runtime.
	ErrBindFailed = errors.New("bind failed")

	// ErrDialFailed indicates the media server could not be reached.
	ErrDialFailed = errors.New("dial failed")

	// ErrSendFailed indicates a write to the media server failed.
	ErrSendFailed = errors.New("send failed")

	// ErrConnectionClosed indicates the peer closed the connection.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrInvalidInput indicates invalid configuration or input data.
	ErrInvalidInput = errors.New("invalid input")
)

// Side names which end of the bridge an error happened on.
type Side string

const (
	Upstream   Side = "upstream"
	Downstream Side = "downstream"
)

// BridgeError wraps an error with the connection it happened on.
type BridgeError struct {
	Op         string // Operation that failed
	Side       Side   // Upstream or Downstream
	SessionID  string // Session identifier, empty for downstream
	RemoteAddr string // Peer address
	Err        error  // Underlying error
}

// Error implements the error interface.
func (e *BridgeError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("%s %s [%s] %s: %v", e.Side, e.Op, e.SessionID, e.RemoteAddr, e.Err)
	}
	return fmt.Sprintf("%s %s %s: %v", e.Side, e.Op, e.RemoteAddr, e.Err)
}

// Unwrap returns the underlying error.
func (e *BridgeError) Unwrap() error {
	return e.Err
}

// New creates a new BridgeError. It returns nil if err is nil.
func New(op string, side Side, sessionID, remoteAddr string, err error) error {
	if err == nil {
		return nil
	}
	return &BridgeError{
		Op:         op,
		Side:       side,
		SessionID:  sessionID,
		RemoteAddr: remoteAddr,
		Err:        err,
	}
}

// Wrap wraps an error with context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
