// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package forwarder

import (
	"context"
	"net"
	"time"
)

// Dialer opens a connection to the media server.
type Dialer interface {
	Dial(ctx context.Context) (net.Conn, error)
}

// DialFunc is a function that creates a new connection.
type DialFunc func(ctx context.Context) (net.Conn, error)

// Dial calls f(ctx).
func (f DialFunc) Dial(ctx context.Context) (net.Conn, error) {
	return f(ctx)
}

// TCPDialer dials address over TCP, giving up on a single attempt after
// timeout.
func TCPDialer(address string, timeout time.Duration) Dialer {
	d := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 15 * time.Second,
	}
	return DialFunc(func(ctx context.Context) (net.Conn, error) {
		return d.DialContext(ctx, "tcp", address)
	})
}
