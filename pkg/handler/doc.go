// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package handler provides the interface that links the inbound server to
// the rest of the bridge.
//
// # Data Flow
//
//	Controller → Server (reads) → Parser (recognizes) → Handler (acts)
//
// The server owns sockets and never decides what a command means for the
// downstream side. Handlers do: the bridge's own handler raises the pending
// flag, while others record metrics or publish monitor events.
//
// # Handler Methods
//
//   - OnConnect: a controller connection was accepted
//   - OnCommand: a read carried a recognized command
//   - OnDisconnect: the connection was closed (peer close, EOF or error)
//
// # Context
//
// The Context struct carries connection metadata across all handler calls:
//   - SessionID: Unique identifier for this connection
//   - RemoteAddr: Controller's network address
//   - Protocol: Upstream dialect name
//
// # Composition
//
// Chain combines several handlers so each concern stays in its own type:
//
//	h := handler.Chain(pendingHandler, instrumentedHandler, monitorHandler)
//	srv := tcp.New(cfg, rss.New(), h)
package handler
