// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package tcp implements the inbound server that listens for show
// controller connections.
//
// # Overview
//
// The server accepts any number of controller connections on one address
// and turns every read into at most one command via a pluggable parser.
// It only reads: nothing is ever written back to a controller.
//
// # Architecture
//
//	┌────────────┐         ┌─────────┐
//	│ Controller │ ──TCP─→ │  Server │
//	└────────────┘         └─────────┘
//	                            ↓
//	                       ┌─────────┐
//	                       │ Parser  │
//	                       └─────────┘
//	                            ↓
//	                       ┌─────────┐
//	                       │ Handler │ → pending set
//	                       └─────────┘
//
// # Connection Flow
//
//  1. Controller connects, server assigns a session ID
//  2. handler.OnConnect
//  3. Repeated bounded reads (ReadBufferSize, default 1024 bytes):
//     - bytes → parser.Parse → handler.OnCommand when a command is found
//     - undecodable bytes → logged at debug, connection kept
//     - EOF or zero-length read → connection closed ("eof")
//     - read error → logged, connection closed ("error")
//  4. handler.OnDisconnect with CloseReason set
//
// Each connection is served by its own goroutine parked in the runtime
// network poller, so a silent controller never delays another one.
//
// # Shutdown
//
// When the context is cancelled the listener is closed, then every open
// connection is closed ("shutdown") and Listen waits for their goroutines.
// Controllers keep connections open for the whole show, so there is no
// drain phase.
//
// # Error Handling
//
//   - Bind/listen failure: returned from Listen, wraps errors.ErrBindFailed
//   - Accept errors: logged, loop continues
//   - Per-connection errors: logged, only that connection is closed
//
// # Example
//
//	cfg := tcp.Config{
//		Address: "192.168.10.5:4000",
//		Logger:  logger,
//	}
//
//	server := tcp.New(cfg, rss.New(), h)
//	if err := server.Listen(ctx); err != nil {
//		log.Fatal(err)
//	}
package tcp
