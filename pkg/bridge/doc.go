// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package bridge wires the controller-facing server to the media server
// link.
//
// # Architecture
//
//	Controller(s)
//	     ↓  RSS text over TCP
//	┌─────────────┐
//	│ tcp.Server  │  one goroutine per connection
//	│ rss.Parser  │
//	└─────────────┘
//	     ↓  handler.Chain
//	┌─────────────┐
//	│ pending.Set │  PLAY STOP DISPLAY_GRID CUE_SHOW flags
//	└─────────────┘
//	     ↓  wake / poll
//	┌─────────────┐
//	│  Forwarder  │  Disconnected ⇄ Connected
//	│ delta.Enc.  │
//	└─────────────┘
//	     ↓  Delta text over TCP
//	Media server
//
// The two sides share nothing but the pending set. The inbound side keeps
// accepting and recognizing commands while the media server is down;
// repeated requests of one kind coalesce until the link comes back.
//
// # Usage
//
//	b := bridge.New(bridge.Config{
//		Address:       ":4000",
//		TargetAddress: "localhost:4001",
//		RetryDelay:    5 * time.Second,
//		Metrics:       m,
//		Monitor:       hub,
//		Logger:        logger,
//	})
//	b.RegisterHealth(checker)
//
//	if err := b.Run(ctx); err != nil {
//		// bind failure
//	}
package bridge
