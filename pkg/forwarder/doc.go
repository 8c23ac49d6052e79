// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package forwarder keeps the single outbound link to the media server and
// delivers pending commands over it.
//
// # State Machine
//
//	          dial ok
//	┌──────────────┐ ───────→ ┌───────────┐
//	│ Disconnected │          │ Connected │
//	└──────────────┘ ←─────── └───────────┘
//	  ↑    │        send failed /
//	  └────┘        peer closed
//	 dial failed,
//	 wait RetryDelay
//
// While Disconnected the forwarder dials, waiting RetryDelay between
// failed attempts. Requests raised in the meantime stay in the pending set
// and coalesce. Once Connected it flushes the set in priority order
// (PLAY, STOP, DISPLAY_GRID, CUE_SHOW), then sleeps until the set wakes it
// or PollInterval passes.
//
// Each flag is cleared before its bytes are written. A command whose write
// fails is therefore lost rather than retried, and a request that arrives
// during the write stays pending for the next flush.
//
// Multi-frame encodings such as CUE_SHOW are written frame by frame with
// the frame's delay in between. If the link drops during the delay the rest
// of the sequence is abandoned.
//
// A background reader discards anything the media server sends and reports
// when it closes the connection, so a dead peer is noticed without waiting
// for the next write.
//
// # Example
//
//	fwd := forwarder.New(forwarder.Config{
//		TargetAddress: "localhost:4001",
//		RetryDelay:    5 * time.Second,
//		Logger:        logger,
//	}, forwarder.TCPDialer("localhost:4001", 3*time.Second), set, &delta.Encoder{})
//
//	go fwd.Run(ctx)
package forwarder
