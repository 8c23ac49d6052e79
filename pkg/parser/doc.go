// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package parser defines the interface for turning upstream controller
// traffic into show commands.
//
// # Architecture Overview
//
// Parsers sit between the inbound TCP server and the handler. The server
// performs one bounded read per readiness event and hands the bytes to the
// parser; the parser answers with at most one command:
//
//	upstream bytes ─→ Parser.Parse ─→ command.Command ─→ handler.OnCommand
//
// Parsers are pure: no I/O, no state beyond their vocabulary. That keeps
// them trivially safe to share between connections.
//
// # Protocol-Specific Parsers
//
//   - parser/rss: the text protocol spoken by legacy RSS / Medialon show
//     controllers (substring vocabulary, case-insensitive, first match wins)
//
// # Example
//
//	p := rss.New()
//	cmd, err := p.Parse([]byte("TCSTART 1!"))
//	if err != nil {
//		logger.Debug("undecodable payload", slog.String("error", err.Error()))
//	}
//	if cmd != command.None {
//		pending.Set(cmd)
//	}
package parser
