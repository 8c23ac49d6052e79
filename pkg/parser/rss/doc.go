// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package rss recognizes show commands sent by legacy RSS / Medialon
// controllers that were written for Mediasonic servers.
//
// # Matching
//
// The controller sends free-form text with no framing guarantees. Each read
// is decoded as UTF-8, lower-cased and scanned for the triggers below in
// order. The first trigger contained anywhere in the text wins:
//
//	tcstart 1            PLAY
//	play 1               PLAY
//	pause 1              STOP
//	stop 1               STOP
//	loadplaylist 1 grid  DISPLAY_GRID
//	loadplaylist 1 1     CUE_SHOW
//
// Matching is containment, not whole-token comparison, so "pause 10" also
// raises STOP. Existing show files depend on this; it is kept as is.
//
// Text that matches nothing is ordinary controller chatter and yields
// command.None without an error.
package rss
