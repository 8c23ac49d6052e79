// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"time"

	"github.com/DazB/TFM-Delta-Utility-App/pkg/command"
)

// Context contains upstream connection metadata.
// It is passed to Handler methods so they can attribute events.
type Context struct {
	// SessionID is a unique identifier for this connection
	SessionID string

	// RemoteAddr is the controller's network address
	RemoteAddr string

	// Protocol names the upstream dialect (e.g. "rss")
	Protocol string

	// ConnectedAt is when the connection was accepted
	ConnectedAt time.Time

	// CloseReason is set before OnDisconnect: "eof", "error" or "shutdown"
	CloseReason string
}

// Handler receives upstream events from the inbound server.
//
// Errors returned from OnConnect and OnDisconnect are logged and otherwise
// ignored. An error from OnCommand is logged too; the connection stays open
// because one bad command must never cut the controller off.
type Handler interface {
	// OnConnect is called after a controller connection is accepted.
	OnConnect(ctx context.Context, hctx *Context) error

	// OnCommand is called once per read that carried a recognized command.
	OnCommand(ctx context.Context, hctx *Context, cmd command.Command) error

	// OnDisconnect is called when the connection is closed for any reason.
	OnDisconnect(ctx context.Context, hctx *Context) error
}

// NoopHandler is a Handler implementation that ignores every event.
// Useful for testing.
type NoopHandler struct{}

var _ Handler = (*NoopHandler)(nil)

func (h *NoopHandler) OnConnect(ctx context.Context, hctx *Context) error {
	return nil
}

func (h *NoopHandler) OnCommand(ctx context.Context, hctx *Context, cmd command.Command) error {
	return nil
}

func (h *NoopHandler) OnDisconnect(ctx context.Context, hctx *Context) error {
	return nil
}
