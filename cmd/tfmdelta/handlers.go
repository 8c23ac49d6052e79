// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"

	"github.com/DazB/TFM-Delta-Utility-App/pkg/command"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/handler"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/metrics"
)

var _ handler.Handler = (*InstrumentedHandler)(nil)

// InstrumentedHandler records controller connection metrics.
type InstrumentedHandler struct {
	metrics *metrics.Metrics
}

// OnConnect implements handler.Handler with metrics.
func (h *InstrumentedHandler) OnConnect(ctx context.Context, hctx *handler.Context) error {
	h.metrics.ConnectionOpened()
	return nil
}

// OnCommand implements handler.Handler. Command counters are kept by the
// pending handler, which knows whether the command coalesced.
func (h *InstrumentedHandler) OnCommand(ctx context.Context, hctx *handler.Context, cmd command.Command) error {
	return nil
}

// OnDisconnect implements handler.Handler with metrics.
func (h *InstrumentedHandler) OnDisconnect(ctx context.Context, hctx *handler.Context) error {
	h.metrics.ConnectionClosed(hctx.CloseReason, hctx.ConnectedAt)
	return nil
}
