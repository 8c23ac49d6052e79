// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"

	"github.com/DazB/TFM-Delta-Utility-App/pkg/command"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/handler"
)

// Handler publishes upstream activity to a hub.
type Handler struct {
	Hub *Hub
}

var _ handler.Handler = (*Handler)(nil)

func (h *Handler) OnConnect(ctx context.Context, hctx *handler.Context) error {
	h.Hub.Publish(Event{Type: EventUpstreamConnected, Remote: hctx.RemoteAddr})
	return nil
}

func (h *Handler) OnCommand(ctx context.Context, hctx *handler.Context, cmd command.Command) error {
	h.Hub.Publish(Event{Type: EventCommandRecognized, Command: cmd.String(), Remote: hctx.RemoteAddr})
	return nil
}

func (h *Handler) OnDisconnect(ctx context.Context, hctx *handler.Context) error {
	h.Hub.Publish(Event{Type: EventUpstreamClosed, Remote: hctx.RemoteAddr, Reason: hctx.CloseReason})
	return nil
}

// Delivery publishes the outcome of a downstream write sequence.
func (h *Hub) Delivery(cmd command.Command, err error) {
	if err != nil {
		h.Publish(Event{Type: EventCommandAbandoned, Command: cmd.String(), Error: err.Error()})
		return
	}
	h.Publish(Event{Type: EventCommandDelivered, Command: cmd.String()})
}

// LinkState publishes a media server link transition.
func (h *Hub) LinkState(state string) {
	h.Publish(Event{Type: EventLinkState, State: state})
}
