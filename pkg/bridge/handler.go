// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"log/slog"

	"github.com/DazB/TFM-Delta-Utility-App/pkg/command"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/handler"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/metrics"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/pending"
)

var _ handler.Handler = (*PendingHandler)(nil)

// PendingHandler raises every recognized command in the pending set.
type PendingHandler struct {
	set     *pending.Set
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewPendingHandler creates a handler feeding set. m may be nil.
func NewPendingHandler(set *pending.Set, m *metrics.Metrics, logger *slog.Logger) *PendingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PendingHandler{
		set:     set,
		metrics: m,
		logger:  logger,
	}
}

func (h *PendingHandler) OnConnect(ctx context.Context, hctx *handler.Context) error {
	return nil
}

// OnCommand raises cmd. A command already pending is coalesced into the
// outstanding request.
func (h *PendingHandler) OnCommand(ctx context.Context, hctx *handler.Context, cmd command.Command) error {
	raised := h.set.Set(cmd)

	if h.metrics != nil {
		h.metrics.CommandsRecognized.WithLabelValues(cmd.String()).Inc()
		if !raised {
			h.metrics.CommandsCoalesced.WithLabelValues(cmd.String()).Inc()
		}
	}

	if !raised {
		h.logger.Debug("command already pending",
			slog.String("session", hctx.SessionID),
			slog.String("command", cmd.String()))
	}
	return nil
}

func (h *PendingHandler) OnDisconnect(ctx context.Context, hctx *handler.Context) error {
	return nil
}
