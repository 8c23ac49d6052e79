// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/DazB/TFM-Delta-Utility-App/pkg/command"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/encoder/delta"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/forwarder"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/handler"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/health"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/metrics"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/monitor"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/parser/rss"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/pending"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/server/tcp"
	"golang.org/x/sync/errgroup"
)

// Config holds configuration for the bridge.
type Config struct {
	// Address is the inbound listen address (host:port)
	Address string

	// TargetAddress is the media server address (host:port)
	TargetAddress string

	ReadBufferSize int
	MaxConnections int

	RetryDelay    time.Duration
	PollInterval  time.Duration
	DialTimeout   time.Duration
	WriteTimeout  time.Duration
	CompoundDelay time.Duration

	// Dialer overrides the TCP dialer for TargetAddress.
	Dialer forwarder.Dialer

	// Metrics, Monitor and Handlers are optional.
	Metrics  *metrics.Metrics
	Monitor  *monitor.Hub
	Handlers []handler.Handler

	Logger *slog.Logger
}

// Bridge coordinates the inbound server, the pending set and the media
// server link.
type Bridge struct {
	config    Config
	pending   *pending.Set
	server    *tcp.Server
	forwarder *forwarder.Forwarder
}

// New wires a bridge. Nothing is bound or dialed until Run.
func New(cfg Config) *Bridge {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}
	if cfg.CompoundDelay <= 0 {
		cfg.CompoundDelay = delta.DefaultCompoundDelay
	}
	if cfg.Dialer == nil {
		cfg.Dialer = forwarder.TCPDialer(cfg.TargetAddress, cfg.DialTimeout)
	}

	set := pending.New()

	handlers := []handler.Handler{NewPendingHandler(set, cfg.Metrics, cfg.Logger)}
	if cfg.Monitor != nil {
		handlers = append(handlers, &monitor.Handler{Hub: cfg.Monitor})
	}
	handlers = append(handlers, cfg.Handlers...)

	server := tcp.New(tcp.Config{
		Address:        cfg.Address,
		MaxConnections: cfg.MaxConnections,
		ReadBufferSize: cfg.ReadBufferSize,
		Protocol:       "rss",
		Logger:         cfg.Logger,
	}, rss.New(), handler.Chain(handlers...))

	fwd := forwarder.New(forwarder.Config{
		TargetAddress: cfg.TargetAddress,
		RetryDelay:    cfg.RetryDelay,
		PollInterval:  cfg.PollInterval,
		WriteTimeout:  cfg.WriteTimeout,
		Metrics:       cfg.Metrics,
		Logger:        cfg.Logger,
	}, cfg.Dialer, set, &delta.Encoder{CompoundDelay: cfg.CompoundDelay})

	logger := cfg.Logger
	hub := cfg.Monitor
	fwd.OnStateChange(func(from, to forwarder.State) {
		logger.Info("media server link state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()))
		if hub != nil {
			hub.LinkState(to.String())
		}
	})
	if hub != nil {
		fwd.OnDelivery(hub.Delivery)
	}

	return &Bridge{
		config:    cfg,
		pending:   set,
		server:    server,
		forwarder: fwd,
	}
}

// Run serves until ctx is cancelled. It returns early only when the
// inbound listener cannot bind; the error then wraps errors.ErrBindFailed.
func (b *Bridge) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return b.server.Listen(ctx)
	})
	g.Go(func() error {
		return b.forwarder.Run(ctx)
	})

	b.config.Logger.Info("bridge started",
		slog.String("address", b.config.Address),
		slog.String("target", b.config.TargetAddress))

	err := g.Wait()
	stats := b.LinkStats()
	b.config.Logger.Info("bridge stopped",
		slog.String("link", stats.State.String()),
		slog.Int("delivered", stats.Delivered))
	return err
}

// Ready is closed once the inbound listener is bound.
func (b *Bridge) Ready() <-chan struct{} {
	return b.server.Ready()
}

// Addr returns the bound inbound address, or nil before Ready.
func (b *Bridge) Addr() net.Addr {
	return b.server.Addr()
}

// Connected reports whether the media server link is up.
func (b *Bridge) Connected() bool {
	return b.forwarder.State() == forwarder.StateConnected
}

// LinkStats returns media server link statistics.
func (b *Bridge) LinkStats() forwarder.Stats {
	return b.forwarder.Stats()
}

// Pending lists the commands still waiting for delivery.
func (b *Bridge) Pending() []command.Command {
	return b.pending.Snapshot()
}

// RegisterHealth adds the bridge's checks to c. The listener is critical;
// a down media server link only degrades the bridge.
func (b *Bridge) RegisterHealth(c *health.Checker) {
	c.Register(health.CheckUpstreamListener, true, health.ListenerCheck(b.Ready()))
	c.Register(health.CheckDownstreamLink, false, health.LinkCheck(b.Connected))
}
