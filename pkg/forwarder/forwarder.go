// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package forwarder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/DazB/TFM-Delta-Utility-App/pkg/command"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/encoder"
	bridgeerrors "github.com/DazB/TFM-Delta-Utility-App/pkg/errors"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/metrics"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/pending"
)

// Config holds the forwarder configuration.
type Config struct {
	// TargetAddress is the media server address, used in logs and errors
	TargetAddress string

	// RetryDelay is the wait after a failed dial before the next attempt
	RetryDelay time.Duration

	// PollInterval bounds how long a pending command can wait while
	// connected if a wake-up is missed
	PollInterval time.Duration

	// WriteTimeout bounds a single frame write. Zero disables it.
	WriteTimeout time.Duration

	// Metrics is optional
	Metrics *metrics.Metrics

	// Logger for link events
	Logger *slog.Logger
}

// Forwarder keeps one connection to the media server and drains the pending
// set into it.
type Forwarder struct {
	config  Config
	dialer  Dialer
	pending *pending.Set
	encoder encoder.Encoder
	link    *link

	mu         sync.RWMutex
	onDelivery func(cmd command.Command, err error)
}

// New creates a forwarder. The returned forwarder is idle until Run.
func New(cfg Config, d Dialer, p *pending.Set, enc encoder.Encoder) *Forwarder {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}

	return &Forwarder{
		config:  cfg,
		dialer:  d,
		pending: p,
		encoder: enc,
		link:    newLink(),
	}
}

// OnStateChange registers a callback for link state changes. It runs on
// the forwarder goroutine and must not block.
func (f *Forwarder) OnStateChange(fn func(from, to State)) {
	f.link.mu.Lock()
	defer f.link.mu.Unlock()
	f.link.onStateChange = fn
}

// OnDelivery registers a callback invoked after each command write
// sequence. err is non-nil when the sequence was abandoned.
func (f *Forwarder) OnDelivery(fn func(cmd command.Command, err error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDelivery = fn
}

// State returns the current link state.
func (f *Forwarder) State() State {
	return f.link.stats().State
}

// Stats returns link statistics.
func (f *Forwarder) Stats() Stats {
	return f.link.stats()
}

// Run drives the link until ctx is cancelled. Neither dial nor send
// failures end it; it always returns nil.
func (f *Forwarder) Run(ctx context.Context) error {
	for {
		conn, err := f.connect(ctx)
		if err != nil {
			return nil
		}

		f.serve(ctx, conn)
		conn.Close()
		f.setState(StateDisconnected)

		if ctx.Err() != nil {
			f.config.Logger.Info("media server link stopped")
			return nil
		}
	}
}

// connect dials until it succeeds or ctx is cancelled.
func (f *Forwarder) connect(ctx context.Context) (net.Conn, error) {
	for {
		conn, err := f.dialer.Dial(ctx)
		if err == nil {
			f.setState(StateConnected)
			f.config.Logger.Info("connected to media server",
				slog.String("target", f.config.TargetAddress))
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		attempts := f.link.dialFailed()
		if f.config.Metrics != nil {
			f.config.Metrics.DownstreamDialFailures.Inc()
		}
		err = bridgeerrors.New("dial", bridgeerrors.Downstream, "", f.config.TargetAddress,
			fmt.Errorf("%w: %w", bridgeerrors.ErrDialFailed, err))
		f.config.Logger.Warn("unable to connect to media server, retrying",
			slog.Int("attempt", attempts),
			slog.Duration("retry_in", f.config.RetryDelay),
			slog.String("error", err.Error()))

		timer := time.NewTimer(f.config.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// serve drains pending commands into conn until a write fails, the media
// server closes the connection, or ctx is cancelled.
func (f *Forwarder) serve(ctx context.Context, conn net.Conn) {
	lost := make(chan error, 1)
	go drain(conn, lost)

	ticker := time.NewTicker(f.config.PollInterval)
	defer ticker.Stop()

	for {
		if err := f.flush(ctx, conn, lost); err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case err := <-lost:
			f.config.Logger.Warn("media server closed the connection",
				slog.String("target", f.config.TargetAddress),
				slog.String("error", err.Error()))
			return
		case <-f.pending.Wake():
		case <-ticker.C:
		}
	}
}

// flush delivers every pending command in priority order. Each flag is
// cleared before its write so a request arriving mid-write stays pending.
func (f *Forwarder) flush(ctx context.Context, conn net.Conn, lost <-chan error) error {
	for _, cmd := range command.All() {
		if !f.pending.Take(cmd) {
			continue
		}

		frames := f.encoder.Encode(cmd)
		if len(frames) == 0 {
			f.config.Logger.Warn("no media server encoding for command",
				slog.String("command", cmd.String()))
			continue
		}

		start := time.Now()
		err := f.write(ctx, conn, lost, frames)
		if err != nil && ctx.Err() != nil {
			// Shutdown, not a media server failure.
			f.config.Logger.Info("command interrupted by shutdown",
				slog.String("command", cmd.String()))
			return ctx.Err()
		}
		if f.config.Metrics != nil {
			f.config.Metrics.RecordDelivery(cmd.String(), time.Since(start), err)
		}
		f.notifyDelivery(cmd, err)

		if err != nil {
			f.config.Logger.Error("error sending command, media server not running?",
				slog.String("command", cmd.String()),
				slog.String("error", err.Error()))
			return err
		}

		f.link.commandDelivered()
		f.config.Logger.Info("sent command to media server",
			slog.String("command", cmd.String()))
	}
	return nil
}

// write sends frames in order, honouring each frame's delay. The remainder
// of a sequence is abandoned on the first failure.
func (f *Forwarder) write(ctx context.Context, conn net.Conn, lost <-chan error, frames []encoder.Frame) error {
	for i, fr := range frames {
		if i > 0 && fr.Delay > 0 {
			timer := time.NewTimer(fr.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case err := <-lost:
				timer.Stop()
				return f.sendError(fmt.Errorf("%w: %w", bridgeerrors.ErrConnectionClosed, err))
			case <-timer.C:
			}
		}

		if f.config.WriteTimeout > 0 {
			conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
		}
		if _, err := conn.Write(fr.Data); err != nil {
			return f.sendError(err)
		}
	}
	return nil
}

func (f *Forwarder) sendError(err error) error {
	return bridgeerrors.New("write", bridgeerrors.Downstream, "", f.config.TargetAddress,
		fmt.Errorf("%w: %w", bridgeerrors.ErrSendFailed, err))
}

func (f *Forwarder) setState(s State) {
	if f.config.Metrics != nil && f.State() != s {
		f.config.Metrics.DownstreamStateChanges.WithLabelValues(s.String()).Inc()
		if s == StateConnected {
			f.config.Metrics.DownstreamConnected.Set(1)
		} else {
			f.config.Metrics.DownstreamConnected.Set(0)
		}
	}
	f.link.setState(s)
}

func (f *Forwarder) notifyDelivery(cmd command.Command, err error) {
	f.mu.RLock()
	fn := f.onDelivery
	f.mu.RUnlock()
	if fn != nil {
		fn(cmd, err)
	}
}

// drain discards anything the media server sends and reports when the
// connection ends. It returns once conn is closed.
func drain(conn net.Conn, lost chan<- error) {
	_, err := io.Copy(io.Discard, conn)
	if err == nil {
		err = io.EOF
	}
	lost <- err
}
