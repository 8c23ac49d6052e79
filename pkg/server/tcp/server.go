// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/DazB/TFM-Delta-Utility-App/pkg/command"
	bridgeerrors "github.com/DazB/TFM-Delta-Utility-App/pkg/errors"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/handler"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/parser"
	"github.com/google/uuid"
)

// Close reasons reported in handler.Context.CloseReason.
const (
	CloseEOF      = "eof"
	CloseError    = "error"
	CloseShutdown = "shutdown"
)

// Config holds the TCP server configuration.
type Config struct {
	// Address is the listen address (host:port)
	Address string

	// MaxConnections is the expected number of concurrent controller
	// connections (primary controller plus one diagnostic session).
	// Exceeding it is logged but never refused.
	MaxConnections int

	// ReadBufferSize bounds a single read on an upstream connection.
	ReadBufferSize int

	// Protocol is reported to handlers in handler.Context.Protocol
	Protocol string

	// Logger for server events
	Logger *slog.Logger
}

// Server accepts controller connections and feeds every read through the
// parser. It never writes back to the controller.
type Server struct {
	config  Config
	parser  parser.Parser
	handler handler.Handler

	wg       sync.WaitGroup
	mu       sync.Mutex
	conns    map[string]net.Conn
	listener net.Listener
	ready    chan struct{}
}

// New creates a new TCP server with the given configuration, parser, and handler.
func New(cfg Config, p parser.Parser, h handler.Handler) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 2
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = 1024
	}
	if cfg.Protocol == "" {
		cfg.Protocol = "rss"
	}

	return &Server{
		config:  cfg,
		parser:  p,
		handler: h,
		conns:   make(map[string]net.Conn),
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listen address, or nil before Ready.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Connections returns the number of open controller connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Listen binds the configured address and serves until ctx is cancelled.
// A bind failure is returned immediately and wraps ErrBindFailed. On
// shutdown the listener and every open connection are closed.
func (s *Server) Listen(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("%w on %s: %w", bridgeerrors.ErrBindFailed, s.config.Address, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	close(s.ready)

	s.config.Logger.Info("listening for controller connections",
		slog.String("address", listener.Addr().String()))

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		for {
			conn, err := listener.Accept()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return
				}
				s.config.Logger.Error("failed to accept connection", slog.String("error", err.Error()))
				continue
			}

			sessionID := uuid.New().String()
			if n := s.track(sessionID, conn); n > s.config.MaxConnections {
				s.config.Logger.Warn("more controller connections than expected",
					slog.Int("open", n),
					slog.Int("expected", s.config.MaxConnections))
			}

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.handleConn(ctx, sessionID, conn)
			}()
		}
	}()

	<-ctx.Done()
	s.config.Logger.Info("shutdown signal received, closing listener")

	if err := listener.Close(); err != nil {
		s.config.Logger.Error("error closing listener", slog.String("error", err.Error()))
	}
	<-acceptDone

	// Controllers hold connections open indefinitely, so nothing drains on
	// its own: close them to unblock their readers.
	s.mu.Lock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.config.Logger.Info("all controller connections closed")
	return nil
}

func (s *Server) track(id string, conn net.Conn) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[id] = conn
	return len(s.conns)
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, id)
}

// handleConn reads from one controller connection until it closes. Every
// failure is contained here; nothing propagates to the accept loop.
func (s *Server) handleConn(ctx context.Context, sessionID string, conn net.Conn) {
	hctx := &handler.Context{
		SessionID:   sessionID,
		RemoteAddr:  conn.RemoteAddr().String(),
		Protocol:    s.config.Protocol,
		ConnectedAt: time.Now(),
	}

	defer func() {
		s.untrack(sessionID)
		conn.Close()
		if err := s.handler.OnDisconnect(context.Background(), hctx); err != nil {
			s.config.Logger.Error("disconnect handler error",
				slog.String("session", sessionID),
				slog.String("error", err.Error()))
		}
	}()

	s.config.Logger.Info("accepted connection",
		slog.String("session", sessionID),
		slog.String("remote", hctx.RemoteAddr))

	if err := s.handler.OnConnect(ctx, hctx); err != nil {
		s.config.Logger.Error("connect handler error",
			slog.String("session", sessionID),
			slog.String("error", err.Error()))
	}

	err := s.read(ctx, conn, hctx)
	switch {
	case ctx.Err() != nil:
		hctx.CloseReason = CloseShutdown
	case err == nil || errors.Is(err, io.EOF) || errors.Is(err, bridgeerrors.ErrConnectionClosed):
		hctx.CloseReason = CloseEOF
		s.config.Logger.Info("closing connection",
			slog.String("session", sessionID),
			slog.String("remote", hctx.RemoteAddr))
	default:
		hctx.CloseReason = CloseError
		s.config.Logger.Warn("closing connection after read error",
			slog.String("session", sessionID),
			slog.String("remote", hctx.RemoteAddr),
			slog.String("error", err.Error()))
	}
}

// read performs bounded reads until EOF, a zero-length read or an error.
func (s *Server) read(ctx context.Context, conn net.Conn, hctx *handler.Context) error {
	buf := make([]byte, s.config.ReadBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			s.dispatch(ctx, hctx, buf[:n])
		}
		if err != nil {
			return bridgeerrors.New("read", bridgeerrors.Upstream, hctx.SessionID, hctx.RemoteAddr, err)
		}
		if n == 0 {
			return bridgeerrors.ErrConnectionClosed
		}
	}
}

func (s *Server) dispatch(ctx context.Context, hctx *handler.Context, payload []byte) {
	cmd, err := s.parser.Parse(payload)
	if err != nil {
		s.config.Logger.Debug("discarding undecodable payload",
			slog.String("session", hctx.SessionID),
			slog.Int("bytes", len(payload)),
			slog.String("error", err.Error()))
		return
	}
	if cmd == command.None {
		return
	}

	s.config.Logger.Info("received command",
		slog.String("session", hctx.SessionID),
		slog.String("command", cmd.String()))

	if err := s.handler.OnCommand(ctx, hctx, cmd); err != nil {
		s.config.Logger.Error("command handler error",
			slog.String("session", hctx.SessionID),
			slog.String("command", cmd.String()),
			slog.String("error", err.Error()))
	}
}
