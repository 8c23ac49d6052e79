// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package monitor broadcasts bridge activity to WebSocket subscribers so an
// operator can watch a show from a browser.
package monitor

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// EventType names what happened.
type EventType string

const (
	EventUpstreamConnected EventType = "upstream_connected"
	EventUpstreamClosed    EventType = "upstream_closed"
	EventCommandRecognized EventType = "command_recognized"
	EventCommandDelivered  EventType = "command_delivered"
	EventCommandAbandoned  EventType = "command_abandoned"
	EventLinkState         EventType = "link_state"
)

const (
	// DefaultHistory is how many recent events a new subscriber receives.
	DefaultHistory = 100

	sendBuffer   = 32
	writeTimeout = 5 * time.Second
	pingPeriod   = 30 * time.Second
)

// Event is one JSON message on the feed.
type Event struct {
	ID      string    `json:"id"`
	Type    EventType `json:"type"`
	Command string    `json:"command,omitempty"`
	Remote  string    `json:"remote,omitempty"`
	State   string    `json:"state,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	Error   string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}

type subscriber struct {
	ws   *websocket.Conn
	send chan Event
	once sync.Once
	done chan struct{}
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.done)
		s.ws.Close()
	})
}

// Hub fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Hub struct {
	mu       sync.RWMutex
	subs     map[*subscriber]struct{}
	history  []Event
	limit    int
	dropped  uint64
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHub creates a hub keeping the last limit events. A non-positive limit
// uses DefaultHistory.
func NewHub(limit int, logger *slog.Logger) *Hub {
	if limit <= 0 {
		limit = DefaultHistory
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:     make(map[*subscriber]struct{}),
		limit:    limit,
		logger:   logger,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

// Publish stamps e with an ID and time when missing and sends it to every
// subscriber.
func (h *Hub) Publish(e Event) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.history) >= h.limit {
		h.history = append(h.history[1:], e)
	} else {
		h.history = append(h.history, e)
	}

	for s := range h.subs {
		select {
		case s.send <- e:
		default:
			h.dropped++
		}
	}
}

// History returns the retained events, oldest first.
func (h *Hub) History() []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Event(nil), h.history...)
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// ServeHTTP upgrades the request and streams events until the subscriber
// goes away. The history is replayed first.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("monitor upgrade failed", slog.String("error", err.Error()))
		return
	}

	s := &subscriber{
		ws:   ws,
		send: make(chan Event, sendBuffer),
		done: make(chan struct{}),
	}

	// Registering and snapshotting under one lock keeps the replay and the
	// live stream free of gaps and duplicates.
	h.mu.Lock()
	backlog := append([]Event(nil), h.history...)
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("monitor subscriber connected", slog.String("remote", r.RemoteAddr))

	go h.readPump(s)
	h.writePump(s, backlog)

	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
	s.close()

	h.logger.Info("monitor subscriber disconnected", slog.String("remote", r.RemoteAddr))
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}

func (h *Hub) writePump(s *subscriber, backlog []Event) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for _, e := range backlog {
		if err := h.write(s, e); err != nil {
			return
		}
	}

	for {
		select {
		case <-s.done:
			return
		case e := <-s.send:
			if err := h.write(s, e); err != nil {
				return
			}
		case <-ticker.C:
			s.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) write(s *subscriber, e Event) error {
	s.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.ws.WriteJSON(e)
}

// readPump discards client messages and ends the subscription when the
// client closes.
func (h *Hub) readPump(s *subscriber) {
	defer s.close()
	for {
		if _, _, err := s.ws.ReadMessage(); err != nil {
			return
		}
	}
}
