// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package forwarder

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/DazB/TFM-Delta-Utility-App/pkg/command"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/encoder/delta"
	bridgeerrors "github.com/DazB/TFM-Delta-Utility-App/pkg/errors"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/metrics"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/pending"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// fakeServer is the media server side of a net.Pipe. It records every
// byte written by the forwarder.
type fakeServer struct {
	conn net.Conn

	mu     sync.Mutex
	buf    bytes.Buffer
	writes []time.Time
	closed chan struct{}
}

func newFakeServer(conn net.Conn) *fakeServer {
	s := &fakeServer{conn: conn, closed: make(chan struct{})}
	go func() {
		defer close(s.closed)
		b := make([]byte, 256)
		for {
			n, err := conn.Read(b)
			if n > 0 {
				s.mu.Lock()
				s.buf.Write(b[:n])
				s.writes = append(s.writes, time.Now())
				s.mu.Unlock()
			}
			if err != nil {
				return
			}
		}
	}()
	return s
}

func (s *fakeServer) received() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func (s *fakeServer) writeTimes() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.writes...)
}

// fakeDialer fails the first failures attempts, then hands out pipes.
type fakeDialer struct {
	mu       sync.Mutex
	failures int
	attempts int
	servers  []*fakeServer
	dialed   chan *fakeServer
}

func newFakeDialer(failures int) *fakeDialer {
	return &fakeDialer{failures: failures, dialed: make(chan *fakeServer, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context) (net.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.attempts++
	if d.attempts <= d.failures {
		return nil, errors.New("connection refused")
	}

	client, server := net.Pipe()
	fs := newFakeServer(server)
	d.servers = append(d.servers, fs)
	d.dialed <- fs
	return client, nil
}

func (d *fakeDialer) attemptCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		TargetAddress: "media-server:4001",
		RetryDelay:    20 * time.Millisecond,
		PollInterval:  5 * time.Millisecond,
		WriteTimeout:  time.Second,
		Logger:        testLogger(),
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func runForwarder(t *testing.T, f *Forwarder) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.Run(ctx)
	}()
	return func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run returned error: %v", err)
			}
		case <-time.After(3 * time.Second):
			t.Error("Run did not return after cancel")
		}
	}
}

func nextServer(t *testing.T, d *fakeDialer) *fakeServer {
	t.Helper()
	select {
	case fs := <-d.dialed:
		return fs
	case <-time.After(3 * time.Second):
		t.Fatal("Forwarder never connected")
		return nil
	}
}

func TestForwarder_DeliversPending(t *testing.T) {
	p := pending.New()
	d := newFakeDialer(0)
	f := New(testConfig(), d, p, &delta.Encoder{})
	stop := runForwarder(t, f)
	defer stop()

	fs := nextServer(t, d)
	p.Set(command.Play)

	waitFor(t, "PLAY", func() bool { return fs.received() == "PLAY\r" })
	if f.State() != StateConnected {
		t.Errorf("Expected connected, got %s", f.State())
	}
}

func TestForwarder_PriorityOrder(t *testing.T) {
	p := pending.New()
	p.Set(command.CueShow)
	p.Set(command.DisplayGrid)
	p.Set(command.Stop)
	p.Set(command.Play)

	d := newFakeDialer(0)
	f := New(testConfig(), d, p, &delta.Encoder{CompoundDelay: 10 * time.Millisecond})
	stop := runForwarder(t, f)
	defer stop()

	fs := nextServer(t, d)
	want := "PLAY\rSTOP\rGOTOMARKER 'Grid'\rGOTOFRAME 1\rCUE\r"
	waitFor(t, "all commands", func() bool { return fs.received() == want })
}

func TestForwarder_CoalescesWhileDisconnected(t *testing.T) {
	p := pending.New()
	d := newFakeDialer(3)
	f := New(testConfig(), d, p, &delta.Encoder{})

	for i := 0; i < 3; i++ {
		p.Set(command.Stop)
	}

	stop := runForwarder(t, f)
	defer stop()

	fs := nextServer(t, d)
	waitFor(t, "STOP", func() bool { return fs.received() == "STOP\r" })

	time.Sleep(50 * time.Millisecond)
	if got := fs.received(); got != "STOP\r" {
		t.Errorf("Expected exactly one STOP, got %q", got)
	}
	if got := d.attemptCount(); got != 4 {
		t.Errorf("Expected 4 dial attempts, got %d", got)
	}
}

func TestForwarder_ReconnectConvergence(t *testing.T) {
	cfg := testConfig()
	cfg.RetryDelay = 50 * time.Millisecond

	p := pending.New()
	d := newFakeDialer(2)
	f := New(cfg, d, p, &delta.Encoder{})

	var (
		mu          sync.Mutex
		transitions []State
	)
	f.OnStateChange(func(from, to State) {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, to)
	})

	start := time.Now()
	stop := runForwarder(t, f)
	defer stop()

	nextServer(t, d)
	waitFor(t, "connected", func() bool { return f.State() == StateConnected })

	// Two failures cost two retry windows; allow one more for scheduling.
	if elapsed := time.Since(start); elapsed > 3*cfg.RetryDelay+100*time.Millisecond {
		t.Errorf("Took %v to connect", elapsed)
	}
	if got := d.attemptCount(); got != 3 {
		t.Errorf("Expected 3 dial attempts, got %d", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != 1 || transitions[0] != StateConnected {
		t.Errorf("Expected single transition to connected, got %v", transitions)
	}
}

func TestForwarder_SendFailureReconnects(t *testing.T) {
	p := pending.New()
	d := newFakeDialer(0)
	f := New(testConfig(), d, p, &delta.Encoder{})
	stop := runForwarder(t, f)
	defer stop()

	first := nextServer(t, d)
	first.conn.Close()

	second := nextServer(t, d)
	waitFor(t, "reconnected", func() bool { return f.State() == StateConnected })

	p.Set(command.DisplayGrid)
	waitFor(t, "DISPLAY_GRID on new connection", func() bool {
		return second.received() == "GOTOMARKER 'Grid'\r"
	})
	if got := first.received(); got != "" {
		t.Errorf("Expected nothing on the dead connection, got %q", got)
	}
}

func TestForwarder_CompoundDelay(t *testing.T) {
	p := pending.New()
	d := newFakeDialer(0)
	f := New(testConfig(), d, p, &delta.Encoder{CompoundDelay: 100 * time.Millisecond})
	stop := runForwarder(t, f)
	defer stop()

	fs := nextServer(t, d)
	p.Set(command.CueShow)

	waitFor(t, "CUE_SHOW", func() bool { return fs.received() == "GOTOFRAME 1\rCUE\r" })

	writes := fs.writeTimes()
	if len(writes) != 2 {
		t.Fatalf("Expected 2 writes, got %d", len(writes))
	}
	if gap := writes[1].Sub(writes[0]); gap < 90*time.Millisecond {
		t.Errorf("Expected ~100ms between frames, got %v", gap)
	}
}

func TestForwarder_CompoundAbandoned(t *testing.T) {
	p := pending.New()
	d := newFakeDialer(0)
	f := New(testConfig(), d, p, &delta.Encoder{CompoundDelay: 200 * time.Millisecond})

	delivered := make(chan error, 4)
	f.OnDelivery(func(cmd command.Command, err error) {
		if cmd == command.CueShow {
			delivered <- err
		}
	})

	stop := runForwarder(t, f)
	defer stop()

	fs := nextServer(t, d)
	p.Set(command.CueShow)

	waitFor(t, "first frame", func() bool { return fs.received() == "GOTOFRAME 1\r" })
	fs.conn.Close()

	select {
	case err := <-delivered:
		if !errors.Is(err, bridgeerrors.ErrSendFailed) {
			t.Errorf("Expected ErrSendFailed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected abandoned delivery to be reported")
	}

	// The flag was cleared before the write, so nothing is retried.
	replacement := nextServer(t, d)
	time.Sleep(300 * time.Millisecond)
	if got := replacement.received(); got != "" {
		t.Errorf("Expected abandoned compound command not to resume, got %q", got)
	}
	if p.Pending(command.CueShow) {
		t.Error("Expected CUE_SHOW flag to stay cleared")
	}
}

func TestForwarder_ShutdownDuringCompoundDelay(t *testing.T) {
	m := metrics.New("test", prometheus.NewRegistry())
	cfg := testConfig()
	cfg.Metrics = m

	p := pending.New()
	d := newFakeDialer(0)
	f := New(cfg, d, p, &delta.Encoder{CompoundDelay: 300 * time.Millisecond})

	delivered := make(chan error, 4)
	f.OnDelivery(func(cmd command.Command, err error) {
		delivered <- err
	})

	stop := runForwarder(t, f)
	fs := nextServer(t, d)
	p.Set(command.CueShow)

	waitFor(t, "first frame", func() bool { return fs.received() == "GOTOFRAME 1\r" })
	stop()

	if got := fs.received(); got != "GOTOFRAME 1\r" {
		t.Errorf("Expected CUE not to be sent after shutdown, got %q", got)
	}
	if got := testutil.ToFloat64(m.DownstreamSendFailures); got != 0 {
		t.Errorf("Expected no send failures on shutdown, got %v", got)
	}
	if got := testutil.ToFloat64(m.CommandsAbandoned.WithLabelValues("CUE_SHOW")); got != 0 {
		t.Errorf("Expected no abandoned CUE_SHOW on shutdown, got %v", got)
	}
	select {
	case err := <-delivered:
		t.Errorf("Expected no delivery report on shutdown, got %v", err)
	default:
	}
}

func TestForwarder_StopsWhileDisconnected(t *testing.T) {
	cfg := testConfig()
	cfg.RetryDelay = time.Hour

	d := newFakeDialer(1 << 30)
	f := New(cfg, d, pending.New(), &delta.Encoder{})
	stop := runForwarder(t, f)

	waitFor(t, "first failure", func() bool { return f.Stats().DialFailures >= 1 })
	stop()

	if f.State() != StateDisconnected {
		t.Errorf("Expected disconnected, got %s", f.State())
	}
	if got := f.Stats().DialFailures; got != 1 {
		t.Errorf("Expected 1 dial failure, got %d", got)
	}
}

func TestForwarder_Metrics(t *testing.T) {
	m := metrics.New("test", prometheus.NewRegistry())
	cfg := testConfig()
	cfg.Metrics = m

	p := pending.New()
	d := newFakeDialer(2)
	f := New(cfg, d, p, &delta.Encoder{})
	stop := runForwarder(t, f)
	defer stop()

	fs := nextServer(t, d)
	p.Set(command.Play)
	waitFor(t, "PLAY", func() bool { return fs.received() == "PLAY\r" })
	waitFor(t, "delivered counter", func() bool {
		return testutil.ToFloat64(m.CommandsDelivered.WithLabelValues("PLAY")) == 1
	})

	if got := testutil.ToFloat64(m.DownstreamDialFailures); got != 2 {
		t.Errorf("Expected 2 dial failures, got %v", got)
	}
	if got := testutil.ToFloat64(m.DownstreamConnected); got != 1 {
		t.Errorf("Expected connected gauge 1, got %v", got)
	}
	waitFor(t, "delivered stat", func() bool { return f.Stats().Delivered == 1 })
}

func TestTCPDialer(t *testing.T) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("Failed to create listener: %v", err)
	}
	defer l.Close()

	go func() {
		conn, err := l.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	conn, err := TCPDialer(l.Addr().String(), time.Second).Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	conn.Close()

	addr := l.Addr().String()
	l.Close()
	if _, err := TCPDialer(addr, time.Second).Dial(context.Background()); err == nil {
		t.Error("Expected dial to a closed port to fail")
	}
}

func TestState_String(t *testing.T) {
	if StateDisconnected.String() != "disconnected" || StateConnected.String() != "connected" {
		t.Error("Unexpected state names")
	}
	if State(9).String() != "unknown" {
		t.Error("Expected unknown for invalid state")
	}
}
