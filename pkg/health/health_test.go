// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestChecker_Statuses(t *testing.T) {
	ready := make(chan struct{})
	var connected atomic.Bool

	c := NewChecker(time.Nanosecond)
	c.Register(CheckUpstreamListener, true, ListenerCheck(ready))
	c.Register(CheckDownstreamLink, false, LinkCheck(connected.Load))

	if status, _ := c.Health(context.Background()); status != StatusUnhealthy {
		t.Errorf("Expected unhealthy before bind, got %s", status)
	}

	close(ready)
	time.Sleep(time.Millisecond)
	status, checks := c.Health(context.Background())
	if status != StatusDegraded {
		t.Errorf("Expected degraded while link is down, got %s", status)
	}
	if len(checks) != 2 || checks[0].Name != CheckDownstreamLink || checks[1].Name != CheckUpstreamListener {
		t.Fatalf("Expected checks ordered by name, got %+v", checks)
	}
	if checks[0].Message != errLinkDown.Error() {
		t.Errorf("Expected link down message, got %q", checks[0].Message)
	}

	connected.Store(true)
	time.Sleep(time.Millisecond)
	if status, _ := c.Health(context.Background()); status != StatusHealthy {
		t.Errorf("Expected healthy, got %s", status)
	}
}

func TestChecker_Cache(t *testing.T) {
	var calls atomic.Int32
	c := NewChecker(time.Hour)
	c.Register("counting", false, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	c.Health(context.Background())
	c.Health(context.Background())

	if got := calls.Load(); got != 1 {
		t.Errorf("Expected cached result, check ran %d times", got)
	}

	c.Register("counting", false, func(ctx context.Context) error {
		calls.Add(1)
		return errors.New("boom")
	})
	if status, _ := c.Health(context.Background()); status != StatusDegraded {
		t.Errorf("Expected re-registration to drop the cached result, got %s", status)
	}
}

func TestHandlers(t *testing.T) {
	var connected atomic.Bool
	ready := make(chan struct{})
	close(ready)

	c := NewChecker(time.Nanosecond)
	c.Register(CheckUpstreamListener, true, ListenerCheck(ready))
	c.Register(CheckDownstreamLink, false, LinkCheck(connected.Load))

	mux := http.NewServeMux()
	c.Mount(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cases := []struct {
		path      string
		connected bool
		want      int
		status    string
	}{
		{"/health", false, http.StatusOK, "degraded"},
		{"/ready", false, http.StatusServiceUnavailable, "degraded"},
		{"/ready", true, http.StatusOK, "healthy"},
		{"/live", false, http.StatusOK, "alive"},
	}

	for _, tc := range cases {
		connected.Store(tc.connected)
		time.Sleep(time.Millisecond)

		resp, err := http.Get(srv.URL + tc.path)
		if err != nil {
			t.Fatalf("GET %s: %v", tc.path, err)
		}
		var body struct {
			Status string `json:"status"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()

		if resp.StatusCode != tc.want {
			t.Errorf("%s (connected=%v): expected %d, got %d", tc.path, tc.connected, tc.want, resp.StatusCode)
		}
		if body.Status != tc.status {
			t.Errorf("%s (connected=%v): expected status %q, got %q", tc.path, tc.connected, tc.status, body.Status)
		}
	}
}
