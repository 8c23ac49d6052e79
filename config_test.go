// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tfmdelta

import (
	"errors"
	"testing"
	"time"

	bridgeerrors "github.com/DazB/TFM-Delta-Utility-App/pkg/errors"
	"github.com/caarlos0/env/v11"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig(env.Options{
		Prefix:      "TFMDELTA_TEST_",
		Environment: map[string]string{},
	})
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}

	if got := cfg.Address(); got != "localhost:4000" {
		t.Errorf("Expected localhost:4000, got %s", got)
	}
	if got := cfg.TargetAddress(); got != "localhost:4001" {
		t.Errorf("Expected localhost:4001, got %s", got)
	}
	if cfg.RetryDelay != 5*time.Second {
		t.Errorf("Expected 5s retry delay, got %v", cfg.RetryDelay)
	}
	if cfg.PollInterval != 10*time.Millisecond {
		t.Errorf("Expected 10ms poll interval, got %v", cfg.PollInterval)
	}
	if cfg.CompoundDelay != 500*time.Millisecond {
		t.Errorf("Expected 500ms compound delay, got %v", cfg.CompoundDelay)
	}
	if cfg.ReadBufferSize != 1024 || cfg.MaxConnections != 2 {
		t.Errorf("Unexpected buffer/connection defaults: %d/%d", cfg.ReadBufferSize, cfg.MaxConnections)
	}
}

func TestNewConfig_Overrides(t *testing.T) {
	cfg, err := NewConfig(env.Options{
		Prefix: "TFMDELTA_",
		Environment: map[string]string{
			"TFMDELTA_LISTEN_HOST":    "192.168.10.5",
			"TFMDELTA_LISTEN_PORT":    "5000",
			"TFMDELTA_TARGET_HOST":    "10.0.0.2",
			"TFMDELTA_TARGET_PORT":    "5001",
			"TFMDELTA_RETRY_DELAY":    "250ms",
			"TFMDELTA_BIND_INTERFACE": "eth0",
		},
	})
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}

	if got := cfg.Address(); got != "192.168.10.5:5000" {
		t.Errorf("Expected 192.168.10.5:5000, got %s", got)
	}
	if got := cfg.TargetAddress(); got != "10.0.0.2:5001" {
		t.Errorf("Expected 10.0.0.2:5001, got %s", got)
	}
	if cfg.RetryDelay != 250*time.Millisecond {
		t.Errorf("Expected 250ms, got %v", cfg.RetryDelay)
	}
	if cfg.BindInterface != "eth0" {
		t.Errorf("Expected eth0, got %s", cfg.BindInterface)
	}
}

func TestNewConfig_Invalid(t *testing.T) {
	_, err := NewConfig(env.Options{
		Prefix:      "TFMDELTA_",
		Environment: map[string]string{"TFMDELTA_RETRY_DELAY": "soon"},
	})
	if err == nil {
		t.Error("Expected error for invalid duration")
	}
}

func TestNewConfig_Rejected(t *testing.T) {
	cases := map[string]string{
		"TFMDELTA_LISTEN_PORT":      "http",
		"TFMDELTA_TARGET_PORT":      "70000",
		"TFMDELTA_RETRY_DELAY":      "0s",
		"TFMDELTA_READ_BUFFER_SIZE": "0",
	}

	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			_, err := NewConfig(env.Options{
				Prefix:      "TFMDELTA_",
				Environment: map[string]string{key: value},
			})
			if !errors.Is(err, bridgeerrors.ErrInvalidInput) {
				t.Errorf("Expected ErrInvalidInput for %s=%q, got %v", key, value, err)
			}
		})
	}
}
