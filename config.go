// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tfmdelta

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/DazB/TFM-Delta-Utility-App/pkg/errors"
	"github.com/caarlos0/env/v11"
)

// Config is the bridge configuration read from the environment.
type Config struct {
	// Inbound listener. BindInterface, when set, replaces Host with the
	// interface's IPv4 address. Use 0.0.0.0 to listen on every interface.
	Host          string `env:"LISTEN_HOST"     envDefault:"localhost"`
	Port          string `env:"LISTEN_PORT"     envDefault:"4000"`
	BindInterface string `env:"BIND_INTERFACE"  envDefault:""`

	// Media server.
	TargetHost string `env:"TARGET_HOST"  envDefault:"localhost"`
	TargetPort string `env:"TARGET_PORT"  envDefault:"4001"`

	RetryDelay    time.Duration `env:"RETRY_DELAY"     envDefault:"5s"`
	PollInterval  time.Duration `env:"POLL_INTERVAL"   envDefault:"10ms"`
	DialTimeout   time.Duration `env:"DIAL_TIMEOUT"    envDefault:"3s"`
	WriteTimeout  time.Duration `env:"WRITE_TIMEOUT"   envDefault:"2s"`
	CompoundDelay time.Duration `env:"COMPOUND_DELAY"  envDefault:"500ms"`

	ReadBufferSize int `env:"READ_BUFFER_SIZE"  envDefault:"1024"`
	MaxConnections int `env:"MAX_CONNECTIONS"   envDefault:"2"`
}

// NewConfig parses Config from the environment using opts.
func NewConfig(opts env.Options) (Config, error) {
	c := Config{}
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

// Validate rejects settings the bridge cannot run with.
func (c Config) Validate() error {
	for name, port := range map[string]string{"LISTEN_PORT": c.Port, "TARGET_PORT": c.TargetPort} {
		n, err := strconv.Atoi(port)
		if err != nil || n < 0 || n > 65535 {
			return fmt.Errorf("%w: %s %q is not a port", errors.ErrInvalidInput, name, port)
		}
	}
	if c.TargetHost == "" {
		return fmt.Errorf("%w: TARGET_HOST is empty", errors.ErrInvalidInput)
	}
	if c.RetryDelay <= 0 || c.PollInterval <= 0 {
		return fmt.Errorf("%w: RETRY_DELAY and POLL_INTERVAL must be positive", errors.ErrInvalidInput)
	}
	if c.ReadBufferSize <= 0 {
		return fmt.Errorf("%w: READ_BUFFER_SIZE must be positive", errors.ErrInvalidInput)
	}
	return nil
}

// Address is the inbound listen address.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// TargetAddress is the media server address.
func (c Config) TargetAddress() string {
	return net.JoinHostPort(c.TargetHost, c.TargetPort)
}
