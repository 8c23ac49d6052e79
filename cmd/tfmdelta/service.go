// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	tfmdelta "github.com/DazB/TFM-Delta-Utility-App"
	svc "github.com/kardianos/service"
)

// program adapts run to the service manager.
type program struct {
	app    appConfig
	core   tfmdelta.Config
	logger *slog.Logger

	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(s svc.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)

	go func() {
		err := run(ctx, p.app, p.core, newRegistry(), p.logger)
		if err != nil {
			p.logger.Error("bridge failed", slog.String("error", err.Error()))
		}
		p.done <- err
		if err != nil {
			// Let the service manager's restart policy take over.
			os.Exit(1)
		}
	}()
	return nil
}

func (p *program) Stop(s svc.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()

	select {
	case <-p.done:
		p.logger.Info("service stopped")
		return nil
	case <-time.After(p.app.ShutdownTimeout):
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

func serviceConfig(app appConfig) *svc.Config {
	cfg := &svc.Config{
		Name:        app.ServiceName,
		DisplayName: "TFM Delta Bridge",
		Description: "Translates show controller commands into media server commands.",
		Arguments:   []string{"-service", "run"},
		Option:      svc.KeyValue{"Restart": "on-failure", "RunAtLoad": true, "StartType": "automatic"},
	}
	// The .env file is looked up next to the binary when run as a service.
	if exe, err := os.Executable(); err == nil {
		cfg.WorkingDirectory = filepath.Dir(exe)
	}
	return cfg
}

func handleServiceCmd(cmd string, app appConfig, core tfmdelta.Config, logger *slog.Logger) error {
	p := &program{app: app, core: core, logger: logger}
	s, err := svc.New(p, serviceConfig(app))
	if err != nil {
		return err
	}

	switch strings.ToLower(cmd) {
	case "install":
		return s.Install()
	case "uninstall":
		return s.Uninstall()
	case "start":
		return s.Start()
	case "stop":
		return s.Stop()
	case "run":
		return s.Run()
	default:
		return fmt.Errorf("unknown service command: %s", cmd)
	}
}
