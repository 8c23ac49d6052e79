// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package main runs the TFM to Delta bridge with metrics, health checks and
// a live event monitor.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tfmdelta "github.com/DazB/TFM-Delta-Utility-App"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/bridge"
	bridgeerrors "github.com/DazB/TFM-Delta-Utility-App/pkg/errors"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/handler"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/health"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/metrics"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/monitor"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/netif"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const envPrefix = "TFMDELTA_"

// appConfig holds settings that belong to the process rather than the
// bridge itself.
type appConfig struct {
	// Logging
	LogLevel      string `env:"LOG_LEVEL"         envDefault:"info"`
	LogFormat     string `env:"LOG_FORMAT"        envDefault:"text"`
	LogFile       string `env:"LOG_FILE"          envDefault:""`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB"   envDefault:"20"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS"   envDefault:"5"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS"  envDefault:"7"`

	// Observability. A zero port disables the server.
	MetricsPort    int  `env:"METRICS_PORT"     envDefault:"9090"`
	HealthPort     int  `env:"HEALTH_PORT"      envDefault:"8080"`
	MonitorEnabled bool `env:"MONITOR_ENABLED"  envDefault:"true"`
	MonitorHistory int  `env:"MONITOR_HISTORY"  envDefault:"100"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"  envDefault:"10s"`
	ServiceName     string        `env:"SERVICE_NAME"      envDefault:"tfmdelta"`
}

func main() {
	os.Exit(realMain())
}

func realMain() int {
	serviceCmd := flag.String("service", "", "service control: install, uninstall, start, stop or run")
	flag.Parse()

	dotenvErr := godotenv.Load()

	app, core, err := loadConfig(env.Options{Prefix: envPrefix})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse config: %v\n", err)
		return 1
	}

	logger, closeLog := setupLogger(app)
	defer closeLog()

	if dotenvErr != nil {
		logger.Debug("no .env file found, using environment variables")
	}

	if *serviceCmd != "" {
		if err := handleServiceCmd(*serviceCmd, app, core, logger); err != nil {
			logger.Error("service command failed",
				slog.String("command", *serviceCmd),
				slog.String("error", err.Error()))
			return 1
		}
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, app, core, newRegistry(), logger); err != nil {
		if errors.Is(err, bridgeerrors.ErrBindFailed) {
			logger.Error("unable to bind controller listener", slog.String("error", err.Error()))
		} else {
			logger.Error("bridge failed", slog.String("error", err.Error()))
		}
		return 1
	}

	logger.Info("shutting down")
	return 0
}

func loadConfig(opts env.Options) (appConfig, tfmdelta.Config, error) {
	app := appConfig{}
	if err := env.ParseWithOptions(&app, opts); err != nil {
		return appConfig{}, tfmdelta.Config{}, err
	}

	core, err := tfmdelta.NewConfig(opts)
	if err != nil {
		return appConfig{}, tfmdelta.Config{}, err
	}

	return app, core, nil
}

// newRegistry returns a registry carrying the Go runtime and process
// collectors alongside the bridge metrics.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// run serves until ctx is cancelled. It returns nil on a clean stop.
func run(ctx context.Context, app appConfig, core tfmdelta.Config, reg *prometheus.Registry, logger *slog.Logger) error {
	if core.BindInterface != "" {
		addr, err := netif.Resolve(core.BindInterface)
		if err != nil {
			if names, lerr := netif.Names(); lerr == nil {
				logger.Error("unknown bind interface",
					slog.String("interface", core.BindInterface),
					slog.Any("available", names))
			}
			return bridgeerrors.Wrap(fmt.Errorf("%w: %w", bridgeerrors.ErrBindFailed, err), "resolving bind interface")
		}
		logger.Info("resolved bind interface",
			slog.String("interface", core.BindInterface),
			slog.String("address", addr))
		core.Host = addr
	}

	m := metrics.New("tfmdelta", reg)

	var hub *monitor.Hub
	if app.MonitorEnabled {
		hub = monitor.NewHub(app.MonitorHistory, logger)
	}

	b := bridge.New(bridge.Config{
		Address:        core.Address(),
		TargetAddress:  core.TargetAddress(),
		ReadBufferSize: core.ReadBufferSize,
		MaxConnections: core.MaxConnections,
		RetryDelay:     core.RetryDelay,
		PollInterval:   core.PollInterval,
		DialTimeout:    core.DialTimeout,
		WriteTimeout:   core.WriteTimeout,
		CompoundDelay:  core.CompoundDelay,
		Metrics:        m,
		Monitor:        hub,
		Handlers: []handler.Handler{
			&InstrumentedHandler{metrics: m},
		},
		Logger: logger,
	})

	checker := health.NewChecker(time.Second)
	b.RegisterHealth(checker)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return b.Run(ctx)
	})

	if app.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		g.Go(func() error {
			serveHTTP(ctx, "metrics", app.MetricsPort, mux, app.ShutdownTimeout, logger)
			return nil
		})
	}

	if app.HealthPort > 0 {
		mux := http.NewServeMux()
		checker.Mount(mux)
		if hub != nil {
			mux.Handle("/events", hub)
		}
		g.Go(func() error {
			serveHTTP(ctx, "health", app.HealthPort, mux, app.ShutdownTimeout, logger)
			return nil
		})
	}

	if hub != nil {
		g.Go(func() error {
			<-ctx.Done()
			hub.Close()
			return nil
		})
	}

	return g.Wait()
}

// serveHTTP runs an auxiliary HTTP server until ctx is cancelled. Failures
// are logged; the bridge keeps running without it.
func serveHTTP(ctx context.Context, name string, port int, h http.Handler, shutdownTimeout time.Duration, logger *slog.Logger) {
	addr := net.JoinHostPort("", strconv.Itoa(port))
	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting "+name+" server", slog.String("address", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error(name+" server error", slog.String("error", err.Error()))
	}
}

// setupLogger creates a structured logger with the configured level and
// format. Output goes to stdout and, when LOG_FILE is set, to a rotating
// file as well.
func setupLogger(app appConfig) (*slog.Logger, func()) {
	var logLevel slog.Level
	switch app.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	closeFn := func() {}
	if app.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   app.LogFile,
			MaxSize:    app.LogMaxSizeMB,
			MaxBackups: app.LogMaxBackups,
			MaxAge:     app.LogMaxAgeDays,
		}
		out = io.MultiWriter(os.Stdout, rotator)
		closeFn = func() { rotator.Close() }
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var h slog.Handler
	if app.LogFormat == "json" {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}

	return slog.New(h), closeFn
}
