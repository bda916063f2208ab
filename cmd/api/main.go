package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rentmap.hu/internal/app"
	"rentmap.hu/internal/appconf"
	"rentmap.hu/internal/logging"
	"rentmap.hu/internal/restapi"
	"rentmap.hu/internal/supervisor"
	"rentmap.hu/internal/tracing"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "rentmap:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		port       int
		env        string
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML config file")
	flag.IntVar(&port, "port", 0, "API server port (overrides config)")
	flag.StringVar(&env, "env", "", "Environment (development|test|production, overrides config)")
	flag.Parse()

	var (
		cfg *appconf.Config
		err error
	)
	if configPath != "" {
		cfg, err = appconf.LoadFrom(configPath)
	} else {
		cfg, err = appconf.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if env != "" {
		cfg.Server.Env = env
	}

	logger := logging.New(os.Stdout, logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, version, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logging.LogError(logger, "tracer shutdown failed", err)
		}
	}()

	application, err := app.New(ctx, *cfg, logger)
	if err != nil {
		return err
	}
	defer logging.SafeCloseWithLogging(application, logger, "application")

	api := restapi.NewRestAPI(application)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.Handler(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.Server.Timeout + cfg.Stops.RequestTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	tree := supervisor.NewTree(logger, supervisor.DefaultTreeConfig())
	tree.AddMessagingService(application.Hub)
	tree.AddAPIService(api.RateLimiter())
	tree.AddAPIService(supervisor.NewHTTPService(srv, 10*time.Second))

	logger.Info("starting server",
		slog.String("addr", srv.Addr),
		slog.String("env", cfg.Environment().String()),
		slog.String("version", version))

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("supervisor stopped: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
