package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"google.golang.org/grpc"

	"github.com/maxpoletaev/treenet/internal/admin"
	"github.com/maxpoletaev/treenet/overlay"
	"github.com/maxpoletaev/treenet/topology"
)

type shutdownFunc func(ctx context.Context) error

var noopShutdown = func(ctx context.Context) error { return nil }

func setupLogger(opts *options) (kitlog.Logger, shutdownFunc) {
	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	logger = kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC)

	if !opts.Verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	return logger, noopShutdown
}

func buildConfig(opts *options, logger kitlog.Logger) (overlay.Config, error) {
	master, err := topology.ParseAddr(opts.Master)
	if err != nil {
		return overlay.Config{}, fmt.Errorf("invalid master address: %w", err)
	}

	conf := overlay.DefaultConfig()
	conf.Self = topology.Addr{Host: opts.Host, Port: opts.Args.Port}
	conf.Master = master
	conf.Fanout = opts.Fanout
	conf.ProbeInterval = opts.probeInterval()
	conf.ProbeTimeout = opts.probeTimeout()
	conf.Logger = logger

	if err := conf.Validate(); err != nil {
		return overlay.Config{}, err
	}

	return conf, nil
}

func setupAdmin(opts *options, wg *sync.WaitGroup, logger kitlog.Logger) (*admin.Health, shutdownFunc, error) {
	if opts.AdminAddr == "" {
		return nil, noopShutdown, nil
	}

	listener, err := net.Listen("tcp", opts.AdminAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create grpc listener: %w", err)
	}

	health := admin.NewHealth()
	grpcServer := grpc.NewServer()
	health.Register(grpcServer)

	wg.Add(1)

	go func() {
		defer wg.Done()

		if err := grpcServer.Serve(listener); err != nil {
			level.Error(logger).Log("msg", "grpc server failed", "err", err)
		}
	}()

	level.Info(logger).Log("msg", "health server started", "addr", opts.AdminAddr)

	shutdown := func(ctx context.Context) error {
		level.Info(logger).Log("msg", "shutting down grpc server")
		health.Shutdown()
		grpcServer.GracefulStop()

		return nil
	}

	return health, shutdown, nil
}

func setupMetrics(opts *options, wg *sync.WaitGroup, logger kitlog.Logger) shutdownFunc {
	if opts.MetricsAddr == "" {
		return noopShutdown
	}

	server := admin.NewMetricsServer(opts.MetricsAddr)

	wg.Add(1)

	go func() {
		defer wg.Done()

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			level.Error(logger).Log("msg", "metrics server failed", "err", err)
		}
	}()

	shutdown := func(ctx context.Context) error {
		level.Info(logger).Log("msg", "shutting down metrics server")

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown metrics server: %w", err)
		}

		return nil
	}

	return shutdown
}

func setupNode(ctx context.Context, conf overlay.Config) (*overlay.Node, shutdownFunc, error) {
	node := overlay.New(conf)

	if err := node.Start(ctx); err != nil {
		return nil, nil, err
	}

	return node, node.Shutdown, nil
}
