package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-kit/log/level"
)

const shutdownTimeout = 10 * time.Second

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		// Parse errors and help are printed by the parser.
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	wg := sync.WaitGroup{}
	logger, closeLogger := setupLogger(opts)

	conf, err := buildConfig(opts, logger)
	if err != nil {
		level.Error(logger).Log("msg", "invalid configuration", "err", err)
		os.Exit(2)
	}

	health, closeAdmin, err := setupAdmin(opts, &wg, logger)
	if err != nil {
		level.Error(logger).Log("msg", "failed to start health server", "err", err)
		os.Exit(1)
	}

	if health != nil {
		conf.Observer = health
	}

	closeMetrics := setupMetrics(opts, &wg, logger)

	_, closeNode, err := setupNode(ctx, conf)
	if err != nil {
		level.Error(logger).Log("msg", "failed to start node", "err", err)
		os.Exit(1)
	}

	// Block until we receive a signal to shut down.
	<-ctx.Done()
	level.Info(logger).Log("msg", "received interrupt signal, shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	// Components must be shut down in a particular order.
	shutdownOrder := []shutdownFunc{
		closeNode,
		closeAdmin,
		closeMetrics,
		closeLogger,
	}

	for _, f := range shutdownOrder {
		if err := f(shutdownCtx); err != nil {
			level.Error(logger).Log("msg", "failed to shutdown component", "err", err)
		}
	}

	// Wait for all components to finish background tasks.
	wg.Wait()
}
