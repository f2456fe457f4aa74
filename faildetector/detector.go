package faildetector

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/maxpoletaev/treenet/internal/telemetry"
	"github.com/maxpoletaev/treenet/transport"
)

// Detector periodically checks that the parent of a node still accepts
// connections. A single failed probe is enough to consider the parent dead.
type Detector struct {
	target        Target
	logger        log.Logger
	probe         ProbeFunc
	probeInterval time.Duration
	probeTimeout  time.Duration
}

func New(target Target, logger log.Logger, opts ...Option) *Detector {
	d := &Detector{
		target:        target,
		logger:        logger,
		probe:         transport.Probe,
		probeInterval: 10 * time.Second,
		probeTimeout:  2 * time.Second,
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.logger == nil {
		d.logger = log.NewNopLogger()
	}

	return d
}

// RunLoop probes the watched address every interval until ctx is cancelled.
func (d *Detector) RunLoop(ctx context.Context) {
	level.Debug(d.logger).Log(
		"msg", "failure detector loop started",
		"probe_interval", d.probeInterval,
	)

	ticker := time.NewTicker(d.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// noop
		case <-ctx.Done():
			return
		}

		d.tick(ctx)
	}
}

func (d *Detector) tick(ctx context.Context) {
	d.target.Tick(ctx)

	addr, ok := d.target.WatchedAddr()
	if !ok {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, d.probeTimeout)
	err := d.probe(probeCtx, addr)
	cancel()

	if err == nil {
		return
	}

	// The probe may have been interrupted by shutdown.
	if ctx.Err() != nil {
		return
	}

	telemetry.ProbeFailures.Inc()

	level.Warn(d.logger).Log(
		"msg", "parent is unreachable",
		"parent", addr,
		"err", err,
	)

	d.target.ParentUnreachable(ctx, addr)
}
