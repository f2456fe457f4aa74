package faildetector

import (
	"context"

	"github.com/maxpoletaev/treenet/topology"
)

// Target is the node whose parent is being watched.
type Target interface {
	// WatchedAddr returns the address to probe, or false if there is nothing
	// to watch at the moment.
	WatchedAddr() (topology.Addr, bool)

	// ParentUnreachable is called once the probe of the watched address fails.
	ParentUnreachable(ctx context.Context, addr topology.Addr)

	// Tick is called on every round, before probing.
	Tick(ctx context.Context)
}

type ProbeFunc func(ctx context.Context, addr topology.Addr) error
