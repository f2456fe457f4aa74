package overlay

import (
	"context"

	"github.com/maxpoletaev/treenet/topology"
	"github.com/maxpoletaev/treenet/wire"
)

type Sender interface {
	Send(ctx context.Context, target topology.Addr, msg *wire.Message) error
}

// Observer is notified after every change of the local topology.
type Observer interface {
	TopologyChanged(snap topology.Snapshot)
}
