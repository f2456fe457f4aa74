package overlay

import (
	"context"
	"time"

	"github.com/go-kit/log/level"

	"github.com/maxpoletaev/treenet/topology"
	"github.com/maxpoletaev/treenet/wire"
)

// pendingAdmission is the last request sent to the master that has not been
// answered with a connect_confirm yet: either the initial connect or a
// crash_report sent after losing the parent.
type pendingAdmission struct {
	msg    *wire.Message
	sentAt time.Time
}

func (n *Node) requestAdmission(ctx context.Context, msg *wire.Message) {
	n.admissionMut.Lock()
	n.admission = &pendingAdmission{msg: msg, sentAt: time.Now()}
	n.admissionMut.Unlock()

	level.Debug(n.logger).Log(
		"msg", "requesting admission",
		"type", msg.Type,
		"id", msg.ID,
	)

	if err := n.send(ctx, n.master, msg); err != nil {
		level.Warn(n.logger).Log(
			"msg", "failed to reach master",
			"type", msg.Type,
			"master", n.master,
			"err", err,
		)
	}
}

func (n *Node) clearAdmission() {
	n.admissionMut.Lock()
	n.admission = nil
	n.admissionMut.Unlock()
}

// Tick re-sends the pending admission request if no parent has confirmed us
// within the admission timeout. A confirmation may still arrive for the
// first request, in which case the node can end up admitted twice.
func (n *Node) Tick(ctx context.Context) {
	if n.topo.IsMaster() || n.topo.Joined() {
		return
	}

	n.admissionMut.Lock()

	req := n.admission
	if req == nil || time.Since(req.sentAt) < n.conf.AdmissionTimeout {
		n.admissionMut.Unlock()
		return
	}

	req.sentAt = time.Now()
	msg := req.msg

	n.admissionMut.Unlock()

	level.Info(n.logger).Log(
		"msg", "admission timed out, retrying",
		"type", msg.Type,
		"id", msg.ID,
	)

	if err := n.send(ctx, n.master, msg); err != nil {
		level.Warn(n.logger).Log(
			"msg", "failed to reach master",
			"type", msg.Type,
			"master", n.master,
			"err", err,
		)
	}
}

// WatchedAddr returns the parent while the node is part of the tree. The
// master has no parent to watch.
func (n *Node) WatchedAddr() (topology.Addr, bool) {
	if n.topo.IsMaster() {
		return topology.Addr{}, false
	}

	snap := n.topo.Snapshot()
	if !snap.Joined {
		return topology.Addr{}, false
	}

	return snap.Parent, true
}

// ParentUnreachable reports the dead parent to the master, which then finds
// a new place for this node. Children and siblings are kept as is.
func (n *Node) ParentUnreachable(ctx context.Context, parent topology.Addr) {
	if !n.topo.Detach(parent) {
		return
	}

	n.topologyChanged()

	msg := wire.New(wire.TypeCrashReport, n.self, wire.AddrPayload(parent))

	level.Warn(n.logger).Log(
		"msg", "lost parent, reporting to master",
		"parent", parent,
		"id", msg.ID,
	)

	n.requestAdmission(ctx, msg)
}
