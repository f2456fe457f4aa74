package overlay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/go-kit/log/level"

	"github.com/maxpoletaev/treenet/internal/multierror"
	"github.com/maxpoletaev/treenet/internal/telemetry"
	"github.com/maxpoletaev/treenet/topology"
	"github.com/maxpoletaev/treenet/wire"
)

var (
	errUnexpectedPayload = fmt.Errorf("%w: unexpected payload", wire.ErrMalformed)
	errNoChildren        = errors.New("no children to delegate to")
)

// handleConn reads exactly one message from the connection and processes
// it. Connections closed without sending anything are liveness probes.
func (n *Node) handleConn(conn net.Conn) {
	if n.conf.ReadTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(n.conf.ReadTimeout)); err != nil {
			level.Warn(n.logger).Log("msg", "failed to set read deadline", "err", err)
			return
		}
	}

	msg, err := wire.Read(conn)
	if err != nil {
		if errors.Is(err, io.EOF) {
			level.Debug(n.logger).Log("msg", "probe received", "remote", conn.RemoteAddr())
			return
		}

		level.Warn(n.logger).Log(
			"msg", "failed to read message",
			"remote", conn.RemoteAddr(),
			"err", err,
		)

		return
	}

	if err := n.handleMessage(n.ctx, msg); err != nil {
		level.Warn(n.logger).Log(
			"msg", "failed to handle message",
			"type", msg.Type,
			"from", msg.Sender,
			"id", msg.ID,
			"err", err,
		)
	}
}

func (n *Node) handleMessage(ctx context.Context, msg *wire.Message) error {
	if msg.Type.Known() {
		telemetry.MessagesReceived.WithLabelValues(string(msg.Type)).Inc()
	} else {
		telemetry.MessagesReceived.WithLabelValues("unknown").Inc()
	}

	level.Debug(n.logger).Log(
		"msg", "message received",
		"type", msg.Type,
		"from", msg.Sender,
		"id", msg.ID,
	)

	switch msg.Type {
	case wire.TypeConnect:
		return n.handleConnect(ctx, msg)
	case wire.TypeConnectConfirm:
		return n.handleConnectConfirm(msg)
	case wire.TypeAddBrother:
		return n.handleAddBrother(msg)
	case wire.TypeCrashReport:
		return n.handleCrashReport(ctx, msg)
	default:
		return fmt.Errorf("%w: %q", wire.ErrUnknownType, msg.Type)
	}
}

func (n *Node) handleConnect(ctx context.Context, msg *wire.Message) error {
	if msg.Payload.Kind != wire.PayloadNone {
		return errUnexpectedPayload
	}

	return n.admit(ctx, msg)
}

// admit places the sender of a join request either among our children or,
// when there is no room left, forwards the request unchanged to a random
// child. Forwarding repeats down the tree until some node has a free slot.
func (n *Node) admit(ctx context.Context, msg *wire.Message) error {
	joiner := msg.Sender

	result, siblings := n.topo.Admit(joiner)

	switch result {
	case topology.Rejected:
		level.Warn(n.logger).Log("msg", "ignoring join request from self", "id", msg.ID)
		return nil

	case topology.AlreadyChild:
		level.Info(n.logger).Log("msg", "node is already a child, confirming again", "child", joiner, "id", msg.ID)
		return n.send(ctx, joiner, confirmFor(msg, n.self, siblings))

	case topology.Full:
		return n.delegate(ctx, msg)

	case topology.Admitted:
		telemetry.Admissions.Inc()

		level.Info(n.logger).Log(
			"msg", "admitted new child",
			"child", joiner,
			"siblings", len(siblings),
			"id", msg.ID,
		)

		n.topologyChanged()

		return n.notifyAdmitted(ctx, msg, siblings)

	default:
		return fmt.Errorf("unexpected admission result: %v", result)
	}
}

// notifyAdmitted tells the new child who its siblings are and tells each of
// the siblings about the new child. The siblings are the children as they
// were right before the admission.
func (n *Node) notifyAdmitted(ctx context.Context, msg *wire.Message, siblings []topology.Addr) error {
	joiner := msg.Sender
	errs := multierror.New[topology.Addr]()

	errs.Add(joiner, n.send(ctx, joiner, confirmFor(msg, n.self, siblings)))

	for _, sibling := range siblings {
		notice := &wire.Message{
			ID:      msg.ID,
			Type:    wire.TypeAddBrother,
			Sender:  n.self,
			Payload: wire.AddrPayload(joiner),
		}

		errs.Add(sibling, n.send(ctx, sibling, notice))
	}

	if err := errs.Combined(); err != nil {
		return fmt.Errorf("failed to notify %d node(s): %w", errs.Len(), err)
	}

	return nil
}

func (n *Node) delegate(ctx context.Context, msg *wire.Message) error {
	child, ok := n.topo.PickChild()
	if !ok {
		return errNoChildren
	}

	telemetry.Delegations.Inc()

	level.Debug(n.logger).Log(
		"msg", "delegating join request",
		"joiner", msg.Sender,
		"child", child,
		"id", msg.ID,
	)

	if err := n.send(ctx, child, msg); err != nil {
		return fmt.Errorf("failed to delegate to %s: %w", child, err)
	}

	return nil
}

func confirmFor(req *wire.Message, self topology.Addr, siblings []topology.Addr) *wire.Message {
	return &wire.Message{
		ID:      req.ID,
		Type:    wire.TypeConnectConfirm,
		Sender:  self,
		Payload: wire.AddrListPayload(siblings),
	}
}

func (n *Node) handleConnectConfirm(msg *wire.Message) error {
	if n.topo.IsMaster() || msg.Sender == n.self {
		level.Warn(n.logger).Log("msg", "ignoring unexpected confirmation", "from", msg.Sender, "id", msg.ID)
		return nil
	}

	var siblings []topology.Addr

	switch msg.Payload.Kind {
	case wire.PayloadAddrList:
		siblings = msg.Payload.List
	case wire.PayloadNone:
	default:
		return errUnexpectedPayload
	}

	n.topo.Confirm(msg.Sender, siblings)
	n.clearAdmission()

	level.Info(n.logger).Log(
		"msg", "joined the tree",
		"parent", msg.Sender,
		"siblings", len(siblings),
		"id", msg.ID,
	)

	n.topologyChanged()

	return nil
}

func (n *Node) handleAddBrother(msg *wire.Message) error {
	if msg.Payload.Kind != wire.PayloadAddr {
		return errUnexpectedPayload
	}

	sibling := msg.Payload.Addr

	if n.topo.AddSibling(msg.Sender, sibling) {
		level.Debug(n.logger).Log("msg", "new sibling", "sibling", sibling, "id", msg.ID)
		n.topologyChanged()
	}

	return nil
}

// handleCrashReport removes the dead node from the local bookkeeping and
// admits the reporter again as if it had just asked to join.
func (n *Node) handleCrashReport(ctx context.Context, msg *wire.Message) error {
	if !n.topo.IsMaster() {
		level.Warn(n.logger).Log("msg", "ignoring crash report, not a master", "from", msg.Sender, "id", msg.ID)
		return nil
	}

	if msg.Payload.Kind != wire.PayloadAddr {
		return errUnexpectedPayload
	}

	dead := msg.Payload.Addr

	level.Warn(n.logger).Log(
		"msg", "node reported as crashed",
		"crashed", dead,
		"reporter", msg.Sender,
		"id", msg.ID,
	)

	if dead != n.self && n.topo.Remove(dead) {
		n.topologyChanged()
	}

	rejoin := &wire.Message{
		ID:      msg.ID,
		Type:    wire.TypeConnect,
		Sender:  msg.Sender,
		Payload: wire.NoPayload(),
	}

	return n.admit(ctx, rejoin)
}
