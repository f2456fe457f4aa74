package overlay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/errgroup"

	"github.com/maxpoletaev/treenet/faildetector"
	"github.com/maxpoletaev/treenet/internal/multierror"
	"github.com/maxpoletaev/treenet/internal/telemetry"
	"github.com/maxpoletaev/treenet/topology"
	"github.com/maxpoletaev/treenet/transport"
	"github.com/maxpoletaev/treenet/wire"
)

var errNotStarted = errors.New("node is not started")

// Node is a member of the tree overlay. It accepts inbound messages, keeps
// its local view of the tree up to date and watches its parent.
type Node struct {
	conf     Config
	self     topology.Addr
	master   topology.Addr
	topo     *topology.Topology
	sender   Sender
	observer Observer
	logger   kitlog.Logger
	detector *faildetector.Detector

	// Context for the work done on behalf of inbound connections. Replaced
	// in Start and cancelled in Shutdown.
	ctx      context.Context
	cancel   context.CancelFunc
	listener *transport.Listener
	group    *errgroup.Group

	admissionMut sync.Mutex
	admission    *pendingAdmission

	notifyMut sync.Mutex
}

func New(conf Config) *Node {
	logger := conf.Logger
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}

	logger = kitlog.With(logger, "node", conf.Self)

	sender := conf.Sender
	if sender == nil {
		sender = transport.NewSender(conf.DialTimeout, conf.WriteTimeout)
	}

	n := &Node{
		conf:     conf,
		self:     conf.Self,
		master:   conf.Master,
		topo:     topology.New(conf.Self, conf.Master, conf.Fanout),
		sender:   sender,
		observer: conf.Observer,
		logger:   logger,
		ctx:      context.Background(),
	}

	n.detector = faildetector.New(n, logger,
		faildetector.WithProbeInterval(conf.ProbeInterval),
		faildetector.WithProbeTimeout(conf.ProbeTimeout),
	)

	return n
}

func (n *Node) Self() topology.Addr {
	return n.self
}

func (n *Node) Topology() *topology.Topology {
	return n.topo
}

// Start binds the listener and launches the background tasks. Unless the
// node is the master, it then asks the master for admission. Failing to
// bind the port is the only error returned.
func (n *Node) Start(ctx context.Context) error {
	if err := n.conf.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	listener, err := transport.Listen(n.self, n.logger)
	if err != nil {
		return err
	}

	n.ctx, n.cancel = context.WithCancel(ctx)
	n.listener = listener
	n.group = new(errgroup.Group)

	n.group.Go(func() error {
		if err := listener.Serve(n.handleConn); !errors.Is(err, transport.ErrClosed) {
			return fmt.Errorf("listener failed: %w", err)
		}

		return nil
	})

	n.group.Go(func() error {
		n.detector.RunLoop(n.ctx)
		return nil
	})

	level.Info(n.logger).Log(
		"msg", "node started",
		"master", n.master,
		"fanout", n.topo.Fanout(),
	)

	n.topologyChanged()

	if !n.topo.IsMaster() {
		n.requestAdmission(n.ctx, wire.New(wire.TypeConnect, n.self, wire.NoPayload()))
	}

	return nil
}

// Shutdown stops accepting connections, lets the in-flight handlers finish
// their sends, and only then stops the background tasks. Neighbours are not
// notified. If ctx expires first, the remaining work is cancelled.
func (n *Node) Shutdown(ctx context.Context) error {
	if n.listener == nil {
		return errNotStarted
	}

	errs := multierror.New[string]()

	if err := n.listener.Close(); err != nil {
		errs.Add("listener", err)
	}

	handlersDone := make(chan struct{})

	go func() {
		n.listener.Wait()
		close(handlersDone)
	}()

	select {
	case <-handlersDone:
	case <-ctx.Done():
		errs.Add("handlers", ctx.Err())
	}

	n.cancel()

	tasksDone := make(chan error, 1)

	go func() {
		tasksDone <- n.group.Wait()
	}()

	select {
	case err := <-tasksDone:
		errs.Add("tasks", err)
	case <-ctx.Done():
		errs.Add("tasks", ctx.Err())
	}

	level.Info(n.logger).Log("msg", "node stopped")

	return errs.Combined()
}

// send delivers one message and records the outcome.
func (n *Node) send(ctx context.Context, target topology.Addr, msg *wire.Message) error {
	start := time.Now()
	err := n.sender.Send(ctx, target, msg)
	telemetry.ObserveSend(string(msg.Type), start, err)

	return err
}

// topologyChanged publishes the current view to metrics, the log and the
// observer. Notifications are serialized and each one takes its snapshot
// inside the critical section, so the observer never sees an older view
// after a newer one. Must not be called with the topology lock held.
func (n *Node) topologyChanged() {
	n.notifyMut.Lock()
	defer n.notifyMut.Unlock()

	snap := n.topo.Snapshot()
	digest := snap.Digest()

	telemetry.SetTopology(n.self.String(), len(snap.Children), len(snap.Siblings), digest)

	level.Debug(n.logger).Log(
		"msg", "topology changed",
		"parent", snap.Parent,
		"children", len(snap.Children),
		"siblings", len(snap.Siblings),
		"joined", snap.Joined,
		"digest", fmt.Sprintf("%016x", digest),
	)

	if n.observer != nil {
		n.observer.TopologyChanged(snap)
	}
}
