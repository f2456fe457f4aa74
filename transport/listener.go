package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/maxpoletaev/treenet/topology"
)

var ErrClosed = errors.New("listener closed")

// Handler processes a single inbound connection. The listener closes the
// connection once the handler returns.
type Handler func(conn net.Conn)

// Listener accepts inbound connections and runs a handler for each of them
// in its own goroutine.
type Listener struct {
	logger log.Logger
	ln     net.Listener
	wg     sync.WaitGroup
	closed int32
}

// Listen binds a TCP socket on the host and port of addr.
func Listen(addr topology.Addr, logger log.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr.String())
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &Listener{
		logger: logger,
		ln:     ln,
	}, nil
}

func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Serve accepts connections until the listener is closed, in which case
// ErrClosed is returned. Temporary accept errors are retried with a growing
// delay.
func (l *Listener) Serve(handler Handler) error {
	const (
		initialDelay = 5 * time.Millisecond
		maxDelay     = 1 * time.Second
	)

	delay := initialDelay

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if atomic.LoadInt32(&l.closed) == 1 || errors.Is(err, net.ErrClosed) {
				return ErrClosed
			}

			level.Error(l.logger).Log("msg", "failed to accept connection", "err", err)
			time.Sleep(delay)

			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}

			continue
		}

		delay = initialDelay

		l.wg.Add(1)

		go func() {
			defer l.wg.Done()
			defer conn.Close()
			handler(conn)
		}()
	}
}

// Close stops accepting new connections. Handlers that are already running
// are not interrupted, use Wait to block until they finish.
func (l *Listener) Close() error {
	if !atomic.CompareAndSwapInt32(&l.closed, 0, 1) {
		return nil
	}

	return l.ln.Close()
}

func (l *Listener) Wait() {
	l.wg.Wait()
}
