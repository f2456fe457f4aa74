package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/maxpoletaev/treenet/topology"
	"github.com/maxpoletaev/treenet/wire"
)

// Sender delivers messages using a fresh TCP connection per message.
type Sender struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

func NewSender(dialTimeout, writeTimeout time.Duration) *Sender {
	return &Sender{
		DialTimeout:  dialTimeout,
		WriteTimeout: writeTimeout,
	}
}

// Send dials the target, writes a single framed message and closes the
// connection. Delivery is not acknowledged.
func (s *Sender) Send(ctx context.Context, target topology.Addr, msg *wire.Message) error {
	dialer := net.Dialer{Timeout: s.DialTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", target.String())
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", target, err)
	}

	defer conn.Close()

	if s.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(s.WriteTimeout)); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}

	if err := wire.Write(conn, msg); err != nil {
		return fmt.Errorf("failed to send %s to %s: %w", msg.Type, target, err)
	}

	return nil
}

// Probe checks that the target accepts TCP connections. The connection is
// closed right away without sending anything.
func Probe(ctx context.Context, target topology.Addr) error {
	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "tcp", target.String())
	if err != nil {
		return fmt.Errorf("%s is unreachable: %w", target, err)
	}

	return conn.Close()
}
